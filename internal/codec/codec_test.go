package codec

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"smallarea/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRun() *domain.EstimationRun {
	n := int64(30)
	return &domain.EstimationRun{
		ID:          "run-1",
		SurveyID:    "survey-1",
		Scenario:    domain.ScenarioB,
		Fingerprint: "abc",
		Estimates: []domain.DirectEstimate{
			{DomainID: "X", Estimate: domain.Float(20), Variance: domain.Float(4), SampleSize: 3, PopulationSize: &n},
			{DomainID: "Y", Estimate: domain.Float(5), Variance: domain.Null(), SampleSize: 1, PopulationSize: &n,
				Notes: []domain.Note{{Field: "variance", Code: domain.NoteInsufficientSampleSize, Message: "n=1"}}},
		},
		Warnings: []string{"insufficient sample size for variance in domain \"Y\""},
	}
}

func TestCSVParseSurvey(t *testing.T) {
	input := "domain_id,value,weight\nX,100,2\nX,200,1\nY,50,\nY,60,NA\n"

	survey, err := NewCSVCodec().ParseSurvey(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, survey.Observations, 4)

	assert.Equal(t, "X", survey.Observations[0].DomainID)
	assert.Equal(t, 100.0, survey.Observations[0].Value)
	require.NotNil(t, survey.Observations[0].Weight)
	assert.Equal(t, 2.0, *survey.Observations[0].Weight)
	assert.Nil(t, survey.Observations[2].Weight)
	assert.Nil(t, survey.Observations[3].Weight)
	assert.Empty(t, survey.Frame)
}

func TestCSVParseSurveyCustomColumns(t *testing.T) {
	input := "\ufeffdistrict;eqIncome\nnorth;12.5\nsouth;9\n"

	c := NewCSVCodec()
	c.DomainColumn = "district"
	c.ValueColumn = "eqIncome"
	c.Comma = ';'

	survey, err := c.ParseSurvey(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, survey.Observations, 2)
	assert.Equal(t, "south", survey.Observations[1].DomainID)
	assert.False(t, survey.Weighted())
}

func TestCSVParseSurveyErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing domain column", "value\n1\n", `missing column "domain_id"`},
		{"missing value column", "domain_id\nX\n", `missing column "value"`},
		{"bad value", "domain_id,value\nX,abc\n", "line 2"},
		{"bad weight", "domain_id,value,weight\nX,1,w\n", `column "weight"`},
		{"empty input", "", "header"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCSVCodec().ParseSurvey(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestCSVParseFrame(t *testing.T) {
	frame, err := NewCSVCodec().ParseFrame(strings.NewReader("domain_id,population_size\nX,30\nY,10\n"))
	require.NoError(t, err)
	assert.Equal(t, domain.DomainFrame{"X": 30, "Y": 10}, frame)

	_, err = NewCSVCodec().ParseFrame(strings.NewReader("domain_id,population_size\nX,30\nX,10\n"))
	assert.ErrorContains(t, err, "duplicate domain")

	_, err = NewCSVCodec().ParseFrame(strings.NewReader("domain_id,population_size\nX,3.5\n"))
	assert.Error(t, err)
}

func TestCSVExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVCodec().Export(sampleRun(), &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "domain_id,sample_size,population_size,estimate,variance,std_error,cv,notes", lines[0])
	assert.Equal(t, "X,3,30,20,4,2,0.1,", lines[1])
	assert.Equal(t, "Y,1,30,5,NA,NA,NA,variance:insufficient_sample_size", lines[2])
}

func TestTSVRoundTripHeader(t *testing.T) {
	imp, err := NewImporter("tsv")
	require.NoError(t, err)
	survey, err := imp.ParseSurvey(strings.NewReader("domain_id\tvalue\nA\t1.5\n"))
	require.NoError(t, err)
	assert.Equal(t, 1.5, survey.Observations[0].Value)

	exp, err := NewExporter("TSV")
	require.NoError(t, err)
	assert.Equal(t, "tsv", exp.Format())
	assert.Equal(t, "text/tab-separated-values", ContentType(exp.Format()))

	var buf bytes.Buffer
	require.NoError(t, exp.Export(sampleRun(), &buf))
	assert.True(t, strings.HasPrefix(buf.String(), "domain_id\tsample_size\t"))
}

func TestJSONParseSurvey(t *testing.T) {
	input := `{
		"name": "pilot",
		"observations": [
			{"domain_id": "X", "value": 100, "weight": 2},
			{"domain_id": "Y", "value": 10}
		],
		"frame": {"X": 30, "Y": 10, "Z": 5}
	}`

	survey, err := NewJSONCodec().ParseSurvey(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "pilot", survey.Name)
	require.Len(t, survey.Observations, 2)
	assert.True(t, survey.Observations[0].HasWeight())
	assert.False(t, survey.Observations[1].HasWeight())
	assert.Equal(t, domain.DomainFrame{"X": 30, "Y": 10, "Z": 5}, survey.Frame)

	_, err = NewJSONCodec().ParseSurvey(strings.NewReader(`{"nmae": "typo"}`))
	assert.Error(t, err)
}

func TestJSONExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewJSONCodec().Export(sampleRun(), &buf))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "B", doc["scenario"])

	rows := doc["estimates"].([]any)
	require.Len(t, rows, 2)
	y := rows[1].(map[string]any)
	assert.Nil(t, y["variance"])
	assert.Nil(t, y["cv"])
	assert.Equal(t, 5.0, y["estimate"])
}

func TestYAMLParseSurveyAndFrame(t *testing.T) {
	input := `
name: pilot
observations:
  - {domain_id: X, value: 100, weight: 2}
  - {domain_id: X, value: 200, weight: 1}
frame:
  X: 30
`
	survey, err := NewYAMLCodec().ParseSurvey(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, survey.Observations, 2)
	assert.Equal(t, int64(30), survey.Frame["X"])

	frame, err := NewYAMLCodec().ParseFrame(strings.NewReader("X: 30\nY: 12\n"))
	require.NoError(t, err)
	assert.Equal(t, domain.DomainFrame{"X": 30, "Y": 12}, frame)
}

func TestYAMLExport(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewYAMLCodec().Export(sampleRun(), &buf))
	out := buf.String()
	assert.Contains(t, out, "scenario: B")
	assert.Contains(t, out, "variance: null")
	assert.Contains(t, out, "code: insufficient_sample_size")
}

func TestFormatLookup(t *testing.T) {
	assert.Equal(t, "csv", FormatFromPath("data/obs.CSV"))
	assert.Equal(t, "yaml", FormatFromPath("survey.yml"))
	assert.Equal(t, "json", FormatFromPath("survey.json"))
	assert.Equal(t, "csv", FormatFromContentType("text/csv; charset=utf-8"))
	assert.Equal(t, "yaml", FormatFromContentType("application/x-yaml"))
	assert.Equal(t, "json", FormatFromContentType("application/json"))
	assert.Equal(t, "", FormatFromContentType("text/plain"))

	for _, f := range Formats {
		_, err := NewImporter(f)
		assert.NoError(t, err, f)
		_, err = NewExporter(f)
		assert.NoError(t, err, f)
	}
	_, err := NewExporter("xlsx")
	assert.Error(t, err)
}

func TestExportCoverage(t *testing.T) {
	run := sampleRun()
	frame := domain.DomainFrame{"X": 30, "Y": 30, "Z": 7}
	entries := domain.Coverage(frame, run.Estimates)

	var buf bytes.Buffer
	require.NoError(t, ExportCoverage(entries, "csv", &buf))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "domain_id,in_sample,in_frame,sample_size,population_size,estimate,variance,cv", lines[0])
	assert.Equal(t, "X,true,true,3,30,20,4,0.1", lines[1])
	assert.Equal(t, "Z,false,true,0,7,NA,NA,NA", lines[3])

	buf.Reset()
	require.NoError(t, ExportCoverage(entries, "json", &buf))
	var rows []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rows))
	require.Len(t, rows, 3)
	assert.Nil(t, rows[2]["estimate"])
	assert.Equal(t, false, rows[2]["in_sample"])

	buf.Reset()
	require.NoError(t, ExportCoverage(entries, "yaml", &buf))
	assert.Contains(t, buf.String(), "domain_id: Z")

	assert.Error(t, ExportCoverage(entries, "xlsx", &buf))
}
