package codec

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"smallarea/internal/domain"
)

// Default column names for survey and frame CSV files
const (
	DefaultDomainColumn     = "domain_id"
	DefaultValueColumn      = "value"
	DefaultWeightColumn     = "weight"
	DefaultPopulationColumn = "population_size"
)

// CSVCodec handles CSV import/export. Column names are configurable so that
// survey extracts can be read without renaming their headers.
type CSVCodec struct {
	DomainColumn     string
	ValueColumn      string
	WeightColumn     string
	PopulationColumn string
	Comma            rune
}

// NewCSVCodec creates a CSV codec with the default column names
func NewCSVCodec() *CSVCodec {
	return &CSVCodec{
		DomainColumn:     DefaultDomainColumn,
		ValueColumn:      DefaultValueColumn,
		WeightColumn:     DefaultWeightColumn,
		PopulationColumn: DefaultPopulationColumn,
		Comma:            ',',
	}
}

// NewTSVCodec creates a tab-separated codec with the default column names
func NewTSVCodec() *CSVCodec {
	c := NewCSVCodec()
	c.Comma = '\t'
	return c
}

// Format returns the codec format identifier
func (c *CSVCodec) Format() string {
	if c.Comma == '\t' {
		return "tsv"
	}
	return "csv"
}

// ParseSurvey imports observations from CSV. The weight column is optional;
// an empty weight cell leaves that observation unweighted. CSV carries no
// frame, so the returned survey's frame is empty.
func (c *CSVCodec) ParseSurvey(r io.Reader) (*domain.Survey, error) {
	reader := c.newReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := indexColumns(header)

	domainIdx, ok := cols[c.DomainColumn]
	if !ok {
		return nil, fmt.Errorf("CSV header missing column %q", c.DomainColumn)
	}
	valueIdx, ok := cols[c.ValueColumn]
	if !ok {
		return nil, fmt.Errorf("CSV header missing column %q", c.ValueColumn)
	}
	weightIdx, hasWeight := cols[c.WeightColumn]

	survey := domain.NewSurvey("", "")
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		value, err := parseFloat(record[valueIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: column %q: %w", line, c.ValueColumn, err)
		}
		obs := domain.NewObservation(strings.TrimSpace(record[domainIdx]), value)

		if hasWeight {
			if cell := strings.TrimSpace(record[weightIdx]); cell != "" && !isNA(cell) {
				w, err := parseFloat(cell)
				if err != nil {
					return nil, fmt.Errorf("line %d: column %q: %w", line, c.WeightColumn, err)
				}
				obs.Weight = &w
			}
		}

		survey.AddObservation(obs)
	}

	return survey, nil
}

// ParseFrame imports a frame from CSV with domain and population columns
func (c *CSVCodec) ParseFrame(r io.Reader) (domain.DomainFrame, error) {
	reader := c.newReader(r)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := indexColumns(header)

	domainIdx, ok := cols[c.DomainColumn]
	if !ok {
		return nil, fmt.Errorf("CSV header missing column %q", c.DomainColumn)
	}
	popIdx, ok := cols[c.PopulationColumn]
	if !ok {
		return nil, fmt.Errorf("CSV header missing column %q", c.PopulationColumn)
	}

	frame := domain.NewDomainFrame()
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}

		id := strings.TrimSpace(record[domainIdx])
		n, err := strconv.ParseInt(strings.TrimSpace(record[popIdx]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: column %q: %w", line, c.PopulationColumn, err)
		}
		if _, dup := frame[id]; dup {
			return nil, fmt.Errorf("line %d: duplicate domain %q in frame", line, id)
		}
		frame[id] = n
	}

	return frame, nil
}

// Export writes the estimate table as CSV. Absent values are written as NA.
func (c *CSVCodec) Export(run *domain.EstimationRun, w io.Writer) error {
	writer := csv.NewWriter(w)
	if c.Comma != 0 {
		writer.Comma = c.Comma
	}

	header := []string{"domain_id", "sample_size", "population_size", "estimate", "variance", "std_error", "cv", "notes"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, e := range run.Estimates {
		row := NewEstimateRow(e)
		pop := "NA"
		if row.PopulationSize != nil {
			pop = strconv.FormatInt(*row.PopulationSize, 10)
		}
		codes := make([]string, 0, len(row.Notes))
		for _, n := range row.Notes {
			codes = append(codes, n.Field+":"+string(n.Code))
		}
		record := []string{
			row.DomainID,
			strconv.Itoa(row.SampleSize),
			pop,
			row.Estimate.String(),
			row.Variance.String(),
			row.StdError.String(),
			row.CV.String(),
			strings.Join(codes, ";"),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row for %s: %w", row.DomainID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func (c *CSVCodec) newReader(r io.Reader) *csv.Reader {
	reader := csv.NewReader(r)
	if c.Comma != 0 {
		reader.Comma = c.Comma
	}
	reader.TrimLeadingSpace = true
	return reader
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		cols[name] = i
	}
	return cols
}

func parseFloat(cell string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(cell), 64)
}

func isNA(cell string) bool {
	switch strings.ToUpper(cell) {
	case "NA", "NAN", "NULL":
		return true
	}
	return false
}
