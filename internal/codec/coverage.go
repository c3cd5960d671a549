package codec

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"smallarea/internal/domain"
)

// CoverageRow is the exported shape of a CoverageEntry. Out-of-sample
// domains carry null estimate columns.
type CoverageRow struct {
	DomainID       string           `json:"domain_id" yaml:"domain_id"`
	InSample       bool             `json:"in_sample" yaml:"in_sample"`
	InFrame        bool             `json:"in_frame" yaml:"in_frame"`
	SampleSize     int              `json:"sample_size" yaml:"sample_size"`
	PopulationSize *int64           `json:"population_size,omitempty" yaml:"population_size,omitempty"`
	Estimate       domain.NullFloat `json:"estimate" yaml:"estimate"`
	Variance       domain.NullFloat `json:"variance" yaml:"variance"`
	CV             domain.NullFloat `json:"cv" yaml:"cv"`
}

// NewCoverageRows converts coverage entries for export
func NewCoverageRows(entries []domain.CoverageEntry) []CoverageRow {
	rows := make([]CoverageRow, 0, len(entries))
	for _, e := range entries {
		row := CoverageRow{
			DomainID:       e.DomainID,
			InSample:       e.InSample,
			InFrame:        e.InFrame,
			PopulationSize: e.PopulationSize,
		}
		if e.Estimate != nil {
			row.SampleSize = e.Estimate.SampleSize
			row.Estimate = e.Estimate.Estimate
			row.Variance = e.Estimate.Variance
			row.CV = e.Estimate.CV()
		}
		rows = append(rows, row)
	}
	return rows
}

// ExportCoverage writes a coverage table in the given format
func ExportCoverage(entries []domain.CoverageEntry, format string, w io.Writer) error {
	rows := NewCoverageRows(entries)

	if isTSV(format) {
		return writeCoverageCSV(rows, '\t', w)
	}
	switch normalizeFormat(format) {
	case "csv":
		return writeCoverageCSV(rows, ',', w)
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(rows); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		defer encoder.Close()
		if err := encoder.Encode(rows); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return nil
	}
	return fmt.Errorf("unsupported format %q", format)
}

func writeCoverageCSV(rows []CoverageRow, comma rune, w io.Writer) error {
	writer := csv.NewWriter(w)
	writer.Comma = comma

	header := []string{"domain_id", "in_sample", "in_frame", "sample_size", "population_size", "estimate", "variance", "cv"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, row := range rows {
		pop := "NA"
		if row.PopulationSize != nil {
			pop = strconv.FormatInt(*row.PopulationSize, 10)
		}
		record := []string{
			row.DomainID,
			strconv.FormatBool(row.InSample),
			strconv.FormatBool(row.InFrame),
			strconv.Itoa(row.SampleSize),
			pop,
			row.Estimate.String(),
			row.Variance.String(),
			row.CV.String(),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row for %s: %w", row.DomainID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}
