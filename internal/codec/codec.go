package codec

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"smallarea/internal/domain"
)

// Importer parses survey data from a format
type Importer interface {
	// ParseSurvey reads observations, and a frame when the format carries one
	ParseSurvey(r io.Reader) (*domain.Survey, error)
	// ParseFrame reads a domain -> population size mapping
	ParseFrame(r io.Reader) (domain.DomainFrame, error)
	Format() string
}

// Exporter writes an estimation run's table to a format
type Exporter interface {
	Export(run *domain.EstimationRun, w io.Writer) error
	Format() string
}

// Formats lists the supported format identifiers
var Formats = []string{"csv", "json", "yaml"}

// NewImporter returns the importer for a format identifier
func NewImporter(format string) (Importer, error) {
	if isTSV(format) {
		return NewTSVCodec(), nil
	}
	switch normalizeFormat(format) {
	case "csv":
		return NewCSVCodec(), nil
	case "json":
		return NewJSONCodec(), nil
	case "yaml":
		return NewYAMLCodec(), nil
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// NewExporter returns the exporter for a format identifier
func NewExporter(format string) (Exporter, error) {
	if isTSV(format) {
		return NewTSVCodec(), nil
	}
	switch normalizeFormat(format) {
	case "csv":
		return NewCSVCodec(), nil
	case "json":
		return NewJSONCodec(), nil
	case "yaml":
		return NewYAMLCodec(), nil
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

// FormatFromPath infers the format from a file extension
func FormatFromPath(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if isTSV(ext) {
		return "tsv"
	}
	return normalizeFormat(ext)
}

// FormatFromContentType infers the format from an HTTP Content-Type
func FormatFromContentType(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "csv"):
		return "csv"
	case strings.Contains(ct, "yaml"), strings.Contains(ct, "yml"):
		return "yaml"
	case strings.Contains(ct, "json"):
		return "json"
	}
	return ""
}

// ContentType returns the MIME type written for a format
func ContentType(format string) string {
	if isTSV(format) {
		return "text/tab-separated-values"
	}
	switch normalizeFormat(format) {
	case "csv":
		return "text/csv"
	case "yaml":
		return "application/x-yaml"
	}
	return "application/json"
}

func isTSV(format string) bool {
	return strings.EqualFold(strings.TrimSpace(format), "tsv")
}

func normalizeFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "csv", "tsv":
		return "csv"
	case "json":
		return "json"
	case "yaml", "yml":
		return "yaml"
	}
	return strings.ToLower(format)
}

// EstimateRow is the exported shape of a DirectEstimate, with its derived
// precision measures
type EstimateRow struct {
	DomainID       string           `json:"domain_id" yaml:"domain_id"`
	SampleSize     int              `json:"sample_size" yaml:"sample_size"`
	PopulationSize *int64           `json:"population_size,omitempty" yaml:"population_size,omitempty"`
	Estimate       domain.NullFloat `json:"estimate" yaml:"estimate"`
	Variance       domain.NullFloat `json:"variance" yaml:"variance"`
	StdError       domain.NullFloat `json:"std_error" yaml:"std_error"`
	CV             domain.NullFloat `json:"cv" yaml:"cv"`
	Notes          []domain.Note    `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// RunDocument is the exported shape of an EstimationRun
type RunDocument struct {
	RunID       string          `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	SurveyID    string          `json:"survey_id,omitempty" yaml:"survey_id,omitempty"`
	Scenario    domain.Scenario `json:"scenario" yaml:"scenario"`
	Fingerprint string          `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Estimates   []EstimateRow   `json:"estimates" yaml:"estimates"`
	Warnings    []string        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// NewRunDocument converts a run for export
func NewRunDocument(run *domain.EstimationRun) RunDocument {
	doc := RunDocument{
		RunID:       run.ID,
		SurveyID:    run.SurveyID,
		Scenario:    run.Scenario,
		Fingerprint: run.Fingerprint,
		Estimates:   make([]EstimateRow, 0, len(run.Estimates)),
		Warnings:    run.Warnings,
	}
	for _, e := range run.Estimates {
		doc.Estimates = append(doc.Estimates, NewEstimateRow(e))
	}
	return doc
}

// NewEstimateRow converts one estimate for export
func NewEstimateRow(e domain.DirectEstimate) EstimateRow {
	return EstimateRow{
		DomainID:       e.DomainID,
		SampleSize:     e.SampleSize,
		PopulationSize: e.PopulationSize,
		Estimate:       e.Estimate,
		Variance:       e.Variance,
		StdError:       e.StdError(),
		CV:             e.CV(),
		Notes:          e.Notes,
	}
}

// surveyDocument is the JSON/YAML shape of an imported survey
type surveyDocument struct {
	Name         string               `json:"name" yaml:"name"`
	Observations []domain.Observation `json:"observations" yaml:"observations"`
	Frame        map[string]int64     `json:"frame,omitempty" yaml:"frame,omitempty"`
}

func (d *surveyDocument) toSurvey() *domain.Survey {
	survey := domain.NewSurvey("", d.Name)
	if d.Observations != nil {
		survey.Observations = d.Observations
	}
	for id, n := range d.Frame {
		survey.Frame[id] = n
	}
	return survey
}
