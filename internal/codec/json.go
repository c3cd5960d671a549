package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"smallarea/internal/domain"
)

// JSONCodec handles JSON import/export
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// ParseSurvey imports a survey document from JSON
func (c *JSONCodec) ParseSurvey(r io.Reader) (*domain.Survey, error) {
	var doc surveyDocument
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	return doc.toSurvey(), nil
}

// ParseFrame imports a frame from a JSON object of domain id to population size
func (c *JSONCodec) ParseFrame(r io.Reader) (domain.DomainFrame, error) {
	var raw map[string]int64
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse JSON frame: %w", err)
	}

	frame := domain.NewDomainFrame()
	for id, n := range raw {
		frame[id] = n
	}
	return frame, nil
}

// Export exports the run's estimate table to JSON
func (c *JSONCodec) Export(run *domain.EstimationRun, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(NewRunDocument(run)); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
