package codec

import (
	"fmt"
	"io"

	"smallarea/internal/domain"

	"gopkg.in/yaml.v3"
)

// YAMLCodec handles YAML import/export
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// ParseSurvey imports a survey document from YAML:
//
//	name: pilot
//	observations:
//	  - {domain_id: X, value: 100, weight: 2}
//	frame:
//	  X: 30
func (c *YAMLCodec) ParseSurvey(r io.Reader) (*domain.Survey, error) {
	var doc surveyDocument
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return doc.toSurvey(), nil
}

// ParseFrame imports a frame from a YAML mapping of domain id to population size
func (c *YAMLCodec) ParseFrame(r io.Reader) (domain.DomainFrame, error) {
	var raw map[string]int64
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML frame: %w", err)
	}

	frame := domain.NewDomainFrame()
	for id, n := range raw {
		frame[id] = n
	}
	return frame, nil
}

// Export exports the run's estimate table to YAML
func (c *YAMLCodec) Export(run *domain.EstimationRun, w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	doc := NewRunDocument(run)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
