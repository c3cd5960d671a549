package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// NullFloat is a number that may be absent. Absent values encode as null.
type NullFloat struct {
	Float64 float64
	Valid   bool
}

// Float returns a present NullFloat
func Float(v float64) NullFloat {
	return NullFloat{Float64: v, Valid: true}
}

// Null returns an absent NullFloat
func Null() NullFloat {
	return NullFloat{}
}

// Ptr returns a pointer to the value, or nil when absent
func (n NullFloat) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

// String renders the value, or "NA" when absent
func (n NullFloat) String() string {
	if !n.Valid {
		return "NA"
	}
	return strconv.FormatFloat(n.Float64, 'g', -1, 64)
}

// MarshalJSON implements json.Marshaler
func (n NullFloat) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

// UnmarshalJSON implements json.Unmarshaler
func (n *NullFloat) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*n = NullFloat{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Float(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler
func (n NullFloat) MarshalYAML() (interface{}, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Float64, nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (n *NullFloat) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!null" || node.Value == "" || node.Value == "~" {
		*n = NullFloat{}
		return nil
	}
	var v float64
	if err := node.Decode(&v); err != nil {
		return err
	}
	*n = Float(v)
	return nil
}

// NoteCode classifies why an estimate field is absent
type NoteCode string

const (
	NoteInsufficientSampleSize NoteCode = "insufficient_sample_size"
	NoteZeroTotalWeight        NoteCode = "zero_total_weight"
	NoteNegativeVariance       NoteCode = "negative_variance"
	NoteNumericOverflow        NoteCode = "numeric_overflow"
)

// Note explains a degraded field of a DirectEstimate
type Note struct {
	Field   string   `json:"field" yaml:"field"`
	Code    NoteCode `json:"code" yaml:"code"`
	Message string   `json:"message" yaml:"message"`
}

// DirectEstimate is the direct estimator's result for one in-sample domain
type DirectEstimate struct {
	DomainID       string    `json:"domain_id" yaml:"domain_id"`
	Estimate       NullFloat `json:"estimate" yaml:"estimate"`
	Variance       NullFloat `json:"variance" yaml:"variance"`
	SampleSize     int       `json:"sample_size" yaml:"sample_size"`
	PopulationSize *int64    `json:"population_size,omitempty" yaml:"population_size,omitempty"`
	Notes          []Note    `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// StdError returns the square root of the variance
func (e DirectEstimate) StdError() NullFloat {
	if !e.Variance.Valid || e.Variance.Float64 < 0 {
		return Null()
	}
	return Float(math.Sqrt(e.Variance.Float64))
}

// CV returns the coefficient of variation, std_error / |estimate|.
// Absent when either side is absent or the estimate is zero.
func (e DirectEstimate) CV() NullFloat {
	se := e.StdError()
	if !se.Valid || !e.Estimate.Valid || e.Estimate.Float64 == 0 {
		return Null()
	}
	return Float(se.Float64 / math.Abs(e.Estimate.Float64))
}

// HasEstimate reports whether a point estimate is defined
func (e DirectEstimate) HasEstimate() bool {
	return e.Estimate.Valid
}

// HasVariance reports whether a variance is defined
func (e DirectEstimate) HasVariance() bool {
	return e.Variance.Valid
}
