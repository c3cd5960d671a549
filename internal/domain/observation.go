package domain

import "math"

// Observation represents one sampled unit of a survey
type Observation struct {
	DomainID string   `json:"domain_id" yaml:"domain_id"`
	Value    float64  `json:"value" yaml:"value"`
	Weight   *float64 `json:"weight,omitempty" yaml:"weight,omitempty"`
}

// NewObservation creates an unweighted observation
func NewObservation(domainID string, value float64) Observation {
	return Observation{DomainID: domainID, Value: value}
}

// NewWeightedObservation creates an observation carrying a sampling weight
func NewWeightedObservation(domainID string, value, weight float64) Observation {
	w := weight
	return Observation{DomainID: domainID, Value: value, Weight: &w}
}

// HasWeight reports whether the observation carries a sampling weight
func (o Observation) HasWeight() bool {
	return o.Weight != nil
}

// WeightOrZero returns the weight, or 0 when absent
func (o Observation) WeightOrZero() float64 {
	if o.Weight == nil {
		return 0
	}
	return *o.Weight
}

// Validate checks the fields that every scenario relies on.
// Weights are checked separately since only weighted scenarios read them.
func (o Observation) Validate(index int) error {
	if o.DomainID == "" {
		return &InvalidObservationError{Index: index, Reason: "empty domain_id"}
	}
	if math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
		return &InvalidObservationError{Index: index, DomainID: o.DomainID, Reason: "value is not a finite number"}
	}
	return nil
}

// ValidateWeight checks the sampling weight of a weighted-scenario observation.
// A zero weight is legal unless rejectZero is set.
func (o Observation) ValidateWeight(index int, rejectZero bool) error {
	if o.Weight == nil {
		return &InvalidWeightError{Index: index, DomainID: o.DomainID, Reason: "missing weight"}
	}
	w := *o.Weight
	switch {
	case math.IsNaN(w) || math.IsInf(w, 0):
		return &InvalidWeightError{Index: index, DomainID: o.DomainID, Weight: w, Reason: "weight is not a finite number"}
	case w < 0:
		return &InvalidWeightError{Index: index, DomainID: o.DomainID, Weight: w, Reason: "negative weight"}
	case w == 0 && rejectZero:
		return &InvalidWeightError{Index: index, DomainID: o.DomainID, Weight: w, Reason: "zero weight"}
	}
	return nil
}
