package domain

import (
	"fmt"
	"strings"
)

// Scenario identifies one of the four supported survey designs
type Scenario string

const (
	// ScenarioA: weighted, normalised by N_d, without replacement
	ScenarioA Scenario = "A"
	// ScenarioB: unweighted, finite population correction, without replacement
	ScenarioB Scenario = "B"
	// ScenarioC: weighted, normalised by N_d, with replacement
	ScenarioC Scenario = "C"
	// ScenarioD: unweighted, with replacement
	ScenarioD Scenario = "D"
)

// AllScenarios lists the supported scenarios in order
var AllScenarios = []Scenario{ScenarioA, ScenarioB, ScenarioC, ScenarioD}

// DesignConfig holds the survey-design flags recognised by the direct estimator
type DesignConfig struct {
	UseWeights      bool `json:"use_weights" yaml:"use_weights"`
	UseDomainSize   bool `json:"use_domain_size" yaml:"use_domain_size"`
	WithReplacement bool `json:"with_replacement" yaml:"with_replacement"`
}

// Scenario resolves the flag combination to a supported scenario.
// Unsupported combinations fail with a ConfigurationError.
func (c DesignConfig) Scenario() (Scenario, error) {
	for _, s := range AllScenarios {
		if s.Config() == c {
			return s, nil
		}
	}
	return "", &ConfigurationError{
		Config: c,
		Reason: "unsupported combination of use_weights, use_domain_size and with_replacement",
	}
}

// String renders the flags for logs and error messages
func (c DesignConfig) String() string {
	return fmt.Sprintf("use_weights=%t use_domain_size=%t with_replacement=%t",
		c.UseWeights, c.UseDomainSize, c.WithReplacement)
}

// Config returns the flag combination that defines the scenario
func (s Scenario) Config() DesignConfig {
	switch s {
	case ScenarioA:
		return DesignConfig{UseWeights: true, UseDomainSize: true, WithReplacement: false}
	case ScenarioB:
		return DesignConfig{UseWeights: false, UseDomainSize: true, WithReplacement: false}
	case ScenarioC:
		return DesignConfig{UseWeights: true, UseDomainSize: true, WithReplacement: true}
	case ScenarioD:
		return DesignConfig{UseWeights: false, UseDomainSize: false, WithReplacement: true}
	}
	return DesignConfig{}
}

// Valid reports whether s names a supported scenario
func (s Scenario) Valid() bool {
	switch s {
	case ScenarioA, ScenarioB, ScenarioC, ScenarioD:
		return true
	}
	return false
}

// RequiresFrame reports whether the scenario needs population sizes
func (s Scenario) RequiresFrame() bool {
	return s.Config().UseDomainSize
}

// RequiresSampleVariance reports whether the variance formula uses S², which
// is undefined for fewer than two observations
func (s Scenario) RequiresSampleVariance() bool {
	return s == ScenarioB || s == ScenarioD
}

// Description returns a short human-readable summary of the design
func (s Scenario) Description() string {
	switch s {
	case ScenarioA:
		return "weighted Horvitz-Thompson mean, without replacement"
	case ScenarioB:
		return "sample mean with finite population correction, without replacement"
	case ScenarioC:
		return "weighted Horvitz-Thompson mean, with replacement"
	case ScenarioD:
		return "sample mean, with replacement"
	}
	return "unknown"
}

// ParseScenario parses a scenario name (case-insensitive)
func ParseScenario(name string) (Scenario, error) {
	s := Scenario(strings.ToUpper(strings.TrimSpace(name)))
	if !s.Valid() {
		return "", &ConfigurationError{Scenario: name, Reason: "unknown scenario"}
	}
	return s, nil
}
