package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks against the typed errors below
var (
	ErrConfiguration          = errors.New("unsupported estimator configuration")
	ErrMissingPopulationSize  = errors.New("missing population size")
	ErrInvalidWeight          = errors.New("invalid weight")
	ErrInvalidObservation     = errors.New("invalid observation")
	ErrInvalidPopulationSize  = errors.New("invalid population size")
	ErrPopulationSize         = errors.New("population size smaller than sample size")
	ErrInsufficientSampleSize = errors.New("insufficient sample size for variance")
	ErrZeroTotalWeight        = errors.New("zero total weight")
	ErrNegativeVariance       = errors.New("negative variance")
	ErrNumericOverflow        = errors.New("numeric overflow")
)

// ConfigurationError reports an unsupported design configuration
type ConfigurationError struct {
	Config   DesignConfig
	Scenario string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Scenario != "" {
		return fmt.Sprintf("%s: %s %q", ErrConfiguration, e.Reason, e.Scenario)
	}
	return fmt.Sprintf("%s: %s (%s)", ErrConfiguration, e.Reason, e.Config)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// MissingPopulationSizeError reports a sampled domain absent from the frame
type MissingPopulationSizeError struct {
	DomainID string
}

func (e *MissingPopulationSizeError) Error() string {
	return fmt.Sprintf("%s for domain %q", ErrMissingPopulationSize, e.DomainID)
}

func (e *MissingPopulationSizeError) Is(target error) bool { return target == ErrMissingPopulationSize }

// InvalidWeightError reports a missing, negative or non-finite sampling weight
type InvalidWeightError struct {
	Index    int
	DomainID string
	Weight   float64
	Reason   string
}

func (e *InvalidWeightError) Error() string {
	return fmt.Sprintf("%s at observation %d (domain %q): %s", ErrInvalidWeight, e.Index, e.DomainID, e.Reason)
}

func (e *InvalidWeightError) Is(target error) bool { return target == ErrInvalidWeight }

// InvalidObservationError reports a malformed observation row
type InvalidObservationError struct {
	Index    int
	DomainID string
	Reason   string
}

func (e *InvalidObservationError) Error() string {
	if e.DomainID == "" {
		return fmt.Sprintf("%s at observation %d: %s", ErrInvalidObservation, e.Index, e.Reason)
	}
	return fmt.Sprintf("%s at observation %d (domain %q): %s", ErrInvalidObservation, e.Index, e.DomainID, e.Reason)
}

func (e *InvalidObservationError) Is(target error) bool { return target == ErrInvalidObservation }

// InvalidPopulationSizeError reports a malformed frame entry
type InvalidPopulationSizeError struct {
	DomainID string
	Size     int64
	Reason   string
}

func (e *InvalidPopulationSizeError) Error() string {
	return fmt.Sprintf("%s for domain %q (%d): %s", ErrInvalidPopulationSize, e.DomainID, e.Size, e.Reason)
}

func (e *InvalidPopulationSizeError) Is(target error) bool { return target == ErrInvalidPopulationSize }

// PopulationSizeError reports N_d smaller than the domain's sample size
type PopulationSizeError struct {
	DomainID       string
	PopulationSize int64
	SampleSize     int
}

func (e *PopulationSizeError) Error() string {
	return fmt.Sprintf("%s for domain %q: N=%d, n=%d", ErrPopulationSize, e.DomainID, e.PopulationSize, e.SampleSize)
}

func (e *PopulationSizeError) Is(target error) bool { return target == ErrPopulationSize }

// InsufficientSampleSizeError is a per-domain warning: the variance formula
// needs S², which requires at least two observations
type InsufficientSampleSizeError struct {
	DomainID   string
	SampleSize int
	Required   int
}

func (e *InsufficientSampleSizeError) Error() string {
	return fmt.Sprintf("%s in domain %q: n=%d, need at least %d", ErrInsufficientSampleSize, e.DomainID, e.SampleSize, e.Required)
}

func (e *InsufficientSampleSizeError) Is(target error) bool { return target == ErrInsufficientSampleSize }

// ZeroTotalWeightError is a per-domain warning: every weight in the domain is
// zero, so the weighted estimate is undefined
type ZeroTotalWeightError struct {
	DomainID   string
	SampleSize int
}

func (e *ZeroTotalWeightError) Error() string {
	return fmt.Sprintf("%s in domain %q (n=%d): estimate undefined", ErrZeroTotalWeight, e.DomainID, e.SampleSize)
}

func (e *ZeroTotalWeightError) Is(target error) bool { return target == ErrZeroTotalWeight }

// NegativeVarianceError is a per-domain warning: weights below 1 drove the
// scenario A variance sum negative, so the variance is reported absent
type NegativeVarianceError struct {
	DomainID string
	Variance float64
}

func (e *NegativeVarianceError) Error() string {
	return fmt.Sprintf("%s in domain %q (%g): weights below 1 are not inverse inclusion probabilities", ErrNegativeVariance, e.DomainID, e.Variance)
}

func (e *NegativeVarianceError) Is(target error) bool { return target == ErrNegativeVariance }

// NumericOverflowError is a per-domain warning: finite inputs drove a sum
// past the float64 range, so the field is reported absent
type NumericOverflowError struct {
	DomainID string
	Field    string
}

func (e *NumericOverflowError) Error() string {
	return fmt.Sprintf("%s in domain %q: %s is not finite", ErrNumericOverflow, e.DomainID, e.Field)
}

func (e *NumericOverflowError) Is(target error) bool { return target == ErrNumericOverflow }

// IsValidationError reports whether err is one of the batch-fatal input errors
func IsValidationError(err error) bool {
	return errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrMissingPopulationSize) ||
		errors.Is(err, ErrInvalidWeight) ||
		errors.Is(err, ErrInvalidObservation) ||
		errors.Is(err, ErrInvalidPopulationSize) ||
		errors.Is(err, ErrPopulationSize)
}

// IsWarning reports whether err is a non-fatal per-domain condition
func IsWarning(err error) bool {
	return errors.Is(err, ErrInsufficientSampleSize) ||
		errors.Is(err, ErrZeroTotalWeight) ||
		errors.Is(err, ErrNegativeVariance) ||
		errors.Is(err, ErrNumericOverflow)
}
