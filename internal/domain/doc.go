// Package domain defines the core domain types for smallarea direct estimation.
//
// This package contains the value objects that describe a survey sample and
// the per-domain results computed from it.
//
// # Core Types
//
// Observation is one sampled unit: the small-area identifier it belongs to,
// the target value and an optional sampling weight.
//
// DomainFrame maps every domain of interest to its known population size,
// including domains that were not sampled at all.
//
// DesignConfig selects one of the four supported survey-design scenarios
// (A, B, C, D). Any other flag combination is a ConfigurationError.
//
// DirectEstimate is the per-domain result. Estimate and variance are
// NullFloat values so that an undefined variance can never be mistaken for
// a zero variance.
//
// # Surveys and Runs
//
// Survey bundles an observation set with its frame. EstimationRun records a
// single estimator invocation over a survey, keyed by an input fingerprint.
//
// # Errors
//
// Batch-fatal validation errors (configuration, weights, population sizes)
// and per-domain warnings (insufficient sample size, zero total weight) are
// typed so callers can inspect them with errors.As and errors.Is.
//
// # Design Principles
//
// - Immutable value objects where possible
// - No database or transport dependencies
// - Explicit absence instead of sentinel numbers
package domain
