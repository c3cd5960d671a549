// Package direct implements the direct (Horvitz-Thompson) domain estimator.
//
// Observations are grouped by domain and each domain is estimated on its
// own, using only the units sampled inside it. Four survey designs are
// supported:
//
//	A  weighted, N_d-normalised, without replacement
//	B  unweighted, finite population correction, without replacement
//	C  weighted, N_d-normalised, with replacement
//	D  unweighted, with replacement
//
// Validation failures (unsupported configuration, bad weights, missing or
// inconsistent population sizes) abort the whole batch. Conditions that only
// degrade one domain, such as a single-unit domain under B or D, are returned
// as warnings alongside the results and recorded as notes on the estimate.
//
// Estimation is pure: identical inputs produce bit-identical outputs, and
// Fingerprint gives a stable digest of those inputs.
package direct
