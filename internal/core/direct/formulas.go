package direct

import (
	"fmt"
	"math"

	"smallarea/internal/domain"
)

// sample holds one domain's observations in input order
type sample struct {
	domainID       string
	values         []float64
	weights        []float64
	populationSize int64 // 0 when the scenario does not use N_d
}

func (s *sample) n() int {
	return len(s.values)
}

// outcome is the computed estimate for one domain plus its warnings
type outcome struct {
	estimate domain.DirectEstimate
	warnings []error
}

func (o *outcome) warn(field string, code domain.NoteCode, err error) {
	o.warnings = append(o.warnings, err)
	o.estimate.Notes = append(o.estimate.Notes, domain.Note{
		Field:   field,
		Code:    code,
		Message: err.Error(),
	})
}

// estimateDomain dispatches to the scenario's formulas
func estimateDomain(s *sample, scenario domain.Scenario) (*outcome, error) {
	out := &outcome{
		estimate: domain.DirectEstimate{
			DomainID:   s.domainID,
			SampleSize: s.n(),
		},
	}
	if scenario.RequiresFrame() {
		size := s.populationSize
		out.estimate.PopulationSize = &size
	}

	switch scenario {
	case domain.ScenarioA:
		horvitzThompsonWOR(s, out)
	case domain.ScenarioB:
		meanWithFPC(s, out)
	case domain.ScenarioC:
		horvitzThompsonWR(s, out)
	case domain.ScenarioD:
		meanWR(s, out)
	default:
		return nil, &domain.ConfigurationError{Scenario: string(scenario), Reason: "unknown scenario"}
	}
	return out, nil
}

// horvitzThompsonWOR is scenario A:
//
//	Ŷ = Σ w y / N
//	V = Σ w(w-1) y² / N²
func horvitzThompsonWOR(s *sample, out *outcome) {
	est, ok := weightedTotalMean(s, out)
	if !ok {
		return
	}
	setEstimate(s, out, est)

	N := float64(s.populationSize)
	var sum float64
	for i, y := range s.values {
		w := s.weights[i]
		sum += w * (w - 1) * y * y
	}
	v := sum / (N * N)
	if !finite(v) {
		warnOverflow(s, out, "variance")
		return
	}
	if v < 0 {
		out.warn("variance", domain.NoteNegativeVariance,
			&domain.NegativeVarianceError{DomainID: s.domainID, Variance: v})
		return
	}
	out.estimate.Variance = domain.Float(v)
}

// horvitzThompsonWR is scenario C:
//
//	Ŷ = Σ w y / N
//	V = (1/n) Σ (f w y - Ŷ)², f = n/N
func horvitzThompsonWR(s *sample, out *outcome) {
	est, ok := weightedTotalMean(s, out)
	if !ok {
		return
	}
	if !setEstimate(s, out, est) {
		noteVarianceUndefined(s, out, domain.NoteNumericOverflow)
		return
	}

	n := float64(s.n())
	f := n / float64(s.populationSize)
	var sum float64
	for i, y := range s.values {
		d := f*s.weights[i]*y - est
		sum += d * d
	}
	setVariance(s, out, sum/n)
}

// meanWithFPC is scenario B:
//
//	Ŷ = Σ y / n
//	V = (1-f) S² / n, f = n/N
func meanWithFPC(s *sample, out *outcome) {
	setEstimate(s, out, mean(s.values))

	s2, ok := sampleVariance(s.values)
	if !ok {
		warnInsufficient(s, out)
		return
	}
	n := float64(s.n())
	f := n / float64(s.populationSize)
	setVariance(s, out, (1-f)*s2/n)
}

// meanWR is scenario D:
//
//	Ŷ = Σ y / n
//	V = S² / n
func meanWR(s *sample, out *outcome) {
	setEstimate(s, out, mean(s.values))

	s2, ok := sampleVariance(s.values)
	if !ok {
		warnInsufficient(s, out)
		return
	}
	setVariance(s, out, s2/float64(s.n()))
}

// weightedTotalMean returns Σ w y / N, or false with a warning when every
// weight in the domain is zero
func weightedTotalMean(s *sample, out *outcome) (float64, bool) {
	var total, weightSum float64
	for i, y := range s.values {
		total += s.weights[i] * y
		weightSum += s.weights[i]
	}
	if weightSum == 0 {
		err := &domain.ZeroTotalWeightError{DomainID: s.domainID, SampleSize: s.n()}
		out.warn("estimate", domain.NoteZeroTotalWeight, err)
		noteVarianceUndefined(s, out, domain.NoteZeroTotalWeight)
		return 0, false
	}
	return total / float64(s.populationSize), true
}

// setEstimate stores est unless the sums left the float64 range
func setEstimate(s *sample, out *outcome, est float64) bool {
	if !finite(est) {
		warnOverflow(s, out, "estimate")
		return false
	}
	out.estimate.Estimate = domain.Float(est)
	return true
}

func setVariance(s *sample, out *outcome, v float64) {
	if !finite(v) {
		warnOverflow(s, out, "variance")
		return
	}
	out.estimate.Variance = domain.Float(v)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func warnOverflow(s *sample, out *outcome, field string) {
	out.warn(field, domain.NoteNumericOverflow, &domain.NumericOverflowError{DomainID: s.domainID, Field: field})
}

// noteVarianceUndefined records an absent variance whose cause was already
// warned about on the estimate
func noteVarianceUndefined(s *sample, out *outcome, code domain.NoteCode) {
	out.estimate.Notes = append(out.estimate.Notes, domain.Note{
		Field:   "variance",
		Code:    code,
		Message: fmt.Sprintf("variance undefined without an estimate in domain %q", s.domainID),
	})
}

func warnInsufficient(s *sample, out *outcome) {
	out.warn("variance", domain.NoteInsufficientSampleSize, &domain.InsufficientSampleSizeError{
		DomainID:   s.domainID,
		SampleSize: s.n(),
		Required:   2,
	})
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// sampleVariance returns S² with denominator n-1, or false when n < 2.
// Deviations are taken from the first value, so constant data yields exactly 0.
func sampleVariance(values []float64) (float64, bool) {
	n := len(values)
	if n < 2 {
		return 0, false
	}
	shift := values[0]
	var sum, sumSq float64
	for _, v := range values {
		d := v - shift
		sum += d
		sumSq += d * d
	}
	s2 := (sumSq - sum*sum/float64(n)) / float64(n-1)
	if s2 < 0 {
		// rounding only; the exact quantity is a sum of squares
		s2 = 0
	}
	return s2, true
}
