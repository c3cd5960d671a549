package direct

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"smallarea/internal/domain"

	"golang.org/x/sync/errgroup"
)

// Result holds the estimates of one batch call, sorted by domain id, and the
// non-fatal per-domain warnings raised while computing them
type Result struct {
	Scenario  domain.Scenario
	Estimates []domain.DirectEstimate
	Warnings  []error
}

// WarningStrings renders the warnings for storage and transport
func (r *Result) WarningStrings() []string {
	if len(r.Warnings) == 0 {
		return nil
	}
	out := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		out[i] = w.Error()
	}
	return out
}

// Estimator computes direct domain estimates
type Estimator struct {
	parallelism       int
	rejectZeroWeights bool
}

// Option configures an Estimator
type Option func(*Estimator)

// WithParallelism bounds the number of domains computed concurrently
func WithParallelism(n int) Option {
	return func(e *Estimator) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithRejectZeroWeights makes a zero weight an InvalidWeightError
func WithRejectZeroWeights(reject bool) Option {
	return func(e *Estimator) {
		e.rejectZeroWeights = reject
	}
}

// New creates an estimator. Parallelism defaults to GOMAXPROCS.
func New(opts ...Option) *Estimator {
	e := &Estimator{parallelism: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Estimate is shorthand for New().Estimate with a background context
func Estimate(observations []domain.Observation, frame domain.DomainFrame, cfg domain.DesignConfig) (*Result, error) {
	return New().Estimate(context.Background(), observations, frame, cfg)
}

// EstimateScenario runs the estimator for a named scenario
func (e *Estimator) EstimateScenario(ctx context.Context, observations []domain.Observation, frame domain.DomainFrame, scenario domain.Scenario) (*Result, error) {
	if !scenario.Valid() {
		return nil, &domain.ConfigurationError{Scenario: string(scenario), Reason: "unknown scenario"}
	}
	return e.Estimate(ctx, observations, frame, scenario.Config())
}

// Estimate produces one DirectEstimate per distinct domain in observations.
// The frame is required when cfg uses domain sizes and ignored otherwise.
// Inputs are read, never modified.
func (e *Estimator) Estimate(ctx context.Context, observations []domain.Observation, frame domain.DomainFrame, cfg domain.DesignConfig) (*Result, error) {
	scenario, err := cfg.Scenario()
	if err != nil {
		return nil, err
	}

	if err := e.validate(observations, frame, cfg); err != nil {
		return nil, err
	}

	samples, err := group(observations, frame, cfg)
	if err != nil {
		return nil, err
	}

	outcomes := make([]*outcome, len(samples))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, s := range samples {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := estimateDomain(s, scenario)
			if err != nil {
				return fmt.Errorf("domain %q: %w", s.domainID, err)
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Scenario:  scenario,
		Estimates: make([]domain.DirectEstimate, len(outcomes)),
	}
	for i, out := range outcomes {
		result.Estimates[i] = out.estimate
		result.Warnings = append(result.Warnings, out.warnings...)
	}
	return result, nil
}

// validate rejects the whole batch on malformed rows, weights or frame
func (e *Estimator) validate(observations []domain.Observation, frame domain.DomainFrame, cfg domain.DesignConfig) error {
	for i, o := range observations {
		if err := o.Validate(i); err != nil {
			return err
		}
		if cfg.UseWeights {
			if err := o.ValidateWeight(i, e.rejectZeroWeights); err != nil {
				return err
			}
		}
	}
	if cfg.UseDomainSize {
		if err := frame.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// group partitions observations by domain, keeping input order inside each
// domain, and resolves population sizes. Samples are sorted by domain id.
func group(observations []domain.Observation, frame domain.DomainFrame, cfg domain.DesignConfig) ([]*sample, error) {
	byID := make(map[string]*sample)
	for _, o := range observations {
		s, ok := byID[o.DomainID]
		if !ok {
			s = &sample{domainID: o.DomainID}
			byID[o.DomainID] = s
		}
		s.values = append(s.values, o.Value)
		if cfg.UseWeights {
			s.weights = append(s.weights, o.WeightOrZero())
		}
	}

	samples := make([]*sample, 0, len(byID))
	for _, s := range byID {
		samples = append(samples, s)
	}
	sort.Slice(samples, func(i, j int) bool {
		return samples[i].domainID < samples[j].domainID
	})

	if !cfg.UseDomainSize {
		return samples, nil
	}

	for _, s := range samples {
		N, ok := frame.PopulationSize(s.domainID)
		if !ok {
			return nil, &domain.MissingPopulationSizeError{DomainID: s.domainID}
		}
		if N < int64(s.n()) {
			return nil, &domain.PopulationSizeError{DomainID: s.domainID, PopulationSize: N, SampleSize: s.n()}
		}
		s.populationSize = N
	}
	return samples, nil
}
