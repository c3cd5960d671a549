package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"

	"smallarea/internal/codec"
	"smallarea/internal/core/direct"
	"smallarea/internal/domain"
	"smallarea/internal/repository"
)

// EstimationService runs the direct estimator over stored surveys and keeps
// the resulting runs
type EstimationService struct {
	surveys   repository.SurveyRepository
	runs      repository.RunRepository
	estimator *direct.Estimator
	eventBus  *EventBus
	opts      options
}

// NewEstimationService creates a new estimation service
func NewEstimationService(surveys repository.SurveyRepository, runs repository.RunRepository, estimator *direct.Estimator, eventBus *EventBus, opts ...Option) *EstimationService {
	if estimator == nil {
		estimator = direct.New()
	}
	return &EstimationService{
		surveys:   surveys,
		runs:      runs,
		estimator: estimator,
		eventBus:  eventBus,
		opts:      newOptions(opts),
	}
}

// RunRequest selects the design of a run, either by scenario name or by the
// three design flags
type RunRequest struct {
	Scenario        string `json:"scenario,omitempty"`
	UseWeights      *bool  `json:"use_weights,omitempty"`
	UseDomainSize   *bool  `json:"use_domain_size,omitempty"`
	WithReplacement *bool  `json:"with_replacement,omitempty"`

	// Force recomputes even when a run with identical inputs exists
	Force bool `json:"force,omitempty"`
}

// Resolve maps the request to a scenario, falling back to def when the
// request names none
func (r RunRequest) Resolve(def domain.Scenario) (domain.Scenario, error) {
	flags := r.UseWeights != nil || r.UseDomainSize != nil || r.WithReplacement != nil

	if r.Scenario != "" {
		s, err := domain.ParseScenario(r.Scenario)
		if err != nil {
			return "", err
		}
		if flags && r.config() != s.Config() {
			return "", &domain.ConfigurationError{
				Scenario: r.Scenario,
				Config:   r.config(),
				Reason:   "scenario name and design flags disagree",
			}
		}
		return s, nil
	}
	if flags {
		return r.config().Scenario()
	}
	if !def.Valid() {
		return "", &domain.ConfigurationError{Scenario: string(def), Reason: "no scenario selected"}
	}
	return def, nil
}

func (r RunRequest) config() domain.DesignConfig {
	deref := func(b *bool) bool { return b != nil && *b }
	return domain.DesignConfig{
		UseWeights:      deref(r.UseWeights),
		UseDomainSize:   deref(r.UseDomainSize),
		WithReplacement: deref(r.WithReplacement),
	}
}

// RunEventPayload is published with run events
type RunEventPayload struct {
	RunID    string          `json:"run_id,omitempty"`
	SurveyID string          `json:"survey_id"`
	Scenario domain.Scenario `json:"scenario,omitempty"`
	Cached   bool            `json:"cached,omitempty"`
	Domains  int             `json:"domains,omitempty"`
	Warnings int             `json:"warnings,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Run estimates a survey under a scenario. When a stored run of the same
// survey has the same scenario and input fingerprint it is returned instead,
// unless force is set. The fingerprint covers the estimator's weight policy. The second result reports a cache hit.
func (s *EstimationService) Run(ctx context.Context, surveyID string, scenario domain.Scenario, force bool) (*domain.EstimationRun, bool, error) {
	if !scenario.Valid() {
		return nil, false, &domain.ConfigurationError{Scenario: string(scenario), Reason: "unknown scenario"}
	}

	survey, err := s.surveys.GetSurvey(ctx, surveyID)
	if err != nil {
		return nil, false, fmt.Errorf("survey %s: %w", surveyID, err)
	}

	fingerprint, err := s.estimator.Fingerprint(survey.Observations, survey.Frame, scenario)
	if err != nil {
		return nil, false, err
	}

	if !force {
		cached, err := s.runs.FindRun(ctx, surveyID, scenario, fingerprint)
		switch {
		case err == nil:
			s.opts.metrics.IncrementCacheHits()
			s.opts.logger.Debug("run served from cache", "run_id", cached.ID, "survey_id", surveyID, "scenario", scenario)
			s.eventBus.Publish(Event{Type: EventRunCompleted, Payload: runPayload(cached, true)})
			return cached, true, nil
		case !errors.Is(err, repository.ErrNotFound):
			return nil, false, fmt.Errorf("failed to look up cached run: %w", err)
		}
	}

	start := s.opts.now()
	result, err := s.estimator.EstimateScenario(ctx, survey.Observations, survey.Frame, scenario)
	elapsed := s.opts.now().Sub(start)
	if err != nil {
		s.opts.metrics.ObserveRun(string(scenario), "error", elapsed, 0)
		s.opts.logger.Warn("estimation failed", "survey_id", surveyID, "scenario", scenario, "error", err)
		s.eventBus.Publish(Event{
			Type:    EventRunFailed,
			Payload: RunEventPayload{SurveyID: surveyID, Scenario: scenario, Error: err.Error()},
		})
		return nil, false, err
	}

	run := &domain.EstimationRun{
		ID:          uuid.NewString(),
		SurveyID:    surveyID,
		Scenario:    scenario,
		Fingerprint: fingerprint,
		Estimates:   result.Estimates,
		Warnings:    result.WarningStrings(),
		CreatedAt:   start,
		DurationMS:  elapsed.Milliseconds(),
	}

	if err := s.runs.SaveRun(ctx, run); err != nil {
		return nil, false, fmt.Errorf("failed to store run: %w", err)
	}

	s.opts.metrics.ObserveRun(string(scenario), "success", elapsed, len(run.Estimates))
	for _, w := range result.Warnings {
		s.opts.metrics.IncrementWarnings(warningKind(w))
	}
	s.opts.logger.Info("estimation run completed",
		"run_id", run.ID,
		"survey_id", surveyID,
		"scenario", scenario,
		"domains", len(run.Estimates),
		"warnings", len(run.Warnings),
		"duration", elapsed)

	s.eventBus.Publish(Event{Type: EventRunCompleted, Payload: runPayload(run, false)})
	return run, false, nil
}

// Estimate resolves a request against the default scenario and runs it
func (s *EstimationService) Estimate(ctx context.Context, surveyID string, req RunRequest, def domain.Scenario) (*domain.EstimationRun, bool, error) {
	scenario, err := req.Resolve(def)
	if err != nil {
		return nil, false, err
	}
	return s.Run(ctx, surveyID, scenario, req.Force)
}

// GetRun retrieves a run with its estimates
func (s *EstimationService) GetRun(ctx context.Context, id string) (*domain.EstimationRun, error) {
	run, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	return run, nil
}

// ListRuns returns run summaries, optionally for one survey
func (s *EstimationService) ListRuns(ctx context.Context, surveyID string) ([]domain.RunSummary, error) {
	return s.runs.ListRuns(ctx, surveyID)
}

// DeleteRun removes a stored run
func (s *EstimationService) DeleteRun(ctx context.Context, id string) error {
	run, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return fmt.Errorf("run %s: %w", id, err)
	}
	if err := s.runs.DeleteRun(ctx, id); err != nil {
		return fmt.Errorf("run %s: %w", id, err)
	}

	s.opts.logger.Info("run deleted", "run_id", id)
	s.eventBus.Publish(Event{
		Type:    EventRunDeleted,
		Payload: RunEventPayload{RunID: id, SurveyID: run.SurveyID, Scenario: run.Scenario},
	})
	return nil
}

// Coverage joins a run's estimates with its survey's frame so that
// out-of-sample domains appear with no estimate
func (s *EstimationService) Coverage(ctx context.Context, runID string) ([]domain.CoverageEntry, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	survey, err := s.surveys.GetSurvey(ctx, run.SurveyID)
	if err != nil {
		return nil, fmt.Errorf("survey %s: %w", run.SurveyID, err)
	}
	return domain.Coverage(survey.Frame, run.Estimates), nil
}

// Export writes a run's estimate table in the given format
func (s *EstimationService) Export(ctx context.Context, runID, format string, w io.Writer) error {
	exp, err := codec.NewExporter(format)
	if err != nil {
		return err
	}
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	return exp.Export(run, w)
}

func runPayload(run *domain.EstimationRun, cached bool) RunEventPayload {
	return RunEventPayload{
		RunID:    run.ID,
		SurveyID: run.SurveyID,
		Scenario: run.Scenario,
		Cached:   cached,
		Domains:  len(run.Estimates),
		Warnings: len(run.Warnings),
	}
}

// warningKind labels a non-fatal estimation warning for metrics
func warningKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientSampleSize):
		return string(domain.NoteInsufficientSampleSize)
	case errors.Is(err, domain.ErrZeroTotalWeight):
		return string(domain.NoteZeroTotalWeight)
	case errors.Is(err, domain.ErrNegativeVariance):
		return string(domain.NoteNegativeVariance)
	case errors.Is(err, domain.ErrNumericOverflow):
		return string(domain.NoteNumericOverflow)
	}
	return "other"
}
