package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"smallarea/internal/domain"
	"smallarea/internal/repository"
)

// ErrEmptySurvey is returned when a survey without observations is imported
var ErrEmptySurvey = errors.New("survey has no observations")

// SurveyService manages imported surveys and their frames
type SurveyService struct {
	repo     repository.SurveyRepository
	eventBus *EventBus
	opts     options
}

// NewSurveyService creates a new survey service
func NewSurveyService(repo repository.SurveyRepository, eventBus *EventBus, opts ...Option) *SurveyService {
	return &SurveyService{
		repo:     repo,
		eventBus: eventBus,
		opts:     newOptions(opts),
	}
}

// SurveyEventPayload is published with survey events
type SurveyEventPayload struct {
	SurveyID         string `json:"survey_id"`
	Name             string `json:"name"`
	ObservationCount int    `json:"observation_count,omitempty"`
	FrameDomains     int    `json:"frame_domains,omitempty"`
}

// ImportSurvey validates and stores a new survey. The survey is assigned a
// fresh ID and timestamps.
func (s *SurveyService) ImportSurvey(ctx context.Context, survey *domain.Survey) (*domain.Survey, error) {
	if err := validateSurvey(survey); err != nil {
		return nil, err
	}

	now := s.opts.now()
	survey.ID = uuid.NewString()
	survey.Name = strings.TrimSpace(survey.Name)
	if survey.Name == "" {
		survey.Name = "survey-" + survey.ID[:8]
	}
	if survey.Frame == nil {
		survey.Frame = domain.NewDomainFrame()
	}
	survey.CreatedAt = now
	survey.UpdatedAt = now

	if err := s.repo.CreateSurvey(ctx, survey); err != nil {
		return nil, fmt.Errorf("failed to store survey: %w", err)
	}

	s.opts.metrics.IncrementSurveysImported()
	s.opts.logger.Info("survey imported",
		"survey_id", survey.ID,
		"name", survey.Name,
		"observations", len(survey.Observations),
		"frame_domains", len(survey.Frame))

	s.eventBus.Publish(Event{Type: EventSurveyCreated, Payload: surveyPayload(survey)})
	return survey, nil
}

// UpsertSurveyByName replaces the rows of the newest survey with the same
// name, or imports it when none exists. It reports whether a new survey was
// created.
func (s *SurveyService) UpsertSurveyByName(ctx context.Context, survey *domain.Survey) (*domain.Survey, bool, error) {
	existing, err := s.repo.GetSurveyByName(ctx, survey.Name)
	if errors.Is(err, repository.ErrNotFound) {
		created, err := s.ImportSurvey(ctx, survey)
		return created, true, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up survey %q: %w", survey.Name, err)
	}

	if err := validateSurvey(survey); err != nil {
		return nil, false, err
	}

	survey.ID = existing.ID
	survey.CreatedAt = existing.CreatedAt
	survey.UpdatedAt = s.opts.now()
	if survey.Frame == nil {
		survey.Frame = domain.NewDomainFrame()
	}

	if err := s.repo.ReplaceSurvey(ctx, survey); err != nil {
		return nil, false, fmt.Errorf("failed to replace survey: %w", err)
	}

	s.opts.metrics.IncrementSurveysImported()
	s.opts.logger.Info("survey replaced", "survey_id", survey.ID, "name", survey.Name,
		"observations", len(survey.Observations))

	s.eventBus.Publish(Event{Type: EventSurveyUpdated, Payload: surveyPayload(survey)})
	return survey, false, nil
}

// GetSurvey retrieves a survey with its observations and frame
func (s *SurveyService) GetSurvey(ctx context.Context, id string) (*domain.Survey, error) {
	survey, err := s.repo.GetSurvey(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("survey %s: %w", id, err)
	}
	return survey, nil
}

// ListSurveys returns all survey summaries
func (s *SurveyService) ListSurveys(ctx context.Context) ([]domain.SurveySummary, error) {
	return s.repo.ListSurveys(ctx)
}

// UpdateFrame replaces the population frame of a survey
func (s *SurveyService) UpdateFrame(ctx context.Context, id string, frame domain.DomainFrame) error {
	if err := frame.Validate(); err != nil {
		return err
	}
	if err := s.repo.UpdateFrame(ctx, id, frame); err != nil {
		return fmt.Errorf("survey %s: %w", id, err)
	}

	s.opts.logger.Info("frame updated", "survey_id", id, "frame_domains", len(frame))
	s.eventBus.Publish(Event{
		Type:    EventFrameUpdated,
		Payload: SurveyEventPayload{SurveyID: id, FrameDomains: len(frame)},
	})
	return nil
}

// DeleteSurvey removes a survey and its runs
func (s *SurveyService) DeleteSurvey(ctx context.Context, id string) error {
	if err := s.repo.DeleteSurvey(ctx, id); err != nil {
		return fmt.Errorf("survey %s: %w", id, err)
	}

	s.opts.logger.Info("survey deleted", "survey_id", id)
	s.eventBus.Publish(Event{
		Type:    EventSurveyDeleted,
		Payload: SurveyEventPayload{SurveyID: id},
	})
	return nil
}

// validateSurvey checks the rows that do not depend on a scenario. Weight
// and frame coverage checks happen at estimation time.
func validateSurvey(survey *domain.Survey) error {
	if survey == nil || len(survey.Observations) == 0 {
		return ErrEmptySurvey
	}
	for i, o := range survey.Observations {
		if err := o.Validate(i); err != nil {
			return err
		}
	}
	if err := survey.Frame.Validate(); err != nil {
		return err
	}
	return nil
}

func surveyPayload(survey *domain.Survey) SurveyEventPayload {
	return SurveyEventPayload{
		SurveyID:         survey.ID,
		Name:             survey.Name,
		ObservationCount: len(survey.Observations),
		FrameDomains:     len(survey.Frame),
	}
}
