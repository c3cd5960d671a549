package repository

import (
	"context"
	"errors"

	"smallarea/internal/domain"
)

// ErrNotFound is returned when a survey or run does not exist
var ErrNotFound = errors.New("not found")

// SurveyRepository persists surveys with their observations and frame
type SurveyRepository interface {
	CreateSurvey(ctx context.Context, survey *domain.Survey) error
	GetSurvey(ctx context.Context, id string) (*domain.Survey, error)
	GetSurveyByName(ctx context.Context, name string) (*domain.Survey, error)
	ListSurveys(ctx context.Context) ([]domain.SurveySummary, error)

	// ReplaceSurvey overwrites name, observations and frame of an existing survey
	ReplaceSurvey(ctx context.Context, survey *domain.Survey) error
	UpdateFrame(ctx context.Context, id string, frame domain.DomainFrame) error

	// DeleteSurvey removes the survey and all of its runs
	DeleteSurvey(ctx context.Context, id string) error
}

// RunRepository persists estimation runs
type RunRepository interface {
	SaveRun(ctx context.Context, run *domain.EstimationRun) error
	GetRun(ctx context.Context, id string) (*domain.EstimationRun, error)
	ListRuns(ctx context.Context, surveyID string) ([]domain.RunSummary, error)

	// FindRun looks up a stored run by its inputs
	FindRun(ctx context.Context, surveyID string, scenario domain.Scenario, fingerprint string) (*domain.EstimationRun, error)
	DeleteRun(ctx context.Context, id string) error
}

// Repository is the full data access interface
type Repository interface {
	SurveyRepository
	RunRepository

	// Close releases resources
	Close() error
}
