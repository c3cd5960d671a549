package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"smallarea/internal/config"
	"smallarea/internal/domain"
	"smallarea/internal/loader"
)

// SurveyStore stores re-imported surveys
type SurveyStore interface {
	UpsertSurveyByName(ctx context.Context, survey *domain.Survey) (*domain.Survey, bool, error)
}

// RunStarter estimates a stored survey
type RunStarter interface {
	Run(ctx context.Context, surveyID string, scenario domain.Scenario, force bool) (*domain.EstimationRun, bool, error)
}

// Reloader re-imports watched survey files and re-estimates them
type Reloader struct {
	surveys SurveyStore
	runs    RunStarter
	targets []config.WatchTarget
	logger  *slog.Logger

	// serialises reloads so two quick edits of one pair cannot interleave
	mu sync.Mutex
}

// NewReloader creates a reloader for the configured watch targets
func NewReloader(surveys SurveyStore, runs RunStarter, targets []config.WatchTarget, logger *slog.Logger) *Reloader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reloader{
		surveys: surveys,
		runs:    runs,
		targets: targets,
		logger:  logger,
	}
}

// Paths returns every file the targets read
func (r *Reloader) Paths() []string {
	var paths []string
	for _, t := range r.targets {
		paths = append(paths, t.Observations)
		if t.Frame != "" {
			paths = append(paths, t.Frame)
		}
	}
	return paths
}

// Reload imports one target's files under its name and estimates it. An
// unchanged survey is answered from the stored run.
func (r *Reloader) Reload(ctx context.Context, target config.WatchTarget) (*domain.EstimationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	survey, err := loader.LoadSurvey(target.Observations, target.Frame)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", target.Name, err)
	}
	survey.Name = target.Name

	saved, _, err := r.surveys.UpsertSurveyByName(ctx, survey)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", target.Name, err)
	}

	run, cached, err := r.runs.Run(ctx, saved.ID, target.Scenario, false)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", target.Name, err)
	}

	r.logger.Info("watched survey estimated",
		"target", target.Name,
		"survey_id", saved.ID,
		"run_id", run.ID,
		"scenario", target.Scenario,
		"cached", cached)
	return run, nil
}

// ReloadAll reloads every target, logging failures
func (r *Reloader) ReloadAll(ctx context.Context) {
	for _, t := range r.targets {
		if _, err := r.Reload(ctx, t); err != nil {
			r.logger.Warn("watched survey reload failed", "target", t.Name, "error", err)
		}
	}
}

// ReloadPath reloads the targets that read path
func (r *Reloader) ReloadPath(ctx context.Context, path string) {
	for _, t := range r.targets {
		if !samePath(t.Observations, path) && !(t.Frame != "" && samePath(t.Frame, path)) {
			continue
		}
		if _, err := r.Reload(ctx, t); err != nil {
			r.logger.Warn("watched survey reload failed", "target", t.Name, "path", path, "error", err)
		}
	}
}

// Run loads every target once and then reloads on file changes until ctx
// is cancelled
func (r *Reloader) Run(ctx context.Context) error {
	if len(r.targets) == 0 {
		return nil
	}
	r.ReloadAll(ctx)

	w := New(r.Paths(), func(path string) {
		r.ReloadPath(ctx, path)
	}).WithLogger(r.logger)
	return w.Watch(ctx)
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return absA == absB
}
