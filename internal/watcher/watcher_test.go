package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smallarea/internal/config"
	"smallarea/internal/core/direct"
	"smallarea/internal/domain"
	"smallarea/internal/repository/sqlite"
	"smallarea/internal/service"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestWatchFiresOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "obs.csv")
	writeFile(t, path, "domain_id,value\n")

	changed := make(chan string, 4)
	w := New([]string{path}, func(p string) { changed <- p }).
		WithDebounce(20 * time.Millisecond).
		WithLogger(quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx) }()

	// Give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	writeFile(t, filepath.Join(dir, "other.csv"), "ignored")
	writeFile(t, path, "domain_id,value\nX,1\n")

	select {
	case got := <-changed:
		want, _ := filepath.Abs(path)
		assert.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change notification")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop")
	}
}

type fixture struct {
	surveys *service.SurveyService
	runs    *service.EstimationService
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return fixture{
		surveys: service.NewSurveyService(repo, nil, service.WithLogger(quietLogger())),
		runs:    service.NewEstimationService(repo, repo, direct.New(), nil, service.WithLogger(quietLogger())),
	}
}

func TestReloadImportsAndEstimates(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	obs := filepath.Join(dir, "obs.csv")
	frame := filepath.Join(dir, "frame.csv")
	writeFile(t, obs, "domain_id,value\nX,10\nX,20\nX,30\n")
	writeFile(t, frame, "domain_id,population_size\nX,10\n")

	target := config.WatchTarget{Name: "wave", Observations: obs, Frame: frame, Scenario: domain.ScenarioB}
	r := NewReloader(f.surveys, f.runs, []config.WatchTarget{target}, quietLogger())
	assert.Equal(t, []string{obs, frame}, r.Paths())

	ctx := context.Background()
	run, err := r.Reload(ctx, target)
	require.NoError(t, err)

	est, ok := run.Estimate("X")
	require.True(t, ok)
	require.True(t, est.HasEstimate())
	assert.InDelta(t, 20.0, est.Estimate.Float64, 1e-12)
	require.True(t, est.HasVariance())
	assert.InDelta(t, 0.7*100/3, est.Variance.Float64, 1e-12)

	// Unchanged files reuse the stored run
	again, err := r.Reload(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, run.ID, again.ID)

	// A frame edit replaces the survey in place and produces a new run
	writeFile(t, frame, "domain_id,population_size\nX,100\n")
	r.ReloadPath(ctx, frame)

	list, err := f.surveys.ListSurveys(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "wave", list[0].Name)

	runs, err := f.runs.ListRuns(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestReloadErrors(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	obs := filepath.Join(dir, "obs.csv")
	writeFile(t, obs, "domain_id,value\nX,1\n")

	r := NewReloader(f.surveys, f.runs, nil, quietLogger())

	_, err := r.Reload(context.Background(), config.WatchTarget{Name: "missing", Observations: filepath.Join(dir, "nope.csv"), Scenario: domain.ScenarioD})
	assert.Error(t, err)

	// Scenario A needs a frame the CSV cannot carry
	_, err = r.Reload(context.Background(), config.WatchTarget{Name: "noframe", Observations: obs, Scenario: domain.ScenarioA})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "noframe")

	assert.NoError(t, r.Run(context.Background()))
}
