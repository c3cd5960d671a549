package service

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smallarea/internal/core/direct"
	"smallarea/internal/domain"
	"smallarea/internal/repository"
	"smallarea/internal/repository/sqlite"
)

type fakeRecorder struct {
	mu        sync.Mutex
	runs      map[string]int
	cacheHits int
	warnings  map[string]int
	imported  int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{runs: map[string]int{}, warnings: map[string]int{}}
}

func (f *fakeRecorder) ObserveRun(scenario, outcome string, _ time.Duration, _ int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[scenario+"/"+outcome]++
}

func (f *fakeRecorder) IncrementCacheHits() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cacheHits++
}

func (f *fakeRecorder) IncrementWarnings(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warnings[kind]++
}

func (f *fakeRecorder) IncrementSurveysImported() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imported++
}

type fixture struct {
	repo    *sqlite.Repository
	bus     *EventBus
	surveys *SurveyService
	runs    *EstimationService
	events  chan Event
	metrics *fakeRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	bus := NewEventBus()
	events := make(chan Event, 32)
	bus.Subscribe(events)

	rec := newFakeRecorder()
	return &fixture{
		repo:    repo,
		bus:     bus,
		surveys: NewSurveyService(repo, bus, WithMetrics(rec)),
		runs:    NewEstimationService(repo, repo, direct.New(direct.WithParallelism(2)), bus, WithMetrics(rec)),
		events:  events,
		metrics: rec,
	}
}

func (f *fixture) drain() []EventType {
	var types []EventType
	for {
		select {
		case e := <-f.events:
			types = append(types, e.Type)
		default:
			return types
		}
	}
}

// weightedSurvey has domain X with Σwy = 400 over N = 30 and a one-row
// domain Y
func weightedSurvey() *domain.Survey {
	s := domain.NewSurvey("", "households")
	s.AddObservation(domain.NewWeightedObservation("X", 100, 2))
	s.AddObservation(domain.NewWeightedObservation("X", 200, 1))
	s.AddObservation(domain.NewWeightedObservation("Y", 7, 3))
	s.Frame["X"] = 30
	s.Frame["Y"] = 10
	s.Frame["Z"] = 4
	return s
}

func TestImportSurvey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	survey, err := f.surveys.ImportSurvey(ctx, weightedSurvey())
	require.NoError(t, err)
	assert.NotEmpty(t, survey.ID)
	assert.False(t, survey.CreatedAt.IsZero())

	got, err := f.surveys.GetSurvey(ctx, survey.ID)
	require.NoError(t, err)
	assert.Len(t, got.Observations, 3)

	list, err := f.surveys.ListSurveys(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "households", list[0].Name)

	assert.Equal(t, []EventType{EventSurveyCreated}, f.drain())
	assert.Equal(t, 1, f.metrics.imported)
}

func TestImportSurveyValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.surveys.ImportSurvey(ctx, domain.NewSurvey("", "empty"))
	assert.ErrorIs(t, err, ErrEmptySurvey)

	bad := domain.NewSurvey("", "nan")
	bad.AddObservation(domain.NewObservation("X", math.NaN()))
	_, err = f.surveys.ImportSurvey(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrInvalidObservation)

	badFrame := weightedSurvey()
	badFrame.Frame["X"] = 0
	_, err = f.surveys.ImportSurvey(ctx, badFrame)
	assert.ErrorIs(t, err, domain.ErrInvalidPopulationSize)

	assert.Empty(t, f.drain())
}

func TestUpsertSurveyByName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, created, err := f.surveys.UpsertSurveyByName(ctx, weightedSurvey())
	require.NoError(t, err)
	assert.True(t, created)

	next := weightedSurvey()
	next.AddObservation(domain.NewWeightedObservation("Z", 1, 1))
	second, created, err := f.surveys.UpsertSurveyByName(ctx, next)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	got, err := f.surveys.GetSurvey(ctx, first.ID)
	require.NoError(t, err)
	assert.Len(t, got.Observations, 4)

	assert.Equal(t, []EventType{EventSurveyCreated, EventSurveyUpdated}, f.drain())
}

func TestRunScenarioA(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	survey, err := f.surveys.ImportSurvey(ctx, weightedSurvey())
	require.NoError(t, err)
	f.drain()

	run, cached, err := f.runs.Run(ctx, survey.ID, domain.ScenarioA, false)
	require.NoError(t, err)
	assert.False(t, cached)
	require.Len(t, run.Estimates, 2)

	x := run.Estimates[0]
	assert.Equal(t, "X", x.DomainID)
	assert.InDelta(t, 400.0/30, x.Estimate.Float64, 1e-12)
	assert.InDelta(t, 20000.0/900, x.Variance.Float64, 1e-12)

	stored, err := f.runs.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.Estimates, stored.Estimates)
	assert.Equal(t, run.Fingerprint, stored.Fingerprint)

	assert.Equal(t, []EventType{EventRunCompleted}, f.drain())
	assert.Equal(t, 1, f.metrics.runs["A/success"])
}

func TestRunCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	survey, err := f.surveys.ImportSurvey(ctx, weightedSurvey())
	require.NoError(t, err)

	first, _, err := f.runs.Run(ctx, survey.ID, domain.ScenarioC, false)
	require.NoError(t, err)

	again, cached, err := f.runs.Run(ctx, survey.ID, domain.ScenarioC, false)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, 1, f.metrics.cacheHits)

	forced, cached, err := f.runs.Run(ctx, survey.ID, domain.ScenarioC, true)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.NotEqual(t, first.ID, forced.ID)
	assert.Equal(t, first.Estimates, forced.Estimates)

	t.Run("changed frame misses cache", func(t *testing.T) {
		require.NoError(t, f.surveys.UpdateFrame(ctx, survey.ID, domain.DomainFrame{"X": 60, "Y": 10}))
		run, cached, err := f.runs.Run(ctx, survey.ID, domain.ScenarioC, false)
		require.NoError(t, err)
		assert.False(t, cached)
		assert.NotEqual(t, first.Fingerprint, run.Fingerprint)
	})

	runs, err := f.runs.ListRuns(ctx, survey.ID)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestRunCacheKeyedByZeroWeightPolicy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := weightedSurvey()
	s.AddObservation(domain.NewWeightedObservation("X", 50, 0))
	survey, err := f.surveys.ImportSurvey(ctx, s)
	require.NoError(t, err)

	lenient, _, err := f.runs.Run(ctx, survey.ID, domain.ScenarioA, false)
	require.NoError(t, err)

	strict := NewEstimationService(f.repo, f.repo, direct.New(direct.WithRejectZeroWeights(true)), f.bus)
	_, cached, err := strict.Run(ctx, survey.ID, domain.ScenarioA, false)
	assert.False(t, cached)
	assert.ErrorIs(t, err, domain.ErrInvalidWeight)

	t.Run("unweighted scenarios still share runs", func(t *testing.T) {
		first, _, err := f.runs.Run(ctx, survey.ID, domain.ScenarioD, false)
		require.NoError(t, err)
		again, cached, err := strict.Run(ctx, survey.ID, domain.ScenarioD, false)
		require.NoError(t, err)
		assert.True(t, cached)
		assert.Equal(t, first.ID, again.ID)
	})

	again, cached, err := f.runs.Run(ctx, survey.ID, domain.ScenarioA, false)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, lenient.ID, again.ID)
}

func TestRunFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _, err := f.runs.Run(ctx, "missing", domain.ScenarioA, false)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, _, err = f.runs.Run(ctx, "missing", domain.Scenario("Q"), false)
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	s := weightedSurvey()
	s.Frame = domain.DomainFrame{"X": 30}
	survey, err := f.surveys.ImportSurvey(ctx, s)
	require.NoError(t, err)
	f.drain()

	_, _, err = f.runs.Run(ctx, survey.ID, domain.ScenarioA, false)
	var missing *domain.MissingPopulationSizeError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "Y", missing.DomainID)

	assert.Equal(t, []EventType{EventRunFailed}, f.drain())
	assert.Equal(t, 1, f.metrics.runs["A/error"])

	runs, err := f.runs.ListRuns(ctx, survey.ID)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRunWarnings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s := domain.NewSurvey("", "unweighted")
	s.AddObservation(domain.NewObservation("X", 10))
	s.AddObservation(domain.NewObservation("X", 20))
	s.AddObservation(domain.NewObservation("Y", 5))
	survey, err := f.surveys.ImportSurvey(ctx, s)
	require.NoError(t, err)

	run, _, err := f.runs.Run(ctx, survey.ID, domain.ScenarioD, false)
	require.NoError(t, err)

	require.Len(t, run.Warnings, 1)
	y, ok := run.Estimate("Y")
	require.True(t, ok)
	assert.True(t, y.HasEstimate())
	assert.False(t, y.HasVariance())
	assert.Equal(t, 1, f.metrics.warnings[string(domain.NoteInsufficientSampleSize)])
}

func TestCoverageAndExport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	survey, err := f.surveys.ImportSurvey(ctx, weightedSurvey())
	require.NoError(t, err)
	run, _, err := f.runs.Run(ctx, survey.ID, domain.ScenarioA, false)
	require.NoError(t, err)

	entries, err := f.runs.Coverage(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "Z", entries[2].DomainID)
	assert.False(t, entries[2].InSample)
	assert.Nil(t, entries[2].Estimate)

	var buf bytes.Buffer
	require.NoError(t, f.runs.Export(ctx, run.ID, "csv", &buf))
	assert.True(t, strings.HasPrefix(buf.String(), "domain_id,sample_size"))

	assert.Error(t, f.runs.Export(ctx, run.ID, "xlsx", &buf))
	assert.ErrorIs(t, f.runs.Export(ctx, "nope", "json", &buf), repository.ErrNotFound)
}

func TestDeleteRunAndSurvey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	survey, err := f.surveys.ImportSurvey(ctx, weightedSurvey())
	require.NoError(t, err)
	run, _, err := f.runs.Run(ctx, survey.ID, domain.ScenarioA, false)
	require.NoError(t, err)
	f.drain()

	require.NoError(t, f.runs.DeleteRun(ctx, run.ID))
	assert.ErrorIs(t, f.runs.DeleteRun(ctx, run.ID), repository.ErrNotFound)

	require.NoError(t, f.surveys.DeleteSurvey(ctx, survey.ID))
	_, err = f.surveys.GetSurvey(ctx, survey.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	assert.Equal(t, []EventType{EventRunDeleted, EventSurveyDeleted}, f.drain())
}

func TestRunRequestResolve(t *testing.T) {
	yes, no := true, false

	tests := []struct {
		name    string
		req     RunRequest
		def     domain.Scenario
		want    domain.Scenario
		wantErr bool
	}{
		{"by name", RunRequest{Scenario: "b"}, domain.ScenarioA, domain.ScenarioB, false},
		{"by flags", RunRequest{UseWeights: &no, UseDomainSize: &no, WithReplacement: &yes}, domain.ScenarioA, domain.ScenarioD, false},
		{"default", RunRequest{}, domain.ScenarioC, domain.ScenarioC, false},
		{"name and matching flags", RunRequest{Scenario: "A", UseWeights: &yes, UseDomainSize: &yes, WithReplacement: &no}, "", domain.ScenarioA, false},
		{"name and conflicting flags", RunRequest{Scenario: "A", UseWeights: &no}, "", "", true},
		{"unsupported flags", RunRequest{UseWeights: &yes}, "", "", true},
		{"unknown name", RunRequest{Scenario: "E"}, "", "", true},
		{"no default", RunRequest{}, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.req.Resolve(tt.def)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEventBus(t *testing.T) {
	bus := NewEventBus()
	fast := make(chan Event, 1)
	slow := make(chan Event)
	bus.Subscribe(fast)
	bus.Subscribe(slow)

	bus.Publish(Event{Type: EventRunCompleted})
	assert.Equal(t, EventRunCompleted, (<-fast).Type)

	bus.Unsubscribe(fast)
	bus.Publish(Event{Type: EventRunDeleted})
	assert.Empty(t, fast)

	var nilBus *EventBus
	assert.NotPanics(t, func() { nilBus.Publish(Event{Type: EventRunFailed}) })
}

func TestEventSurveyScope(t *testing.T) {
	assert.Equal(t, "s1", Event{Type: EventSurveyCreated, Payload: SurveyEventPayload{SurveyID: "s1"}}.SurveyID())
	assert.Equal(t, "s2", Event{Type: EventRunCompleted, Payload: RunEventPayload{SurveyID: "s2"}}.SurveyID())
	assert.Equal(t, "", Event{Type: EventRunFailed}.SurveyID())
	assert.Equal(t, "run_failed", Event{Type: EventRunFailed}.EventName())
}
