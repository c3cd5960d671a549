package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"
	"time"

	"smallarea/internal/domain"
	"smallarea/internal/repository"
)

// ============================================================================
// Test Helpers
// ============================================================================

// newTestRepo creates an in-memory SQLite repository for testing
func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}
	t.Cleanup(func() {
		repo.Close()
	})
	return repo
}

// assertNoError fails the test if err is not nil
func assertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// assertEqual fails the test if expected != actual
func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

// assertNotFound fails the test unless err is repository.ErrNotFound
func assertNotFound(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testSurvey(id, name string) *domain.Survey {
	s := domain.NewSurvey(id, name)
	s.AddObservation(domain.NewWeightedObservation("X", 100, 2))
	s.AddObservation(domain.NewWeightedObservation("X", 200, 1))
	s.AddObservation(domain.NewObservation("Y", 1e9+4))
	s.Frame["X"] = 30
	s.Frame["Y"] = 10
	s.Frame["Z"] = 5
	return s
}

func testRun(id, surveyID string) *domain.EstimationRun {
	n := int64(30)
	return &domain.EstimationRun{
		ID:          id,
		SurveyID:    surveyID,
		Scenario:    domain.ScenarioA,
		Fingerprint: "fp-" + surveyID,
		Estimates: []domain.DirectEstimate{
			{DomainID: "X", Estimate: domain.Float(400.0 / 30), Variance: domain.Float(20000.0 / 900), SampleSize: 2, PopulationSize: &n},
			{DomainID: "Y", Estimate: domain.Float(5), Variance: domain.Null(), SampleSize: 1,
				Notes: []domain.Note{{Field: "variance", Code: domain.NoteInsufficientSampleSize, Message: "one observation"}}},
		},
		Warnings:   []string{"domain Y: variance undefined"},
		CreatedAt:  time.Now(),
		DurationMS: 3,
	}
}

// ============================================================================
// Helper Function Tests
// ============================================================================

func TestNullFloatConversion(t *testing.T) {
	tests := []struct {
		name  string
		input domain.NullFloat
		want  sql.NullFloat64
	}{
		{"present", domain.Float(1.5), sql.NullFloat64{Float64: 1.5, Valid: true}},
		{"present zero", domain.Float(0), sql.NullFloat64{Valid: true}},
		{"absent", domain.Null(), sql.NullFloat64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nullFloatToSQL(tt.input)
			assertEqual(t, tt.want, got)
			assertEqual(t, tt.input, sqlToNullFloat(got))
		})
	}
}

func TestPointerConversion(t *testing.T) {
	if floatPtrToNull(nil).Valid {
		t.Fatal("nil weight should be NULL")
	}
	w := 2.5
	if got := nullToFloatPtr(floatPtrToNull(&w)); got == nil || *got != 2.5 {
		t.Fatalf("weight round trip = %v", got)
	}

	if int64PtrToNull(nil).Valid {
		t.Fatal("nil population size should be NULL")
	}
	if nullToInt64Ptr(sql.NullInt64{}) != nil {
		t.Fatal("NULL population size should be nil")
	}
}

func TestMarshalSliceToNull(t *testing.T) {
	ns, err := marshalSliceToNull([]string{})
	assertNoError(t, err)
	if ns.Valid {
		t.Fatal("empty slice should be stored as NULL")
	}

	ns, err = marshalSliceToNull([]string{"a"})
	assertNoError(t, err)
	assertEqual(t, `["a"]`, ns.String)

	var out []string
	assertNoError(t, unmarshalJSONField(ns, &out))
	assertEqual(t, []string{"a"}, out)
}

func TestMillis(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 30, 0, 123456789, time.UTC)
	got := fromMillis(toMillis(now))
	assertEqual(t, now.Truncate(time.Millisecond), got)
}

// ============================================================================
// Survey Tests
// ============================================================================

func TestCreateAndGetSurvey(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	survey := testSurvey("s1", "pilot")
	assertNoError(t, repo.CreateSurvey(ctx, survey))

	got, err := repo.GetSurvey(ctx, "s1")
	assertNoError(t, err)

	assertEqual(t, "pilot", got.Name)
	assertEqual(t, survey.Observations, got.Observations)
	assertEqual(t, survey.Frame, got.Frame)
	if got.Observations[2].Weight != nil {
		t.Fatal("unweighted observation should come back without a weight")
	}
}

func TestGetSurveyNotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetSurvey(context.Background(), "missing")
	assertNotFound(t, err)

	_, err = repo.GetSurveyByName(context.Background(), "missing")
	assertNotFound(t, err)
}

func TestGetSurveyByName(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	older := testSurvey("s1", "wave")
	older.CreatedAt = time.Now().Add(-time.Hour)
	assertNoError(t, repo.CreateSurvey(ctx, older))
	assertNoError(t, repo.CreateSurvey(ctx, testSurvey("s2", "wave")))

	got, err := repo.GetSurveyByName(ctx, "wave")
	assertNoError(t, err)
	assertEqual(t, "s2", got.ID)
}

func TestListSurveys(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	list, err := repo.ListSurveys(ctx)
	assertNoError(t, err)
	assertEqual(t, 0, len(list))

	assertNoError(t, repo.CreateSurvey(ctx, testSurvey("s1", "pilot")))

	list, err = repo.ListSurveys(ctx)
	assertNoError(t, err)
	assertEqual(t, 1, len(list))
	assertEqual(t, 3, list[0].ObservationCount)
	assertEqual(t, 2, list[0].SampledDomains)
	assertEqual(t, 3, list[0].FrameDomains)
}

func TestReplaceSurvey(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.CreateSurvey(ctx, testSurvey("s1", "pilot")))

	replacement := domain.NewSurvey("s1", "pilot v2")
	replacement.AddObservation(domain.NewObservation("Q", 7))
	assertNoError(t, repo.ReplaceSurvey(ctx, replacement))

	got, err := repo.GetSurvey(ctx, "s1")
	assertNoError(t, err)
	assertEqual(t, "pilot v2", got.Name)
	assertEqual(t, 1, len(got.Observations))
	assertEqual(t, 0, len(got.Frame))

	assertNotFound(t, repo.ReplaceSurvey(ctx, domain.NewSurvey("nope", "x")))
}

func TestUpdateFrame(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.CreateSurvey(ctx, testSurvey("s1", "pilot")))
	assertNoError(t, repo.UpdateFrame(ctx, "s1", domain.DomainFrame{"X": 99}))

	got, err := repo.GetSurvey(ctx, "s1")
	assertNoError(t, err)
	assertEqual(t, domain.DomainFrame{"X": 99}, got.Frame)

	assertNotFound(t, repo.UpdateFrame(ctx, "missing", domain.DomainFrame{"X": 1}))
}

func TestDeleteSurveyCascades(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.CreateSurvey(ctx, testSurvey("s1", "pilot")))
	assertNoError(t, repo.SaveRun(ctx, testRun("r1", "s1")))

	assertNoError(t, repo.DeleteSurvey(ctx, "s1"))

	_, err := repo.GetRun(ctx, "r1")
	assertNotFound(t, err)

	var count int
	assertNoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM estimates`).Scan(&count))
	assertEqual(t, 0, count)
	assertNoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM observations`).Scan(&count))
	assertEqual(t, 0, count)

	assertNotFound(t, repo.DeleteSurvey(ctx, "s1"))
}

// ============================================================================
// Run Tests
// ============================================================================

func TestSaveAndGetRun(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.CreateSurvey(ctx, testSurvey("s1", "pilot")))
	run := testRun("r1", "s1")
	assertNoError(t, repo.SaveRun(ctx, run))

	got, err := repo.GetRun(ctx, "r1")
	assertNoError(t, err)

	assertEqual(t, run.Scenario, got.Scenario)
	assertEqual(t, run.Fingerprint, got.Fingerprint)
	assertEqual(t, run.Warnings, got.Warnings)
	assertEqual(t, run.Estimates, got.Estimates)
	assertEqual(t, int64(3), got.DurationMS)
}

func TestSaveRunUnknownSurvey(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.SaveRun(context.Background(), testRun("r1", "ghost"))
	assertNotFound(t, err)

	runs, err := repo.ListRuns(context.Background(), "")
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("expected no stored runs, got %d", len(runs))
	}
}

func TestFindRun(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.CreateSurvey(ctx, testSurvey("s1", "pilot")))
	assertNoError(t, repo.SaveRun(ctx, testRun("r1", "s1")))

	got, err := repo.FindRun(ctx, "s1", domain.ScenarioA, "fp-s1")
	assertNoError(t, err)
	assertEqual(t, "r1", got.ID)

	_, err = repo.FindRun(ctx, "s1", domain.ScenarioC, "fp-s1")
	assertNotFound(t, err)
	_, err = repo.FindRun(ctx, "s1", domain.ScenarioA, "other")
	assertNotFound(t, err)
}

func TestListAndDeleteRuns(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	assertNoError(t, repo.CreateSurvey(ctx, testSurvey("s1", "pilot")))
	assertNoError(t, repo.CreateSurvey(ctx, testSurvey("s2", "other")))
	assertNoError(t, repo.SaveRun(ctx, testRun("r1", "s1")))
	assertNoError(t, repo.SaveRun(ctx, testRun("r2", "s2")))

	all, err := repo.ListRuns(ctx, "")
	assertNoError(t, err)
	assertEqual(t, 2, len(all))

	forS1, err := repo.ListRuns(ctx, "s1")
	assertNoError(t, err)
	assertEqual(t, 1, len(forS1))
	assertEqual(t, 2, forS1[0].DomainCount)
	assertEqual(t, 1, forS1[0].WarningCount)

	assertNoError(t, repo.DeleteRun(ctx, "r1"))
	assertNotFound(t, repo.DeleteRun(ctx, "r1"))

	forS1, err = repo.ListRuns(ctx, "s1")
	assertNoError(t, err)
	assertEqual(t, 0, len(forS1))
}
