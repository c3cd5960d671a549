package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"smallarea/internal/domain"
	"smallarea/internal/repository"

	_ "modernc.org/sqlite"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db *sql.DB
}

var _ repository.Repository = (*Repository)(nil)

// New creates a new SQLite repository
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if dbPath != ":memory:" {
		dsn += "&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	repo := &Repository{db: db}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS surveys (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS observations (
		survey_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		domain_id TEXT NOT NULL,
		value REAL NOT NULL,
		weight REAL,
		PRIMARY KEY (survey_id, seq),
		FOREIGN KEY (survey_id) REFERENCES surveys(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS frames (
		survey_id TEXT NOT NULL,
		domain_id TEXT NOT NULL,
		population_size INTEGER NOT NULL,
		PRIMARY KEY (survey_id, domain_id),
		FOREIGN KEY (survey_id) REFERENCES surveys(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		survey_id TEXT NOT NULL,
		scenario TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		warnings JSON,
		created_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (survey_id) REFERENCES surveys(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS estimates (
		run_id TEXT NOT NULL,
		domain_id TEXT NOT NULL,
		estimate REAL,
		variance REAL,
		sample_size INTEGER NOT NULL,
		population_size INTEGER,
		notes JSON,
		PRIMARY KEY (run_id, domain_id),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_surveys_name ON surveys(name);
	CREATE INDEX IF NOT EXISTS idx_runs_survey ON runs(survey_id);
	CREATE INDEX IF NOT EXISTS idx_runs_inputs ON runs(survey_id, scenario, fingerprint);
	`

	_, err := r.db.Exec(schema)
	return err
}

// ============================================================================
// Surveys
// ============================================================================

// CreateSurvey inserts a survey with its observations and frame
func (r *Repository) CreateSurvey(ctx context.Context, survey *domain.Survey) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO surveys (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)
	`, survey.ID, survey.Name, toMillis(survey.CreatedAt), toMillis(survey.UpdatedAt)); err != nil {
		return fmt.Errorf("failed to insert survey: %w", err)
	}

	if err := insertRows(ctx, tx, survey); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ReplaceSurvey overwrites the rows of an existing survey in one transaction
func (r *Repository) ReplaceSurvey(ctx context.Context, survey *domain.Survey) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE surveys SET name = ?, updated_at = ? WHERE id = ?
	`, survey.Name, toMillis(survey.UpdatedAt), survey.ID)
	if err != nil {
		return fmt.Errorf("failed to update survey: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM observations WHERE survey_id = ?`, survey.ID); err != nil {
		return fmt.Errorf("failed to clear observations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM frames WHERE survey_id = ?`, survey.ID); err != nil {
		return fmt.Errorf("failed to clear frame: %w", err)
	}

	if err := insertRows(ctx, tx, survey); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, survey *domain.Survey) error {
	obsStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO observations (survey_id, seq, domain_id, value, weight) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare observation insert: %w", err)
	}
	defer obsStmt.Close()

	for i, o := range survey.Observations {
		if _, err := obsStmt.ExecContext(ctx, survey.ID, i, o.DomainID, o.Value, floatPtrToNull(o.Weight)); err != nil {
			return fmt.Errorf("failed to insert observation %d: %w", i, err)
		}
	}

	return insertFrame(ctx, tx, survey.ID, survey.Frame)
}

func insertFrame(ctx context.Context, tx *sql.Tx, surveyID string, frame domain.DomainFrame) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO frames (survey_id, domain_id, population_size) VALUES (?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare frame insert: %w", err)
	}
	defer stmt.Close()

	for _, id := range frame.DomainIDs() {
		if _, err := stmt.ExecContext(ctx, surveyID, id, frame[id]); err != nil {
			return fmt.Errorf("failed to insert frame domain %s: %w", id, err)
		}
	}
	return nil
}

// GetSurvey loads a survey with its observations in input order
func (r *Repository) GetSurvey(ctx context.Context, id string) (*domain.Survey, error) {
	var (
		name             string
		created, updated int64
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT name, created_at, updated_at FROM surveys WHERE id = ?
	`, id).Scan(&name, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query survey: %w", err)
	}

	survey := domain.NewSurvey(id, name)
	survey.CreatedAt = fromMillis(created)
	survey.UpdatedAt = fromMillis(updated)

	rows, err := r.db.QueryContext(ctx, `
		SELECT domain_id, value, weight FROM observations WHERE survey_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			domainID string
			value    float64
			weight   sql.NullFloat64
		)
		if err := rows.Scan(&domainID, &value, &weight); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		survey.AddObservation(domain.Observation{DomainID: domainID, Value: value, Weight: nullToFloatPtr(weight)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating observations: %w", err)
	}

	frame, err := r.getFrame(ctx, id)
	if err != nil {
		return nil, err
	}
	survey.Frame = frame

	return survey, nil
}

// GetSurveyByName loads the most recently created survey with a name
func (r *Repository) GetSurveyByName(ctx context.Context, name string) (*domain.Survey, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM surveys WHERE name = ? ORDER BY created_at DESC, id DESC LIMIT 1
	`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query survey by name: %w", err)
	}
	return r.GetSurvey(ctx, id)
}

func (r *Repository) getFrame(ctx context.Context, surveyID string) (domain.DomainFrame, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT domain_id, population_size FROM frames WHERE survey_id = ?
	`, surveyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frame: %w", err)
	}
	defer rows.Close()

	frame := domain.NewDomainFrame()
	for rows.Next() {
		var (
			domainID string
			size     int64
		)
		if err := rows.Scan(&domainID, &size); err != nil {
			return nil, fmt.Errorf("failed to scan frame row: %w", err)
		}
		frame[domainID] = size
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating frame: %w", err)
	}
	return frame, nil
}

// ListSurveys returns survey summaries, newest first
func (r *Repository) ListSurveys(ctx context.Context) ([]domain.SurveySummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.created_at, s.updated_at,
			(SELECT COUNT(*) FROM observations o WHERE o.survey_id = s.id),
			(SELECT COUNT(DISTINCT o.domain_id) FROM observations o WHERE o.survey_id = s.id),
			(SELECT COUNT(*) FROM frames f WHERE f.survey_id = s.id)
		FROM surveys s
		ORDER BY s.created_at DESC, s.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query surveys: %w", err)
	}
	defer rows.Close()

	summaries := make([]domain.SurveySummary, 0)
	for rows.Next() {
		var (
			s                domain.SurveySummary
			created, updated int64
		)
		if err := rows.Scan(&s.ID, &s.Name, &created, &updated, &s.ObservationCount, &s.SampledDomains, &s.FrameDomains); err != nil {
			return nil, fmt.Errorf("failed to scan survey: %w", err)
		}
		s.CreatedAt = fromMillis(created)
		s.UpdatedAt = fromMillis(updated)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating surveys: %w", err)
	}
	return summaries, nil
}

// UpdateFrame replaces the frame of a survey
func (r *Repository) UpdateFrame(ctx context.Context, id string, frame domain.DomainFrame) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE surveys SET updated_at = ? WHERE id = ?`, toMillis(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update survey: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM frames WHERE survey_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear frame: %w", err)
	}
	if err := insertFrame(ctx, tx, id, frame); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteSurvey removes a survey; observations, frame and runs cascade
func (r *Repository) DeleteSurvey(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM surveys WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete survey: %w", err)
	}
	return requireAffected(res)
}

// ============================================================================
// Runs
// ============================================================================

// SaveRun inserts a run and its estimate table
func (r *Repository) SaveRun(ctx context.Context, run *domain.EstimationRun) error {
	warnings, err := marshalSliceToNull(run.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM surveys WHERE id = ?`, run.SurveyID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("survey %s: %w", run.SurveyID, repository.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to check survey: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, survey_id, scenario, fingerprint, warnings, created_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.SurveyID, string(run.Scenario), run.Fingerprint, warnings, toMillis(run.CreatedAt), run.DurationMS); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO estimates (run_id, domain_id, estimate, variance, sample_size, population_size, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare estimate insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range run.Estimates {
		notes, err := marshalSliceToNull(e.Notes)
		if err != nil {
			return fmt.Errorf("failed to marshal notes for %s: %w", e.DomainID, err)
		}
		if _, err := stmt.ExecContext(ctx, run.ID, e.DomainID,
			nullFloatToSQL(e.Estimate), nullFloatToSQL(e.Variance),
			e.SampleSize, int64PtrToNull(e.PopulationSize), notes); err != nil {
			return fmt.Errorf("failed to insert estimate %s: %w", e.DomainID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRun loads a run with its estimates sorted by domain id
func (r *Repository) GetRun(ctx context.Context, id string) (*domain.EstimationRun, error) {
	run := &domain.EstimationRun{ID: id}

	var (
		scenario string
		warnings sql.NullString
		created  int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT survey_id, scenario, fingerprint, warnings, created_at, duration_ms
		FROM runs WHERE id = ?
	`, id).Scan(&run.SurveyID, &scenario, &run.Fingerprint, &warnings, &created, &run.DurationMS)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	run.Scenario = domain.Scenario(scenario)
	run.CreatedAt = fromMillis(created)
	if err := unmarshalJSONField(warnings, &run.Warnings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT domain_id, estimate, variance, sample_size, population_size, notes
		FROM estimates WHERE run_id = ? ORDER BY domain_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query estimates: %w", err)
	}
	defer rows.Close()

	run.Estimates = make([]domain.DirectEstimate, 0)
	for rows.Next() {
		var (
			e                  domain.DirectEstimate
			estimate, variance sql.NullFloat64
			popSize            sql.NullInt64
			notes              sql.NullString
		)
		if err := rows.Scan(&e.DomainID, &estimate, &variance, &e.SampleSize, &popSize, &notes); err != nil {
			return nil, fmt.Errorf("failed to scan estimate: %w", err)
		}
		e.Estimate = sqlToNullFloat(estimate)
		e.Variance = sqlToNullFloat(variance)
		e.PopulationSize = nullToInt64Ptr(popSize)
		if err := unmarshalJSONField(notes, &e.Notes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal notes for %s: %w", e.DomainID, err)
		}
		run.Estimates = append(run.Estimates, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating estimates: %w", err)
	}

	return run, nil
}

// ListRuns returns run summaries, newest first. An empty surveyID lists all runs.
func (r *Repository) ListRuns(ctx context.Context, surveyID string) ([]domain.RunSummary, error) {
	query := `
		SELECT r.id, r.survey_id, r.scenario, r.fingerprint, r.warnings, r.created_at, r.duration_ms,
			(SELECT COUNT(*) FROM estimates e WHERE e.run_id = r.id)
		FROM runs r`
	var args []any
	if surveyID != "" {
		query += ` WHERE r.survey_id = ?`
		args = append(args, surveyID)
	}
	query += ` ORDER BY r.created_at DESC, r.id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	summaries := make([]domain.RunSummary, 0)
	for rows.Next() {
		var (
			s        domain.RunSummary
			scenario string
			warnings sql.NullString
			created  int64
		)
		if err := rows.Scan(&s.ID, &s.SurveyID, &scenario, &s.Fingerprint, &warnings, &created, &s.DurationMS, &s.DomainCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		s.Scenario = domain.Scenario(scenario)
		s.CreatedAt = fromMillis(created)

		var w []string
		if err := unmarshalJSONField(warnings, &w); err != nil {
			return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
		}
		s.WarningCount = len(w)
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return summaries, nil
}

// FindRun returns the most recent run of a survey with matching inputs
func (r *Repository) FindRun(ctx context.Context, surveyID string, scenario domain.Scenario, fingerprint string) (*domain.EstimationRun, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM runs
		WHERE survey_id = ? AND scenario = ? AND fingerprint = ?
		ORDER BY created_at DESC LIMIT 1
	`, surveyID, string(scenario), fingerprint).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run by inputs: %w", err)
	}
	return r.GetRun(ctx, id)
}

// DeleteRun removes a run and its estimates
func (r *Repository) DeleteRun(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return requireAffected(res)
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
