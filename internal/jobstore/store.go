package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Job status values.
const (
	StatusPending = "pending"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// DefaultListLimit bounds job listings without an explicit limit.
const DefaultListLimit = 50

var (
	ErrUnknownJob = errors.New("jobstore: unknown job")
	ErrConflict   = errors.New("jobstore: job not in expected status")
	ErrInvalidJob = errors.New("jobstore: invalid job")
)

// Job is one journaled solver run.
type Job struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Status      string          `json:"status"`
	Study       json.RawMessage `json:"study,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	SubmittedMS int64           `json:"submitted_ms"`
	StartedMS   int64           `json:"started_ms,omitempty"`
	FinishedMS  int64           `json:"finished_ms,omitempty"`
}

// Store journals jobs in one sqlite file.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open creates the database file (and its directory) if needed and runs the
// schema migration.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("jobstore: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("jobstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobstore: enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("jobstore: set busy timeout: %w", err)
	}

	s := &Store{db: db, logger: log.With().Str("component", "jobstore").Logger()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	s.logger.Debug().Str("path", path).Msg("jobstore.open ready")
	return s, nil
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			study BLOB NOT NULL,
			result BLOB,
			error TEXT NOT NULL DEFAULT '',
			submitted_ms INTEGER NOT NULL,
			started_ms INTEGER NOT NULL DEFAULT 0,
			finished_ms INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_submitted ON jobs(submitted_ms)`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("jobstore: migration failed: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Create journals a new pending job.
func (s *Store) Create(ctx context.Context, id uuid.UUID, name string, study []byte) (Job, error) {
	if id == uuid.Nil {
		return Job{}, fmt.Errorf("%w: missing id", ErrInvalidJob)
	}
	if strings.TrimSpace(name) == "" {
		return Job{}, fmt.Errorf("%w: missing name", ErrInvalidJob)
	}
	if len(study) == 0 {
		return Job{}, fmt.Errorf("%w: missing study payload", ErrInvalidJob)
	}

	job := Job{
		ID:          id,
		Name:        name,
		Status:      StatusPending,
		Study:       append(json.RawMessage(nil), study...),
		SubmittedMS: time.Now().UnixMilli(),
	}
	const q = `
		INSERT INTO jobs (id, name, status, study, submitted_ms)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, q, job.ID.String(), job.Name, job.Status, []byte(job.Study), job.SubmittedMS); err != nil {
		return Job{}, fmt.Errorf("jobstore: create %s: %w", id, err)
	}
	s.logger.Debug().Str("job", id.String()).Str("name", name).Msg("jobstore.create journaled")
	return job, nil
}

// MarkRunning moves a pending job to running.
func (s *Store) MarkRunning(ctx context.Context, id uuid.UUID) error {
	const q = `
		UPDATE jobs SET status = ?, started_ms = ?
		WHERE id = ? AND status = ?
	`
	return s.transition(ctx, id, q, StatusRunning, time.Now().UnixMilli(), id.String(), StatusPending)
}

// MarkDone moves a running job to done and stores its result.
func (s *Store) MarkDone(ctx context.Context, id uuid.UUID, result []byte) error {
	const q = `
		UPDATE jobs SET status = ?, result = ?, finished_ms = ?
		WHERE id = ? AND status = ?
	`
	return s.transition(ctx, id, q, StatusDone, result, time.Now().UnixMilli(), id.String(), StatusRunning)
}

// MarkFailed moves a pending or running job to failed and records the cause.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, cause string) error {
	const q = `
		UPDATE jobs SET status = ?, error = ?, finished_ms = ?
		WHERE id = ? AND status IN (?, ?)
	`
	return s.transition(ctx, id, q, StatusFailed, cause, time.Now().UnixMilli(), id.String(), StatusPending, StatusRunning)
}

func (s *Store) transition(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("jobstore: transition %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("jobstore: transition %s: %w", id, err)
	}
	if n == 1 {
		return nil
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: job %s is %s", ErrConflict, id, job.Status)
}

const jobColumns = `id, name, status, study, result, error, submitted_ms, started_ms, finished_ms`

// Get fetches one job by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`
	job, err := scanJob(s.db.QueryRowContext(ctx, q, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}
	if err != nil {
		return Job{}, fmt.Errorf("jobstore: get %s: %w", id, err)
	}
	return job, nil
}

// FailStaleRunning marks every running job failed. Runs at boot before
// workers start, so jobs orphaned by a crash do not sit running forever.
func (s *Store) FailStaleRunning(ctx context.Context, cause string) (int64, error) {
	const q = `UPDATE jobs SET status = ?, error = ?, finished_ms = ? WHERE status = ?`
	res, err := s.db.ExecContext(ctx, q, StatusFailed, cause, time.Now().UnixMilli(), StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("jobstore: fail stale: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("jobstore: fail stale: %w", err)
	}
	return count, nil
}

// NextPending returns the oldest job still waiting for a worker.
// Callers claim it with MarkRunning; the status guard there keeps two
// workers from running the same job.
func (s *Store) NextPending(ctx context.Context) (Job, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE status = ? ORDER BY submitted_ms ASC, id LIMIT 1`
	job, err := scanJob(s.db.QueryRowContext(ctx, q, StatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, fmt.Errorf("%w: no pending jobs", ErrUnknownJob)
	}
	if err != nil {
		return Job{}, fmt.Errorf("jobstore: next pending: %w", err)
	}
	return job, nil
}

// List returns jobs newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	const q = `SELECT ` + jobColumns + ` FROM jobs ORDER BY submitted_ms DESC, id LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("jobstore: list: %w", err)
	}
	defer rows.Close()

	jobs := make([]Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("jobstore: list: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobstore: list: %w", err)
	}
	return jobs, nil
}

// CountByStatus reports how many jobs sit in each status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	const q = `SELECT status, COUNT(*) FROM jobs GROUP BY status`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("jobstore: count: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("jobstore: count: %w", err)
		}
		counts[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobstore: count: %w", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var (
		job    Job
		rawID  string
		study  []byte
		result []byte
	)
	if err := row.Scan(&rawID, &job.Name, &job.Status, &study, &result, &job.Error,
		&job.SubmittedMS, &job.StartedMS, &job.FinishedMS); err != nil {
		return Job{}, err
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return Job{}, fmt.Errorf("jobstore: corrupt job id %q: %w", rawID, err)
	}
	job.ID = id
	job.Study = json.RawMessage(study)
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	return job, nil
}
