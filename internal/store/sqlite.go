package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/me/qhaul/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

const jobColumns = `id, device, priority, state, program, max_retries, attempts,
	gate_count, depth, qubits, shots, source, error, result_summary, elapsed_ms,
	submitted_at, started_at, completed_at`

func (s *SQLiteStore) CreateJob(ctx context.Context, job *model.Job) error {
	s.logger.Debug("sql", "op", "insert", "table", "jobs", "id", job.ID)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Device, job.Priority, string(job.State), job.Program,
		job.MaxRetries, job.Attempts,
		job.GateCount, job.Depth, job.Qubits, job.Shots, job.Source,
		job.Error, job.ResultSummary, job.ElapsedMS,
		job.SubmittedAt.Format(time.RFC3339Nano),
		formatTimePtr(job.StartedAt), formatTimePtr(job.CompletedAt),
	)
	return err
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	s.logger.Debug("sql", "op", "select", "table", "jobs", "id", id)

	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, opts model.ListOptions) ([]*model.Job, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "jobs",
		"limit", opts.Limit, "offset", opts.Offset, "state", opts.State, "device", opts.Device)
	opts.Clamp()

	where := " WHERE 1=1"
	args := []any{}
	if opts.State != "" {
		where += " AND state = ?"
		args = append(args, string(opts.State))
	}
	if opts.Device != "" {
		where += " AND device = ?"
		args = append(args, opts.Device)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, opts.Limit, opts.Offset)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs`+where+` ORDER BY submitted_at DESC LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var jobs []*model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, job)
	}
	return jobs, total, rows.Err()
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job *model.Job) error {
	s.logger.Debug("sql", "op", "update", "table", "jobs", "id", job.ID, "state", job.State)

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET device = ?, priority = ?, state = ?, program = ?,
			max_retries = ?, attempts = ?, gate_count = ?, depth = ?, qubits = ?, shots = ?,
			source = ?, error = ?, result_summary = ?, elapsed_ms = ?,
			submitted_at = ?, started_at = ?, completed_at = ?
		 WHERE id = ?`,
		job.Device, job.Priority, string(job.State), job.Program,
		job.MaxRetries, job.Attempts, job.GateCount, job.Depth, job.Qubits, job.Shots,
		job.Source, job.Error, job.ResultSummary, job.ElapsedMS,
		job.SubmittedAt.Format(time.RFC3339Nano),
		formatTimePtr(job.StartedAt), formatTimePtr(job.CompletedAt),
		job.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s not found", job.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteJob(ctx context.Context, id string) error {
	s.logger.Debug("sql", "op", "delete", "table", "jobs", "id", id)

	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*model.Job, error) {
	var job model.Job
	var state string
	var submittedAt string
	var startedAt, completedAt *string

	err := row.Scan(&job.ID, &job.Device, &job.Priority, &state, &job.Program,
		&job.MaxRetries, &job.Attempts,
		&job.GateCount, &job.Depth, &job.Qubits, &job.Shots, &job.Source,
		&job.Error, &job.ResultSummary, &job.ElapsedMS,
		&submittedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	job.State = model.JobState(state)
	job.SubmittedAt, _ = time.Parse(time.RFC3339Nano, submittedAt)
	job.StartedAt = parseTimePtr(startedAt)
	job.CompletedAt = parseTimePtr(completedAt)
	return &job, nil
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseTimePtr(s *string) *time.Time {
	if s == nil {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil
	}
	return &t
}
