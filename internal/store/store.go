package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Run statuses persisted for queued and executed workflow runs.
const (
	RunStatusQueued    = "queued"
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type Store struct {
	DB *sql.DB
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
	}
	return
}

// Run is one persisted workflow run.
type Run struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Query         string          `json:"query"`
	MaxIterations int             `json:"max_iterations"`
	Status        string          `json:"status"`
	Outcome       json.RawMessage `json:"outcome,omitempty"`
	Error         *string         `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
}

// Run operations
func (s *Store) CreateRun(ctx context.Context, userID, query string, maxIterations int, status string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO runs (user_id, query, max_iterations, status) VALUES ($1,$2,$3,$4) RETURNING id`,
		userID, query, maxIterations, status).Scan(&id)
	return id, err
}

// MarkRunRunning stamps started_at when a worker picks the run up.
func (s *Store) MarkRunRunning(ctx context.Context, runID string) error {
	if runID == "" {
		return fmt.Errorf("run_id must be provided")
	}
	_, err := s.DB.ExecContext(ctx, `UPDATE runs SET status=$2, started_at=NOW() WHERE id=$1`, runID, RunStatusRunning)
	return err
}

func (s *Store) FinishRun(ctx context.Context, runID string, status string, outcome json.RawMessage, errMsg *string) error {
	if runID == "" {
		return fmt.Errorf("run_id must be provided")
	}
	_, err := s.DB.ExecContext(ctx,
		`UPDATE runs SET status=$2, outcome=$3, error=$4, finished_at=NOW() WHERE id=$1`,
		runID, status, outcome, errMsg)
	return err
}

func (s *Store) GetRun(ctx context.Context, runID, userID string) (Run, error) {
	var r Run
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, user_id, query, max_iterations, status, outcome, error, created_at, started_at, finished_at
		 FROM runs WHERE id=$1 AND user_id=$2`, runID, userID).
		Scan(&r.ID, &r.UserID, &r.Query, &r.MaxIterations, &r.Status, &r.Outcome, &r.Error, &r.CreatedAt, &r.StartedAt, &r.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

func (s *Store) ListRuns(ctx context.Context, userID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, user_id, query, max_iterations, status, error, created_at, started_at, finished_at
		 FROM runs WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.UserID, &r.Query, &r.MaxIterations, &r.Status, &r.Error, &r.CreatedAt, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteRun(ctx context.Context, runID, userID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM runs WHERE id=$1 AND user_id=$2`, runID, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Schedule is a recurring query registration.
type Schedule struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Query         string     `json:"query"`
	CronSpec      string     `json:"cron_spec"`
	MaxIterations int        `json:"max_iterations"`
	Enabled       bool       `json:"enabled"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Schedule operations
func (s *Store) CreateSchedule(ctx context.Context, userID, query, cronSpec string, maxIterations int) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx,
		`INSERT INTO schedules (user_id, query, cron_spec, max_iterations, enabled) VALUES ($1,$2,$3,$4,TRUE) RETURNING id`,
		userID, query, cronSpec, maxIterations).Scan(&id)
	return id, err
}

func (s *Store) GetSchedule(ctx context.Context, id, userID string) (Schedule, error) {
	var sc Schedule
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, user_id, query, cron_spec, max_iterations, enabled, last_run_at, created_at
		 FROM schedules WHERE id=$1 AND user_id=$2`, id, userID).
		Scan(&sc.ID, &sc.UserID, &sc.Query, &sc.CronSpec, &sc.MaxIterations, &sc.Enabled, &sc.LastRunAt, &sc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Schedule{}, ErrNotFound
	}
	return sc, err
}

func (s *Store) ListSchedules(ctx context.Context, userID string) ([]Schedule, error) {
	return s.listSchedules(ctx, `SELECT id, user_id, query, cron_spec, max_iterations, enabled, last_run_at, created_at
		FROM schedules WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

// ListEnabledSchedules returns every enabled schedule across users, for
// the scheduler loop.
func (s *Store) ListEnabledSchedules(ctx context.Context) ([]Schedule, error) {
	return s.listSchedules(ctx, `SELECT id, user_id, query, cron_spec, max_iterations, enabled, last_run_at, created_at
		FROM schedules WHERE enabled ORDER BY created_at`)
}

func (s *Store) listSchedules(ctx context.Context, q string, args ...interface{}) ([]Schedule, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		var sc Schedule
		if err := rows.Scan(&sc.ID, &sc.UserID, &sc.Query, &sc.CronSpec, &sc.MaxIterations, &sc.Enabled, &sc.LastRunAt, &sc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) SetScheduleEnabled(ctx context.Context, id, userID string, enabled bool) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE schedules SET enabled=$3 WHERE id=$1 AND user_id=$2`, id, userID, enabled)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) TouchScheduleLastRun(ctx context.Context, id string, at time.Time) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE schedules SET last_run_at=$2 WHERE id=$1`, id, at)
	return err
}

func (s *Store) DeleteSchedule(ctx context.Context, id, userID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM schedules WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
