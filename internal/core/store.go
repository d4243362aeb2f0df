package core

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/3cpo-dev/conveyor/pkg/api"
)

// Store is a SQLite-backed history of build runs.
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrRunNotFound is returned by GetRun for an unknown id.
var ErrRunNotFound = errors.New("run not found")

func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if s.db == nil {
		return errors.New("db not initialized")
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts a running record for task and returns it with a fresh id.
func (s *Store) StartRun(ctx context.Context, task string) (api.RunRecord, error) {
	run := api.RunRecord{
		ID:        uuid.NewString(),
		Task:      task,
		Status:    api.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, task, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Task, string(run.Status), run.StartedAt.UnixNano())
	if err != nil {
		return run, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final state of run together with its task results.
func (s *Store) FinishRun(ctx context.Context, run api.RunRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, failed_task = ?, finished_at = ? WHERE id = ?`,
		string(run.Status), run.Error, run.FailedTask, unixNano(run.FinishedAt), run.ID)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: %w", run.ID, ErrRunNotFound)
	}
	for i, t := range run.Tasks {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO task_results (run_id, seq, name, kind, status, error, started_at, duration)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, t.Name, t.Kind, string(t.Status), t.Error, unixNano(t.StartedAt), int64(t.Duration))
		if err != nil {
			return fmt.Errorf("insert task result: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first, without task results.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]api.RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, task, status, error, failed_task, started_at, finished_at
		 FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []api.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// GetRun returns one run with its task results in recorded order.
func (s *Store) GetRun(ctx context.Context, id string) (api.RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, task, status, error, failed_task, started_at, finished_at FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return run, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return run, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name, kind, status, error, started_at, duration
		 FROM task_results WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return run, fmt.Errorf("query task results: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t api.TaskRecord
		var status string
		var started, d int64
		if err := rows.Scan(&t.Name, &t.Kind, &status, &t.Error, &started, &d); err != nil {
			return run, fmt.Errorf("scan task result: %w", err)
		}
		t.Status = api.RunStatus(status)
		t.StartedAt = fromUnixNano(started)
		t.Duration = time.Duration(d)
		run.Tasks = append(run.Tasks, t)
	}
	return run, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (api.RunRecord, error) {
	var run api.RunRecord
	var status string
	var started, finished int64
	if err := row.Scan(&run.ID, &run.Task, &status, &run.Error, &run.FailedTask, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return run, err
		}
		return run, fmt.Errorf("scan run: %w", err)
	}
	run.Status = api.RunStatus(status)
	run.StartedAt = fromUnixNano(started)
	run.FinishedAt = fromUnixNano(finished)
	return run, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
