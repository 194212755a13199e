// Package runstore persists task run records in SQLite or PostgreSQL.
package runstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hochfrequenz/task-orchestrator/internal/domain"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Supported database drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// ErrNotFound is returned by Load for an unknown run id
var ErrNotFound = errors.New("run not found")

const runColumns = `run_id, store_code, task_name, task_id, process_id, test, success, empty_run, max_memory_usage, start_at, finish_at`

// Store provides run record persistence
type Store struct {
	db     *sql.DB
	driver string
}

// New opens a SQLite store at dbPath
func New(dbPath string) (*Store, error) {
	return Open(context.Background(), DriverSQLite, dbPath)
}

// Open connects to the database and creates the schema if needed
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var schema []string
	switch driver {
	case DriverSQLite, "":
		driver = DriverSQLite
		schema = sqliteSchema
	case DriverPostgres, "postgres":
		driver = DriverPostgres
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	if driver == DriverSQLite {
		// One connection keeps :memory: databases intact and serializes writers.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for PostgreSQL
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Save inserts a new run (ID 0) and assigns its ID, or updates an existing one
func (s *Store) Save(ctx context.Context, run *domain.Run) error {
	finishAt := nullTime(run.FinishAt)

	if run.ID == 0 {
		row := s.db.QueryRowContext(ctx, s.rebind(`
			INSERT INTO task_run (store_code, task_name, task_id, process_id, test, success, empty_run, max_memory_usage, start_at, finish_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING run_id
		`),
			run.StoreCode,
			run.TaskName,
			run.TaskID,
			run.ProcessID,
			run.Test,
			run.Success,
			run.EmptyRun,
			run.MaxMemoryUsageMB,
			run.StartAt.UTC(),
			finishAt,
		)
		if err := row.Scan(&run.ID); err != nil {
			return fmt.Errorf("inserting run: %w", err)
		}
		return nil
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE task_run SET
			store_code = ?,
			task_name = ?,
			task_id = ?,
			process_id = ?,
			test = ?,
			success = ?,
			empty_run = ?,
			max_memory_usage = ?,
			start_at = ?,
			finish_at = ?
		WHERE run_id = ?
	`),
		run.StoreCode,
		run.TaskName,
		run.TaskID,
		run.ProcessID,
		run.Test,
		run.Success,
		run.EmptyRun,
		run.MaxMemoryUsageMB,
		run.StartAt.UTC(),
		finishAt,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("updating run %d: %w", run.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("updating run %d: %w", run.ID, ErrNotFound)
	}
	return nil
}

// Load retrieves a run by ID
func (s *Store) Load(ctx context.Context, id int64) (*domain.Run, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+runColumns+` FROM task_run WHERE run_id = ?`), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrNotFound)
	}
	return run, err
}

// ListRunning returns all runs without a finish time
func (s *Store) ListRunning(ctx context.Context) ([]*domain.Run, error) {
	return s.ListRuns(ctx, ListOptions{Status: domain.RunRunning})
}

// ListOptions specifies filters for listing runs
type ListOptions struct {
	TaskName string
	Status   domain.RunStatus
	Limit    int
}

// ListRuns returns runs matching opts, newest first
func (s *Store) ListRuns(ctx context.Context, opts ListOptions) ([]*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM task_run WHERE 1=1`
	var args []any

	if opts.TaskName != "" {
		query += " AND task_name = ?"
		args = append(args, opts.TaskName)
	}
	switch opts.Status {
	case domain.RunRunning:
		query += " AND finish_at IS NULL"
	case domain.RunFinished:
		query += " AND finish_at IS NOT NULL AND success = ?"
		args = append(args, true)
	case domain.RunBroken:
		query += " AND finish_at IS NOT NULL AND success = ?"
		args = append(args, false)
	}

	query += " ORDER BY start_at DESC, run_id DESC"
	if opts.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// TaskNames returns the distinct task names that have runs, sorted
func (s *Store) TaskNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT task_name FROM task_run ORDER BY task_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*domain.Run, error) {
	var run domain.Run
	var finishAt sql.NullTime

	err := row.Scan(
		&run.ID,
		&run.StoreCode,
		&run.TaskName,
		&run.TaskID,
		&run.ProcessID,
		&run.Test,
		&run.Success,
		&run.EmptyRun,
		&run.MaxMemoryUsageMB,
		&run.StartAt,
		&finishAt,
	)
	if err != nil {
		return nil, err
	}
	if finishAt.Valid {
		t := finishAt.Time
		run.FinishAt = &t
	}
	return &run, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
