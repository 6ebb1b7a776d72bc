package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"photobox/internal/box"
	"photobox/internal/database/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStore implements Store on SQLite. Every statement is parameter bound.
type SQLiteStore struct {
	db    *sql.DB
	clock box.Clock
	path  string
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database at path and brings its schema up to date.
// path can be a file path or ":memory:" for an in-memory database.
// A nil clock uses the real time.
func NewSQLiteStore(path string, clock box.Clock) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db, migrations.SQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating %s: %w", path, err)
	}

	return NewSQLiteStoreFromDB(db, path, clock), nil
}

// NewSQLiteStoreFromDB wraps an existing database connection.
// The caller is responsible for ensuring the schema is applied.
func NewSQLiteStoreFromDB(db *sql.DB, path string, clock box.Clock) *SQLiteStore {
	if clock == nil {
		clock = box.RealClock{}
	}
	return &SQLiteStore{db: db, clock: clock, path: path}
}

// OpenConnection opens and configures a SQLite database connection.
// path can be a file path or ":memory:" for an in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// CheckMigrations reports whether the schema is at the latest version.
func (s *SQLiteStore) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db, migrations.SQLite)
}

// Record operations

func (s *SQLiteStore) Persist(ctx context.Context, fingerprint string) (*box.Record, error) {
	now := s.clock.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO photos (hash_value, created_at) VALUES (?, ?)",
		fingerprint, now)
	if err != nil {
		return nil, fmt.Errorf("inserting record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading record id: %w", err)
	}
	return &box.Record{ID: id, Fingerprint: fingerprint, CreatedAt: now}, nil
}

func (s *SQLiteStore) FindByFingerprint(ctx context.Context, fingerprint string) ([]*box.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, hash_value, created_at FROM photos WHERE hash_value = ? ORDER BY id",
		fingerprint)
	if err != nil {
		return nil, fmt.Errorf("finding records: %w", err)
	}
	return scanRecords(rows)
}

func (s *SQLiteStore) ListRecords(ctx context.Context, limit int) ([]*box.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, hash_value, created_at FROM photos ORDER BY id DESC LIMIT ?",
		sqliteLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return scanRecords(rows)
}

// Run journal operations

func (s *SQLiteStore) StartRun(ctx context.Context, run *box.Run) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO runs (run_id, started_at, state) VALUES (?, ?, ?)",
		run.RunID, run.StartedAt.UTC(), run.State)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.RunID, err)
	}
	if run.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("reading run id: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *box.Run) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, state = ?, failed_stage = ?, error = ? WHERE run_id = ?",
		run.FinishedAt.UTC(), run.State, run.FailedStage, run.Error, run.RunID)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", run.RunID, err)
	}
	return expectOneRow(res, run.RunID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*box.Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, started_at, finished_at, state, failed_stage, error
		FROM runs ORDER BY id DESC LIMIT ?`,
		sqliteLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*box.Run
	for rows.Next() {
		var (
			r        box.Run
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.StartedAt, &finished, &r.State, &r.FailedStage, &r.Error); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanRecords(rows *sql.Rows) ([]*box.Record, error) {
	defer rows.Close()

	var records []*box.Record
	for rows.Next() {
		var r box.Record
		if err := rows.Scan(&r.ID, &r.Fingerprint, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		records = append(records, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

func expectOneRow(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking run %s: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// sqliteLimit maps a non-positive limit to SQLite's "no limit".
func sqliteLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

// ErrRunNotFound is returned when finishing a run that was never started.
var ErrRunNotFound = errors.New("run not found")
