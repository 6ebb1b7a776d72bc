package database

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"photobox/internal/box"
	"photobox/internal/config"
	"photobox/internal/database/migrations"
)

// PostgresStore implements Store on PostgreSQL through a pgx connection pool.
type PostgresStore struct {
	pool  *pgxpool.Pool
	clock box.Clock
}

var _ Store = (*PostgresStore)(nil)

// ConnString builds a postgres:// URL from cfg. Credentials are escaped.
func ConnString(cfg config.DatabaseConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		Path:   "/" + cfg.Name,
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String()
}

// NewPostgresStore connects to connString and brings the schema up to date.
// A nil clock uses the real time.
func NewPostgresStore(ctx context.Context, connString string, clock box.Clock) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migratePostgres(pool); err != nil {
		pool.Close()
		return nil, err
	}

	if clock == nil {
		clock = box.RealClock{}
	}
	return &PostgresStore{pool: pool, clock: clock}, nil
}

func migratePostgres(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	if err := migrations.MigrateUp(db, migrations.Postgres); err != nil {
		return fmt.Errorf("migrating postgres: %w", err)
	}
	return nil
}

// CheckMigrations reports whether the schema is at the latest version.
func (s *PostgresStore) CheckMigrations() error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()
	return migrations.CheckDBMigrationStatus(db, migrations.Postgres)
}

// Record operations

func (s *PostgresStore) Persist(ctx context.Context, fingerprint string) (*box.Record, error) {
	now := s.clock.Now().UTC()
	rec := &box.Record{Fingerprint: fingerprint, CreatedAt: now}
	err := s.pool.QueryRow(ctx,
		"INSERT INTO photos (hash_value, created_at) VALUES ($1, $2) RETURNING id",
		fingerprint, now).Scan(&rec.ID)
	if err != nil {
		return nil, fmt.Errorf("inserting record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) FindByFingerprint(ctx context.Context, fingerprint string) ([]*box.Record, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, hash_value, created_at FROM photos WHERE hash_value = $1 ORDER BY id",
		fingerprint)
	if err != nil {
		return nil, fmt.Errorf("finding records: %w", err)
	}
	return collectRecords(rows)
}

func (s *PostgresStore) ListRecords(ctx context.Context, limit int) ([]*box.Record, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, hash_value, created_at FROM photos ORDER BY id DESC LIMIT $1",
		postgresLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	return collectRecords(rows)
}

// Run journal operations

func (s *PostgresStore) StartRun(ctx context.Context, run *box.Run) error {
	err := s.pool.QueryRow(ctx,
		"INSERT INTO runs (run_id, started_at, state) VALUES ($1, $2, $3) RETURNING id",
		run.RunID, run.StartedAt.UTC(), run.State).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.RunID, err)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *box.Run) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE runs SET finished_at = $2, state = $3, failed_stage = $4, error = $5 WHERE run_id = $1",
		run.RunID, run.FinishedAt.UTC(), run.State, run.FailedStage, run.Error)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", run.RunID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %s: %w", run.RunID, ErrRunNotFound)
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]*box.Run, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, run_id, started_at, finished_at, state, failed_stage, error
		FROM runs ORDER BY id DESC LIMIT $1`,
		postgresLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	runs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*box.Run, error) {
		var (
			r        box.Run
			finished *time.Time
		)
		if err := row.Scan(&r.ID, &r.RunID, &r.StartedAt, &finished, &r.State, &r.FailedStage, &r.Error); err != nil {
			return nil, err
		}
		if finished != nil {
			r.FinishedAt = *finished
		}
		return &r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning runs: %w", err)
	}
	return runs, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func collectRecords(rows pgx.Rows) ([]*box.Record, error) {
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*box.Record, error) {
		var r box.Record
		err := row.Scan(&r.ID, &r.Fingerprint, &r.CreatedAt)
		return &r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning records: %w", err)
	}
	return records, nil
}

// postgresLimit maps a non-positive limit to NULL, which PostgreSQL reads as no limit.
func postgresLimit(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}
