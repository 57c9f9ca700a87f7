package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joseph-ayodele/arrivals-intake/internal/intake"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS processed_files (
	name         TEXT PRIMARY KEY,
	checksum     TEXT NOT NULL,
	records      INTEGER NOT NULL,
	cycle_id     TEXT NOT NULL,
	processed_at TIMESTAMPTZ NOT NULL
)`

// PostgresLedger keeps processed files in Postgres.
type PostgresLedger struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresLedger creates the table if needed. The ledger owns pool.
func NewPostgresLedger(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PostgresLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		logger.Error("failed to create processed_files table", "error", err)
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresLedger{pool: pool, logger: logger}, nil
}

func (l *PostgresLedger) Contains(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := l.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM processed_files WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		l.logger.Error("failed to look up processed file", "file", name, "error", err)
		return false, err
	}
	return exists, nil
}

func (l *PostgresLedger) Add(ctx context.Context, m intake.Mark) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO processed_files (name, checksum, records, cycle_id, processed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (name) DO NOTHING`,
		m.Name, m.Checksum, m.Records, m.CycleID, m.At)
	if err != nil {
		l.logger.Error("failed to record processed file", "file", m.Name, "error", err)
		return err
	}
	return nil
}

func (l *PostgresLedger) Get(ctx context.Context, name string) (intake.Mark, bool, error) {
	var m intake.Mark
	err := l.pool.QueryRow(ctx,
		`SELECT name, checksum, records, cycle_id, processed_at FROM processed_files WHERE name = $1`, name).
		Scan(&m.Name, &m.Checksum, &m.Records, &m.CycleID, &m.At)
	if errors.Is(err, pgx.ErrNoRows) {
		return intake.Mark{}, false, nil
	}
	if err != nil {
		return intake.Mark{}, false, err
	}
	return m, true, nil
}

func (l *PostgresLedger) Count(ctx context.Context) (int, error) {
	var n int
	err := l.pool.QueryRow(ctx, `SELECT COUNT(*) FROM processed_files`).Scan(&n)
	return n, err
}

func (l *PostgresLedger) Ping(ctx context.Context) error {
	return HealthCheck(ctx, l.pool, 0, l.logger)
}

func (l *PostgresLedger) Close() error {
	Close(l.pool, l.logger)
	return nil
}
