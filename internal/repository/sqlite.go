package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/arrivals-intake/internal/intake"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS processed_files (
	name         TEXT PRIMARY KEY,
	checksum     TEXT NOT NULL,
	records      INTEGER NOT NULL,
	cycle_id     TEXT NOT NULL,
	processed_at TEXT NOT NULL
)`

// SQLiteLedger keeps processed files in a local SQLite database.
type SQLiteLedger struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenSQLiteLedger opens dsn with the pure-Go sqlite driver and creates the table.
func OpenSQLiteLedger(ctx context.Context, dsn string, logger *slog.Logger) (*SQLiteLedger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; also keeps a :memory: database on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		logger.Error("failed to create processed_files table", "error", err)
		return nil, fmt.Errorf("create schema: %w", err)
	}
	logger.Info("sqlite ledger ready", "dsn", redactDSN(dsn))
	return &SQLiteLedger{db: db, logger: logger}, nil
}

func (l *SQLiteLedger) Contains(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := l.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM processed_files WHERE name = ?)`, name).Scan(&exists)
	if err != nil {
		l.logger.Error("failed to look up processed file", "file", name, "error", err)
		return false, err
	}
	return exists, nil
}

func (l *SQLiteLedger) Add(ctx context.Context, m intake.Mark) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO processed_files (name, checksum, records, cycle_id, processed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (name) DO NOTHING`,
		m.Name, m.Checksum, m.Records, m.CycleID, m.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		l.logger.Error("failed to record processed file", "file", m.Name, "error", err)
		return err
	}
	return nil
}

func (l *SQLiteLedger) Get(ctx context.Context, name string) (intake.Mark, bool, error) {
	var (
		m  intake.Mark
		at string
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT name, checksum, records, cycle_id, processed_at FROM processed_files WHERE name = ?`, name).
		Scan(&m.Name, &m.Checksum, &m.Records, &m.CycleID, &at)
	if errors.Is(err, sql.ErrNoRows) {
		return intake.Mark{}, false, nil
	}
	if err != nil {
		return intake.Mark{}, false, err
	}
	if m.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
		return intake.Mark{}, false, fmt.Errorf("parse processed_at: %w", err)
	}
	return m, true, nil
}

func (l *SQLiteLedger) Count(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_files`).Scan(&n)
	return n, err
}

func (l *SQLiteLedger) Ping(ctx context.Context) error { return l.db.PingContext(ctx) }

func (l *SQLiteLedger) Close() error { return l.db.Close() }

// redactDSN drops query parameters, which may carry credentials.
func redactDSN(dsn string) string {
	if i := strings.IndexByte(dsn, '?'); i >= 0 {
		return dsn[:i]
	}
	return dsn
}
