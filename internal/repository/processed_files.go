package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/arrivals-intake/internal/common"
	"github.com/joseph-ayodele/arrivals-intake/internal/intake"
)

// Ledger is a DedupSet that can be inspected and closed.
type Ledger interface {
	intake.DedupSet
	Get(ctx context.Context, name string) (intake.Mark, bool, error)
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// OpenLedger builds the ledger selected by cfg.Driver.
func OpenLedger(ctx context.Context, cfg common.LedgerConfig, logger *slog.Logger) (Ledger, error) {
	switch cfg.Driver {
	case common.LedgerMemory, "":
		return NewMemoryLedger(), nil
	case common.LedgerSQLite:
		l, err := OpenSQLiteLedger(ctx, cfg.DSN, logger)
		if err != nil {
			return nil, err
		}
		return l, nil
	case common.LedgerPostgres:
		pool, err := Open(ctx, DefaultConfig(cfg.DSN), logger)
		if err != nil {
			return nil, err
		}
		l, err := NewPostgresLedger(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, err
		}
		return l, nil
	default:
		return nil, common.NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown ledger driver %q", cfg.Driver), common.ErrInvalidInput)
	}
}

// MemoryLedger adapts intake.MemorySet to Ledger.
type MemoryLedger struct {
	*intake.MemorySet
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{MemorySet: intake.NewMemorySet()}
}

func (m *MemoryLedger) Get(_ context.Context, name string) (intake.Mark, bool, error) {
	mark, ok := m.MemorySet.Get(name)
	return mark, ok, nil
}

func (m *MemoryLedger) Count(context.Context) (int, error) { return len(m.Names()), nil }

func (m *MemoryLedger) Ping(context.Context) error { return nil }

func (m *MemoryLedger) Close() error { return nil }
