package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/arrivals-intake/internal/common"
	"github.com/joseph-ayodele/arrivals-intake/internal/intake"
)

// Both ledgers must satisfy the pipeline's dedup contract.
var (
	_ intake.DedupSet = (*SQLiteLedger)(nil)
	_ intake.DedupSet = (*PostgresLedger)(nil)
	_ Ledger          = (*MemoryLedger)(nil)
)

func exerciseLedger(t *testing.T, l Ledger) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

	ok, err := l.Contains(ctx, "orders_010124.csv")
	require.NoError(t, err)
	assert.False(t, ok)

	mark := intake.Mark{Name: "orders_010124.csv", Checksum: "00000000deadbeef", Records: 3, CycleID: "cycle-1", At: at}
	require.NoError(t, l.Add(ctx, mark))
	require.NoError(t, l.Add(ctx, intake.Mark{Name: "orders_010124.csv", Checksum: "other", Records: 9, CycleID: "cycle-2", At: at}))

	ok, err = l.Contains(ctx, "orders_010124.csv")
	require.NoError(t, err)
	assert.True(t, ok)

	got, found, err := l.Get(ctx, "orders_010124.csv")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, mark.Checksum, got.Checksum, "first mark wins")
	assert.Equal(t, 3, got.Records)
	assert.True(t, at.Equal(got.At))

	_, found, err = l.Get(ctx, "missing.csv")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, l.Add(ctx, intake.Mark{Name: "b.csv", Checksum: "1", CycleID: "cycle-1", At: at}))
	n, err := l.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.NoError(t, l.Ping(ctx))
}

func TestSQLiteLedger(t *testing.T) {
	l, err := OpenSQLiteLedger(context.Background(), ":memory:", common.DiscardLogger())
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	exerciseLedger(t, l)
}

func TestSQLiteLedger_PersistsAcrossOpens(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "ledger.db")

	l, err := OpenSQLiteLedger(ctx, dsn, common.DiscardLogger())
	require.NoError(t, err)
	require.NoError(t, l.Add(ctx, intake.Mark{Name: "a.csv", Checksum: "1", CycleID: "c", At: time.Now()}))
	require.NoError(t, l.Close())

	l, err = OpenSQLiteLedger(ctx, dsn, common.DiscardLogger())
	require.NoError(t, err)
	defer func() { _ = l.Close() }()

	ok, err := l.Contains(ctx, "a.csv")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMemoryLedger(t *testing.T) {
	exerciseLedger(t, NewMemoryLedger())
}

func TestOpenLedger(t *testing.T) {
	ctx := context.Background()

	l, err := OpenLedger(ctx, common.LedgerConfig{Driver: common.LedgerMemory}, common.DiscardLogger())
	require.NoError(t, err)
	assert.IsType(t, &MemoryLedger{}, l)

	l, err = OpenLedger(ctx, common.LedgerConfig{Driver: common.LedgerSQLite, DSN: ":memory:"}, common.DiscardLogger())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteLedger{}, l)
	require.NoError(t, l.Close())

	_, err = OpenLedger(ctx, common.LedgerConfig{Driver: "redis"}, common.DiscardLogger())
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestRedactDSN(t *testing.T) {
	assert.Equal(t, "file:ledger.db", redactDSN("file:ledger.db?_pragma=key(secret)"))
	assert.Equal(t, ":memory:", redactDSN(":memory:"))
}
