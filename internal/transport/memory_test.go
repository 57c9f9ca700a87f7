package transport

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/arrivals-intake/internal/common"
)

func TestMemStore_ListOrderAndDirs(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore(CollisionFail)
	m.Put("inbound/b.csv", []byte("b"))
	m.Put("inbound/a.csv", []byte("a"))
	m.MkdirAll("inbound/uploaded")

	entries, err := m.List(ctx, "inbound")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, Entry{Name: "uploaded", IsDir: true}, entries[0])
	assert.Equal(t, "b.csv", entries[1].Name)
	assert.Equal(t, "a.csv", entries[2].Name)
	assert.EqualValues(t, 1, entries[1].Size)
}

func TestMemStore_EnsureDirIdempotent(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore(CollisionFail)
	m.MkdirAll("inbound")

	require.NoError(t, m.EnsureDir(ctx, "inbound/uploaded"))
	require.NoError(t, m.EnsureDir(ctx, "inbound/uploaded"))
	assert.True(t, m.Exists("inbound/uploaded"))

	err := m.EnsureDir(ctx, "missing/uploaded")
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.ErrorIs(t, err, common.ErrTransport)
}

func TestMemStore_Open(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore(CollisionFail)
	m.Put("inbound/a.csv", []byte("hello"))

	rc, err := m.Open(ctx, "inbound/a.csv")
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(b))

	_, err = m.Open(ctx, "inbound/nope.csv")
	var te *Error
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "open", te.Op)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	assert.Equal(t, []string{"inbound/a.csv", "inbound/nope.csv"}, m.Opened())
}

func TestMemStore_MoveCollision(t *testing.T) {
	ctx := context.Background()

	t.Run("fail", func(t *testing.T) {
		m := NewMemStore(CollisionFail)
		m.Put("inbound/a.csv", []byte("new"))
		m.Put("inbound/uploaded/a.csv", []byte("old"))

		err := m.Move(ctx, "inbound/a.csv", "inbound/uploaded/a.csv")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDestinationExists)
		assert.ErrorIs(t, err, common.ErrTransport)
		assert.True(t, m.Exists("inbound/a.csv"))
		assert.Empty(t, m.Moves())
	})

	t.Run("overwrite", func(t *testing.T) {
		m := NewMemStore(CollisionOverwrite)
		m.Put("inbound/a.csv", []byte("new"))
		m.Put("inbound/uploaded/a.csv", []byte("old"))

		require.NoError(t, m.Move(ctx, "inbound/a.csv", "inbound/uploaded/a.csv"))
		assert.False(t, m.Exists("inbound/a.csv"))

		rc, err := m.Open(ctx, "inbound/uploaded/a.csv")
		require.NoError(t, err)
		b, _ := io.ReadAll(rc)
		assert.Equal(t, "new", string(b))
		assert.Equal(t, [][2]string{{"inbound/a.csv", "inbound/uploaded/a.csv"}}, m.Moves())
	})
}

func TestMemStore_InjectedErrors(t *testing.T) {
	ctx := context.Background()
	m := NewMemStore(CollisionFail)
	m.Put("inbound/a.csv", []byte("a"))
	boom := errors.New("connection reset")

	m.ListErr = boom
	_, err := m.List(ctx, "inbound")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, common.ErrTransport)

	m.MoveErr["inbound/a.csv"] = boom
	assert.ErrorIs(t, m.Move(ctx, "inbound/a.csv", "inbound/b.csv"), boom)
}

func TestParseCollisionPolicy(t *testing.T) {
	p, err := ParseCollisionPolicy("")
	require.NoError(t, err)
	assert.Equal(t, CollisionFail, p)

	p, err = ParseCollisionPolicy(" Overwrite ")
	require.NoError(t, err)
	assert.Equal(t, CollisionOverwrite, p)
	assert.Equal(t, "overwrite", p.String())

	_, err = ParseCollisionPolicy("rename")
	assert.Error(t, err)
}
