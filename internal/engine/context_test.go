package engine

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wonhochoi1/nature/internal/api/models"
)

func TestExecutionContext_GetSetDelete(t *testing.T) {
	ec := newTestContext(t)

	_, err := ec.Get("missing")
	assert.ErrorIs(t, err, ErrDependency)

	ec.Set("a", 1)
	ec.Set("b", 2)
	ec.Set("a", 3)
	v, err := ec.Get("a")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, []string{"a", "b"}, ec.Keys())

	ec.Delete("a")
	assert.False(t, ec.Has("a"))
	assert.Equal(t, []string{"b"}, ec.Keys())
	ec.Delete("a")
}

func TestExecutionContext_NilIsAValue(t *testing.T) {
	ec := newTestContext(t)
	ec.Set("empty", nil)
	assert.True(t, ec.Has("empty"))
	v, err := ec.Get("empty")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestExecutionContext_ResolveFunction(t *testing.T) {
	ec := newTestContext(t)

	_, err := ec.ResolveFunction("previous")
	assert.ErrorIs(t, err, ErrDependency)

	ec.Publish("function_1", "one")
	ec.Publish("function_2", "two")

	v, err := ec.ResolveFunction("previous")
	require.NoError(t, err)
	assert.Equal(t, "two", v)

	v, err = ec.ResolveFunction("function_1")
	require.NoError(t, err)
	assert.Equal(t, "one", v)
}

func TestExecutionContext_SessionIsSharedAndClosed(t *testing.T) {
	ec := NewExecutionContext(ContextOptions{Logger: zerolog.Nop()})
	ctx := context.Background()

	first, err := ec.Session(ctx)
	require.NoError(t, err)
	_, err = first.ExecContext(ctx, "CREATE TABLE kv (k TEXT)")
	require.NoError(t, err)

	second, err := ec.Session(ctx)
	require.NoError(t, err)
	assert.Same(t, first, second)

	var n int
	require.NoError(t, second.QueryRowContext(ctx, "SELECT count(*) FROM kv").Scan(&n))
	assert.Zero(t, n)

	require.NoError(t, ec.Close())
	require.NoError(t, ec.Close())
	_, err = ec.Session(ctx)
	assert.Error(t, err)
}

func TestExecutionContext_NamedConnections(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "warehouse.db")
	ec := NewExecutionContext(ContextOptions{
		Connections: models.Connections{
			"warehouse": {Type: models.DBTypeSQLite, Database: dbPath},
		},
		Logger: zerolog.Nop(),
	})
	defer ec.Close()
	ctx := context.Background()

	db, err := ec.GetConnection(ctx, "warehouse")
	require.NoError(t, err)
	again, err := ec.GetConnection(ctx, "warehouse")
	require.NoError(t, err)
	assert.Same(t, db, again)

	_, err = ec.GetConnection(ctx, "unknown")
	assert.ErrorIs(t, err, ErrDependency)
}

func TestExecutionContext_CheckpointRollback(t *testing.T) {
	ec := newTestContext(t)
	ctx := context.Background()
	ec.Display("kept")

	cp, err := ec.Checkpoint(ctx, true)
	require.NoError(t, err)
	db, err := ec.Session(ctx)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "CREATE TABLE t (x INTEGER)")
	require.NoError(t, err)
	ec.Display("dropped")

	require.NoError(t, ec.Rollback(ctx, cp))
	assert.Equal(t, []string{"kept"}, ec.Displayed())
	var n int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master WHERE name = 't'").Scan(&n))
	assert.Zero(t, n)

	cp, err = ec.Checkpoint(ctx, true)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "CREATE TABLE t (x INTEGER)")
	require.NoError(t, err)
	require.NoError(t, ec.Release(ctx, cp))
	require.NoError(t, db.QueryRowContext(ctx, "SELECT count(*) FROM sqlite_master WHERE name = 't'").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestExecutionContext_CheckpointWithoutSession(t *testing.T) {
	ec := newTestContext(t)
	cp, err := ec.Checkpoint(context.Background(), false)
	require.NoError(t, err)
	ec.Display("line")
	require.NoError(t, ec.Rollback(context.Background(), cp))
	assert.Empty(t, ec.Displayed())
}
