package mount

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/vaultwarren/pkg/barrier"
	"github.com/cuemby/vaultwarren/pkg/crypto"
	"github.com/cuemby/vaultwarren/pkg/storage"
	"github.com/cuemby/vaultwarren/pkg/vaulterr"
)

func newTable(t *testing.T) *Table {
	t.Helper()
	b := barrier.New(storage.NewMemoryBackend())
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	b.Unseal(key)
	return New(b)
}

func TestMountThenRouteDispatchesToEngine(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()

	require.NoError(t, tb.Mount(ctx, "kv/default", TypeKV))

	eng, rest, err := tb.Route("kv/default/app/password")
	require.NoError(t, err)
	assert.Equal(t, "kv-v2", eng.Type())
	assert.Equal(t, "app/password", rest)
}

func TestMountDuplicatePathConflicts(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	require.NoError(t, tb.Mount(ctx, "kv/default", TypeKV))

	err := tb.Mount(ctx, "kv/default", TypeKV)
	assert.True(t, vaulterr.Is(err, vaulterr.Conflict))
}

func TestMountUnknownEngineTypeRejected(t *testing.T) {
	tb := newTable(t)
	err := tb.Mount(context.Background(), "bogus/default", "nonexistent")
	assert.True(t, vaulterr.Is(err, vaulterr.InvalidRequest))
}

func TestRouteUnknownPathNotFound(t *testing.T) {
	tb := newTable(t)
	_, _, err := tb.Route("kv/default/app/password")
	assert.True(t, vaulterr.Is(err, vaulterr.NotFound))
}

func TestUnmountRemovesRouting(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	require.NoError(t, tb.Mount(ctx, "kv/default", TypeKV))
	require.NoError(t, tb.Unmount(ctx, "kv/default"))

	_, _, err := tb.Route("kv/default/app/password")
	assert.True(t, vaulterr.Is(err, vaulterr.NotFound))
}

func TestUnmountUnknownPathNotFound(t *testing.T) {
	tb := newTable(t)
	err := tb.Unmount(context.Background(), "kv/default")
	assert.True(t, vaulterr.Is(err, vaulterr.NotFound))
}

func TestListReturnsSortedMounts(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	require.NoError(t, tb.Mount(ctx, "transit/default", TypeTransit))
	require.NoError(t, tb.Mount(ctx, "kv/default", TypeKV))

	entries, err := tb.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "kv/default/", entries[0].Path)
	assert.Equal(t, "transit/default/", entries[1].Path)
}

func TestLoadRestoresEnginesAfterReopen(t *testing.T) {
	b := barrier.New(storage.NewMemoryBackend())
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	b.Unseal(key)

	first := New(b)
	require.NoError(t, first.Mount(context.Background(), "kv/default", TypeKV))

	second := New(b)
	require.NoError(t, second.Load(context.Background()))

	eng, _, err := second.Route("kv/default/app/password")
	require.NoError(t, err)
	assert.Equal(t, "kv-v2", eng.Type())
}

func TestRoutePicksLongestMatchingPrefix(t *testing.T) {
	tb := newTable(t)
	ctx := context.Background()
	require.NoError(t, tb.Mount(ctx, "kv/default", TypeKV))
	require.NoError(t, tb.Mount(ctx, "kv/default/nested", TypeTransit))

	eng, rest, err := tb.Route("kv/default/nested/key")
	require.NoError(t, err)
	assert.Equal(t, "transit", eng.Type())
	assert.Equal(t, "key", rest)
}
