package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBadger(t *testing.T) *BadgerCache {
	t.Helper()
	c, err := OpenBadgerCache(BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBadgerCache_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := newBadger(t)

	_, ok := c.Get(ctx, "missing")
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "ctx:7900@1", []byte(`{"a":1}`), time.Minute))
	v, ok := c.Get(ctx, "ctx:7900@1")
	require.True(t, ok)
	assert.Equal(t, `{"a":1}`, string(v))

	require.NoError(t, c.Delete(ctx, "ctx:7900@1"))
	_, ok = c.Get(ctx, "ctx:7900@1")
	assert.False(t, ok)

	// Deleting a missing key is fine.
	require.NoError(t, c.Delete(ctx, "ctx:7900@1"))
}

func TestBadgerCache_InvalidatePrefix(t *testing.T) {
	ctx := context.Background()
	c := newBadger(t)

	require.NoError(t, c.Set(ctx, "ctx:7900@1", []byte("a"), time.Minute))
	require.NoError(t, c.Set(ctx, "ctx:7900@2", []byte("b"), time.Minute))
	require.NoError(t, c.Set(ctx, "ctx:7911@1", []byte("c"), time.Minute))

	require.NoError(t, c.Invalidate(ctx, "ctx:7900@*"))

	_, ok := c.Get(ctx, "ctx:7900@1")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "ctx:7900@2")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "ctx:7911@1")
	assert.True(t, ok)
}

func TestBadgerCache_CancelledContext(t *testing.T) {
	c := newBadger(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestOpenBadgerCache_RequiresPath(t *testing.T) {
	_, err := OpenBadgerCache(BadgerConfig{})
	assert.Error(t, err)
}

func TestOpenBadgerCache_OnDisk(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	c, err := OpenBadgerCache(BadgerConfig{Path: dir})
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Hour))
	require.NoError(t, c.Close())

	c, err = OpenBadgerCache(BadgerConfig{Path: dir})
	require.NoError(t, err)
	defer c.Close()
	v, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", string(v))
}
