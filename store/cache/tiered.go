package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	aicache "github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/cache"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/timeout"
)

// Tier names the cache layer that served a read.
type Tier string

const (
	TierNone   Tier = ""
	TierMemory Tier = "memory"
	TierShared Tier = "shared"
)

// Tiered combines an in-process LRU (L1) with a shared byte cache (L2).
// Values cross L2 as JSON. The durable store is not part of Tiered; callers
// fall back to it when Get misses.
type Tiered[V any] struct {
	l1     *aicache.LRUCache[V]
	l2     SharedCache
	l2TTL  time.Duration
	logger *slog.Logger
}

// NewTiered creates a two-tier cache. A nil l2 disables the shared tier; a
// non-positive l2TTL uses timeout.SharedCacheTTL.
func NewTiered[V any](l1 *aicache.LRUCache[V], l2 SharedCache, l2TTL time.Duration, logger *slog.Logger) *Tiered[V] {
	if l2 == nil {
		l2 = NewNilSharedCache()
	}
	if l2TTL <= 0 {
		l2TTL = timeout.SharedCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tiered[V]{
		l1:     l1,
		l2:     l2,
		l2TTL:  l2TTL,
		logger: logger,
	}
}

// Get checks L1, then L2. L2 hits are promoted to L1.
func (t *Tiered[V]) Get(ctx context.Context, key string) (V, Tier, bool) {
	if v, ok := t.l1.Get(key); ok {
		return v, TierMemory, true
	}

	var zero V
	raw, ok := t.l2.Get(ctx, key)
	if !ok {
		return zero, TierNone, false
	}

	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		// Undecodable entries are dropped so the next load rebuilds them.
		t.logger.Warn("dropping undecodable shared cache entry", "key", key, "error", err)
		_ = t.l2.Delete(ctx, key)
		return zero, TierNone, false
	}
	t.l1.Set(key, v)
	return v, TierShared, true
}

// Set writes through both tiers. An L2 failure is returned after L1 is updated.
func (t *Tiered[V]) Set(ctx context.Context, key string, v V) error {
	t.l1.Set(key, v)

	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return t.l2.Set(ctx, key, raw, t.l2TTL)
}

// Delete removes key from both tiers.
func (t *Tiered[V]) Delete(ctx context.Context, key string) error {
	t.l1.Delete(key)
	return t.l2.Delete(ctx, key)
}

// Invalidate removes matching keys from both tiers and returns the L1 count.
func (t *Tiered[V]) Invalidate(ctx context.Context, pattern string) (int, error) {
	n := t.l1.Invalidate(pattern)
	return n, t.l2.Invalidate(ctx, pattern)
}

// Memory exposes the L1 cache for stats and cleanup.
func (t *Tiered[V]) Memory() *aicache.LRUCache[V] {
	return t.l1
}
