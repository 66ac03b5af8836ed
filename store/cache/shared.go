// Package cache provides the shared cache tier that sits between the in-process
// LRU and the durable store.
package cache

import (
	"context"
	"time"

	aicache "github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/cache"
)

// SharedCache is an external byte cache shared across processes or restarts.
type SharedCache interface {
	aicache.CacheService
	Delete(ctx context.Context, key string) error
	Close() error
}

// NilSharedCache is a no-op shared cache used when the tier is disabled.
type NilSharedCache struct{}

// NewNilSharedCache creates a no-op shared cache.
func NewNilSharedCache() *NilSharedCache {
	return &NilSharedCache{}
}

func (NilSharedCache) Get(context.Context, string) ([]byte, bool) { return nil, false }

func (NilSharedCache) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NilSharedCache) Invalidate(context.Context, string) error { return nil }

func (NilSharedCache) Delete(context.Context, string) error { return nil }

func (NilSharedCache) Close() error { return nil }

var (
	_ SharedCache = (*NilSharedCache)(nil)
	_ SharedCache = (*BadgerCache)(nil)
)
