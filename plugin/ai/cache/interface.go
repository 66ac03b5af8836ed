// Package cache provides the in-process LRU cache and the byte-oriented
// cache service behind the catalog cache and the shared context tier.
package cache

import (
	"context"
	"time"
)

// CacheService is a byte-oriented cache shared between processes or components.
// Implementations: Service (in-process), store/cache.BadgerCache (badger), MockCacheService.
type CacheService interface {
	// Get returns the value and whether it exists and is live.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores a value. A non-positive ttl selects the implementation default.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Invalidate removes a key, or every key with the prefix when pattern ends in *.
	Invalidate(ctx context.Context, pattern string) error
}
