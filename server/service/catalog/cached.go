package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	aicache "github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/cache"
)

// CachedLoader memoizes the per-company parts of the catalog (company,
// services, staff) so cold context loads of different clients share one
// fetch. Client cards, schedules and stats always go to the wrapped loader.
//
// Entries are stored as JSON, so every caller gets its own copy and may
// mutate it (ranking does).
type CachedLoader struct {
	Loader
	cache  aicache.CacheService
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedLoader wraps next with cache. A non-positive ttl uses the cache default.
func NewCachedLoader(next Loader, cache aicache.CacheService, ttl time.Duration, logger *slog.Logger) *CachedLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedLoader{Loader: next, cache: cache, ttl: ttl, logger: logger}
}

func (l *CachedLoader) LoadCompany(ctx context.Context, companyID int) (*Company, error) {
	return cached(ctx, l, companyKey("company", companyID), func() (*Company, error) {
		return l.Loader.LoadCompany(ctx, companyID)
	})
}

func (l *CachedLoader) LoadServices(ctx context.Context, companyID int) ([]*Service, error) {
	return cached(ctx, l, companyKey("services", companyID), func() ([]*Service, error) {
		return l.Loader.LoadServices(ctx, companyID)
	})
}

func (l *CachedLoader) LoadStaff(ctx context.Context, companyID int) ([]*Staff, error) {
	return cached(ctx, l, companyKey("staff", companyID), func() ([]*Staff, error) {
		return l.Loader.LoadStaff(ctx, companyID)
	})
}

// Invalidate drops every cached part of the company.
func (l *CachedLoader) Invalidate(ctx context.Context, companyID int) error {
	return l.cache.Invalidate(ctx, fmt.Sprintf("catalog:%d:*", companyID))
}

func companyKey(part string, companyID int) string {
	return fmt.Sprintf("catalog:%d:%s", companyID, part)
}

// cached serves key from the cache or calls load and stores its result.
// Errors are never cached; cache failures only cost a reload.
func cached[T any](ctx context.Context, l *CachedLoader, key string, load func() (T, error)) (T, error) {
	if raw, ok := l.cache.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
		l.logger.Warn("dropping undecodable catalog entry", slog.String("key", key))
		_ = l.cache.Invalidate(ctx, key)
	}

	v, err := load()
	if err != nil {
		return v, err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return v, nil
	}
	if err := l.cache.Set(ctx, key, raw, l.ttl); err != nil {
		l.logger.Warn("failed to cache catalog entry", slog.String("key", key), slog.String("error", err.Error()))
	}
	return v, nil
}

var _ Loader = (*CachedLoader)(nil)
