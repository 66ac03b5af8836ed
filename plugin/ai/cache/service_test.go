package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheServiceContract(t *testing.T) {
	svc := NewService(ServiceConfig{Capacity: 100, DefaultTTL: time.Minute, CleanupInterval: time.Hour})
	defer svc.Close()

	impls := map[string]CacheService{
		"Service": svc,
		"Mock":    NewMockCacheService(),
	}

	for name, impl := range impls {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, impl.Set(ctx, "ctx:1@1", []byte("a"), time.Hour))
			require.NoError(t, impl.Set(ctx, "ctx:1@2", []byte("b"), time.Hour))
			require.NoError(t, impl.Set(ctx, "ctx:2@1", []byte("c"), time.Hour))

			val, ok := impl.Get(ctx, "ctx:1@1")
			assert.True(t, ok)
			assert.Equal(t, []byte("a"), val)

			require.NoError(t, impl.Set(ctx, "ctx:1@1", []byte("a2"), time.Hour))
			val, _ = impl.Get(ctx, "ctx:1@1")
			assert.Equal(t, []byte("a2"), val)

			require.NoError(t, impl.Invalidate(ctx, "ctx:1@*"))
			_, ok = impl.Get(ctx, "ctx:1@2")
			assert.False(t, ok)
			_, ok = impl.Get(ctx, "ctx:2@1")
			assert.True(t, ok)

			require.NoError(t, impl.Invalidate(ctx, "ctx:2@1"))
			_, ok = impl.Get(ctx, "ctx:2@1")
			assert.False(t, ok)
		})
	}
}

func TestService_Close(t *testing.T) {
	svc := NewService(DefaultServiceConfig())
	svc.Close()
}

func TestService_CleanupLoop(t *testing.T) {
	svc := NewService(ServiceConfig{
		Capacity:        100,
		DefaultTTL:      20 * time.Millisecond,
		CleanupInterval: 10 * time.Millisecond,
	})
	defer svc.Close()

	require.NoError(t, svc.Set(context.Background(), "temp", []byte("data"), 0))
	assert.Equal(t, 1, svc.Size())

	assert.Eventually(t, func() bool { return svc.Size() == 0 }, time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, svc.Stats().Cleanups, int64(1))
}
