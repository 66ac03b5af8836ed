package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLimiter_SlidingWindow(t *testing.T) {
	clock := newTestClock()
	l := New(Config{Name: "test", Window: time.Minute, MaxRequests: 3, BlockDuration: 10 * time.Minute, ViolationsBeforeBlock: 3}, WithClock(clock.Now))

	first := clock.Now()
	require.NoError(t, l.CheckLimit("79001234567"))
	clock.Advance(10 * time.Second)
	require.NoError(t, l.CheckLimit("79001234567"))
	require.NoError(t, l.CheckLimit("79001234567"))

	err := l.CheckLimit("79001234567")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExceeded)
	assert.True(t, IsRateLimited(err))

	var rlErr *Error
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, CodeExceeded, rlErr.Code)
	assert.Equal(t, first.Add(time.Minute), rlErr.RetryAfter)

	// Other identifiers are independent.
	require.NoError(t, l.CheckLimit("79007654321"))

	// The oldest request leaves the window.
	clock.Advance(51 * time.Second)
	require.NoError(t, l.CheckLimit("79001234567"))
}

func TestLimiter_EscalatesToBlock(t *testing.T) {
	clock := newTestClock()
	l := New(Config{Name: "test", Window: time.Minute, MaxRequests: 1, BlockDuration: 10 * time.Minute, ViolationsBeforeBlock: 3}, WithClock(clock.Now))
	id := "79001234567"

	// Window 1: one allowed, two violations.
	require.NoError(t, l.CheckLimit(id))
	assert.ErrorIs(t, l.CheckLimit(id), ErrExceeded)
	assert.ErrorIs(t, l.CheckLimit(id), ErrExceeded)
	assert.Equal(t, 2, l.Status(id).Violations)

	// Window 2: the allowed request decays one violation, the next two escalate.
	clock.Advance(61 * time.Second)
	require.NoError(t, l.CheckLimit(id))
	assert.Equal(t, 1, l.Status(id).Violations)
	assert.ErrorIs(t, l.CheckLimit(id), ErrExceeded)

	err := l.CheckLimit(id)
	require.ErrorIs(t, err, ErrBlocked)
	var rlErr *Error
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, CodeBlocked, rlErr.Code)
	assert.Equal(t, clock.Now().Add(10*time.Minute), rlErr.RetryAfter)

	// The block wins over an empty window.
	clock.Advance(2 * time.Minute)
	assert.ErrorIs(t, l.CheckLimit(id), ErrBlocked)
	require.NotNil(t, l.Status(id).Block)

	clock.Advance(8 * time.Minute)
	require.NoError(t, l.CheckLimit(id))
	assert.Nil(t, l.Status(id).Block)
}

func TestLimiter_ViolationsDecay(t *testing.T) {
	clock := newTestClock()
	l := New(Config{Window: time.Minute, MaxRequests: 1, ViolationsBeforeBlock: 3}, WithClock(clock.Now))
	id := "ip:10.0.0.1"

	for i := 0; i < 3; i++ {
		require.NoError(t, l.CheckLimit(id))
		assert.ErrorIs(t, l.CheckLimit(id), ErrExceeded)
		clock.Advance(61 * time.Second)
	}
	// Each window nets zero: one decay, one violation.
	assert.Equal(t, 1, l.Status(id).Violations)
	require.NoError(t, l.CheckLimit(id))
	assert.Equal(t, 0, l.Status(id).Violations)
	clock.Advance(61 * time.Second)
	require.NoError(t, l.CheckLimit(id))
	assert.Equal(t, 0, l.Status(id).Violations)
}

func TestLimiter_ManualBlockAndReset(t *testing.T) {
	clock := newTestClock()
	l := New(DefaultConfig(), WithClock(clock.Now))

	l.Block("spam", time.Hour, "manual")
	err := l.CheckLimit("spam")
	require.ErrorIs(t, err, ErrBlocked)
	assert.Contains(t, err.Error(), "manual")

	l.Reset("spam")
	require.NoError(t, l.CheckLimit("spam"))
}

func TestLimiter_Cleanup(t *testing.T) {
	clock := newTestClock()
	l := New(Config{Window: time.Minute, MaxRequests: 1, ViolationsBeforeBlock: 5}, WithClock(clock.Now))

	require.NoError(t, l.CheckLimit("quiet"))
	require.NoError(t, l.CheckLimit("noisy"))
	assert.Error(t, l.CheckLimit("noisy"))
	l.Block("blocked", 30*time.Second, "test")

	clock.Advance(2 * time.Minute)
	// quiet and the expired block go; noisy keeps its violation.
	assert.Equal(t, 2, l.Cleanup())
	assert.Equal(t, 1, l.Status("noisy").Violations)
}

func TestCompositeLimiter_ShortCircuits(t *testing.T) {
	clock := newTestClock()
	perSecond := New(Config{Name: "per_second", Window: time.Second, MaxRequests: 2, ViolationsBeforeBlock: 10}, WithClock(clock.Now))
	perMinute := New(Config{Name: "per_minute", Window: time.Minute, MaxRequests: 3, ViolationsBeforeBlock: 10}, WithClock(clock.Now))
	c := NewComposite(perSecond, perMinute)

	require.NoError(t, c.CheckLimits("id"))
	require.NoError(t, c.CheckLimits("id"))

	err := c.CheckLimits("id")
	var rlErr *Error
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, "per_second", rlErr.Limiter)
	// The rejected request never reached the per-minute limiter.
	assert.Equal(t, 2, perMinute.Status("id").Requests)

	clock.Advance(2 * time.Second)
	require.NoError(t, c.CheckLimits("id"))
	err = c.CheckLimits("id")
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, "per_minute", rlErr.Limiter)
}

func TestDefaultMessageLimits(t *testing.T) {
	clock := newTestClock()
	c := DefaultMessageLimits(2, 3, WithClock(clock.Now))

	names := make([]string, 0, 2)
	for _, l := range c.Limiters() {
		names = append(names, l.Name())
	}
	assert.Equal(t, []string{"messages_per_minute", "messages_per_hour"}, names)

	require.NoError(t, c.CheckLimits("79001234567"))
	require.NoError(t, c.CheckLimits("79001234567"))
	err := c.CheckLimits("79001234567")
	var rlErr *Error
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, "messages_per_minute", rlErr.Limiter)

	clock.Advance(2 * time.Minute)
	require.NoError(t, c.CheckLimits("79001234567"))
	err = c.CheckLimits("79001234567")
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, "messages_per_hour", rlErr.Limiter)
}
