package ratelimit

import (
	"context"
	"time"
)

// CompositeLimiter evaluates several limiters in order and stops at the first rejection.
// Limiters after the rejecting one do not record the request.
type CompositeLimiter struct {
	limiters []*Limiter
}

// NewComposite creates a composite of the given limiters, checked in order.
func NewComposite(limiters ...*Limiter) *CompositeLimiter {
	return &CompositeLimiter{limiters: limiters}
}

// DefaultMessageLimits returns a burst (per-minute) plus sustained (per-hour) limiter pair.
func DefaultMessageLimits(perMinute, perHour int, opts ...Option) *CompositeLimiter {
	burst := DefaultConfig()
	burst.MaxRequests = perMinute
	return NewComposite(
		New(burst, opts...),
		New(Config{
			Name:                  "messages_per_hour",
			Window:                time.Hour,
			MaxRequests:           perHour,
			BlockDuration:         time.Hour,
			ViolationsBeforeBlock: 3,
		}, opts...),
	)
}

// CheckLimits runs every limiter for id and returns the first rejection.
func (c *CompositeLimiter) CheckLimits(id string) error {
	for _, l := range c.limiters {
		if err := l.CheckLimit(id); err != nil {
			return err
		}
	}
	return nil
}

// Limiters returns the composed limiters in check order.
func (c *CompositeLimiter) Limiters() []*Limiter {
	return c.limiters
}

// Reset resets id on every limiter.
func (c *CompositeLimiter) Reset(id string) {
	for _, l := range c.limiters {
		l.Reset(id)
	}
}

// Run starts the cleanup loop of every limiter and blocks until ctx is done.
func (c *CompositeLimiter) Run(ctx context.Context, interval time.Duration) {
	for _, l := range c.limiters {
		go l.Run(ctx, interval)
	}
	<-ctx.Done()
}
