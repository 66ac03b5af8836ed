// Package ratelimit implements a sliding-window limiter with escalating
// hard blocks, and a composite that layers several windows.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Config configures a sliding-window limiter.
type Config struct {
	Name string
	// Window is the trailing interval requests are counted in.
	Window time.Duration
	// MaxRequests is the number of requests allowed per window.
	MaxRequests int
	// BlockDuration is how long an identifier stays blocked after escalation.
	BlockDuration time.Duration
	// ViolationsBeforeBlock is the violation count that triggers a block.
	ViolationsBeforeBlock int
}

// DefaultConfig returns a per-minute limit suited to inbound chat messages.
func DefaultConfig() Config {
	return Config{
		Name:                  "messages_per_minute",
		Window:                time.Minute,
		MaxRequests:           10,
		BlockDuration:         15 * time.Minute,
		ViolationsBeforeBlock: 3,
	}
}

// BlockRecord is a hard block on an identifier.
type BlockRecord struct {
	Since  time.Time `json:"since"`
	Until  time.Time `json:"until"`
	Reason string    `json:"reason"`
}

type record struct {
	requests   []time.Time
	violations int
}

// Status is a snapshot of one identifier.
type Status struct {
	Identifier string       `json:"identifier"`
	Requests   int          `json:"requests"`
	Remaining  int          `json:"remaining"`
	Violations int          `json:"violations"`
	Block      *BlockRecord `json:"block,omitempty"`
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// Limiter is a sliding-window rate limiter keyed by identifier (phone, IP).
type Limiter struct {
	config Config
	now    func() time.Time
	logger *slog.Logger

	mu      sync.Mutex
	records map[string]*record
	blocks  map[string]*BlockRecord
}

// New creates a sliding-window limiter.
func New(config Config, opts ...Option) *Limiter {
	defaults := DefaultConfig()
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	if config.MaxRequests < 0 {
		config.MaxRequests = defaults.MaxRequests
	}
	if config.BlockDuration <= 0 {
		config.BlockDuration = defaults.BlockDuration
	}
	if config.ViolationsBeforeBlock <= 0 {
		config.ViolationsBeforeBlock = defaults.ViolationsBeforeBlock
	}
	if config.Name == "" {
		config.Name = defaults.Name
	}

	l := &Limiter{
		config:  config,
		now:     time.Now,
		logger:  slog.Default(),
		records: make(map[string]*record),
		blocks:  make(map[string]*BlockRecord),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the limiter name.
func (l *Limiter) Name() string {
	return l.config.Name
}

// CheckLimit records a request for id, or returns an *Error if it must be rejected.
func (l *Limiter) CheckLimit(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if b, ok := l.blocks[id]; ok {
		if now.Before(b.Until) {
			return l.blockedError(id, b)
		}
		delete(l.blocks, id)
	}

	r := l.records[id]
	if r == nil {
		r = &record{}
		l.records[id] = r
	}
	r.requests = l.prune(r.requests, now)

	if len(r.requests) >= l.config.MaxRequests {
		r.violations++
		if r.violations >= l.config.ViolationsBeforeBlock {
			b := l.blockLocked(id, now, l.config.BlockDuration, "repeated rate limit violations")
			return l.blockedError(id, b)
		}

		retryAfter := now.Add(l.config.Window)
		if len(r.requests) > 0 {
			retryAfter = r.requests[0].Add(l.config.Window)
		}
		return &Error{
			Code:       CodeExceeded,
			Limiter:    l.config.Name,
			Identifier: id,
			RetryAfter: retryAfter,
		}
	}

	r.requests = append(r.requests, now)
	if r.violations > 0 {
		r.violations--
	}
	return nil
}

// Block places id into a hard block.
func (l *Limiter) Block(id string, d time.Duration, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blockLocked(id, l.now(), d, reason)
}

// blockLocked must be called with lock held.
func (l *Limiter) blockLocked(id string, now time.Time, d time.Duration, reason string) *BlockRecord {
	b := &BlockRecord{Since: now, Until: now.Add(d), Reason: reason}
	l.blocks[id] = b
	// The block replaces the window; the violation count starts over when it lifts.
	delete(l.records, id)

	l.logger.Warn("rate limiter blocked identifier",
		slog.String("limiter", l.config.Name),
		slog.String("identifier", id),
		slog.Duration("duration", d),
		slog.String("reason", reason),
	)
	return b
}

func (l *Limiter) blockedError(id string, b *BlockRecord) error {
	return &Error{
		Code:       CodeBlocked,
		Limiter:    l.config.Name,
		Identifier: id,
		RetryAfter: b.Until,
		Reason:     b.Reason,
	}
}

// prune drops timestamps outside the window. requests is sorted ascending.
func (l *Limiter) prune(requests []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-l.config.Window)
	i := 0
	for i < len(requests) && !requests[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return requests
	}
	return append(requests[:0], requests[i:]...)
}

// Reset forgets everything about id, including blocks.
func (l *Limiter) Reset(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.records, id)
	delete(l.blocks, id)
}

// Status returns a snapshot for id.
func (l *Limiter) Status(id string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	s := Status{Identifier: id, Remaining: l.config.MaxRequests}
	if r, ok := l.records[id]; ok {
		r.requests = l.prune(r.requests, now)
		s.Requests = len(r.requests)
		s.Violations = r.violations
		s.Remaining = max(l.config.MaxRequests-len(r.requests), 0)
	}
	if b, ok := l.blocks[id]; ok && now.Before(b.Until) {
		blk := *b
		s.Block = &blk
		s.Remaining = 0
	}
	return s
}

// Cleanup drops identifiers with empty windows and no violations, and expired blocks.
// Returns the number of entries removed.
func (l *Limiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, r := range l.records {
		r.requests = l.prune(r.requests, now)
		if len(r.requests) == 0 && r.violations == 0 {
			delete(l.records, id)
			removed++
		}
	}
	for id, b := range l.blocks {
		if !now.Before(b.Until) {
			delete(l.blocks, id)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Cleanup(); n > 0 {
				l.logger.Debug("rate limiter cleanup", slog.String("limiter", l.config.Name), slog.Int("removed", n))
			}
		}
	}
}
