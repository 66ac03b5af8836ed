// Package breaker implements a per-dependency circuit breaker with an
// operation timeout, state-change listeners and a name-keyed registry.
package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/timeout"
)

// State is the circuit breaker state.
type State int

const (
	// Closed lets calls through and counts consecutive failures.
	Closed State = iota
	// Open rejects calls until the reset timeout elapses.
	Open
	// HalfOpen lets a single probe call through.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config configures a circuit breaker.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold int
	// ResetTimeout is how long the breaker stays open before a probe is allowed.
	ResetTimeout time.Duration
	// Timeout bounds each operation. Zero disables the timeout.
	Timeout time.Duration
	// HistoryLimit caps the state-change log.
	HistoryLimit int
}

// DefaultConfig returns the defaults used for the booking API.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     timeout.BookingResetTimeout,
		Timeout:          timeout.BookingCallTimeout,
		HistoryLimit:     100,
	}
}

// Counters are cumulative call statistics.
type Counters struct {
	TotalRequests      int64 `json:"total_requests"`
	SuccessfulRequests int64 `json:"successful_requests"`
	FailedRequests     int64 `json:"failed_requests"`
	RejectedRequests   int64 `json:"rejected_requests"`
	Timeouts           int64 `json:"timeouts"`
}

// Transition is one entry of the state-change log.
type Transition struct {
	From State     `json:"from"`
	To   State     `json:"to"`
	At   time.Time `json:"at"`
}

// Status is a point-in-time snapshot of a breaker.
type Status struct {
	Name            string       `json:"name"`
	State           string       `json:"state"`
	FailureCount    int          `json:"failure_count"`
	SuccessCount    int          `json:"success_count"`
	LastFailureTime time.Time    `json:"last_failure_time,omitempty"`
	NextAttemptTime time.Time    `json:"next_attempt_time,omitempty"`
	Counters        Counters     `json:"counters"`
	History         []Transition `json:"history,omitempty"`
}

// Listener observes state changes. Panics inside a listener are recovered and logged.
type Listener func(from, to State, cb *CircuitBreaker)

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cb *CircuitBreaker) {
		cb.logger = logger
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) {
		cb.now = now
	}
}

// WithListener registers a state-change listener at construction.
func WithListener(l Listener) Option {
	return func(cb *CircuitBreaker) {
		cb.listeners = append(cb.listeners, l)
	}
}

// CircuitBreaker isolates failures of a single dependency.
//
// Thread Safety: Safe for concurrent use. Listeners run outside the lock.
type CircuitBreaker struct {
	name   string
	config Config
	logger *slog.Logger
	now    func() time.Time

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	probing         bool
	lastFailureTime time.Time
	nextAttemptTime time.Time
	counters        Counters
	history         []Transition
	listeners       []Listener
}

// New creates a closed circuit breaker.
func New(name string, config Config, opts ...Option) *CircuitBreaker {
	defaults := DefaultConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = defaults.ResetTimeout
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = defaults.HistoryLimit
	}

	cb := &CircuitBreaker{
		name:   name,
		config: config,
		logger: slog.Default(),
		now:    time.Now,
		state:  Closed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Name returns the dependency name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// OnStateChange registers a listener.
func (cb *CircuitBreaker) OnStateChange(l Listener) {
	cb.mu.Lock()
	cb.listeners = append(cb.listeners, l)
	cb.mu.Unlock()
}

// Execute runs op unless the breaker rejects the call.
// op receives a context bounded by the breaker timeout; when the timeout fires
// Execute stops waiting and returns an error wrapping ErrTimeout.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := cb.acquire(); err != nil {
		return err
	}

	err := cb.run(ctx, op)
	if err != nil && ctx.Err() != nil && !errors.Is(err, ErrTimeout) {
		// The caller went away; this says nothing about the dependency.
		cb.release()
		return err
	}
	cb.record(err)
	return err
}

// Do is Execute for operations that return a value.
func Do[T any](ctx context.Context, cb *CircuitBreaker, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := cb.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func (cb *CircuitBreaker) acquire() error {
	cb.mu.Lock()
	cb.counters.TotalRequests++
	now := cb.now()

	var changed *Transition
	switch cb.state {
	case Open:
		if now.Before(cb.nextAttemptTime) {
			cb.counters.RejectedRequests++
			retryAt := cb.nextAttemptTime
			cb.mu.Unlock()
			return &OpenError{Name: cb.name, RetryAt: retryAt}
		}
		changed = cb.transitionLocked(HalfOpen, now)
		cb.probing = true
	case HalfOpen:
		if cb.probing {
			cb.counters.RejectedRequests++
			cb.mu.Unlock()
			return &OpenError{Name: cb.name}
		}
		cb.probing = true
	}
	listeners := cb.listeners
	cb.mu.Unlock()

	cb.notify(changed, listeners)
	return nil
}

func (cb *CircuitBreaker) run(ctx context.Context, op func(ctx context.Context) error) error {
	if cb.config.Timeout <= 0 {
		return cb.call(ctx, op)
	}

	opCtx, cancel := context.WithTimeout(ctx, cb.config.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- cb.call(opCtx, op)
	}()

	select {
	case err := <-done:
		if err != nil && ctx.Err() == nil && errors.Is(opCtx.Err(), context.DeadlineExceeded) {
			return cb.timeoutError()
		}
		return err
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return cb.timeoutError()
	}
}

func (cb *CircuitBreaker) timeoutError() error {
	return errors.Wrapf(ErrTimeout, "%s exceeded %s", cb.name, cb.config.Timeout)
}

func (cb *CircuitBreaker) call(ctx context.Context, op func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s operation: %v", cb.name, r)
		}
	}()
	return op(ctx)
}

func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	cb.probing = false
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	now := cb.now()
	cb.probing = false

	var changed *Transition
	if err == nil {
		cb.counters.SuccessfulRequests++
		cb.failureCount = 0
		cb.successCount++
		if cb.state == HalfOpen {
			changed = cb.transitionLocked(Closed, now)
		}
	} else {
		cb.counters.FailedRequests++
		if errors.Is(err, ErrTimeout) {
			cb.counters.Timeouts++
		}
		cb.failureCount++
		cb.lastFailureTime = now
		switch {
		case cb.state == HalfOpen:
			changed = cb.transitionLocked(Open, now)
		case cb.state == Closed && cb.failureCount >= cb.config.FailureThreshold:
			changed = cb.transitionLocked(Open, now)
		}
	}
	listeners := cb.listeners
	cb.mu.Unlock()

	cb.notify(changed, listeners)
}

// Reset forces the breaker closed and clears the consecutive counters.
func (cb *CircuitBreaker) Reset() {
	cb.setState(Closed)
}

// ForceOpen opens the breaker as if the failure threshold had been reached.
func (cb *CircuitBreaker) ForceOpen() {
	cb.setState(Open)
}

func (cb *CircuitBreaker) setState(to State) {
	cb.mu.Lock()
	var changed *Transition
	if cb.state != to {
		changed = cb.transitionLocked(to, cb.now())
	}
	cb.failureCount = 0
	cb.successCount = 0
	cb.probing = false
	listeners := cb.listeners
	cb.mu.Unlock()

	cb.notify(changed, listeners)
}

// transitionLocked must be called with lock held.
func (cb *CircuitBreaker) transitionLocked(to State, now time.Time) *Transition {
	t := Transition{From: cb.state, To: to, At: now}
	cb.state = to

	switch to {
	case Open:
		cb.nextAttemptTime = now.Add(cb.config.ResetTimeout)
		cb.successCount = 0
	case Closed:
		cb.failureCount = 0
		cb.nextAttemptTime = time.Time{}
	case HalfOpen:
		cb.nextAttemptTime = time.Time{}
	}

	cb.history = append(cb.history, t)
	if over := len(cb.history) - cb.config.HistoryLimit; over > 0 {
		cb.history = append([]Transition(nil), cb.history[over:]...)
	}
	return &t
}

func (cb *CircuitBreaker) notify(t *Transition, listeners []Listener) {
	if t == nil {
		return
	}

	cb.logger.Info("circuit breaker state changed",
		slog.String("breaker", cb.name),
		slog.String("from", t.From.String()),
		slog.String("to", t.To.String()),
	)

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					cb.logger.Error("circuit breaker listener panicked",
						slog.String("breaker", cb.name),
						slog.Any("panic", r),
					)
				}
			}()
			l(t.From, t.To, cb)
		}()
	}
}

// Status returns a snapshot of the breaker.
func (cb *CircuitBreaker) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Status{
		Name:            cb.name,
		State:           cb.state.String(),
		FailureCount:    cb.failureCount,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
		NextAttemptTime: cb.nextAttemptTime,
		Counters:        cb.counters,
		History:         append([]Transition(nil), cb.history...),
	}
}
