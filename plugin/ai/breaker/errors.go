package breaker

import (
	"errors"
	"fmt"
	"time"
)

// CodeOpen is the error code surfaced when a call is rejected by an open breaker.
const CodeOpen = "CIRCUIT_BREAKER_OPEN"

var (
	// ErrOpen matches any *OpenError via errors.Is.
	ErrOpen = errors.New("circuit breaker is open")
	// ErrTimeout is returned when an operation exceeds the breaker timeout.
	ErrTimeout = errors.New("circuit breaker operation timed out")
)

// OpenError is returned without invoking the operation while the breaker rejects calls.
type OpenError struct {
	Name    string
	RetryAt time.Time
}

func (e *OpenError) Error() string {
	if e.RetryAt.IsZero() {
		return fmt.Sprintf("circuit breaker %q is open: recovery probe in flight", e.Name)
	}
	return fmt.Sprintf("circuit breaker %q is open until %s", e.Name, e.RetryAt.Format(time.RFC3339))
}

// Code returns CodeOpen.
func (e *OpenError) Code() string {
	return CodeOpen
}

// Is reports whether target is ErrOpen.
func (e *OpenError) Is(target error) bool {
	return target == ErrOpen
}

// IsOpen reports whether err was caused by an open breaker.
func IsOpen(err error) bool {
	return errors.Is(err, ErrOpen)
}
