package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// Error codes surfaced to callers.
const (
	CodeExceeded = "RATE_LIMIT_EXCEEDED"
	CodeBlocked  = "RATE_LIMIT_BLOCKED"
)

var (
	// ErrExceeded matches window rejections via errors.Is.
	ErrExceeded = errors.New("rate limit exceeded")
	// ErrBlocked matches hard-block rejections via errors.Is.
	ErrBlocked = errors.New("rate limit blocked")
)

// Error describes a rejected check.
type Error struct {
	Code       string
	Limiter    string
	Identifier string
	// RetryAfter is the earliest time a retry can succeed.
	RetryAfter time.Time
	Reason     string
}

func (e *Error) Error() string {
	if e.Code == CodeBlocked {
		return fmt.Sprintf("%s: %s blocked until %s (%s)", e.Limiter, e.Identifier, e.RetryAfter.Format(time.RFC3339), e.Reason)
	}
	return fmt.Sprintf("%s: %s exceeded limit, retry after %s", e.Limiter, e.Identifier, e.RetryAfter.Format(time.RFC3339))
}

// Is maps the code onto ErrExceeded or ErrBlocked.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrExceeded:
		return e.Code == CodeExceeded
	case ErrBlocked:
		return e.Code == CodeBlocked
	}
	return false
}

// IsRateLimited reports whether err is any rate-limit rejection.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrExceeded) || errors.Is(err, ErrBlocked)
}
