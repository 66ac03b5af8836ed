package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/assistant"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/breaker"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/command"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/ratelimit"
	"github.com/vosarsen/ai-admin-v2-sub004/server/service/booking"
)

// ErrorCode represents a specific error type surfaced by the assistant.
type ErrorCode string

const (
	// ErrCodeCircuitBreakerOpen indicates a dependency is failing fast.
	ErrCodeCircuitBreakerOpen ErrorCode = breaker.CodeOpen
	// ErrCodeRateLimitExceeded indicates the sliding window is full.
	ErrCodeRateLimitExceeded ErrorCode = ratelimit.CodeExceeded
	// ErrCodeRateLimitBlocked indicates the identifier is blocked.
	ErrCodeRateLimitBlocked ErrorCode = ratelimit.CodeBlocked
	// ErrCodeValidationFailed indicates a request or command failed validation.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrCodeSlotUnavailable indicates the requested time is taken.
	ErrCodeSlotUnavailable ErrorCode = "SLOT_UNAVAILABLE"
	// ErrCodeNotOwner indicates the booking belongs to another client.
	ErrCodeNotOwner ErrorCode = "NOT_OWNER"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeServiceUnavailable indicates the service is not available.
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeContextCanceled    ErrorCode = "CONTEXT_CANCELED"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"
	ErrCodeInternal           ErrorCode = "INTERNAL"
)

// AIError represents a structured error for assistant operations.
type AIError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]any
}

// Error implements the error interface.
func (e *AIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *AIError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *AIError) WithContext(key string, value any) *AIError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// HTTPStatus maps the code to a response status.
func (e *AIError) HTTPStatus() int {
	return HTTPStatus(e.Code)
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *AIError {
	return &AIError{Code: ErrCodeInvalidArgument, Message: msg}
}

// ServiceUnavailable creates a service unavailable error.
func ServiceUnavailable(msg string) *AIError {
	return &AIError{Code: ErrCodeServiceUnavailable, Message: msg}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *AIError {
	return &AIError{Code: code, Message: msg, Cause: cause}
}

// FromError classifies err into an AIError. An AIError anywhere in the chain
// is returned as is.
func FromError(err error) *AIError {
	if err == nil {
		return nil
	}

	var aiErr *AIError
	if stderrors.As(err, &aiErr) {
		return aiErr
	}

	var openErr *breaker.OpenError
	if stderrors.As(err, &openErr) {
		return Wrap(err, ErrCodeCircuitBreakerOpen, "dependency temporarily unavailable").
			WithContext("breaker", openErr.Name).
			WithContext("retry_at", openErr.RetryAt)
	}
	if stderrors.Is(err, breaker.ErrOpen) {
		return Wrap(err, ErrCodeCircuitBreakerOpen, "dependency temporarily unavailable")
	}

	var rlErr *ratelimit.Error
	if stderrors.As(err, &rlErr) {
		return Wrap(err, ErrorCode(rlErr.Code), "too many requests").
			WithContext("limiter", rlErr.Limiter).
			WithContext("retry_after", rlErr.RetryAfter)
	}

	switch {
	case stderrors.Is(err, assistant.ErrInvalidMessage):
		return Wrap(err, ErrCodeInvalidArgument, "invalid message")
	case stderrors.Is(err, booking.ErrSlotUnavailable):
		return Wrap(err, ErrCodeSlotUnavailable, "slot unavailable")
	case stderrors.Is(err, booking.ErrNotOwner):
		return Wrap(err, ErrCodeNotOwner, "booking belongs to another client")
	case stderrors.Is(err, booking.ErrValidation), stderrors.Is(err, command.ErrValidation):
		return Wrap(err, ErrCodeValidationFailed, "validation failed")
	case stderrors.Is(err, breaker.ErrTimeout), stderrors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "operation timed out")
	case stderrors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeContextCanceled, "operation canceled")
	}
	return Wrap(err, ErrCodeInternal, "internal error")
}

// HTTPStatus maps an error code to an HTTP status.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidArgument, ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeNotOwner:
		return http.StatusForbidden
	case ErrCodeSlotUnavailable:
		return http.StatusConflict
	case ErrCodeRateLimitExceeded, ErrCodeRateLimitBlocked:
		return http.StatusTooManyRequests
	case ErrCodeCircuitBreakerOpen, ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeContextCanceled:
		// Client closed request.
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	var aiErr *AIError
	if stderrors.As(err, &aiErr) {
		return aiErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an AIError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var aiErr *AIError
	if stderrors.As(err, &aiErr) {
		return aiErr.Code
	}
	return defaultCode
}
