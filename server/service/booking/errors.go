package booking

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/breaker"
)

// Booking errors that can be checked with errors.Is.
var (
	ErrValidation      = errors.New("booking validation failed")
	ErrSlotUnavailable = errors.New("slot unavailable")
	ErrNotOwner        = errors.New("booking belongs to another client")
)

// SlotUnavailableError carries the nearest free alternatives to the requested time.
type SlotUnavailableError struct {
	Requested    time.Time `json:"requested"`
	Alternatives []Slot    `json:"alternatives"`
	Reason       string    `json:"reason,omitempty"`
}

func (e *SlotUnavailableError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("slot %s unavailable: %s", e.Requested.Format("2006-01-02 15:04"), e.Reason)
	}
	return fmt.Sprintf("slot %s unavailable, %d alternatives", e.Requested.Format("2006-01-02 15:04"), len(e.Alternatives))
}

func (e *SlotUnavailableError) Is(target error) bool {
	return target == ErrSlotUnavailable
}

// APIError is a non-2xx answer of the booking API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("booking api status %d: %s", e.StatusCode, e.Message)
}

// ErrorClass represents the category of error for retry decisions.
type ErrorClass int

const (
	// ClassTransient errors are retried with backoff.
	ClassTransient ErrorClass = iota
	// ClassPermanent errors surface immediately.
	ClassPermanent
	// ClassSlotUnavailable errors surface immediately and suggest alternatives.
	ClassSlotUnavailable
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	case ClassSlotUnavailable:
		return "slot_unavailable"
	default:
		return "unknown"
	}
}

// slotUnavailablePatterns name the slot or time explicitly; generic
// "unavailable" wording is how the API reports its own outages.
var slotUnavailablePatterns = []string{
	"slot unavailable",
	"slot is not available",
	"slot is taken",
	"already booked",
	"time is taken",
	"время занято",
	"время уже занято",
	"нет свободн",
}

var transientPatterns = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"temporary failure",
	"timeout",
	"deadline exceeded",
	"eof",
}

// ClassifyError decides whether a booking API failure is worth retrying.
// Unknown errors are permanent.
func ClassifyError(err error) ErrorClass {
	if err == nil {
		return ClassPermanent
	}
	if errors.Is(err, ErrSlotUnavailable) {
		return ClassSlotUnavailable
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotOwner) || breaker.IsOpen(err) {
		return ClassPermanent
	}

	var apiErr *APIError
	isAPIErr := errors.As(err, &apiErr)
	if isAPIErr && (apiErr.StatusCode >= http.StatusInternalServerError || apiErr.StatusCode == http.StatusTooManyRequests) {
		return ClassTransient
	}

	msg := strings.ToLower(err.Error())
	for _, p := range slotUnavailablePatterns {
		if strings.Contains(msg, p) {
			return ClassSlotUnavailable
		}
	}
	if isAPIErr {
		return ClassPermanent
	}

	if errors.Is(err, breaker.ErrTimeout) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return ClassTransient
		}
	}
	return ClassPermanent
}

// ShouldRetry returns true if the error warrants a retry attempt.
func ShouldRetry(err error) bool {
	return err != nil && ClassifyError(err) == ClassTransient
}
