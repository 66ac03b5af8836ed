// Package command extracts bracketed commands from generated assistant text and
// executes them against the booking domain.
package command

import (
	"time"

	"github.com/vosarsen/ai-admin-v2-sub004/server/service/catalog"
)

// Command names.
const (
	SearchSlots       = "SEARCH_SLOTS"
	CreateBooking     = "CREATE_BOOKING"
	CancelBooking     = "CANCEL_BOOKING"
	RescheduleBooking = "RESCHEDULE_BOOKING"
	ConfirmBooking    = "CONFIRM_BOOKING"
	MarkNoShow        = "MARK_NO_SHOW"
	ShowPrices        = "SHOW_PRICES"
	SearchServices    = "SEARCH_SERVICES"
	SearchStaff       = "SEARCH_STAFF"
	ShowStaffInfo     = "SHOW_STAFF_INFO"
	ShowBookings      = "SHOW_BOOKINGS"
	SavePreferences   = "SAVE_PREFERENCES"
)

// Command is one instruction extracted from assistant text.
type Command struct {
	Name   string            `json:"command"`
	Params map[string]string `json:"params"`
}

// Param returns the first non-empty value among keys.
func (c Command) Param(keys ...string) string {
	for _, k := range keys {
		if v := c.Params[k]; v != "" {
			return v
		}
	}
	return ""
}

// ResultType tags the payload of a successful Result.
type ResultType string

const (
	TypeSlots              ResultType = "slots"
	TypeBookingCreated     ResultType = "booking_created"
	TypeBookingCancelled   ResultType = "booking_cancelled"
	TypeBookingRescheduled ResultType = "booking_rescheduled"
	TypeBookingConfirmed   ResultType = "booking_confirmed"
	TypeNoShow             ResultType = "no_show"
	TypePrices             ResultType = "prices"
	TypeServices           ResultType = "services"
	TypeStaff              ResultType = "staff"
	TypeStaffInfo          ResultType = "staff_info"
	TypeBookings           ResultType = "bookings"
	TypePreferences        ResultType = "preferences_saved"
	TypeError              ResultType = "error"
)

// Result is the outcome of exactly one executed command.
type Result struct {
	Command string            `json:"command"`
	Params  map[string]string `json:"params,omitempty"`
	Success bool              `json:"success"`
	Type    ResultType        `json:"type,omitempty"`
	Data    any               `json:"data,omitempty"`
	Error   string            `json:"error,omitempty"`
	// Err keeps the typed failure for reconciliation.
	Err error `json:"-"`
	// Pending is set when the result asks the client to choose an option.
	Pending *PendingAction `json:"pending,omitempty"`
}

// ExecutionContext is what handlers know about the conversation.
type ExecutionContext struct {
	Phone          string
	CompanyID      int
	Company        *catalog.Company
	Services       []*catalog.Service
	Staff          []*catalog.Staff
	StaffSchedules []*catalog.StaffSchedule
	Client         *catalog.Client
	Now            time.Time
}

func (ec *ExecutionContext) location() *time.Location {
	return ec.Company.Location()
}

func (ec *ExecutionContext) now() time.Time {
	if ec.Now.IsZero() {
		return time.Now().In(ec.location())
	}
	return ec.Now.In(ec.location())
}

// PendingAction types.
const (
	PendingCancelBooking = "cancel_booking"
)

// PendingAction is a question awaiting a numeric reply.
type PendingAction struct {
	Type      string          `json:"type"`
	Options   []PendingOption `json:"options"`
	CreatedAt time.Time       `json:"created_at"`
}

// PendingOption is one numbered choice, 1-based in the text shown to the client.
type PendingOption struct {
	RecordID int64     `json:"record_id"`
	Datetime time.Time `json:"datetime"`
	Label    string    `json:"label"`
}

// Payloads of successful results.
type (
	SlotsData struct {
		Date    string    `json:"date"`
		Service string    `json:"service,omitempty"`
		Staff   string    `json:"staff,omitempty"`
		Slots   []SlotRef `json:"slots"`
	}

	SlotRef struct {
		Time      string `json:"time"`
		StaffID   int    `json:"staff_id,omitempty"`
		StaffName string `json:"staff_name,omitempty"`
	}

	BookingData struct {
		RecordID  int64     `json:"record_id"`
		Datetime  time.Time `json:"datetime"`
		ServiceID int       `json:"service_id,omitempty"`
		Service   string    `json:"service,omitempty"`
		StaffID   int       `json:"staff_id,omitempty"`
		Staff     string    `json:"staff,omitempty"`
	}

	PriceItem struct {
		Service  string  `json:"service"`
		PriceMin float64 `json:"price_min"`
		PriceMax float64 `json:"price_max"`
	}

	BookingsData struct {
		Intent   string       `json:"intent,omitempty"`
		Bookings []BookingRef `json:"bookings"`
	}

	BookingRef struct {
		RecordID int64     `json:"record_id"`
		Datetime time.Time `json:"datetime"`
		Services []string  `json:"services,omitempty"`
		Staff    string    `json:"staff,omitempty"`
	}
)
