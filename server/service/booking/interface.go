package booking

import (
	"context"
	"time"

	"github.com/vosarsen/ai-admin-v2-sub004/store"
)

// Slot is one bookable start time.
type Slot struct {
	Datetime     time.Time `json:"datetime"`
	StaffID      int       `json:"staff_id,omitempty"`
	StaffName    string    `json:"staff_name,omitempty"`
	SeanceLength int       `json:"seance_length,omitempty"` // seconds
}

// Record is a booking as stored by the CRM.
type Record struct {
	ID            int64     `json:"id"`
	CompanyID     int       `json:"company_id"`
	Datetime      time.Time `json:"datetime"`
	ServiceIDs    []int     `json:"service_ids,omitempty"`
	ServiceTitles []string  `json:"service_titles,omitempty"`
	StaffID       int       `json:"staff_id,omitempty"`
	StaffName     string    `json:"staff_name,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Deleted       bool      `json:"deleted,omitempty"`
}

// SlotQuery selects available slots on one date.
// StaffIDs fans the search out across several staff members in parallel
// when StaffID is not set.
type SlotQuery struct {
	CompanyID  int
	Date       time.Time
	ServiceIDs []int
	StaffID    int
	StaffIDs   []int
}

// CreateRequest is the input of a booking creation.
type CreateRequest struct {
	CompanyID      int       `validate:"required,gt=0"`
	Phone          string    `validate:"required,numeric,min=10,max=15"`
	ClientName     string    `validate:"max=100"`
	ServiceIDs     []int     `validate:"required,min=1,dive,gt=0"`
	StaffID        int       `validate:"gte=0"`
	Datetime       time.Time `validate:"required"`
	Comment        string    `validate:"max=500"`
	IdempotencyKey string
}

// Client is the booking collaborator: the CRM booking API.
type Client interface {
	GetAvailableSlots(ctx context.Context, q SlotQuery) ([]Slot, error)
	CreateBooking(ctx context.Context, req *CreateRequest) (*Record, error)
	CancelBooking(ctx context.Context, companyID int, recordID int64) error
	RescheduleBooking(ctx context.Context, companyID int, recordID int64, datetime time.Time) error
	ConfirmBooking(ctx context.Context, companyID int, recordID int64) error
	MarkNoShow(ctx context.Context, companyID int, recordID int64) error
	GetClientBookings(ctx context.Context, companyID int, phone string) ([]*Record, error)
}

// OwnershipStore persists which phone created which record.
type OwnershipStore interface {
	UpsertBookingOwnership(ctx context.Context, upsert *store.UpsertBookingOwnership) (*store.BookingOwnership, error)
	GetBookingOwnership(ctx context.Context, recordID int64, companyID int) (*store.BookingOwnership, error)
}
