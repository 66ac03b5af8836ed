package store

// BookingStatus values tracked for owned bookings.
const (
	BookingStatusPending   = "pending"
	BookingStatusCreated   = "created"
	BookingStatusCancelled = "cancelled"
	BookingStatusConfirmed = "confirmed"
	BookingStatusNoShow    = "no_show"
)

// BookingOwnership associates a CRM record with the phone that created it.
type BookingOwnership struct {
	RecordID       int64
	CompanyID      int
	Phone          string
	IdempotencyKey string
	Status         string
	CreatedTs      int64
	UpdatedTs      int64
}

// UpsertBookingOwnership creates the row or updates its status.
// Phone and idempotency key of an existing row are never changed.
type UpsertBookingOwnership struct {
	RecordID       int64
	CompanyID      int
	Phone          string
	IdempotencyKey string
	Status         string
}

type FindBookingOwnership struct {
	RecordID  *int64
	CompanyID int
	Phone     *string
	Status    *string
}
