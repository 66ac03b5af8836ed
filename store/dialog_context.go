package store

// DialogState values.
const (
	DialogStateActive = "active"
	DialogStateIdle   = "idle"
)

// DialogContext is the volatile per-conversation state of one (phone, company) pair.
// Selection, PendingAction and ProcessingMarker are JSON documents owned by the dialog layer.
type DialogContext struct {
	Phone            string
	CompanyID        int
	ClientName       string
	Selection        string // JSON string
	PendingAction    string // JSON string
	DialogState      string
	ProcessingMarker string // JSON string
	LastActivity     int64
	UpdatedTs        int64
}

// FindDialogContext identifies one conversation.
type FindDialogContext struct {
	Phone     string
	CompanyID int
}

// UpdateDialogContext writes only the non-nil fields.
// A row is created on first update.
type UpdateDialogContext struct {
	Phone     string
	CompanyID int

	ClientName       *string
	Selection        *string
	PendingAction    *string
	DialogState      *string
	ProcessingMarker *string
	LastActivity     *int64
}
