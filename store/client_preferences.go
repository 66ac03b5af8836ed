package store

// ClientPreferences holds long-lived personalization for a client of a company.
// It survives dialog clears.
type ClientPreferences struct {
	Phone     string
	CompanyID int
	Data      string // JSON string
	CreatedTs int64
	UpdatedTs int64
}

// FindClientPreferences specifies the conditions for finding client preferences.
type FindClientPreferences struct {
	Phone     string
	CompanyID int
}

// UpsertClientPreferences replaces the preference document.
type UpsertClientPreferences struct {
	Phone     string
	CompanyID int
	Data      string // JSON string
}
