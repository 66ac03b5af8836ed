// Package dialog manages per-conversation context: a two-tier cache in front
// of the durable store, the cold catalog load, service ranking, field-scoped
// saves and pending actions awaiting a numeric reply.
package dialog

import (
	"strconv"
	"time"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/command"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/timeout"
	"github.com/vosarsen/ai-admin-v2-sub004/server/service/catalog"
)

// Preference keys written by the dialog layer.
const (
	PrefFavoriteStaffID   = "favoriteStaffId"
	PrefFavoriteServiceID = "favoriteServiceId"
)

// Key returns the composite identity of a conversation.
func Key(phone string, companyID int) string {
	return phone + "@" + strconv.Itoa(companyID)
}

func cacheKey(phone string, companyID int) string {
	return "ctx:" + Key(phone, companyID)
}

// Selection is what the client has chosen so far in the current dialog.
type Selection struct {
	Service   string `json:"service,omitempty"`
	ServiceID int    `json:"service_id,omitempty"`
	Staff     string `json:"staff,omitempty"`
	StaffID   int    `json:"staff_id,omitempty"`
	Date      string `json:"date,omitempty"`
	Time      string `json:"time,omitempty"`
}

// IsEmpty reports whether nothing is selected.
func (s Selection) IsEmpty() bool {
	return s == Selection{}
}

// Merge returns s with every non-empty field of o applied.
func (s Selection) Merge(o Selection) Selection {
	if o.Service != "" {
		s.Service = o.Service
	}
	if o.ServiceID != 0 {
		s.ServiceID = o.ServiceID
	}
	if o.Staff != "" {
		s.Staff = o.Staff
	}
	if o.StaffID != 0 {
		s.StaffID = o.StaffID
	}
	if o.Date != "" {
		s.Date = o.Date
	}
	if o.Time != "" {
		s.Time = o.Time
	}
	return s
}

// ProcessingMarker records that an inbound message is being processed.
type ProcessingMarker struct {
	MessageID string    `json:"message_id"`
	StartedAt time.Time `json:"started_at"`
}

// InFlight reports whether the marker still counts as an unfinished message.
// Markers older than ProcessingMarkerTTL are leftovers of a crashed run.
func (m *ProcessingMarker) InFlight(now time.Time) bool {
	return m != nil && m.MessageID != "" && now.Sub(m.StartedAt) < timeout.ProcessingMarkerTTL
}

// Message is one entry of the conversation history.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// Context is the full conversation context: volatile dialog state plus the
// enrichment loaded from the catalog.
type Context struct {
	Phone     string `json:"phone"`
	CompanyID int    `json:"company_id"`

	ClientName       string                 `json:"client_name,omitempty"`
	Selection        Selection              `json:"selection"`
	PendingAction    *command.PendingAction `json:"pending_action,omitempty"`
	DialogState      string                 `json:"dialog_state,omitempty"`
	ProcessingMarker *ProcessingMarker      `json:"processing_marker,omitempty"`
	LastActivity     time.Time              `json:"last_activity"`

	Company        *catalog.Company         `json:"company"`
	Services       []*catalog.Service       `json:"services"`
	Staff          []*catalog.Staff         `json:"staff"`
	StaffSchedules []*catalog.StaffSchedule `json:"staff_schedules,omitempty"`
	Client         *catalog.Client          `json:"client,omitempty"`
	BusinessStats  *catalog.BusinessStats   `json:"business_stats,omitempty"`
	History        []Message                `json:"history,omitempty"`
	Preferences    map[string]any           `json:"preferences,omitempty"`

	// LoadedAt is when the enrichment was loaded; cached copies older than
	// the freshness window are reloaded.
	LoadedAt time.Time `json:"loaded_at"`
}

// ExecutionContext exposes the context to command handlers.
func (c *Context) ExecutionContext(now time.Time) *command.ExecutionContext {
	return &command.ExecutionContext{
		Phone:          c.Phone,
		CompanyID:      c.CompanyID,
		Company:        c.Company,
		Services:       c.Services,
		Staff:          c.Staff,
		StaffSchedules: c.StaffSchedules,
		Client:         c.Client,
		Now:            now,
	}
}

// Update is a field-scoped save. Nil fields are left untouched.
type Update struct {
	ClientName *string
	// Selection is merged into the stored selection.
	Selection     *Selection
	PendingAction *command.PendingAction
	ClearPending  bool
	DialogState   *string
	// Messages are appended to the history.
	Messages []Message
	// Preferences are merged into the stored preferences.
	Preferences map[string]any
}

func (u *Update) touchesDialog() bool {
	return u.ClientName != nil || u.Selection != nil || u.PendingAction != nil || u.ClearPending || u.DialogState != nil
}
