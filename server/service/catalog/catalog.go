// Package catalog defines the salon catalog data consumed by the dialog layer:
// company profile, services, staff, schedules, client card and business stats.
package catalog

import (
	"context"
	"time"

	"github.com/vosarsen/ai-admin-v2-sub004/server/timezone"
)

// DefaultTimezone is used when a company has no timezone configured.
const DefaultTimezone = timezone.Moscow

// DateLayout is the calendar date format shared with the booking API.
const DateLayout = "2006-01-02"

type Company struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	Address      string `json:"address,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
	WorkingHours string `json:"working_hours,omitempty"`
}

// Location returns the company time zone, falling back to DefaultTimezone.
func (c *Company) Location() *time.Location {
	if c == nil {
		return timezone.Resolve("", DefaultTimezone)
	}
	return timezone.Resolve(c.Timezone, DefaultTimezone)
}

type Service struct {
	ID           int     `json:"id"`
	Title        string  `json:"title"`
	Category     string  `json:"category,omitempty"`
	PriceMin     float64 `json:"price_min"`
	PriceMax     float64 `json:"price_max"`
	DurationSec  int     `json:"duration_sec,omitempty"`
	BookingCount int     `json:"booking_count,omitempty"`
	StaffIDs     []int   `json:"staff_ids,omitempty"`
	RankingScore float64 `json:"ranking_score,omitempty"`
	IsFavorite   bool    `json:"is_favorite,omitempty"`
	Bookable     bool    `json:"bookable"`
}

type Staff struct {
	ID             int     `json:"id"`
	Name           string  `json:"name"`
	Specialization string  `json:"specialization,omitempty"`
	Rating         float64 `json:"rating,omitempty"`
	Information    string  `json:"information,omitempty"`
	ServiceIDs     []int   `json:"service_ids,omitempty"`
	Bookable       bool    `json:"bookable"`
}

// StaffSchedule is one working day of one staff member.
type StaffSchedule struct {
	StaffID   int    `json:"staff_id"`
	Date      string `json:"date"`
	IsWorking bool   `json:"is_working"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
}

// Client is the CRM card of the person writing to the salon.
type Client struct {
	ID               int      `json:"id"`
	Name             string   `json:"name"`
	Phone            string   `json:"phone"`
	VisitCount       int      `json:"visit_count"`
	LastVisit        string   `json:"last_visit,omitempty"`
	FavoriteStaffIDs []int    `json:"favorite_staff_ids,omitempty"`
	Tags             []string `json:"tags,omitempty"`
}

// IsNew reports whether the client has never visited.
func (c *Client) IsNew() bool {
	return c == nil || c.VisitCount == 0
}

type BusinessStats struct {
	BookingsToday int     `json:"bookings_today"`
	LoadPercent   float64 `json:"load_percent"`
}

// Loader is the catalog collaborator.
type Loader interface {
	LoadCompany(ctx context.Context, companyID int) (*Company, error)
	LoadServices(ctx context.Context, companyID int) ([]*Service, error)
	LoadStaff(ctx context.Context, companyID int) ([]*Staff, error)
	LoadStaffSchedules(ctx context.Context, companyID int, from, to time.Time) ([]*StaffSchedule, error)
	LoadBusinessStats(ctx context.Context, companyID int) (*BusinessStats, error)
	// FindClient returns nil, nil for a phone unknown to the CRM.
	FindClient(ctx context.Context, companyID int, phone string) (*Client, error)
}

// ServiceByID returns the service with id, or nil.
func ServiceByID(services []*Service, id int) *Service {
	for _, s := range services {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// StaffByID returns the staff member with id, or nil.
func StaffByID(staff []*Staff, id int) *Staff {
	for _, s := range staff {
		if s.ID == id {
			return s
		}
	}
	return nil
}
