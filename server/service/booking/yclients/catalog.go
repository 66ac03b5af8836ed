package yclients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vosarsen/ai-admin-v2-sub004/server/service/catalog"
)

type apiCompany struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
	Timezone string `json:"timezone_name"`
	Schedule string `json:"schedule"`
}

// LoadCompany implements catalog.Loader.
func (c *Client) LoadCompany(ctx context.Context, companyID int) (*catalog.Company, error) {
	var raw apiCompany
	if err := c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/company/%d", companyID)}, &raw); err != nil {
		return nil, err
	}
	return &catalog.Company{
		ID:           raw.ID,
		Title:        raw.Title,
		Address:      raw.Address,
		Phone:        raw.Phone,
		Timezone:     raw.Timezone,
		WorkingHours: raw.Schedule,
	}, nil
}

type apiService struct {
	ID       int     `json:"id"`
	Title    string  `json:"title"`
	PriceMin float64 `json:"price_min"`
	PriceMax float64 `json:"price_max"`
	Duration int     `json:"duration"`
	Active   int     `json:"active"`
	Category struct {
		Title string `json:"title"`
	} `json:"category"`
	Staff []struct {
		ID int `json:"id"`
	} `json:"staff"`
	BookingCount int `json:"booking_count"`
}

// LoadServices implements catalog.Loader.
func (c *Client) LoadServices(ctx context.Context, companyID int) ([]*catalog.Service, error) {
	var raw []apiService
	if err := c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/company/%d/services", companyID)}, &raw); err != nil {
		return nil, err
	}
	out := make([]*catalog.Service, 0, len(raw))
	for _, s := range raw {
		svc := &catalog.Service{
			ID:           s.ID,
			Title:        s.Title,
			Category:     s.Category.Title,
			PriceMin:     s.PriceMin,
			PriceMax:     s.PriceMax,
			DurationSec:  s.Duration,
			BookingCount: s.BookingCount,
			Bookable:     s.Active == 1,
		}
		for _, st := range s.Staff {
			svc.StaffIDs = append(svc.StaffIDs, st.ID)
		}
		out = append(out, svc)
	}
	return out, nil
}

type apiStaff struct {
	ID             int     `json:"id"`
	Name           string  `json:"name"`
	Specialization string  `json:"specialization"`
	Rating         float64 `json:"rating"`
	Information    string  `json:"information"`
	Bookable       bool    `json:"bookable"`
	Fired          int     `json:"fired"`
	Hidden         int     `json:"hidden"`
	ServiceIDs     []int   `json:"services_links_ids"`
}

// LoadStaff implements catalog.Loader. Fired and hidden staff are skipped.
func (c *Client) LoadStaff(ctx context.Context, companyID int) ([]*catalog.Staff, error) {
	var raw []apiStaff
	if err := c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/company/%d/staff", companyID)}, &raw); err != nil {
		return nil, err
	}
	out := make([]*catalog.Staff, 0, len(raw))
	for _, s := range raw {
		if s.Fired == 1 || s.Hidden == 1 {
			continue
		}
		out = append(out, &catalog.Staff{
			ID:             s.ID,
			Name:           s.Name,
			Specialization: s.Specialization,
			Rating:         s.Rating,
			Information:    s.Information,
			ServiceIDs:     s.ServiceIDs,
			Bookable:       s.Bookable,
		})
	}
	return out, nil
}

type apiScheduleDay struct {
	Date      string `json:"date"`
	IsWorking int    `json:"is_working"`
	Slots     []struct {
		From string `json:"from"`
		To   string `json:"to"`
	} `json:"slots"`
}

// LoadStaffSchedules implements catalog.Loader, one request per staff member.
func (c *Client) LoadStaffSchedules(ctx context.Context, companyID int, from, to time.Time) ([]*catalog.StaffSchedule, error) {
	staff, err := c.LoadStaff(ctx, companyID)
	if err != nil {
		return nil, err
	}

	perStaff := make([][]*catalog.StaffSchedule, len(staff))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, s := range staff {
		g.Go(func() error {
			var days []apiScheduleDay
			path := fmt.Sprintf("/schedule/%d/%d/%s/%s", companyID, s.ID, from.Format(catalog.DateLayout), to.Format(catalog.DateLayout))
			if err := c.do(gctx, request{method: http.MethodGet, path: path}, &days); err != nil {
				return err
			}
			for _, d := range days {
				entry := &catalog.StaffSchedule{StaffID: s.ID, Date: d.Date, IsWorking: d.IsWorking == 1}
				if len(d.Slots) > 0 {
					entry.From = d.Slots[0].From
					entry.To = d.Slots[len(d.Slots)-1].To
				}
				perStaff[i] = append(perStaff[i], entry)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []*catalog.StaffSchedule
	for _, list := range perStaff {
		out = append(out, list...)
	}
	return out, nil
}

// LoadBusinessStats implements catalog.Loader from today's records.
func (c *Client) LoadBusinessStats(ctx context.Context, companyID int) (*catalog.BusinessStats, error) {
	today := time.Now().Format(catalog.DateLayout)
	query := url.Values{}
	query.Set("start_date", today)
	query.Set("end_date", today)

	var raw []apiRecord
	if err := c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/records/%d", companyID), query: query}, &raw); err != nil {
		return nil, err
	}
	stats := &catalog.BusinessStats{}
	for _, r := range raw {
		if !r.Deleted {
			stats.BookingsToday++
		}
	}
	return stats, nil
}

type apiClient struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	VisitCount int    `json:"visits"`
	LastVisit  string `json:"last_visit_date"`
}

// FindClient implements catalog.Loader.
func (c *Client) FindClient(ctx context.Context, companyID int, phone string) (*catalog.Client, error) {
	query := url.Values{}
	query.Set("phone", phone)

	var raw []apiClient
	if err := c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/clients/%d", companyID), query: query}, &raw); err != nil {
		return nil, err
	}
	want := NormalizePhone(phone)
	for _, cl := range raw {
		if NormalizePhone(cl.Phone) == want {
			return &catalog.Client{
				ID:         cl.ID,
				Name:       cl.Name,
				Phone:      want,
				VisitCount: cl.VisitCount,
				LastVisit:  cl.LastVisit,
			}, nil
		}
	}
	return nil, nil
}

var _ catalog.Loader = (*Client)(nil)
