package yclients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/vosarsen/ai-admin-v2-sub004/server/service/booking"
)

// Attendance values of a record.
const (
	attendanceNoShow    = -1
	attendanceConfirmed = 2
)

type apiSlot struct {
	Time         string `json:"time"`
	Datetime     string `json:"datetime"`
	SeanceLength int    `json:"seance_length"`
}

// GetAvailableSlots implements booking.Client.
func (c *Client) GetAvailableSlots(ctx context.Context, q booking.SlotQuery) ([]booking.Slot, error) {
	query := url.Values{}
	intsQuery(query, "service_ids[]", q.ServiceIDs)
	path := fmt.Sprintf("/book_times/%d/%d/%s", q.CompanyID, q.StaffID, q.Date.Format("2006-01-02"))

	var raw []apiSlot
	if err := c.do(ctx, request{method: http.MethodGet, path: path, query: query}, &raw); err != nil {
		return nil, err
	}

	slots := make([]booking.Slot, 0, len(raw))
	for _, s := range raw {
		dt, err := time.Parse(time.RFC3339, s.Datetime)
		if err != nil {
			c.logger.Warn("skipping slot with bad datetime", "datetime", s.Datetime, "error", err)
			continue
		}
		slots = append(slots, booking.Slot{
			Datetime:     dt,
			StaffID:      q.StaffID,
			SeanceLength: s.SeanceLength,
		})
	}
	return slots, nil
}

type appointment struct {
	ID       int    `json:"id"`
	Services []int  `json:"services"`
	StaffID  int    `json:"staff_id"`
	Datetime string `json:"datetime"`
}

type bookRecordRequest struct {
	Phone        string        `json:"phone"`
	Fullname     string        `json:"fullname"`
	Comment      string        `json:"comment,omitempty"`
	APIID        string        `json:"api_id,omitempty"`
	Appointments []appointment `json:"appointments"`
}

type bookRecordResult struct {
	ID       int64 `json:"id"`
	RecordID int64 `json:"record_id"`
}

// CreateBooking implements booking.Client. The idempotency key is sent both as
// a header and as the record's external id.
func (c *Client) CreateBooking(ctx context.Context, req *booking.CreateRequest) (*booking.Record, error) {
	body := bookRecordRequest{
		Phone:    req.Phone,
		Fullname: req.ClientName,
		Comment:  req.Comment,
		APIID:    req.IdempotencyKey,
		Appointments: []appointment{{
			ID:       1,
			Services: req.ServiceIDs,
			StaffID:  req.StaffID,
			Datetime: req.Datetime.Format(time.RFC3339),
		}},
	}

	var results []bookRecordResult
	err := c.do(ctx, request{
		method:         http.MethodPost,
		path:           fmt.Sprintf("/book_record/%d", req.CompanyID),
		body:           body,
		idempotencyKey: req.IdempotencyKey,
	}, &results)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, errors.New("book_record returned no records")
	}

	return &booking.Record{
		ID:         results[0].RecordID,
		CompanyID:  req.CompanyID,
		Datetime:   req.Datetime,
		ServiceIDs: req.ServiceIDs,
		StaffID:    req.StaffID,
		Phone:      req.Phone,
	}, nil
}

// CancelBooking implements booking.Client.
func (c *Client) CancelBooking(ctx context.Context, companyID int, recordID int64) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   fmt.Sprintf("/record/%d/%d", companyID, recordID),
	}, nil)
}

// RescheduleBooking implements booking.Client.
func (c *Client) RescheduleBooking(ctx context.Context, companyID int, recordID int64, datetime time.Time) error {
	return c.do(ctx, request{
		method: http.MethodPut,
		path:   fmt.Sprintf("/book_record/%d/%d", companyID, recordID),
		body:   map[string]string{"datetime": datetime.Format(time.RFC3339)},
	}, nil)
}

// ConfirmBooking implements booking.Client.
func (c *Client) ConfirmBooking(ctx context.Context, companyID int, recordID int64) error {
	return c.setAttendance(ctx, companyID, recordID, attendanceConfirmed)
}

// MarkNoShow implements booking.Client.
func (c *Client) MarkNoShow(ctx context.Context, companyID int, recordID int64) error {
	return c.setAttendance(ctx, companyID, recordID, attendanceNoShow)
}

func (c *Client) setAttendance(ctx context.Context, companyID int, recordID int64, attendance int) error {
	return c.do(ctx, request{
		method: http.MethodPut,
		path:   fmt.Sprintf("/record/%d/%d", companyID, recordID),
		body:   map[string]int{"attendance": attendance},
	}, nil)
}

type apiRecord struct {
	ID       int64  `json:"id"`
	Datetime string `json:"datetime"`
	Deleted  bool   `json:"deleted"`
	Staff    struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"staff"`
	Services []struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
	} `json:"services"`
	Client struct {
		Phone string `json:"phone"`
	} `json:"client"`
}

// GetClientBookings implements booking.Client.
func (c *Client) GetClientBookings(ctx context.Context, companyID int, phone string) ([]*booking.Record, error) {
	query := url.Values{}
	query.Set("client_phone", phone)

	var raw []apiRecord
	if err := c.do(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/records/%d", companyID),
		query:  query,
	}, &raw); err != nil {
		return nil, err
	}

	records := make([]*booking.Record, 0, len(raw))
	want := NormalizePhone(phone)
	for _, r := range raw {
		if r.Client.Phone != "" && NormalizePhone(r.Client.Phone) != want {
			continue
		}
		dt, err := time.Parse(time.RFC3339, r.Datetime)
		if err != nil {
			c.logger.Warn("skipping record with bad datetime", "record_id", r.ID, "error", err)
			continue
		}
		rec := &booking.Record{
			ID:        r.ID,
			CompanyID: companyID,
			Datetime:  dt,
			StaffID:   r.Staff.ID,
			StaffName: r.Staff.Name,
			Phone:     phone,
			Deleted:   r.Deleted,
		}
		for _, s := range r.Services {
			rec.ServiceIDs = append(rec.ServiceIDs, s.ID)
			rec.ServiceTitles = append(rec.ServiceTitles, s.Title)
		}
		records = append(records, rec)
	}
	return records, nil
}

var _ booking.Client = (*Client)(nil)
