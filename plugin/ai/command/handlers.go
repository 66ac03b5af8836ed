package command

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/vosarsen/ai-admin-v2-sub004/server/service/booking"
	"github.com/vosarsen/ai-admin-v2-sub004/server/service/catalog"
	"github.com/vosarsen/ai-admin-v2-sub004/server/timezone"
)

// BookingService is the booking domain consumed by the handlers.
type BookingService interface {
	SearchSlots(ctx context.Context, q booking.SlotQuery) ([]booking.Slot, error)
	CreateBooking(ctx context.Context, req *booking.CreateRequest) (*booking.Record, error)
	CancelBooking(ctx context.Context, companyID int, recordID int64, phone string) error
	RescheduleBooking(ctx context.Context, companyID int, recordID int64, phone string, datetime time.Time) error
	ConfirmBooking(ctx context.Context, companyID int, recordID int64, phone string) error
	MarkNoShow(ctx context.Context, companyID int, recordID int64, phone string) error
	GetClientBookings(ctx context.Context, companyID int, phone string, now time.Time) ([]*booking.Record, error)
}

// PreferenceStore merges long-lived client preferences.
type PreferenceStore interface {
	SavePreferences(ctx context.Context, phone string, companyID int, prefs map[string]any) error
}

// StaffInfo is the payload of SHOW_STAFF_INFO.
type StaffInfo struct {
	Staff    *catalog.Staff           `json:"staff"`
	Services []string                 `json:"services,omitempty"`
	Schedule []*catalog.StaffSchedule `json:"schedule,omitempty"`
}

// Handlers implements the built-in command set.
type Handlers struct {
	Booking     BookingService
	Preferences PreferenceStore
}

// RegisterDefaults registers every built-in command. Booking mutations are critical.
func RegisterDefaults(e *Executor, h *Handlers) {
	e.Register(SearchSlots, h.searchSlots, false)
	e.Register(CreateBooking, h.createBooking, true)
	e.Register(CancelBooking, h.cancelBooking, true)
	e.Register(RescheduleBooking, h.rescheduleBooking, true)
	e.Register(ConfirmBooking, h.confirmBooking, true)
	e.Register(MarkNoShow, h.markNoShow, true)
	e.Register(ShowPrices, h.showPrices, false)
	e.Register(SearchServices, h.searchServices, false)
	e.Register(SearchStaff, h.searchStaff, false)
	e.Register(ShowStaffInfo, h.showStaffInfo, false)
	e.Register(ShowBookings, h.showBookings, false)
	e.Register(SavePreferences, h.savePreferences, false)
}

func (h *Handlers) searchSlots(ctx context.Context, cmd Command, ec *ExecutionContext) (*Result, error) {
	now := ec.now()
	day, err := parseDate(cmd.Param("date"), now)
	if err != nil {
		return nil, err
	}
	svc := resolveService(cmd, ec)
	if svc == nil && cmd.Param("service_name", "service") != "" {
		return nil, validationError("service %q not found", cmd.Param("service_name", "service"))
	}
	staff, mention := resolveStaff(cmd, ec)
	if staff == nil && mention != "" {
		return nil, validationError("staff %q not found", mention)
	}

	q := booking.SlotQuery{CompanyID: ec.CompanyID, Date: day}
	data := SlotsData{Date: day.Format(catalog.DateLayout), Slots: []SlotRef{}}
	if svc != nil {
		q.ServiceIDs = []int{svc.ID}
		data.Service = svc.Title
	}
	if staff != nil {
		q.StaffID = staff.ID
		data.Staff = staff.Name
	} else {
		q.StaffIDs = providers(ec.Staff, svc)
	}

	slots, err := h.Booking.SearchSlots(ctx, q)
	if err != nil {
		return nil, err
	}
	for _, s := range slots {
		name := s.StaffName
		if name == "" {
			if st := catalog.StaffByID(ec.Staff, s.StaffID); st != nil {
				name = st.Name
			}
		}
		data.Slots = append(data.Slots, SlotRef{
			Time:      s.Datetime.In(ec.location()).Format("15:04"),
			StaffID:   s.StaffID,
			StaffName: name,
		})
	}
	return &Result{Success: true, Type: TypeSlots, Data: data}, nil
}

func (h *Handlers) createBooking(ctx context.Context, cmd Command, ec *ExecutionContext) (*Result, error) {
	svc := resolveService(cmd, ec)
	if svc == nil {
		return nil, validationError("service is required")
	}
	at, ok, err := parseDateTime(cmd, ec.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, validationError("datetime is required")
	}
	if at.Before(ec.now()) {
		return nil, validationError("datetime %s is in the past", at.Format("2006-01-02 15:04"))
	}
	staff, mention := resolveStaff(cmd, ec)
	if staff == nil && mention != "" {
		return nil, validationError("staff %q not found", mention)
	}

	req := &booking.CreateRequest{
		CompanyID:  ec.CompanyID,
		Phone:      ec.Phone,
		ClientName: cmd.Param("client_name"),
		ServiceIDs: []int{svc.ID},
		Datetime:   at,
		Comment:    cmd.Param("comment"),
	}
	if req.ClientName == "" && ec.Client != nil {
		req.ClientName = ec.Client.Name
	}
	data := BookingData{Datetime: at, ServiceID: svc.ID, Service: svc.Title}
	if staff != nil {
		req.StaffID = staff.ID
		data.StaffID = staff.ID
		data.Staff = staff.Name
	}

	record, err := h.Booking.CreateBooking(ctx, req)
	if err != nil {
		return nil, err
	}
	data.RecordID = record.ID
	if data.Staff == "" {
		data.Staff = record.StaffName
	}
	return &Result{Success: true, Type: TypeBookingCreated, Data: data}, nil
}

func (h *Handlers) cancelBooking(ctx context.Context, cmd Command, ec *ExecutionContext) (*Result, error) {
	id, err := recordID(cmd)
	if err != nil {
		return nil, err
	}
	if err := h.Booking.CancelBooking(ctx, ec.CompanyID, id, ec.Phone); err != nil {
		return nil, err
	}
	return &Result{Success: true, Type: TypeBookingCancelled, Data: BookingData{RecordID: id}}, nil
}

func (h *Handlers) rescheduleBooking(ctx context.Context, cmd Command, ec *ExecutionContext) (*Result, error) {
	id, err := recordID(cmd)
	if err != nil {
		return nil, err
	}
	at, ok, err := parseDateTime(cmd, ec.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, validationError("new datetime is required")
	}
	if err := h.Booking.RescheduleBooking(ctx, ec.CompanyID, id, ec.Phone, at); err != nil {
		return nil, err
	}
	return &Result{Success: true, Type: TypeBookingRescheduled, Data: BookingData{RecordID: id, Datetime: at}}, nil
}

func (h *Handlers) confirmBooking(ctx context.Context, cmd Command, ec *ExecutionContext) (*Result, error) {
	id, err := recordID(cmd)
	if err != nil {
		return nil, err
	}
	if err := h.Booking.ConfirmBooking(ctx, ec.CompanyID, id, ec.Phone); err != nil {
		return nil, err
	}
	return &Result{Success: true, Type: TypeBookingConfirmed, Data: BookingData{RecordID: id}}, nil
}

func (h *Handlers) markNoShow(ctx context.Context, cmd Command, ec *ExecutionContext) (*Result, error) {
	id, err := recordID(cmd)
	if err != nil {
		return nil, err
	}
	if err := h.Booking.MarkNoShow(ctx, ec.CompanyID, id, ec.Phone); err != nil {
		return nil, err
	}
	return &Result{Success: true, Type: TypeNoShow, Data: BookingData{RecordID: id}}, nil
}

func (h *Handlers) showPrices(_ context.Context, cmd Command, ec *ExecutionContext) (*Result, error) {
	services := FilterServices(ec.Services, cmd.Param("service_name", "service", "category"))
	prices := make([]PriceItem, 0, len(services))
	for _, s := range services {
		prices = append(prices, PriceItem{Service: s.Title, PriceMin: s.PriceMin, PriceMax: s.PriceMax})
	}
	return &Result{Success: true, Type: TypePrices, Data: prices}, nil
}

func (h *Handlers) searchServices(_ context.Context, cmd Command, ec *ExecutionContext) (*Result, error) {
	services := FilterServices(ec.Services, cmd.Param("query", "service_name", "category"))
	if services == nil {
		services = []*catalog.Service{}
	}
	return &Result{Success: true, Type: TypeServices, Data: services}, nil
}

func (h *Handlers) searchStaff(_ context.Context, cmd Command, ec *ExecutionContext) (*Result, error) {
	svc := resolveService(cmd, ec)
	name := normalize(cmd.Param("staff_name", "query"))

	staff := make([]*catalog.Staff, 0, len(ec.Staff))
	for _, st := range ec.Staff {
		if svc != nil && !provides(st, svc) {
			continue
		}
		if name != "" && !strings.Contains(normalize(st.Name), name) {
			continue
		}
		staff = append(staff, st)
	}
	return &Result{Success: true, Type: TypeStaff, Data: staff}, nil
}

func (h *Handlers) showStaffInfo(_ context.Context, cmd Command, ec *ExecutionContext) (*Result, error) {
	staff, mention := resolveStaff(cmd, ec)
	if staff == nil {
		if mention == "" {
			return nil, validationError("staff is required")
		}
		return nil, validationError("staff %q not found", mention)
	}

	info := StaffInfo{Staff: staff}
	for _, s := range ec.Services {
		if provides(staff, s) {
			info.Services = append(info.Services, s.Title)
		}
	}
	for _, sch := range ec.StaffSchedules {
		if sch.StaffID == staff.ID {
			info.Schedule = append(info.Schedule, sch)
		}
	}
	return &Result{Success: true, Type: TypeStaffInfo, Data: info}, nil
}

func (h *Handlers) showBookings(ctx context.Context, cmd Command, ec *ExecutionContext) (*Result, error) {
	now := ec.now()
	records, err := h.Booking.GetClientBookings(ctx, ec.CompanyID, ec.Phone, now)
	if err != nil {
		return nil, err
	}

	data := BookingsData{Intent: cmd.Param("intent"), Bookings: make([]BookingRef, 0, len(records))}
	for _, r := range records {
		data.Bookings = append(data.Bookings, BookingRef{
			RecordID: r.ID,
			Datetime: r.Datetime,
			Services: r.ServiceTitles,
			Staff:    r.StaffName,
		})
	}
	res := &Result{Success: true, Type: TypeBookings, Data: data}

	if strings.EqualFold(data.Intent, "cancel") && len(records) > 0 {
		pending := &PendingAction{Type: PendingCancelBooking, CreatedAt: now}
		for _, b := range data.Bookings {
			pending.Options = append(pending.Options, PendingOption{
				RecordID: b.RecordID,
				Datetime: b.Datetime,
				Label:    bookingLabel(b, ec.location()),
			})
		}
		res.Pending = pending
	}
	return res, nil
}

func (h *Handlers) savePreferences(ctx context.Context, cmd Command, ec *ExecutionContext) (*Result, error) {
	if len(cmd.Params) == 0 {
		return nil, validationError("no preferences given")
	}
	if h.Preferences == nil {
		return nil, errors.New("preference store is not configured")
	}
	prefs := make(map[string]any, len(cmd.Params))
	for k, v := range cmd.Params {
		prefs[k] = v
	}
	if err := h.Preferences.SavePreferences(ctx, ec.Phone, ec.CompanyID, prefs); err != nil {
		return nil, err
	}
	return &Result{Success: true, Type: TypePreferences, Data: prefs}, nil
}

func recordID(cmd Command) (int64, error) {
	raw := cmd.Param("record_id", "booking_id", "id")
	if raw == "" {
		return 0, validationError("booking id is required")
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(raw, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, validationError("invalid booking id %q", raw)
	}
	return id, nil
}

// providers returns bookable staff who perform svc, or every bookable staff
// member when svc is nil.
func providers(staff []*catalog.Staff, svc *catalog.Service) []int {
	var ids []int
	for _, st := range staff {
		if !st.Bookable {
			continue
		}
		if svc != nil && !provides(st, svc) {
			continue
		}
		ids = append(ids, st.ID)
	}
	return ids
}

func provides(st *catalog.Staff, svc *catalog.Service) bool {
	return slices.Contains(st.ServiceIDs, svc.ID) || slices.Contains(svc.StaffIDs, st.ID)
}

func bookingLabel(b BookingRef, loc *time.Location) string {
	label := timezone.FormatSlot(b.Datetime, loc)
	if len(b.Services) > 0 {
		label += " " + strings.Join(b.Services, ", ")
	}
	if b.Staff != "" {
		label += " (" + b.Staff + ")"
	}
	return label
}
