package booking

import (
	"context"
	"sync"
	"time"
)

// MockClient is an in-memory Client for tests.
type MockClient struct {
	mu sync.Mutex

	// Slots are returned by GetAvailableSlots, filtered by staff and date.
	Slots   []Slot
	Records []*Record
	NextID  int64

	// Errs queues errors returned by the next calls of the named method.
	Errs map[string][]error

	Calls          map[string]int
	CreateRequests []*CreateRequest
}

// NewMockClient creates an empty mock client.
func NewMockClient() *MockClient {
	return &MockClient{
		NextID: 100,
		Errs:   make(map[string][]error),
		Calls:  make(map[string]int),
	}
}

// FailNext queues err for the next call of method.
func (m *MockClient) FailNext(method string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errs[method] = append(m.Errs[method], err)
}

// CallCount returns how many times method was called.
func (m *MockClient) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[method]
}

func (m *MockClient) enter(method string) error {
	m.Calls[method]++
	if q := m.Errs[method]; len(q) > 0 {
		m.Errs[method] = q[1:]
		return q[0]
	}
	return nil
}

func (m *MockClient) GetAvailableSlots(_ context.Context, q SlotQuery) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetAvailableSlots"); err != nil {
		return nil, err
	}

	y, mo, d := q.Date.Date()
	var out []Slot
	for _, s := range m.Slots {
		sy, smo, sd := s.Datetime.Date()
		if !q.Date.IsZero() && (sy != y || smo != mo || sd != d) {
			continue
		}
		if q.StaffID != 0 && s.StaffID != q.StaffID {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *MockClient) CreateBooking(_ context.Context, req *CreateRequest) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateRequests = append(m.CreateRequests, req)
	if err := m.enter("CreateBooking"); err != nil {
		return nil, err
	}
	m.NextID++
	r := &Record{
		ID:         m.NextID,
		CompanyID:  req.CompanyID,
		Datetime:   req.Datetime,
		ServiceIDs: req.ServiceIDs,
		StaffID:    req.StaffID,
		Phone:      req.Phone,
	}
	m.Records = append(m.Records, r)
	return r, nil
}

func (m *MockClient) find(companyID int, recordID int64) (*Record, error) {
	for _, r := range m.Records {
		if r.ID == recordID && r.CompanyID == companyID {
			return r, nil
		}
	}
	return nil, &APIError{StatusCode: 404, Message: "record not found"}
}

func (m *MockClient) CancelBooking(_ context.Context, companyID int, recordID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("CancelBooking"); err != nil {
		return err
	}
	r, err := m.find(companyID, recordID)
	if err != nil {
		return err
	}
	r.Deleted = true
	return nil
}

func (m *MockClient) RescheduleBooking(_ context.Context, companyID int, recordID int64, datetime time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("RescheduleBooking"); err != nil {
		return err
	}
	r, err := m.find(companyID, recordID)
	if err != nil {
		return err
	}
	r.Datetime = datetime
	return nil
}

func (m *MockClient) ConfirmBooking(_ context.Context, companyID int, recordID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("ConfirmBooking"); err != nil {
		return err
	}
	_, err := m.find(companyID, recordID)
	return err
}

func (m *MockClient) MarkNoShow(_ context.Context, companyID int, recordID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("MarkNoShow"); err != nil {
		return err
	}
	_, err := m.find(companyID, recordID)
	return err
}

func (m *MockClient) GetClientBookings(_ context.Context, companyID int, phone string) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter("GetClientBookings"); err != nil {
		return nil, err
	}
	var out []*Record
	for _, r := range m.Records {
		if r.CompanyID == companyID && r.Phone == phone {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

var _ Client = (*MockClient)(nil)
