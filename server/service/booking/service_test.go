package booking

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/breaker"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/metrics"
	"github.com/vosarsen/ai-admin-v2-sub004/server/internal/observability"
	"github.com/vosarsen/ai-admin-v2-sub004/store"
)

const (
	testCompany = 962302
	testPhone   = "79001234567"
)

var day = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func at(hour, minute int) time.Time {
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// MockOwnershipStore is a mock implementation of OwnershipStore for testing.
type MockOwnershipStore struct {
	mu   sync.Mutex
	rows map[int64]*store.BookingOwnership
	err  error
}

func newOwners() *MockOwnershipStore {
	return &MockOwnershipStore{rows: make(map[int64]*store.BookingOwnership)}
}

func (m *MockOwnershipStore) UpsertBookingOwnership(_ context.Context, u *store.UpsertBookingOwnership) (*store.BookingOwnership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	row, ok := m.rows[u.RecordID]
	if !ok {
		row = &store.BookingOwnership{RecordID: u.RecordID, CompanyID: u.CompanyID, Phone: u.Phone, IdempotencyKey: u.IdempotencyKey}
		m.rows[u.RecordID] = row
	}
	row.Status = u.Status
	return row, nil
}

func (m *MockOwnershipStore) GetBookingOwnership(_ context.Context, recordID int64, _ int) (*store.BookingOwnership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.rows[recordID], nil
}

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, BackoffFactor: 2}
}

func newTestService(client *MockClient, owners *MockOwnershipStore, opts ...Option) *Service {
	opts = append([]Option{WithRetry(fastRetry()), WithKeyGenerator(func() string { return "key-1" })}, opts...)
	if owners == nil {
		return NewService(client, nil, opts...)
	}
	return NewService(client, owners, opts...)
}

func validRequest() *CreateRequest {
	return &CreateRequest{
		CompanyID:  testCompany,
		Phone:      testPhone,
		ClientName: "Мария",
		ServiceIDs: []int{2},
		StaffID:    1,
		Datetime:   at(14, 0),
	}
}

func TestCreateBooking_Success(t *testing.T) {
	client := NewMockClient()
	client.Slots = []Slot{{Datetime: at(14, 0), StaffID: 1}}
	owners := newOwners()
	m := metrics.NewMockMetricsService()
	svc := newTestService(client, owners, WithMetrics(m))

	record, err := svc.CreateBooking(context.Background(), validRequest())
	require.NoError(t, err)
	assert.Equal(t, int64(101), record.ID)

	require.Len(t, client.CreateRequests, 1)
	assert.Equal(t, "key-1", client.CreateRequests[0].IdempotencyKey)

	own := owners.rows[101]
	require.NotNil(t, own)
	assert.Equal(t, testPhone, own.Phone)
	assert.Equal(t, "key-1", own.IdempotencyKey)
	assert.Equal(t, store.BookingStatusCreated, own.Status)

	names := []string{}
	for _, s := range m.Samples(metrics.KindOperation) {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"booking.slots", "booking.create"}, names)
}

func TestCreateBooking_ValidationSkipsDownstream(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *CreateRequest)
	}{
		{"no services", func(r *CreateRequest) { r.ServiceIDs = nil }},
		{"no datetime", func(r *CreateRequest) { r.Datetime = time.Time{} }},
		{"bad phone", func(r *CreateRequest) { r.Phone = "abc" }},
		{"no company", func(r *CreateRequest) { r.CompanyID = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewMockClient()
			svc := newTestService(client, nil)
			req := validRequest()
			tt.mutate(req)

			_, err := svc.CreateBooking(context.Background(), req)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Zero(t, client.CallCount("GetAvailableSlots"))
			assert.Zero(t, client.CallCount("CreateBooking"))
		})
	}
}

func TestCreateBooking_SlotUnavailableOffersNearest(t *testing.T) {
	client := NewMockClient()
	client.Slots = []Slot{
		{Datetime: at(10, 0), StaffID: 1},
		{Datetime: at(13, 0), StaffID: 1},
		{Datetime: at(13, 30), StaffID: 1},
		{Datetime: at(15, 0), StaffID: 1},
		{Datetime: at(18, 0), StaffID: 1},
	}
	svc := newTestService(client, nil)

	_, err := svc.CreateBooking(context.Background(), validRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSlotUnavailable)

	var slotErr *SlotUnavailableError
	require.ErrorAs(t, err, &slotErr)
	require.Len(t, slotErr.Alternatives, 3)
	assert.Equal(t, at(13, 0), slotErr.Alternatives[0].Datetime)
	assert.Equal(t, at(13, 30), slotErr.Alternatives[1].Datetime)
	assert.Equal(t, at(15, 0), slotErr.Alternatives[2].Datetime)
	assert.Zero(t, client.CallCount("CreateBooking"))
}

func TestCreateBooking_RetriesTransientWithSameKey(t *testing.T) {
	client := NewMockClient()
	client.Slots = []Slot{{Datetime: at(14, 0), StaffID: 1}}
	client.FailNext("CreateBooking", &APIError{StatusCode: 502, Message: "bad gateway"})
	svc := newTestService(client, nil)

	record, err := svc.CreateBooking(context.Background(), validRequest())
	require.NoError(t, err)
	assert.NotNil(t, record)

	require.Len(t, client.CreateRequests, 2)
	assert.Equal(t, client.CreateRequests[0].IdempotencyKey, client.CreateRequests[1].IdempotencyKey)
}

func TestCreateBooking_SlotTakenIsNotRetried(t *testing.T) {
	client := NewMockClient()
	client.Slots = []Slot{{Datetime: at(14, 0), StaffID: 1}}
	client.FailNext("CreateBooking", &APIError{StatusCode: 422, Message: "Время уже занято"})
	svc := newTestService(client, nil)

	_, err := svc.CreateBooking(context.Background(), validRequest())
	require.Error(t, err)
	assert.Equal(t, ClassSlotUnavailable, ClassifyError(err))
	assert.Equal(t, 1, client.CallCount("CreateBooking"))
}

func TestSearchSlots_ParallelAcrossStaff(t *testing.T) {
	client := NewMockClient()
	client.Slots = []Slot{
		{Datetime: at(12, 0), StaffID: 2},
		{Datetime: at(10, 0), StaffID: 1},
		{Datetime: at(11, 0), StaffID: 3},
	}
	svc := newTestService(client, nil)

	slots, err := svc.SearchSlots(context.Background(), SlotQuery{CompanyID: testCompany, Date: day, StaffIDs: []int{1, 2, 3}})
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, 1, slots[0].StaffID)
	assert.Equal(t, 3, slots[1].StaffID)
	assert.Equal(t, 2, slots[2].StaffID)
	assert.Equal(t, 3, client.CallCount("GetAvailableSlots"))
}

func TestSearchSlots_PartialStaffFailureKeepsResults(t *testing.T) {
	client := NewMockClient()
	client.Slots = []Slot{
		{Datetime: at(10, 0), StaffID: 1},
		{Datetime: at(11, 0), StaffID: 2},
	}
	client.FailNext("GetAvailableSlots", &APIError{StatusCode: 400, Message: "bad staff"})
	svc := newTestService(client, nil)

	slots, err := svc.SearchSlots(context.Background(), SlotQuery{CompanyID: testCompany, Date: day, StaffIDs: []int{1, 2}})
	require.NoError(t, err)
	assert.Len(t, slots, 1)
	assert.Equal(t, 2, client.CallCount("GetAvailableSlots"))
}

func TestSearchSlots_AllStaffFailReturnsError(t *testing.T) {
	client := NewMockClient()
	client.Slots = []Slot{{Datetime: at(10, 0), StaffID: 1}}
	client.FailNext("GetAvailableSlots", &APIError{StatusCode: 400, Message: "bad staff"})
	client.FailNext("GetAvailableSlots", &APIError{StatusCode: 400, Message: "bad staff"})
	svc := newTestService(client, nil)

	slots, err := svc.SearchSlots(context.Background(), SlotQuery{CompanyID: testCompany, Date: day, StaffIDs: []int{1, 2}})
	require.Error(t, err)
	assert.Nil(t, slots)
	assert.Contains(t, err.Error(), "bad staff")
	assert.Equal(t, ClassPermanent, ClassifyError(err))
}

func TestSearchSlots_BreakerOpenAcrossStaff(t *testing.T) {
	client := NewMockClient()
	client.Slots = []Slot{{Datetime: at(10, 0), StaffID: 1}}
	svc := newTestService(client, nil)
	svc.Breaker().ForceOpen()

	slots, err := svc.SearchSlots(context.Background(), SlotQuery{CompanyID: testCompany, Date: day, StaffIDs: []int{1, 2}})
	require.Error(t, err)
	assert.Nil(t, slots)
	assert.True(t, breaker.IsOpen(err))
	assert.Equal(t, 0, client.CallCount("GetAvailableSlots"))
}

func TestNearestSlots(t *testing.T) {
	slots := []Slot{{Datetime: at(13, 0)}, {Datetime: at(15, 0)}, {Datetime: at(9, 0)}}
	got := NearestSlots(slots, at(14, 0), 2)
	require.Len(t, got, 2)
	// Equal distance: both kept, chronological.
	assert.Equal(t, at(13, 0), got[0].Datetime)
	assert.Equal(t, at(15, 0), got[1].Datetime)

	assert.Nil(t, NearestSlots(nil, at(14, 0), 3))
}

func TestCancelBooking_Ownership(t *testing.T) {
	ctx := context.Background()

	t.Run("OwnerCanCancel", func(t *testing.T) {
		client := NewMockClient()
		client.Records = []*Record{{ID: 5, CompanyID: testCompany, Phone: testPhone, Datetime: at(12, 0)}}
		owners := newOwners()
		owners.rows[5] = &store.BookingOwnership{RecordID: 5, CompanyID: testCompany, Phone: testPhone}
		svc := newTestService(client, owners)

		require.NoError(t, svc.CancelBooking(ctx, testCompany, 5, testPhone))
		assert.True(t, client.Records[0].Deleted)
		assert.Equal(t, store.BookingStatusCancelled, owners.rows[5].Status)
	})

	t.Run("OtherPhoneIsRejected", func(t *testing.T) {
		client := NewMockClient()
		client.Records = []*Record{{ID: 5, CompanyID: testCompany, Phone: testPhone}}
		owners := newOwners()
		owners.rows[5] = &store.BookingOwnership{RecordID: 5, CompanyID: testCompany, Phone: testPhone}
		svc := newTestService(client, owners)

		err := svc.CancelBooking(ctx, testCompany, 5, "79990000000")
		assert.ErrorIs(t, err, ErrNotOwner)
		assert.Zero(t, client.CallCount("CancelBooking"))
	})

	t.Run("UntrackedRecordFromClientList", func(t *testing.T) {
		client := NewMockClient()
		client.Records = []*Record{{ID: 7, CompanyID: testCompany, Phone: testPhone}}
		owners := newOwners()
		svc := newTestService(client, owners)

		require.NoError(t, svc.CancelBooking(ctx, testCompany, 7, testPhone))
		require.NotNil(t, owners.rows[7])
		assert.Equal(t, store.BookingStatusCancelled, owners.rows[7].Status)
	})

	t.Run("UntrackedForeignRecord", func(t *testing.T) {
		client := NewMockClient()
		client.Records = []*Record{{ID: 8, CompanyID: testCompany, Phone: "79990000000"}}
		svc := newTestService(client, newOwners())

		assert.ErrorIs(t, svc.CancelBooking(ctx, testCompany, 8, testPhone), ErrNotOwner)
	})

	t.Run("MissingID", func(t *testing.T) {
		client := NewMockClient()
		svc := newTestService(client, newOwners())
		assert.ErrorIs(t, svc.CancelBooking(ctx, testCompany, 0, testPhone), ErrValidation)
		assert.Zero(t, client.CallCount("GetClientBookings"))
	})
}

func TestRescheduleConfirmNoShow(t *testing.T) {
	ctx := context.Background()
	client := NewMockClient()
	client.Records = []*Record{{ID: 9, CompanyID: testCompany, Phone: testPhone, Datetime: at(10, 0)}}
	owners := newOwners()
	owners.rows[9] = &store.BookingOwnership{RecordID: 9, CompanyID: testCompany, Phone: testPhone}
	svc := newTestService(client, owners)

	require.NoError(t, svc.RescheduleBooking(ctx, testCompany, 9, testPhone, at(16, 0)))
	assert.Equal(t, at(16, 0), client.Records[0].Datetime)
	assert.ErrorIs(t, svc.RescheduleBooking(ctx, testCompany, 9, testPhone, time.Time{}), ErrValidation)

	require.NoError(t, svc.ConfirmBooking(ctx, testCompany, 9, testPhone))
	assert.Equal(t, store.BookingStatusConfirmed, owners.rows[9].Status)

	require.NoError(t, svc.MarkNoShow(ctx, testCompany, 9, testPhone))
	assert.Equal(t, store.BookingStatusNoShow, owners.rows[9].Status)
}

func TestGetClientBookings_UpcomingOnly(t *testing.T) {
	client := NewMockClient()
	client.Records = []*Record{
		{ID: 1, CompanyID: testCompany, Phone: testPhone, Datetime: at(18, 0)},
		{ID: 2, CompanyID: testCompany, Phone: testPhone, Datetime: at(9, 0)},
		{ID: 3, CompanyID: testCompany, Phone: testPhone, Datetime: at(12, 0)},
		{ID: 4, CompanyID: testCompany, Phone: testPhone, Datetime: at(13, 0), Deleted: true},
	}
	svc := newTestService(client, nil)

	list, err := svc.GetClientBookings(context.Background(), testCompany, testPhone, at(10, 0))
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(3), list[0].ID)
	assert.Equal(t, int64(1), list[1].ID)
}

func TestBreakerOpenStopsRetries(t *testing.T) {
	client := NewMockClient()
	for i := 0; i < 5; i++ {
		client.FailNext("GetAvailableSlots", &APIError{StatusCode: 503, Message: "unavailable"})
	}
	cb := breaker.New(BreakerName, breaker.Config{FailureThreshold: 2, ResetTimeout: time.Minute, Timeout: time.Second})
	svc := newTestService(client, nil, WithBreaker(cb))

	_, err := svc.SearchSlots(context.Background(), SlotQuery{CompanyID: testCompany, Date: day})
	require.Error(t, err)
	assert.True(t, breaker.IsOpen(err))
	assert.Equal(t, 2, client.CallCount("GetAvailableSlots"))
	assert.Equal(t, breaker.Open, svc.Breaker().State())
}

func TestOwnershipStoreFailureDoesNotFailCreate(t *testing.T) {
	client := NewMockClient()
	client.Slots = []Slot{{Datetime: at(14, 0), StaffID: 1}}
	owners := newOwners()
	owners.err = errors.New("db down")
	svc := newTestService(client, owners)

	_, err := svc.CreateBooking(context.Background(), validRequest())
	require.NoError(t, err)
}

func TestLogsCarryRequestID(t *testing.T) {
	client := NewMockClient()
	client.Slots = []Slot{{Datetime: at(14, 0), StaffID: 1}}
	svc := newTestService(client, nil)

	var buf bytes.Buffer
	requestLogger := slog.New(slog.NewJSONHandler(&buf, nil))
	rc := observability.NewRequestContextWithID(requestLogger, "req-42", testPhone, testCompany)
	ctx := observability.WithRequestContext(context.Background(), rc)

	_, err := svc.CreateBooking(ctx, validRequest())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"msg":"booking created"`)
	assert.Contains(t, buf.String(), `"request_id":"req-42"`)
}
