// Package booking is the booking domain service: slot search and validation,
// booking mutations with ownership tracking, and a resilience layer (circuit
// breaker, retry with backoff, idempotency keys) around the CRM booking API.
package booking

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/breaker"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/metrics"
	"github.com/vosarsen/ai-admin-v2-sub004/plugin/ai/ratelimit"
	"github.com/vosarsen/ai-admin-v2-sub004/server/internal/observability"
	"github.com/vosarsen/ai-admin-v2-sub004/store"
)

const (
	// BreakerName is the registry name of the booking API breaker.
	BreakerName = "booking-api"

	// MaxAlternatives bounds the alternatives offered for an unavailable slot.
	MaxAlternatives = 3

	// maxParallelStaff bounds concurrent per-staff slot requests.
	maxParallelStaff = 4
)

// Service implements booking operations on top of a Client.
type Service struct {
	client   Client
	owners   OwnershipStore
	breaker  *breaker.CircuitBreaker
	retry    RetryConfig
	validate *validator.Validate
	metrics  metrics.MetricsService
	logger   *slog.Logger
	newKey   func() string
}

// Option configures a Service.
type Option func(*Service)

// WithBreaker sets the breaker guarding the booking API.
func WithBreaker(cb *breaker.CircuitBreaker) Option {
	return func(s *Service) { s.breaker = cb }
}

// WithRetry sets the retry policy for transient failures.
func WithRetry(cfg RetryConfig) Option {
	return func(s *Service) { s.retry = cfg }
}

// WithMetrics records one operation sample per API call.
func WithMetrics(m metrics.MetricsService) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithKeyGenerator replaces the idempotency key generator.
func WithKeyGenerator(fn func() string) Option {
	return func(s *Service) { s.newKey = fn }
}

// NewService creates a booking service. owners may be nil to disable ownership tracking.
func NewService(client Client, owners OwnershipStore, opts ...Option) *Service {
	s := &Service{
		client:   client,
		owners:   owners,
		retry:    DefaultRetryConfig(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   slog.Default(),
		newKey:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = breaker.New(BreakerName, breaker.DefaultConfig(), breaker.WithLogger(s.logger))
	}
	return s
}

// Breaker returns the breaker guarding the booking API.
func (s *Service) Breaker() *breaker.CircuitBreaker {
	return s.breaker
}

// log returns the request logger carried by ctx, if any.
func (s *Service) log(ctx context.Context) *slog.Logger {
	return observability.LoggerFromContext(ctx, s.logger)
}

// call runs fn through retry and the breaker, recording one metrics sample.
// Each attempt passes through the breaker, so an opened breaker stops retries.
func (s *Service) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	done := metrics.Track(ctx, s.metrics, metrics.KindOperation, op)
	attempts, err := Retry(ctx, s.retry, func(ctx context.Context, attempt int) error {
		err := s.breaker.Execute(ctx, fn)
		if err != nil && attempt < s.retry.normalized().MaxAttempts && ShouldRetry(err) {
			s.log(ctx).Warn("booking api call failed, retrying",
				slog.String("op", op),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
		}
		return err
	})
	done(err)
	if err != nil {
		return errors.Wrapf(err, "%s after %d attempt(s)", op, attempts)
	}
	return nil
}

// SearchSlots returns available slots ordered by time.
// Without StaffID and with StaffIDs, staff members are queried in parallel.
func (s *Service) SearchSlots(ctx context.Context, q SlotQuery) ([]Slot, error) {
	if q.StaffID != 0 || len(q.StaffIDs) == 0 {
		var slots []Slot
		err := s.call(ctx, "booking.slots", func(ctx context.Context) error {
			var err error
			slots, err = s.client.GetAvailableSlots(ctx, q)
			return err
		})
		if err != nil {
			return nil, err
		}
		sortSlots(slots)
		return slots, nil
	}

	var (
		mu        sync.Mutex
		all       []Slot
		errs      []error
		succeeded int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelStaff)
	for _, staffID := range q.StaffIDs {
		perStaff := q
		perStaff.StaffID = staffID
		perStaff.StaffIDs = nil
		g.Go(func() error {
			slots, err := s.SearchSlots(gctx, perStaff)
			if err != nil {
				s.log(gctx).Warn("slot search failed for staff",
					slog.Int("staff_id", perStaff.StaffID),
					slog.String("error", err.Error()),
				)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			for i := range slots {
				if slots[i].StaffID == 0 {
					slots[i].StaffID = perStaff.StaffID
				}
			}
			mu.Lock()
			all = append(all, slots...)
			succeeded++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// An open breaker or a rate limit applies to every staff member, so
	// partial results would only hide it.
	for _, err := range errs {
		if breaker.IsOpen(err) || ratelimit.IsRateLimited(err) {
			return nil, err
		}
	}
	if succeeded == 0 && len(errs) > 0 {
		return nil, errors.Wrapf(errs[0], "search slots for %d staff", len(q.StaffIDs))
	}
	sortSlots(all)
	return all, nil
}

// ValidateSlot checks that a slot starts at the requested minute.
// Otherwise it returns a *SlotUnavailableError with the nearest alternatives.
func (s *Service) ValidateSlot(ctx context.Context, q SlotQuery, at time.Time) (*Slot, error) {
	q.Date = at
	slots, err := s.SearchSlots(ctx, q)
	if err != nil {
		return nil, err
	}

	want := at.Truncate(time.Minute)
	for i := range slots {
		if slots[i].Datetime.Truncate(time.Minute).Equal(want) {
			return &slots[i], nil
		}
	}
	return nil, &SlotUnavailableError{
		Requested:    at,
		Alternatives: NearestSlots(slots, at, MaxAlternatives),
	}
}

// NearestSlots returns up to n slots closest to at, in chronological order.
// Ties prefer the earlier slot.
func NearestSlots(slots []Slot, at time.Time, n int) []Slot {
	if len(slots) == 0 || n <= 0 {
		return nil
	}
	ranked := make([]Slot, len(slots))
	copy(ranked, slots)
	sort.SliceStable(ranked, func(i, j int) bool {
		di, dj := absDuration(ranked[i].Datetime.Sub(at)), absDuration(ranked[j].Datetime.Sub(at))
		if di != dj {
			return di < dj
		}
		return ranked[i].Datetime.Before(ranked[j].Datetime)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	sortSlots(ranked)
	return ranked
}

// CreateBooking validates input and slot, creates the record and stores ownership.
// The idempotency key is fixed before the first attempt so retries reuse it.
func (s *Service) CreateBooking(ctx context.Context, req *CreateRequest) (*Record, error) {
	if req == nil {
		return nil, errors.Wrap(ErrValidation, "request is nil")
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, errors.Wrap(ErrValidation, err.Error())
	}

	q := SlotQuery{CompanyID: req.CompanyID, ServiceIDs: req.ServiceIDs, StaffID: req.StaffID}
	if _, err := s.ValidateSlot(ctx, q, req.Datetime); err != nil {
		return nil, err
	}

	create := *req
	if create.IdempotencyKey == "" {
		create.IdempotencyKey = s.newKey()
	}

	var record *Record
	err := s.call(ctx, "booking.create", func(ctx context.Context) error {
		var err error
		record, err = s.client.CreateBooking(ctx, &create)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.recordOwnership(ctx, &store.UpsertBookingOwnership{
		RecordID:       record.ID,
		CompanyID:      req.CompanyID,
		Phone:          req.Phone,
		IdempotencyKey: create.IdempotencyKey,
		Status:         store.BookingStatusCreated,
	})
	s.log(ctx).Info("booking created",
		slog.Int64("record_id", record.ID),
		slog.Int("company_id", req.CompanyID),
		slog.String("idempotency_key", create.IdempotencyKey),
	)
	return record, nil
}

// CancelBooking cancels a record owned by phone.
func (s *Service) CancelBooking(ctx context.Context, companyID int, recordID int64, phone string) error {
	return s.mutate(ctx, "booking.cancel", companyID, recordID, phone, store.BookingStatusCancelled,
		func(ctx context.Context) error {
			return s.client.CancelBooking(ctx, companyID, recordID)
		})
}

// RescheduleBooking moves a record owned by phone to datetime.
func (s *Service) RescheduleBooking(ctx context.Context, companyID int, recordID int64, phone string, datetime time.Time) error {
	if datetime.IsZero() {
		return errors.Wrap(ErrValidation, "new datetime is required")
	}
	return s.mutate(ctx, "booking.reschedule", companyID, recordID, phone, "",
		func(ctx context.Context) error {
			return s.client.RescheduleBooking(ctx, companyID, recordID, datetime)
		})
}

// ConfirmBooking confirms a record owned by phone.
func (s *Service) ConfirmBooking(ctx context.Context, companyID int, recordID int64, phone string) error {
	return s.mutate(ctx, "booking.confirm", companyID, recordID, phone, store.BookingStatusConfirmed,
		func(ctx context.Context) error {
			return s.client.ConfirmBooking(ctx, companyID, recordID)
		})
}

// MarkNoShow marks a record owned by phone as a no-show.
func (s *Service) MarkNoShow(ctx context.Context, companyID int, recordID int64, phone string) error {
	return s.mutate(ctx, "booking.no_show", companyID, recordID, phone, store.BookingStatusNoShow,
		func(ctx context.Context) error {
			return s.client.MarkNoShow(ctx, companyID, recordID)
		})
}

func (s *Service) mutate(ctx context.Context, op string, companyID int, recordID int64, phone, status string, fn func(ctx context.Context) error) error {
	if recordID <= 0 {
		return errors.Wrap(ErrValidation, "booking id is required")
	}
	if err := s.checkOwnership(ctx, companyID, recordID, phone); err != nil {
		return err
	}
	if err := s.call(ctx, op, fn); err != nil {
		return err
	}
	if status != "" {
		s.recordOwnership(ctx, &store.UpsertBookingOwnership{
			RecordID:  recordID,
			CompanyID: companyID,
			Phone:     phone,
			Status:    status,
		})
	}
	return nil
}

// GetClientBookings returns the client's upcoming, non-deleted bookings by time.
func (s *Service) GetClientBookings(ctx context.Context, companyID int, phone string, now time.Time) ([]*Record, error) {
	var records []*Record
	err := s.call(ctx, "booking.list", func(ctx context.Context) error {
		var err error
		records, err = s.client.GetClientBookings(ctx, companyID, phone)
		return err
	})
	if err != nil {
		return nil, err
	}

	upcoming := make([]*Record, 0, len(records))
	for _, r := range records {
		if r.Deleted || r.Datetime.Before(now) {
			continue
		}
		upcoming = append(upcoming, r)
	}
	sort.SliceStable(upcoming, func(i, j int) bool {
		return upcoming[i].Datetime.Before(upcoming[j].Datetime)
	})
	return upcoming, nil
}

// checkOwnership accepts a record owned by phone. A record without an ownership
// row is accepted when the CRM lists it among the client's bookings.
func (s *Service) checkOwnership(ctx context.Context, companyID int, recordID int64, phone string) error {
	if s.owners == nil {
		return nil
	}

	owner, err := s.owners.GetBookingOwnership(ctx, recordID, companyID)
	if err != nil {
		s.log(ctx).Warn("ownership lookup failed, falling back to client bookings",
			slog.Int64("record_id", recordID),
			slog.String("error", err.Error()),
		)
	}
	if owner != nil {
		if owner.Phone != phone {
			return errors.Wrapf(ErrNotOwner, "record %d", recordID)
		}
		return nil
	}

	var records []*Record
	err = s.call(ctx, "booking.list", func(ctx context.Context) error {
		var err error
		records, err = s.client.GetClientBookings(ctx, companyID, phone)
		return err
	})
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.ID == recordID {
			s.recordOwnership(ctx, &store.UpsertBookingOwnership{
				RecordID:  recordID,
				CompanyID: companyID,
				Phone:     phone,
				Status:    store.BookingStatusCreated,
			})
			return nil
		}
	}
	return errors.Wrapf(ErrNotOwner, "record %d", recordID)
}

// recordOwnership is best effort: the CRM is the source of truth for the booking.
func (s *Service) recordOwnership(ctx context.Context, upsert *store.UpsertBookingOwnership) {
	if s.owners == nil {
		return
	}
	if _, err := s.owners.UpsertBookingOwnership(ctx, upsert); err != nil {
		s.log(ctx).Error("failed to record booking ownership",
			slog.Int64("record_id", upsert.RecordID),
			slog.String("status", upsert.Status),
			slog.String("error", err.Error()),
		)
	}
}

func sortSlots(slots []Slot) {
	sort.SliceStable(slots, func(i, j int) bool {
		if !slots[i].Datetime.Equal(slots[j].Datetime) {
			return slots[i].Datetime.Before(slots[j].Datetime)
		}
		return slots[i].StaffID < slots[j].StaffID
	})
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
