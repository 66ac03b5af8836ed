package store

import (
	"context"

	"github.com/vosarsen/ai-admin-v2-sub004/internal/profile"
)

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) GetDialogContext(ctx context.Context, find *FindDialogContext) (*DialogContext, error) {
	return s.driver.GetDialogContext(ctx, find)
}

func (s *Store) UpdateDialogContext(ctx context.Context, update *UpdateDialogContext) (*DialogContext, error) {
	return s.driver.UpdateDialogContext(ctx, update)
}

func (s *Store) ClearDialogContext(ctx context.Context, find *FindDialogContext) error {
	return s.driver.ClearDialogContext(ctx, find)
}

func (s *Store) GetClientPreferences(ctx context.Context, find *FindClientPreferences) (*ClientPreferences, error) {
	return s.driver.GetClientPreferences(ctx, find)
}

func (s *Store) UpsertClientPreferences(ctx context.Context, upsert *UpsertClientPreferences) (*ClientPreferences, error) {
	return s.driver.UpsertClientPreferences(ctx, upsert)
}

func (s *Store) CreateConversationMessage(ctx context.Context, create *ConversationMessage) (*ConversationMessage, error) {
	return s.driver.CreateConversationMessage(ctx, create)
}

func (s *Store) ListConversationMessages(ctx context.Context, find *FindConversationMessage) ([]*ConversationMessage, error) {
	return s.driver.ListConversationMessages(ctx, find)
}

func (s *Store) UpsertBookingOwnership(ctx context.Context, upsert *UpsertBookingOwnership) (*BookingOwnership, error) {
	return s.driver.UpsertBookingOwnership(ctx, upsert)
}

func (s *Store) ListBookingOwnerships(ctx context.Context, find *FindBookingOwnership) ([]*BookingOwnership, error) {
	return s.driver.ListBookingOwnerships(ctx, find)
}

// GetBookingOwnership returns nil, nil when the record has no owner row.
func (s *Store) GetBookingOwnership(ctx context.Context, recordID int64, companyID int) (*BookingOwnership, error) {
	list, err := s.driver.ListBookingOwnerships(ctx, &FindBookingOwnership{RecordID: &recordID, CompanyID: companyID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) UpsertOperationMetrics(ctx context.Context, upsert *UpsertOperationMetrics) (*OperationMetrics, error) {
	return s.driver.UpsertOperationMetrics(ctx, upsert)
}

func (s *Store) ListOperationMetrics(ctx context.Context, find *FindOperationMetrics) ([]*OperationMetrics, error) {
	return s.driver.ListOperationMetrics(ctx, find)
}

func (s *Store) DeleteOperationMetrics(ctx context.Context, delete *DeleteOperationMetrics) error {
	return s.driver.DeleteOperationMetrics(ctx, delete)
}
