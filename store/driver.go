package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// DialogContext model related methods.
	GetDialogContext(ctx context.Context, find *FindDialogContext) (*DialogContext, error)
	UpdateDialogContext(ctx context.Context, update *UpdateDialogContext) (*DialogContext, error)
	ClearDialogContext(ctx context.Context, find *FindDialogContext) error

	// ClientPreferences model related methods.
	GetClientPreferences(ctx context.Context, find *FindClientPreferences) (*ClientPreferences, error)
	UpsertClientPreferences(ctx context.Context, upsert *UpsertClientPreferences) (*ClientPreferences, error)

	// ConversationMessage model related methods.
	CreateConversationMessage(ctx context.Context, create *ConversationMessage) (*ConversationMessage, error)
	ListConversationMessages(ctx context.Context, find *FindConversationMessage) ([]*ConversationMessage, error)

	// BookingOwnership model related methods.
	UpsertBookingOwnership(ctx context.Context, upsert *UpsertBookingOwnership) (*BookingOwnership, error)
	ListBookingOwnerships(ctx context.Context, find *FindBookingOwnership) ([]*BookingOwnership, error)

	// OperationMetrics model related methods.
	UpsertOperationMetrics(ctx context.Context, upsert *UpsertOperationMetrics) (*OperationMetrics, error)
	ListOperationMetrics(ctx context.Context, find *FindOperationMetrics) ([]*OperationMetrics, error)
	DeleteOperationMetrics(ctx context.Context, delete *DeleteOperationMetrics) error
}
