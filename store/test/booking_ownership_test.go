package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vosarsen/ai-admin-v2-sub004/store"
)

func TestBookingOwnershipStore(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	created, err := ts.UpsertBookingOwnership(ctx, &store.UpsertBookingOwnership{
		RecordID:       123,
		CompanyID:      962302,
		Phone:          "79001234567",
		IdempotencyKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, store.BookingStatusCreated, created.Status)

	// A status update must not reassign the owner.
	updated, err := ts.UpsertBookingOwnership(ctx, &store.UpsertBookingOwnership{
		RecordID:  123,
		CompanyID: 962302,
		Phone:     "79990000000",
		Status:    store.BookingStatusCancelled,
	})
	require.NoError(t, err)
	assert.Equal(t, "79001234567", updated.Phone)
	assert.Equal(t, "key-1", updated.IdempotencyKey)
	assert.Equal(t, store.BookingStatusCancelled, updated.Status)

	got, err := ts.GetBookingOwnership(ctx, 123, 962302)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, store.BookingStatusCancelled, got.Status)

	missing, err := ts.GetBookingOwnership(ctx, 999, 962302)
	require.NoError(t, err)
	assert.Nil(t, missing)

	phone := "79001234567"
	list, err := ts.ListBookingOwnerships(ctx, &store.FindBookingOwnership{CompanyID: 962302, Phone: &phone})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
