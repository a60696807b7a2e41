package services

import (
	"context"
	"testing"
	"time"

	"gamecafe_backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensionService_Extend_ActiveSessionShiftsEnd(t *testing.T) {
	env := newTestEnv(t)
	b := env.book(t, 2, 1)
	active := env.assign(t, b.ID, "PC-1", "PC-2")
	env.clock.Advance(10 * time.Minute)

	updated, err := env.extension.Extend(context.Background(), env.scope, b.ID, ExtendRequest{HoursToAdd: 0.5})

	require.NoError(t, err)
	assert.Equal(t, 0.5, updated.ExtendedTime)
	assert.True(t, updated.SessionEndTime.Equal(active.SessionEndTime.Add(30*time.Minute)))
	assert.True(t, updated.SessionStartTime.Equal(*active.SessionStartTime))
	// 2 terminals x 200/h x 0.5h
	assert.True(t, decimal.NewFromInt(200).Equal(updated.ExtensionPaymentAmount), updated.ExtensionPaymentAmount.String())
	assert.Equal(t, models.PaymentStatusPending, updated.ExtensionPaymentStatus)
	assert.True(t, active.TotalPrice.Add(decimal.NewFromInt(200)).Equal(updated.TotalPrice))
}

func TestExtensionService_Extend_BookedBookingUsesRequirementPrice(t *testing.T) {
	env := newTestEnv(t)
	b := env.book(t, 1, 1)

	updated, err := env.extension.Extend(context.Background(), env.scope, b.ID, ExtendRequest{HoursToAdd: 1.5})

	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusBooked, updated.Status)
	assert.Equal(t, 1.5, updated.ExtendedTime)
	assert.Nil(t, updated.SessionEndTime)
	assert.True(t, decimal.NewFromInt(300).Equal(updated.ExtensionPaymentAmount))

	active := env.assign(t, b.ID, "PC-1")
	assert.True(t, active.SessionEndTime.Equal(active.SessionStartTime.Add(150*time.Minute)))
}

func TestExtensionService_Extend_ExplicitAmount(t *testing.T) {
	env := newTestEnv(t)
	b := env.book(t, 1, 1)
	amount := decimal.RequireFromString("99.50")

	updated, err := env.extension.Extend(context.Background(), env.scope, b.ID, ExtendRequest{HoursToAdd: 1, Amount: &amount})

	require.NoError(t, err)
	assert.True(t, amount.Equal(updated.ExtensionPaymentAmount))
}

func TestExtensionService_Extend_Validation(t *testing.T) {
	env := newTestEnv(t)
	b := env.book(t, 1, 1)
	env.assign(t, b.ID, "PC-1")
	negative := decimal.NewFromInt(-1)

	for _, req := range []ExtendRequest{
		{HoursToAdd: 0},
		{HoursToAdd: -0.5},
		{HoursToAdd: 0.25},
		{HoursToAdd: 1, Amount: &negative},
		{HoursToAdd: 1, TerminalIDs: []string{"PC-2"}},
	} {
		_, err := env.extension.Extend(context.Background(), env.scope, b.ID, req)
		assert.ErrorIs(t, err, ErrValidation, "%+v", req)
	}
	assert.Zero(t, env.booking(t, b.ID).ExtendedTime)
}

func TestExtensionService_Extend_TerminalSubsetExtendsWholeBooking(t *testing.T) {
	env := newTestEnv(t)
	b := env.book(t, 2, 1)
	active := env.assign(t, b.ID, "PC-1", "PC-2")

	updated, err := env.extension.Extend(context.Background(), env.scope, b.ID, ExtendRequest{HoursToAdd: 1, TerminalIDs: []string{"PC-2"}})

	require.NoError(t, err)
	assert.True(t, updated.SessionEndTime.Equal(active.SessionEndTime.Add(time.Hour)))
}

func TestExtensionService_Extend_WrongState(t *testing.T) {
	env := newTestEnv(t)

	expired := env.book(t, 1, 1)
	env.assign(t, expired.ID, "PC-1")
	env.clock.Advance(time.Hour)
	_, err := env.extension.Extend(context.Background(), env.scope, expired.ID, ExtendRequest{HoursToAdd: 1})
	assert.ErrorIs(t, err, ErrWrongState)

	cancelled := env.book(t, 1, 1)
	_, _, err = env.cancellation.Cancel(context.Background(), env.scope, cancelled.ID)
	require.NoError(t, err)
	_, err = env.extension.Extend(context.Background(), env.scope, cancelled.ID, ExtendRequest{HoursToAdd: 1})
	assert.ErrorIs(t, err, ErrWrongState)
	assert.Zero(t, env.booking(t, cancelled.ID).ExtendedTime)
}

func TestExtensionService_ConfirmExtensionPayment(t *testing.T) {
	env := newTestEnv(t)
	b := env.book(t, 1, 1)

	_, err := env.extension.ConfirmExtensionPayment(context.Background(), env.scope, b.ID, models.PaymentStatusCompleted)
	assert.ErrorIs(t, err, ErrWrongState)

	_, err = env.extension.Extend(context.Background(), env.scope, b.ID, ExtendRequest{HoursToAdd: 1})
	require.NoError(t, err)

	_, err = env.extension.ConfirmExtensionPayment(context.Background(), env.scope, b.ID, models.PaymentStatusPending)
	assert.ErrorIs(t, err, ErrValidation)

	updated, err := env.extension.ConfirmExtensionPayment(context.Background(), env.scope, b.ID, models.PaymentStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, updated.ExtensionPaymentStatus)

	_, err = env.extension.ConfirmExtensionPayment(context.Background(), env.scope, b.ID, models.PaymentStatusFailed)
	assert.ErrorIs(t, err, ErrWrongState)

	_, err = env.extension.ConfirmExtensionPayment(context.Background(), env.scope, b.ID+1000, models.PaymentStatusFailed)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtensionService_ConfirmExtensionPayment_CoversEveryPendingExtension(t *testing.T) {
	env := newTestEnv(t)
	b := env.book(t, 1, 1)
	first := decimal.NewFromInt(200)
	second := decimal.NewFromInt(100)

	_, err := env.extension.Extend(context.Background(), env.scope, b.ID, ExtendRequest{HoursToAdd: 1, Amount: &first})
	require.NoError(t, err)
	updated, err := env.extension.Extend(context.Background(), env.scope, b.ID, ExtendRequest{HoursToAdd: 0.5, Amount: &second})
	require.NoError(t, err)
	assert.Equal(t, "300", updated.ExtensionPaymentAmount.String())
	assert.Equal(t, models.PaymentStatusPending, updated.ExtensionPaymentStatus)

	confirmed, err := env.extension.ConfirmExtensionPayment(context.Background(), env.scope, b.ID, models.PaymentStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, "300", confirmed.ExtensionPaymentAmount.String())
	assert.Equal(t, 1.5, confirmed.ExtendedTime)
}
