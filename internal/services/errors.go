package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gamecafe_backend/internal/models"
	"gamecafe_backend/internal/repositories"
)

// --- Service errors, mapped onto HTTP responses by the handlers ---
var (
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrWrongState   = errors.New("booking is not in a state that allows this operation")
	ErrConflict     = errors.New("selected terminal no longer available, please re-select")
	ErrWindowClosed = errors.New("cancellation window has closed")
	ErrOTPConsumed  = errors.New("otp has already been used")
	ErrOTPInvalid   = errors.New("otp is invalid")
)

const (
	RoleOwner = "Owner"
	RoleAdmin = "Admin"
)

// Scope identifies the caller and the cafe a request operates on.
type Scope struct {
	CafeID int64
	UserID int64
	Role   string
}

// Clock returns the current time. Tests inject a fixed one.
type Clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }

// authorizeCafe loads the cafe and hides it from callers who do not own it.
// Admins may act on any cafe.
func authorizeCafe(ctx context.Context, catalog repositories.CatalogRepository, scope Scope) (*models.Cafe, error) {
	cafe, err := catalog.GetCafeByID(ctx, scope.CafeID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: cafe", ErrNotFound)
		}
		return nil, err
	}
	if scope.Role != RoleAdmin && cafe.OwnerID != scope.UserID {
		return nil, fmt.Errorf("%w: cafe", ErrNotFound)
	}
	return cafe, nil
}

// loadBooking reads a booking of the scoped cafe.
func loadBooking(ctx context.Context, bookings repositories.BookingRepository, scope Scope, bookingID int64) (*models.Booking, error) {
	b, err := bookings.GetBookingByID(ctx, scope.CafeID, bookingID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("%w: booking", ErrNotFound)
		}
		return nil, err
	}
	return b, nil
}
