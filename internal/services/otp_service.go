package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"gamecafe_backend/internal/events"
	"gamecafe_backend/internal/models"
	"gamecafe_backend/internal/repositories"
	"gamecafe_backend/pkg/utils"

	"golang.org/x/crypto/bcrypt"
)

const otpLength = 6

// OTPService issues and verifies the single-use codes that gate mobile bookings.
type OTPService interface {
	// Issue returns a fresh code and the hash to store with the booking.
	Issue() (code string, hash string, err error)
	Verify(ctx context.Context, scope Scope, bookingID int64, code string) error
}

type otpService struct {
	catalogRepo repositories.CatalogRepository
	bookingRepo repositories.BookingRepository
	publisher   events.Publisher
	now         Clock
}

// NewOTPService creates a new instance of OTPService.
func NewOTPService(
	cr repositories.CatalogRepository,
	br repositories.BookingRepository,
	publisher events.Publisher,
	clock Clock,
) OTPService {
	if clock == nil {
		clock = systemClock
	}
	return &otpService{catalogRepo: cr, bookingRepo: br, publisher: publisher, now: clock}
}

func (s *otpService) Issue() (string, string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", "", fmt.Errorf("generating otp: %w", err)
	}
	code := fmt.Sprintf("%0*d", otpLength, n.Int64())

	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("hashing otp: %w", err)
	}
	return code, string(hash), nil
}

// IsWellFormedOTP reports whether code is exactly six ASCII digits.
func IsWellFormedOTP(code string) bool {
	if len(code) != otpLength {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func (s *otpService) Verify(ctx context.Context, scope Scope, bookingID int64, code string) error {
	if !IsWellFormedOTP(code) {
		return fmt.Errorf("%w: otp must be %d digits", ErrValidation, otpLength)
	}
	if _, err := authorizeCafe(ctx, s.catalogRepo, scope); err != nil {
		return err
	}
	booking, err := loadBooking(ctx, s.bookingRepo, scope, bookingID)
	if err != nil {
		return err
	}
	if err := checkOTPVerifiable(booking); err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(booking.OTPHash), []byte(code)) != nil {
		utils.LogWarn("OTP mismatch", map[string]interface{}{"booking_id": bookingID, "cafe_id": scope.CafeID})
		return ErrOTPInvalid
	}

	now := s.now()
	if err := s.bookingRepo.ConsumeOTP(ctx, scope.CafeID, bookingID, now); err != nil {
		if !errors.Is(err, repositories.ErrConflict) {
			return err
		}
		current, rerr := loadBooking(ctx, s.bookingRepo, scope, bookingID)
		if rerr != nil {
			return rerr
		}
		if stateErr := checkOTPVerifiable(current); stateErr != nil {
			return stateErr
		}
		return ErrOTPConsumed
	}

	utils.LogInfo("OTP verified", map[string]interface{}{"booking_id": bookingID, "cafe_id": scope.CafeID})
	s.publisher.Publish(ctx, events.Event{
		Type:      events.OTPVerified,
		CafeID:    scope.CafeID,
		BookingID: bookingID,
		Status:    string(booking.Status),
		At:        now,
	})
	return nil
}

func checkOTPVerifiable(b *models.Booking) error {
	if b.Status != models.BookingStatusBooked || b.PermanentlyCancelled {
		return fmt.Errorf("%w: booking is %s", ErrWrongState, b.Status)
	}
	if !b.RequiresOTP() {
		return fmt.Errorf("%w: booking has no otp", ErrOTPInvalid)
	}
	if b.OTPConsumedAt != nil {
		return ErrOTPConsumed
	}
	return nil
}
