package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gamecafe_backend/internal/events"
	"gamecafe_backend/internal/models"
	"gamecafe_backend/internal/repositories"
	"gamecafe_backend/pkg/utils"
)

// DefaultCancelWindow is how long after session start a booking may still be cancelled.
const DefaultCancelWindow = 15 * time.Minute

const refundRetryBatch = 50

// refundClaimLease bounds how long one caller owns a pending refund while the
// calculator runs. An expired claim makes the refund eligible for retry again.
const refundClaimLease = 2 * time.Minute

// CancellationService cancels bookings inside the cancellation window and settles refunds.
type CancellationService interface {
	CanCancel(booking *models.Booking, now time.Time) bool
	Cancel(ctx context.Context, scope Scope, bookingID int64) (*models.Booking, *models.RefundDescriptor, error)
	RetryPendingRefunds(ctx context.Context) (int, error)
}

type cancellationService struct {
	catalogRepo repositories.CatalogRepository
	bookingRepo repositories.BookingRepository
	refundRepo  repositories.RefundRepository
	calculator  RefundCalculator
	publisher   events.Publisher
	window      time.Duration
	now         Clock
}

// NewCancellationService creates a new instance of CancellationService.
// A zero window means DefaultCancelWindow.
func NewCancellationService(
	cr repositories.CatalogRepository,
	br repositories.BookingRepository,
	rr repositories.RefundRepository,
	calculator RefundCalculator,
	publisher events.Publisher,
	window time.Duration,
	clock Clock,
) CancellationService {
	if clock == nil {
		clock = systemClock
	}
	if window <= 0 {
		window = DefaultCancelWindow
	}
	if calculator == nil {
		calculator = NewFullRefundCalculator()
	}
	return &cancellationService{
		catalogRepo: cr,
		bookingRepo: br,
		refundRepo:  rr,
		calculator:  calculator,
		publisher:   publisher,
		window:      window,
		now:         clock,
	}
}

func (s *cancellationService) CanCancel(b *models.Booking, now time.Time) bool {
	return s.cancelError(b, now) == nil
}

// cancelError explains why b cannot be cancelled at now, or returns nil.
func (s *cancellationService) cancelError(b *models.Booking, now time.Time) error {
	if b.PermanentlyCancelled {
		return fmt.Errorf("%w: booking is already cancelled", ErrWrongState)
	}
	if b.Status != models.BookingStatusBooked && b.Status != models.BookingStatusActive {
		return fmt.Errorf("%w: booking is %s", ErrWrongState, b.Status)
	}
	if b.SessionStartTime != nil && now.Sub(*b.SessionStartTime) >= s.window {
		return fmt.Errorf("%w: sessions can only be cancelled within %s of their start", ErrWindowClosed, s.window)
	}
	return nil
}

func (s *cancellationService) Cancel(ctx context.Context, scope Scope, bookingID int64) (*models.Booking, *models.RefundDescriptor, error) {
	if _, err := authorizeCafe(ctx, s.catalogRepo, scope); err != nil {
		return nil, nil, err
	}
	booking, err := loadBooking(ctx, s.bookingRepo, scope, bookingID)
	if err != nil {
		return nil, nil, err
	}

	now := s.now()
	if err := s.cancelError(booking, now); err != nil {
		return nil, nil, err
	}

	cancelled, refund, err := s.bookingRepo.CancelBooking(ctx, scope.CafeID, bookingID, now, now.Add(-s.window))
	if err != nil {
		if !errors.Is(err, repositories.ErrConflict) {
			utils.LogError(err, "Failed to cancel booking", map[string]interface{}{"booking_id": bookingID})
			return nil, nil, err
		}
		current, rerr := loadBooking(ctx, s.bookingRepo, scope, bookingID)
		if rerr != nil {
			return nil, nil, rerr
		}
		if stateErr := s.cancelError(current, now); stateErr != nil {
			return nil, nil, stateErr
		}
		return nil, nil, fmt.Errorf("%w: booking changed concurrently", ErrConflict)
	}

	utils.LogInfo("Booking cancelled", map[string]interface{}{
		"booking_id": bookingID,
		"cafe_id":    scope.CafeID,
		"terminals":  cancelled.AssignedSystems.TerminalIDs(),
		"refund":     refund != nil,
	})
	s.publisher.Publish(ctx, events.Event{
		Type:      events.BookingCancelled,
		CafeID:    scope.CafeID,
		BookingID: bookingID,
		Terminals: cancelled.AssignedSystems.TerminalIDs(),
		Status:    string(cancelled.Status),
		At:        now,
	})

	if refund == nil {
		return cancelled, nil, nil
	}
	d, _ := s.settleRefund(ctx, cancelled, refund)
	return cancelled, d, nil
}

// settleRefund claims the refund, asks the calculator for the outcome and
// stores it. The bool reports whether this call stored a final result. When the
// refund is claimed elsewhere or the calculator fails, the stored state is
// returned and the refund stays pending for the next retry.
func (s *cancellationService) settleRefund(ctx context.Context, booking *models.Booking, refund *models.Refund) (*models.RefundDescriptor, bool) {
	now := s.now()
	fields := map[string]interface{}{"booking_id": booking.ID, "refund_id": refund.ID}

	if err := s.refundRepo.ClaimRefund(ctx, refund.ID, now, refundClaimLease); err != nil {
		if !errors.Is(err, repositories.ErrConflict) {
			utils.LogError(err, "Failed to claim refund", fields)
		}
		return s.storedRefund(ctx, refund), false
	}

	result, err := s.calculator.CalculateRefund(ctx, *booking, booking.Payment)
	if err != nil || result.Status == models.RefundStatusPending {
		msg := "refund is being processed"
		if err != nil {
			utils.LogError(err, "Refund calculation failed, will retry", fields)
		} else if result.Message != "" {
			msg = result.Message
		}
		if aerr := s.refundRepo.RecordRefundAttempt(ctx, refund.ID, msg, now); aerr != nil {
			utils.LogError(aerr, "Failed to record refund attempt", fields)
		}
		pending := refund.Descriptor()
		pending.Message = msg
		return pending, false
	}

	stored, err := s.refundRepo.UpdateRefundResult(ctx, refund.ID, *result, now)
	if err != nil {
		utils.LogError(err, "Failed to store refund result", fields)
		return s.storedRefund(ctx, refund), false
	}

	utils.LogInfo("Refund settled", map[string]interface{}{
		"booking_id": booking.ID,
		"refund_id":  stored.ID,
		"status":     stored.Status,
		"amount":     stored.Amount.StringFixed(2),
	})
	s.publisher.Publish(ctx, events.Event{
		Type:      events.RefundProcessed,
		CafeID:    booking.CafeID,
		BookingID: booking.ID,
		Status:    string(stored.Status),
		At:        now,
		Data:      map[string]interface{}{"amount": stored.Amount.StringFixed(2), "method": stored.Method},
	})
	return stored.Descriptor(), true
}

// storedRefund reports what storage holds for refund, falling back to the
// pending record when it cannot be read.
func (s *cancellationService) storedRefund(ctx context.Context, refund *models.Refund) *models.RefundDescriptor {
	current, err := s.refundRepo.GetRefundByBookingID(ctx, refund.BookingID)
	if err != nil {
		utils.LogError(err, "Failed to reload refund", map[string]interface{}{"refund_id": refund.ID})
		current = refund
	}
	d := current.Descriptor()
	if d.Status == models.RefundStatusPending && d.Message == "" {
		d.Message = "refund is being processed"
	}
	return d
}

func (s *cancellationService) RetryPendingRefunds(ctx context.Context) (int, error) {
	pending, err := s.refundRepo.ListPendingRefunds(ctx, s.now(), refundRetryBatch)
	if err != nil {
		return 0, fmt.Errorf("listing pending refunds: %w", err)
	}

	settled := 0
	for i := range pending {
		rf := &pending[i]
		booking, err := s.bookingRepo.GetBookingByID(ctx, rf.CafeID, rf.BookingID)
		if err != nil {
			utils.LogError(err, "Failed to load booking for pending refund", map[string]interface{}{"refund_id": rf.ID})
			continue
		}
		if _, ok := s.settleRefund(ctx, booking, rf); ok {
			settled++
		}
	}
	return settled, nil
}
