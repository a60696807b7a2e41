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

// SweeperService completes sessions whose time ran out and releases their terminals.
type SweeperService interface {
	// SweepExpired completes expired sessions of one cafe, or of all cafes when cafeID is 0.
	SweepExpired(ctx context.Context, cafeID int64) ([]int64, error)
	// SweepCafe is SweepExpired for a caller-scoped cafe.
	SweepCafe(ctx context.Context, scope Scope) ([]int64, error)
	// EndSession completes an active session before its time runs out.
	EndSession(ctx context.Context, scope Scope, bookingID int64) (*models.Booking, error)
	// Run sweeps every interval until ctx is done.
	Run(ctx context.Context, interval time.Duration)
}

// RefundRetrier settles refunds left pending by earlier failures.
type RefundRetrier interface {
	RetryPendingRefunds(ctx context.Context) (int, error)
}

type sweeperService struct {
	catalogRepo repositories.CatalogRepository
	bookingRepo repositories.BookingRepository
	refunds     RefundRetrier
	publisher   events.Publisher
	now         Clock
}

// NewSweeperService creates a new instance of SweeperService. refunds may be nil.
func NewSweeperService(
	cr repositories.CatalogRepository,
	br repositories.BookingRepository,
	refunds RefundRetrier,
	publisher events.Publisher,
	clock Clock,
) SweeperService {
	if clock == nil {
		clock = systemClock
	}
	return &sweeperService{catalogRepo: cr, bookingRepo: br, refunds: refunds, publisher: publisher, now: clock}
}

func (s *sweeperService) SweepExpired(ctx context.Context, cafeID int64) ([]int64, error) {
	active, err := s.bookingRepo.ListActiveBookings(ctx, cafeID)
	if err != nil {
		return nil, fmt.Errorf("listing active bookings: %w", err)
	}

	now := s.now()
	completed := []int64{}
	for i := range active {
		b := &active[i]
		if b.SessionStartTime == nil {
			continue
		}
		if !Remaining(*b.SessionStartTime, b.TotalHours(), now).Expired {
			continue
		}

		done, err := s.bookingRepo.ExpireBooking(ctx, b.CafeID, b.ID, now)
		if err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				// ended, cancelled or extended since the listing
				continue
			}
			utils.LogError(err, "Failed to complete expired session", map[string]interface{}{"booking_id": b.ID, "cafe_id": b.CafeID})
			continue
		}
		completed = append(completed, done.ID)
		s.publisher.Publish(ctx, events.Event{
			Type:      events.BookingCompleted,
			CafeID:    done.CafeID,
			BookingID: done.ID,
			Terminals: done.AssignedSystems.TerminalIDs(),
			Status:    string(done.Status),
			At:        now,
			Data:      map[string]interface{}{"reason": "expired"},
		})
	}

	if len(completed) > 0 {
		utils.LogInfo("Expired sessions completed", map[string]interface{}{"count": len(completed), "cafe_id": cafeID, "booking_ids": completed})
	}
	return completed, nil
}

func (s *sweeperService) SweepCafe(ctx context.Context, scope Scope) ([]int64, error) {
	if _, err := authorizeCafe(ctx, s.catalogRepo, scope); err != nil {
		return nil, err
	}
	return s.SweepExpired(ctx, scope.CafeID)
}

func (s *sweeperService) EndSession(ctx context.Context, scope Scope, bookingID int64) (*models.Booking, error) {
	if _, err := authorizeCafe(ctx, s.catalogRepo, scope); err != nil {
		return nil, err
	}
	booking, err := loadBooking(ctx, s.bookingRepo, scope, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusActive {
		return nil, fmt.Errorf("%w: only active sessions can be ended", ErrWrongState)
	}

	now := s.now()
	done, err := s.bookingRepo.CompleteBooking(ctx, scope.CafeID, bookingID, now)
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, fmt.Errorf("%w: session is no longer active", ErrWrongState)
		}
		return nil, err
	}

	utils.LogInfo("Session ended manually", map[string]interface{}{"booking_id": bookingID, "cafe_id": scope.CafeID})
	s.publisher.Publish(ctx, events.Event{
		Type:      events.BookingCompleted,
		CafeID:    scope.CafeID,
		BookingID: bookingID,
		Terminals: done.AssignedSystems.TerminalIDs(),
		Status:    string(done.Status),
		At:        now,
		Data:      map[string]interface{}{"reason": "ended"},
	})
	return done, nil
}

func (s *sweeperService) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	utils.LogInfo("Session sweeper started", map[string]interface{}{"interval": interval.String()})
	for {
		select {
		case <-ctx.Done():
			utils.LogInfo("Session sweeper stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *sweeperService) tick(ctx context.Context) {
	if _, err := s.SweepExpired(ctx, 0); err != nil {
		utils.LogError(err, "Session sweep failed")
	}
	if s.refunds == nil {
		return
	}
	if n, err := s.refunds.RetryPendingRefunds(ctx); err != nil {
		utils.LogError(err, "Refund retry failed")
	} else if n > 0 {
		utils.LogInfo("Pending refunds settled", map[string]interface{}{"count": n})
	}
}
