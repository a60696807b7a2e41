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

	"github.com/shopspring/decimal"
)

// ExtendRequest adds time to a booking. Amount overrides the computed
// extension price; TerminalIDs, when given, must all belong to the booking.
type ExtendRequest struct {
	HoursToAdd  float64          `json:"hoursToAdd"`
	Amount      *decimal.Decimal `json:"amount"`
	TerminalIDs []string         `json:"terminalIds"`
}

// ExtensionService extends booked or running sessions.
type ExtensionService interface {
	Extend(ctx context.Context, scope Scope, bookingID int64, req ExtendRequest) (*models.Booking, error)
	ConfirmExtensionPayment(ctx context.Context, scope Scope, bookingID int64, status models.PaymentStatus) (*models.Booking, error)
}

type extensionService struct {
	catalogRepo repositories.CatalogRepository
	bookingRepo repositories.BookingRepository
	publisher   events.Publisher
	now         Clock
}

// NewExtensionService creates a new instance of ExtensionService.
func NewExtensionService(
	cr repositories.CatalogRepository,
	br repositories.BookingRepository,
	publisher events.Publisher,
	clock Clock,
) ExtensionService {
	if clock == nil {
		clock = systemClock
	}
	return &extensionService{catalogRepo: cr, bookingRepo: br, publisher: publisher, now: clock}
}

func (s *extensionService) Extend(ctx context.Context, scope Scope, bookingID int64, req ExtendRequest) (*models.Booking, error) {
	if !utils.IsHalfHourMultiple(req.HoursToAdd) {
		return nil, fmt.Errorf("%w: hoursToAdd must be a positive multiple of 0.5", ErrValidation)
	}
	if req.Amount != nil && req.Amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}

	cafe, err := authorizeCafe(ctx, s.catalogRepo, scope)
	if err != nil {
		return nil, err
	}
	booking, err := loadBooking(ctx, s.bookingRepo, scope, bookingID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if err := checkExtendable(booking, now); err != nil {
		return nil, err
	}
	if err := checkTerminalSubset(booking, req.TerminalIDs); err != nil {
		return nil, err
	}

	amount, err := extensionAmount(cafe, booking, req)
	if err != nil {
		return nil, err
	}

	updated, err := s.bookingRepo.ExtendBooking(ctx, scope.CafeID, bookingID, req.HoursToAdd, amount, now)
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return nil, fmt.Errorf("%w: booking can no longer be extended", ErrWrongState)
		}
		utils.LogError(err, "Failed to extend booking", map[string]interface{}{"booking_id": bookingID})
		return nil, err
	}

	utils.LogInfo("Booking extended", map[string]interface{}{
		"booking_id":  bookingID,
		"cafe_id":     scope.CafeID,
		"hours_added": req.HoursToAdd,
		"amount":      amount.StringFixed(2),
	})
	s.publisher.Publish(ctx, events.Event{
		Type:      events.BookingExtended,
		CafeID:    scope.CafeID,
		BookingID: bookingID,
		Terminals: updated.AssignedSystems.TerminalIDs(),
		Status:    string(updated.Status),
		At:        now,
		Data:      map[string]interface{}{"hoursAdded": req.HoursToAdd, "amount": amount.StringFixed(2)},
	})
	return updated, nil
}

func checkExtendable(b *models.Booking, now time.Time) error {
	if b.PermanentlyCancelled {
		return fmt.Errorf("%w: booking was cancelled", ErrWrongState)
	}
	switch b.Status {
	case models.BookingStatusBooked:
		return nil
	case models.BookingStatusActive:
		if b.SessionStartTime == nil || Remaining(*b.SessionStartTime, b.TotalHours(), now).Expired {
			return fmt.Errorf("%w: session has already expired", ErrWrongState)
		}
		return nil
	default:
		return fmt.Errorf("%w: booking is %s", ErrWrongState, b.Status)
	}
}

func checkTerminalSubset(b *models.Booking, terminalIDs []string) error {
	if len(terminalIDs) == 0 {
		return nil
	}
	assigned := map[string]bool{}
	for _, id := range b.AssignedSystems.TerminalIDs() {
		assigned[id] = true
	}
	for _, id := range terminalIDs {
		if !assigned[id] {
			return fmt.Errorf("%w: terminal %q is not assigned to this booking", ErrValidation, id)
		}
	}
	return nil
}

// extensionAmount prices the extension: an explicit amount wins, otherwise the
// assigned terminals' hourly prices, otherwise the booked requirements' prices.
func extensionAmount(cafe *models.Cafe, b *models.Booking, req ExtendRequest) (decimal.Decimal, error) {
	if req.Amount != nil {
		return *req.Amount, nil
	}
	hours := decimal.NewFromFloat(req.HoursToAdd)

	if len(b.AssignedSystems) > 0 {
		total := decimal.Zero
		for _, sys := range b.AssignedSystems {
			t, ok := cafe.Terminal(sys.TerminalID)
			if !ok {
				return decimal.Zero, fmt.Errorf("%w: terminal %q no longer exists", ErrValidation, sys.TerminalID)
			}
			total = total.Add(t.PricePerHour.Mul(hours))
		}
		return total, nil
	}

	total := decimal.Zero
	for _, r := range b.SystemsBooked {
		price, ok := unitPrice(cafe, r.RoomType, r.TerminalType)
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: no %q terminal in room %q", ErrValidation, r.TerminalType, r.RoomType)
		}
		total = total.Add(price.Mul(decimal.NewFromInt(int64(r.NumberOfTerminals))).Mul(hours))
	}
	return total, nil
}

// unitPrice is the hourly price of the first terminal of the given type in the room.
func unitPrice(cafe *models.Cafe, roomName, terminalType string) (decimal.Decimal, bool) {
	roomKey, typeKey := utils.NormalizeKey(roomName), utils.NormalizeKey(terminalType)
	for _, room := range cafe.Rooms {
		if utils.NormalizeKey(room.Name) != roomKey {
			continue
		}
		for _, t := range room.Terminals {
			if utils.NormalizeKey(t.Type) == typeKey {
				return t.PricePerHour, true
			}
		}
	}
	return decimal.Zero, false
}

func (s *extensionService) ConfirmExtensionPayment(ctx context.Context, scope Scope, bookingID int64, status models.PaymentStatus) (*models.Booking, error) {
	if status != models.PaymentStatusCompleted && status != models.PaymentStatusFailed {
		return nil, fmt.Errorf("%w: status must be completed or failed", ErrValidation)
	}
	if _, err := authorizeCafe(ctx, s.catalogRepo, scope); err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := s.bookingRepo.SetExtensionPaymentStatus(ctx, scope.CafeID, bookingID, status, now)
	if err != nil {
		if !errors.Is(err, repositories.ErrConflict) {
			return nil, err
		}
		if _, lerr := loadBooking(ctx, s.bookingRepo, scope, bookingID); lerr != nil {
			return nil, lerr
		}
		return nil, fmt.Errorf("%w: no extension payment is pending", ErrWrongState)
	}

	s.publisher.Publish(ctx, events.Event{
		Type:      events.ExtensionPaymentRecorded,
		CafeID:    scope.CafeID,
		BookingID: bookingID,
		Status:    string(status),
		At:        now,
	})
	return updated, nil
}
