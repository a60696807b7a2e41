package services

import (
	"context"
	"errors"
	"fmt"

	"gamecafe_backend/internal/events"
	"gamecafe_backend/internal/models"
	"gamecafe_backend/internal/repositories"
	"gamecafe_backend/pkg/utils"
)

// AssignmentRequest names the terminals picked for one room of a booking.
type AssignmentRequest struct {
	RoomType    string   `json:"roomType"`
	TerminalIDs []string `json:"terminalIds"`
}

// AssignmentService binds a booking's requirements to concrete terminals and starts its session.
type AssignmentService interface {
	Assign(ctx context.Context, scope Scope, bookingID int64, requests []AssignmentRequest) (*models.Booking, error)
}

type assignmentService struct {
	catalogRepo repositories.CatalogRepository
	bookingRepo repositories.BookingRepository
	publisher   events.Publisher
	now         Clock
}

// NewAssignmentService creates a new instance of AssignmentService.
func NewAssignmentService(
	cr repositories.CatalogRepository,
	br repositories.BookingRepository,
	publisher events.Publisher,
	clock Clock,
) AssignmentService {
	if clock == nil {
		clock = systemClock
	}
	return &assignmentService{catalogRepo: cr, bookingRepo: br, publisher: publisher, now: clock}
}

func (s *assignmentService) Assign(ctx context.Context, scope Scope, bookingID int64, requests []AssignmentRequest) (*models.Booking, error) {
	if len(requests) == 0 {
		return nil, fmt.Errorf("%w: at least one room assignment is required", ErrValidation)
	}

	cafe, err := authorizeCafe(ctx, s.catalogRepo, scope)
	if err != nil {
		return nil, err
	}
	booking, err := loadBooking(ctx, s.bookingRepo, scope, bookingID)
	if err != nil {
		return nil, err
	}
	if err := checkAssignable(booking); err != nil {
		return nil, err
	}

	systems, err := matchRequirements(cafe, booking.SystemsBooked, requests)
	if err != nil {
		return nil, err
	}

	now := s.now()
	updated, err := s.bookingRepo.AssignTerminals(ctx, scope.CafeID, bookingID, systems, now)
	if err != nil {
		if !errors.Is(err, repositories.ErrConflict) {
			utils.LogError(err, "Failed to assign terminals", map[string]interface{}{"booking_id": bookingID, "cafe_id": scope.CafeID})
			return nil, err
		}
		// The CAS missed: either the booking moved on or a terminal was taken.
		current, rerr := loadBooking(ctx, s.bookingRepo, scope, bookingID)
		if rerr != nil {
			return nil, rerr
		}
		if stateErr := checkAssignable(current); stateErr != nil {
			return nil, stateErr
		}
		utils.LogInfo("Terminal assignment lost a race", map[string]interface{}{"booking_id": bookingID, "terminals": systems.TerminalIDs()})
		return nil, ErrConflict
	}

	utils.LogInfo("Session started", map[string]interface{}{
		"booking_id": bookingID,
		"cafe_id":    scope.CafeID,
		"terminals":  systems.TerminalIDs(),
	})
	s.publisher.Publish(ctx, events.Event{
		Type:      events.BookingAssigned,
		CafeID:    scope.CafeID,
		BookingID: bookingID,
		Terminals: systems.TerminalIDs(),
		Status:    string(updated.Status),
		At:        now,
	})
	return updated, nil
}

func checkAssignable(b *models.Booking) error {
	if b.Status != models.BookingStatusBooked || b.PermanentlyCancelled {
		return fmt.Errorf("%w: booking is %s", ErrWrongState, b.Status)
	}
	if !b.OTPVerified() {
		return fmt.Errorf("%w: otp verification required", ErrWrongState)
	}
	return nil
}

// matchRequirements checks the requested terminal ids against the booking's
// requirements and the catalog, and returns them in request order.
func matchRequirements(cafe *models.Cafe, required models.SystemRequirements, requests []AssignmentRequest) (models.AssignedSystems, error) {
	// room -> terminal type -> count still to cover
	needed := map[string]map[string]int{}
	for _, req := range required {
		room := utils.NormalizeKey(req.RoomType)
		if needed[room] == nil {
			needed[room] = map[string]int{}
		}
		needed[room][utils.NormalizeKey(req.TerminalType)] += req.NumberOfTerminals
	}

	seen := map[string]bool{}
	unavailable := false
	systems := models.AssignedSystems{}
	for _, req := range requests {
		roomKey := utils.NormalizeKey(req.RoomType)
		byType, ok := needed[roomKey]
		if !ok {
			return nil, fmt.Errorf("%w: room %q is not part of this booking", ErrValidation, req.RoomType)
		}
		for _, id := range req.TerminalIDs {
			if seen[id] {
				return nil, fmt.Errorf("%w: terminal %q selected more than once", ErrValidation, id)
			}
			seen[id] = true

			t, ok := cafe.Terminal(id)
			if !ok || utils.NormalizeKey(t.RoomName) != roomKey {
				return nil, fmt.Errorf("%w: terminal %q does not exist in room %q", ErrValidation, id, req.RoomType)
			}
			typeKey := utils.NormalizeKey(t.Type)
			if byType[typeKey] <= 0 {
				return nil, fmt.Errorf("%w: terminal %q of type %q is not required in room %q", ErrValidation, id, t.Type, req.RoomType)
			}
			byType[typeKey]--
			if t.Status != models.TerminalStatusAvailable {
				unavailable = true
			}
			systems = append(systems, models.AssignedSystem{TerminalID: t.TerminalID, RoomType: t.RoomName})
		}
	}

	for room, byType := range needed {
		for typ, left := range byType {
			if left != 0 {
				return nil, fmt.Errorf("%w: room %q needs %d more %q terminal(s)", ErrValidation, room, left, typ)
			}
		}
	}
	if unavailable {
		return nil, ErrConflict
	}
	return systems, nil
}
