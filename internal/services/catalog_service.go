package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gamecafe_backend/internal/events"
	"gamecafe_backend/internal/models"
	"gamecafe_backend/internal/repositories"
	"gamecafe_backend/pkg/utils"

	"github.com/shopspring/decimal"
)

// --- Catalog DTOs ---
type CreateTerminalRequest struct {
	TerminalID   string          `json:"terminalId"`
	Type         string          `json:"type"`
	PricePerHour decimal.Decimal `json:"pricePerHour"`
}

type CreateRoomRequest struct {
	Name      string                  `json:"name"`
	Terminals []CreateTerminalRequest `json:"terminals"`
}

type CreateCafeRequest struct {
	Name   string              `json:"name"`
	IsOpen *bool               `json:"isOpen"`
	Rooms  []CreateRoomRequest `json:"rooms"`
}

// CatalogService manages the cafe -> room -> terminal hierarchy.
type CatalogService interface {
	CreateCafe(ctx context.Context, ownerID int64, req CreateCafeRequest) (*models.Cafe, error)
	GetCafe(ctx context.Context, scope Scope) (*models.Cafe, error)
	// SetTerminalStatus toggles a terminal between available and under_maintenance.
	SetTerminalStatus(ctx context.Context, scope Scope, roomName, terminalID string, status models.TerminalStatus) (*models.Cafe, error)
}

type catalogService struct {
	catalogRepo repositories.CatalogRepository
	publisher   events.Publisher
	now         Clock
}

// NewCatalogService creates a new instance of CatalogService.
func NewCatalogService(cr repositories.CatalogRepository, publisher events.Publisher, clock Clock) CatalogService {
	if clock == nil {
		clock = systemClock
	}
	return &catalogService{catalogRepo: cr, publisher: publisher, now: clock}
}

func (s *catalogService) CreateCafe(ctx context.Context, ownerID int64, req CreateCafeRequest) (*models.Cafe, error) {
	if utils.IsEmpty(req.Name) {
		return nil, fmt.Errorf("%w: cafe name is required", ErrValidation)
	}
	if len(req.Rooms) == 0 {
		return nil, fmt.Errorf("%w: at least one room is required", ErrValidation)
	}

	cafe := &models.Cafe{OwnerID: ownerID, Name: strings.TrimSpace(req.Name), IsOpen: true}
	if req.IsOpen != nil {
		cafe.IsOpen = *req.IsOpen
	}

	rooms := map[string]bool{}
	terminals := map[string]bool{}
	for _, r := range req.Rooms {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: room name is required", ErrValidation)
		}
		if rooms[utils.NormalizeKey(name)] {
			return nil, fmt.Errorf("%w: duplicate room %q", ErrValidation, name)
		}
		rooms[utils.NormalizeKey(name)] = true

		room := models.Room{Name: name, Terminals: []models.Terminal{}}
		for _, t := range r.Terminals {
			id := strings.TrimSpace(t.TerminalID)
			if id == "" || utils.IsEmpty(t.Type) {
				return nil, fmt.Errorf("%w: terminalId and type are required", ErrValidation)
			}
			if terminals[id] {
				return nil, fmt.Errorf("%w: duplicate terminal %q", ErrValidation, id)
			}
			if t.PricePerHour.IsNegative() {
				return nil, fmt.Errorf("%w: pricePerHour must not be negative", ErrValidation)
			}
			terminals[id] = true
			room.Terminals = append(room.Terminals, models.Terminal{
				TerminalID:   id,
				RoomName:     name,
				Type:         strings.TrimSpace(t.Type),
				PricePerHour: t.PricePerHour,
				Status:       models.TerminalStatusAvailable,
			})
		}
		cafe.Rooms = append(cafe.Rooms, room)
	}

	created, err := s.catalogRepo.CreateCafe(ctx, cafe)
	if err != nil {
		if errors.Is(err, repositories.ErrDuplicateKey) {
			return nil, fmt.Errorf("%w: duplicate terminal id", ErrValidation)
		}
		utils.LogError(err, "Failed to create cafe", map[string]interface{}{"owner_id": ownerID})
		return nil, err
	}
	utils.LogInfo("Cafe created", map[string]interface{}{"cafe_id": created.ID, "owner_id": ownerID, "terminals": len(terminals)})
	return created, nil
}

func (s *catalogService) GetCafe(ctx context.Context, scope Scope) (*models.Cafe, error) {
	return authorizeCafe(ctx, s.catalogRepo, scope)
}

func (s *catalogService) SetTerminalStatus(ctx context.Context, scope Scope, roomName, terminalID string, status models.TerminalStatus) (*models.Cafe, error) {
	if status != models.TerminalStatusAvailable && status != models.TerminalStatusUnderMaintenance {
		return nil, fmt.Errorf("%w: status must be available or under_maintenance", ErrValidation)
	}
	cafe, err := authorizeCafe(ctx, s.catalogRepo, scope)
	if err != nil {
		return nil, err
	}
	t, ok := cafe.Terminal(terminalID)
	if !ok || t.RoomName != roomName {
		return nil, fmt.Errorf("%w: terminal", ErrNotFound)
	}
	if t.Status == status {
		return cafe, nil
	}
	if t.Status == models.TerminalStatusActive {
		return nil, fmt.Errorf("%w: terminal is in use", ErrWrongState)
	}

	if err := s.catalogRepo.SetTerminalStatus(ctx, scope.CafeID, roomName, terminalID, t.Status, status); err != nil {
		switch {
		case errors.Is(err, repositories.ErrNotFound):
			return nil, fmt.Errorf("%w: terminal", ErrNotFound)
		case errors.Is(err, repositories.ErrConflict):
			return nil, fmt.Errorf("%w: terminal changed state, reload and retry", ErrWrongState)
		default:
			return nil, err
		}
	}

	utils.LogInfo("Terminal status changed", map[string]interface{}{
		"cafe_id":  scope.CafeID,
		"terminal": terminalID,
		"from":     t.Status,
		"to":       status,
	})
	s.publisher.Publish(ctx, events.Event{
		Type:      events.TerminalStatusChanged,
		CafeID:    scope.CafeID,
		Terminals: []string{terminalID},
		Status:    string(status),
		At:        s.now(),
	})
	return s.catalogRepo.GetCafeByID(ctx, scope.CafeID)
}
