package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TerminalStatus defines the type for terminal statuses
type TerminalStatus string

const (
	TerminalStatusAvailable        TerminalStatus = "available"
	TerminalStatusActive           TerminalStatus = "active"
	TerminalStatusUnderMaintenance TerminalStatus = "under_maintenance"
)

// IsValidTerminalStatus checks if the provided status string is a valid TerminalStatus.
func IsValidTerminalStatus(status string) bool {
	switch TerminalStatus(status) {
	case TerminalStatusAvailable, TerminalStatusActive, TerminalStatusUnderMaintenance:
		return true
	default:
		return false
	}
}

// Cafe is the root of the catalog. Rooms keep the order of their first terminal.
type Cafe struct {
	ID        int64     `json:"id" db:"id"`
	OwnerID   int64     `json:"ownerId" db:"owner_id"`
	Name      string    `json:"name" db:"name"`
	IsOpen    bool      `json:"isOpen" db:"is_open"`
	Rooms     []Room    `json:"rooms"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// Room groups terminals; Name is unique within a cafe.
type Room struct {
	Name      string     `json:"name" db:"room_name"`
	Terminals []Terminal `json:"terminals"`
}

// Terminal represents a single bookable PC or console.
// Status is active exactly when ActiveBookingID is set.
type Terminal struct {
	CafeID          int64           `json:"-" db:"cafe_id"`
	TerminalID      string          `json:"terminalId" db:"terminal_id"`
	RoomName        string          `json:"roomName" db:"room_name"`
	Type            string          `json:"type" db:"terminal_type"`
	PricePerHour    decimal.Decimal `json:"pricePerHour" db:"price_per_hour"`
	Status          TerminalStatus  `json:"status" db:"status"`
	ActiveBookingID *int64          `json:"activeBookingRef,omitempty" db:"active_booking_id"`
	Position        int             `json:"-" db:"position"`
	UpdatedAt       time.Time       `json:"updatedAt" db:"updated_at"`
}

// Terminal returns the terminal with the given id, if present.
func (c *Cafe) Terminal(terminalID string) (*Terminal, bool) {
	for ri := range c.Rooms {
		for ti := range c.Rooms[ri].Terminals {
			if c.Rooms[ri].Terminals[ti].TerminalID == terminalID {
				return &c.Rooms[ri].Terminals[ti], true
			}
		}
	}
	return nil, false
}

// Room returns the room with the given name, if present.
func (c *Cafe) Room(name string) (*Room, bool) {
	for i := range c.Rooms {
		if c.Rooms[i].Name == name {
			return &c.Rooms[i], true
		}
	}
	return nil, false
}

// GroupTerminals builds the Room list from a flat, ordered terminal slice.
func GroupTerminals(terminals []Terminal) []Room {
	rooms := []Room{}
	index := map[string]int{}
	for _, t := range terminals {
		i, ok := index[t.RoomName]
		if !ok {
			rooms = append(rooms, Room{Name: t.RoomName, Terminals: []Terminal{}})
			i = len(rooms) - 1
			index[t.RoomName] = i
		}
		rooms[i].Terminals = append(rooms[i].Terminals, t)
	}
	return rooms
}
