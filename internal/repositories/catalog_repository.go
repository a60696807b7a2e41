package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gamecafe_backend/internal/models"
)

// CatalogRepository defines the interface for the cafe -> room -> terminal catalog.
type CatalogRepository interface {
	CreateCafe(ctx context.Context, cafe *models.Cafe) (*models.Cafe, error)
	GetCafeByID(ctx context.Context, cafeID int64) (*models.Cafe, error)
	// SetTerminalStatus moves a terminal from one idle status to another.
	// It returns ErrConflict when the terminal is not in status from.
	SetTerminalStatus(ctx context.Context, cafeID int64, roomName, terminalID string, from, to models.TerminalStatus) error
}

type catalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository creates a new instance of CatalogRepository.
func NewCatalogRepository(db *sql.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) CreateCafe(ctx context.Context, cafe *models.Cafe) (*models.Cafe, error) {
	now := time.Now()
	cafe.CreatedAt = now
	cafe.UpdatedAt = now

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO cafes (owner_id, name, is_open, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			cafe.OwnerID, cafe.Name, cafe.IsOpen, cafe.CreatedAt, cafe.UpdatedAt,
		).Scan(&cafe.ID)
		if err != nil {
			return wrapDBError(err, "creating cafe")
		}

		position := 0
		for ri := range cafe.Rooms {
			for ti := range cafe.Rooms[ri].Terminals {
				t := &cafe.Rooms[ri].Terminals[ti]
				t.CafeID = cafe.ID
				t.RoomName = cafe.Rooms[ri].Name
				t.Status = models.TerminalStatusAvailable
				t.ActiveBookingID = nil
				t.Position = position
				t.UpdatedAt = now
				position++

				_, err := tx.ExecContext(ctx,
					`INSERT INTO terminals (cafe_id, terminal_id, room_name, terminal_type, price_per_hour, status, position, updated_at)
					 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
					t.CafeID, t.TerminalID, t.RoomName, t.Type, t.PricePerHour, t.Status, t.Position, t.UpdatedAt,
				)
				if err != nil {
					return wrapDBError(err, fmt.Sprintf("creating terminal %s", t.TerminalID))
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cafe, nil
}

func (r *catalogRepository) GetCafeByID(ctx context.Context, cafeID int64) (*models.Cafe, error) {
	cafe := &models.Cafe{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, is_open, created_at, updated_at FROM cafes WHERE id = $1`, cafeID,
	).Scan(&cafe.ID, &cafe.OwnerID, &cafe.Name, &cafe.IsOpen, &cafe.CreatedAt, &cafe.UpdatedAt)
	if err != nil {
		return nil, wrapDBError(err, fmt.Sprintf("getting cafe ID %d", cafeID))
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT cafe_id, terminal_id, room_name, terminal_type, price_per_hour, status, active_booking_id, position, updated_at
		 FROM terminals WHERE cafe_id = $1 ORDER BY position`, cafeID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying terminals for cafe ID %d: %v", ErrDatabaseError, cafeID, err)
	}
	defer rows.Close()

	terminals := []models.Terminal{}
	for rows.Next() {
		var t models.Terminal
		var activeBooking sql.NullInt64
		if err := rows.Scan(&t.CafeID, &t.TerminalID, &t.RoomName, &t.Type, &t.PricePerHour,
			&t.Status, &activeBooking, &t.Position, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning terminal: %v", ErrDatabaseError, err)
		}
		if activeBooking.Valid {
			id := activeBooking.Int64
			t.ActiveBookingID = &id
		}
		terminals = append(terminals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating terminal rows: %v", ErrDatabaseError, err)
	}

	cafe.Rooms = models.GroupTerminals(terminals)
	return cafe, nil
}

func (r *catalogRepository) SetTerminalStatus(ctx context.Context, cafeID int64, roomName, terminalID string, from, to models.TerminalStatus) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE terminals SET status = $5, updated_at = $6
		 WHERE cafe_id = $1 AND room_name = $2 AND terminal_id = $3 AND status = $4 AND active_booking_id IS NULL`,
		cafeID, roomName, terminalID, from, to, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("%w: updating terminal %s status: %v", ErrDatabaseError, terminalID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 1 {
		return nil
	}

	var exists bool
	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM terminals WHERE cafe_id = $1 AND room_name = $2 AND terminal_id = $3)`,
		cafeID, roomName, terminalID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%w: checking terminal %s: %v", ErrDatabaseError, terminalID, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}
