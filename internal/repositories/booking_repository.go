package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gamecafe_backend/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// BookingRepository defines the interface for booking-related storage operations.
// Every state-changing method is a conditional update (or one transaction of them);
// a condition that matches no row yields ErrConflict and leaves storage untouched.
type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) (*models.Booking, error)
	GetBookingByID(ctx context.Context, cafeID, id int64) (*models.Booking, error)
	GetBookings(ctx context.Context, filters models.BookingFilters) ([]models.Booking, int, error) // Bookings, total count.
	// ListActiveBookings returns active bookings of one cafe, or of every cafe when cafeID is 0.
	ListActiveBookings(ctx context.Context, cafeID int64) ([]models.Booking, error)

	// AssignTerminals moves the booking booked -> active and every listed terminal
	// available -> active in one transaction. The session end is derived from the
	// stored duration and extension at commit time.
	AssignTerminals(ctx context.Context, cafeID, bookingID int64, systems models.AssignedSystems, start time.Time) (*models.Booking, error)
	// CompleteBooking moves the booking active -> completed and releases its terminals.
	CompleteBooking(ctx context.Context, cafeID, bookingID int64, now time.Time) (*models.Booking, error)
	// ExpireBooking is CompleteBooking restricted to sessions whose end is at or before now.
	ExpireBooking(ctx context.Context, cafeID, bookingID int64, now time.Time) (*models.Booking, error)
	// CancelBooking cancels a booked or active booking whose session started after
	// windowStart (or has not started). A pending refund row is recorded in the same
	// transaction when the booking payment is completed.
	CancelBooking(ctx context.Context, cafeID, bookingID int64, now, windowStart time.Time) (*models.Booking, *models.Refund, error)
	ExtendBooking(ctx context.Context, cafeID, bookingID int64, hours float64, amount decimal.Decimal, now time.Time) (*models.Booking, error)
	SetExtensionPaymentStatus(ctx context.Context, cafeID, bookingID int64, status models.PaymentStatus, now time.Time) (*models.Booking, error)
	// ConsumeOTP marks the booking's OTP as used. Only one caller can ever succeed.
	ConsumeOTP(ctx context.Context, cafeID, bookingID int64, now time.Time) error
}

type bookingRepository struct {
	db *sql.DB
}

// NewBookingRepository creates a new instance of BookingRepository.
func NewBookingRepository(db *sql.DB) BookingRepository {
	return &bookingRepository{db: db}
}

const bookingColumns = `
	id, cafe_id, customer_id, customer_name, customer_phone, source, systems_booked,
	duration_hours, extended_hours, assigned_systems, status, permanently_cancelled,
	session_start_time, session_end_time, otp_hash, otp_consumed_at, total_price,
	payment_method, payment_amount, payment_status, extension_payment_amount, extension_payment_status,
	cancelled_at, completed_at, created_at, updated_at`

// scanBookingRow scans one booking row, plus the window total count for list queries.
func scanBookingRow(row scanner, isList bool) (*models.Booking, int, error) {
	var b models.Booking
	var customerID sql.NullInt64
	var start, end, otpConsumed, cancelledAt, completedAt sql.NullTime
	var totalCount int

	scanDest := []interface{}{
		&b.ID, &b.CafeID, &customerID, &b.Customer.Name, &b.Customer.Phone, &b.Source, &b.SystemsBooked,
		&b.Duration, &b.ExtendedTime, &b.AssignedSystems, &b.Status, &b.PermanentlyCancelled,
		&start, &end, &b.OTPHash, &otpConsumed, &b.TotalPrice,
		&b.Payment.Method, &b.Payment.Amount, &b.Payment.Status, &b.ExtensionPaymentAmount, &b.ExtensionPaymentStatus,
		&cancelledAt, &completedAt, &b.CreatedAt, &b.UpdatedAt,
	}
	if isList {
		scanDest = append(scanDest, &totalCount)
	}

	if err := row.Scan(scanDest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, fmt.Errorf("%w: scanning booking: %v", ErrDatabaseError, err)
	}

	if customerID.Valid {
		id := customerID.Int64
		b.Customer.CustomerID = &id
	}
	b.SessionStartTime = nullTimePtr(start)
	b.SessionEndTime = nullTimePtr(end)
	b.OTPConsumedAt = nullTimePtr(otpConsumed)
	b.CancelledAt = nullTimePtr(cancelledAt)
	b.CompletedAt = nullTimePtr(completedAt)
	if b.AssignedSystems == nil {
		b.AssignedSystems = models.AssignedSystems{}
	}
	return &b, totalCount, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// casRow runs a conditional UPDATE ... RETURNING and converts "no row" into ErrConflict.
func casRow(ctx context.Context, executor SQLExecutor, action, query string, args ...interface{}) (*models.Booking, error) {
	b, _, err := scanBookingRow(executor.QueryRowContext(ctx, query, args...), false)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	return b, nil
}

func (r *bookingRepository) CreateBooking(ctx context.Context, booking *models.Booking) (*models.Booking, error) {
	query := `INSERT INTO bookings
	            (cafe_id, customer_id, customer_name, customer_phone, source, systems_booked,
	             duration_hours, extended_hours, assigned_systems, status, permanently_cancelled,
	             otp_hash, total_price, payment_method, payment_amount, payment_status,
	             extension_payment_amount, extension_payment_status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	          RETURNING id`

	currentTime := time.Now()
	if booking.CreatedAt.IsZero() {
		booking.CreatedAt = currentTime
	}
	booking.UpdatedAt = booking.CreatedAt
	if booking.AssignedSystems == nil {
		booking.AssignedSystems = models.AssignedSystems{}
	}

	err := r.db.QueryRowContext(ctx, query,
		booking.CafeID, booking.Customer.CustomerID, booking.Customer.Name, booking.Customer.Phone,
		booking.Source, booking.SystemsBooked, booking.Duration, booking.ExtendedTime, booking.AssignedSystems,
		booking.Status, booking.PermanentlyCancelled, booking.OTPHash, booking.TotalPrice,
		booking.Payment.Method, booking.Payment.Amount, booking.Payment.Status,
		booking.ExtensionPaymentAmount, booking.ExtensionPaymentStatus, booking.CreatedAt, booking.UpdatedAt,
	).Scan(&booking.ID)
	if err != nil {
		return nil, wrapDBError(err, "creating booking")
	}
	return booking, nil
}

func (r *bookingRepository) GetBookingByID(ctx context.Context, cafeID, id int64) (*models.Booking, error) {
	query := "SELECT " + bookingColumns + " FROM bookings WHERE id = $1 AND cafe_id = $2"
	booking, _, err := scanBookingRow(r.db.QueryRowContext(ctx, query, id, cafeID), false)
	return booking, err
}

func (r *bookingRepository) GetBookings(ctx context.Context, filters models.BookingFilters) ([]models.Booking, int, error) {
	bookings := []models.Booking{}
	var totalCount int

	var queryBuilder strings.Builder
	queryBuilder.WriteString("SELECT " + bookingColumns + ", COUNT(*) OVER() AS total_count FROM bookings")

	conditions := []string{"cafe_id = $1"}
	args := []interface{}{filters.CafeID}
	argCount := 2

	if filters.Status != nil && *filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCount))
		args = append(args, *filters.Status)
		argCount++
	}
	if filters.Source != nil && *filters.Source != "" {
		conditions = append(conditions, fmt.Sprintf("source = $%d", argCount))
		args = append(args, *filters.Source)
		argCount++
	}
	if filters.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argCount))
		args = append(args, *filters.DateFrom)
		argCount++
	}
	if filters.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argCount))
		args = append(args, *filters.DateTo)
		argCount++
	}

	queryBuilder.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	queryBuilder.WriteString(" ORDER BY created_at DESC, id DESC")

	if filters.PageSize > 0 {
		queryBuilder.WriteString(fmt.Sprintf(" LIMIT $%d", argCount))
		args = append(args, filters.PageSize)
		argCount++
		if filters.Page > 0 {
			offset := (filters.Page - 1) * filters.PageSize
			queryBuilder.WriteString(fmt.Sprintf(" OFFSET $%d", argCount))
			args = append(args, offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: querying bookings: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	for rows.Next() {
		booking, scannedTotalCount, scanErr := scanBookingRow(rows, true)
		if scanErr != nil {
			return nil, 0, scanErr
		}
		bookings = append(bookings, *booking)
		totalCount = scannedTotalCount
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("%w: iterating booking rows: %v", ErrDatabaseError, err)
	}
	return bookings, totalCount, nil
}

func (r *bookingRepository) ListActiveBookings(ctx context.Context, cafeID int64) ([]models.Booking, error) {
	query := "SELECT " + bookingColumns + " FROM bookings WHERE status = 'active' AND ($1 = 0 OR cafe_id = $1) ORDER BY session_end_time"
	rows, err := r.db.QueryContext(ctx, query, cafeID)
	if err != nil {
		return nil, fmt.Errorf("%w: querying active bookings: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	bookings := []models.Booking{}
	for rows.Next() {
		booking, _, scanErr := scanBookingRow(rows, false)
		if scanErr != nil {
			return nil, scanErr
		}
		bookings = append(bookings, *booking)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating active booking rows: %v", ErrDatabaseError, err)
	}
	return bookings, nil
}

func (r *bookingRepository) AssignTerminals(ctx context.Context, cafeID, bookingID int64, systems models.AssignedSystems, start time.Time) (*models.Booking, error) {
	var booking *models.Booking
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		booking, err = casRow(ctx, tx, "activating booking",
			`UPDATE bookings SET status = 'active', assigned_systems = $3, session_start_time = $4,
			        session_end_time = $4 + make_interval(secs => ((duration_hours + extended_hours) * 3600)::double precision),
			        updated_at = $4
			 WHERE id = $1 AND cafe_id = $2 AND status = 'booked' AND NOT permanently_cancelled
			   AND (otp_hash = '' OR otp_consumed_at IS NOT NULL)
			 RETURNING `+bookingColumns,
			bookingID, cafeID, systems, start)
		if err != nil {
			return err
		}

		ids := systems.TerminalIDs()
		result, err := tx.ExecContext(ctx,
			`UPDATE terminals SET status = 'active', active_booking_id = $3, updated_at = $4
			 WHERE cafe_id = $1 AND terminal_id = ANY($2) AND status = 'available'`,
			cafeID, pq.Array(ids), bookingID, start)
		if err != nil {
			return fmt.Errorf("%w: claiming terminals: %v", ErrDatabaseError, err)
		}
		rowsAffected, _ := result.RowsAffected()
		if rowsAffected != int64(len(ids)) {
			return ErrConflict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

// releaseTerminals frees only terminals still held by the booking.
func releaseTerminals(ctx context.Context, executor SQLExecutor, cafeID, bookingID int64, now time.Time) error {
	_, err := executor.ExecContext(ctx,
		`UPDATE terminals SET status = 'available', active_booking_id = NULL, updated_at = $3
		 WHERE cafe_id = $1 AND active_booking_id = $2 AND status = 'active'`,
		cafeID, bookingID, now)
	if err != nil {
		return fmt.Errorf("%w: releasing terminals of booking ID %d: %v", ErrDatabaseError, bookingID, err)
	}
	return nil
}

func (r *bookingRepository) CompleteBooking(ctx context.Context, cafeID, bookingID int64, now time.Time) (*models.Booking, error) {
	return r.complete(ctx, "completing booking", "", cafeID, bookingID, now)
}

func (r *bookingRepository) ExpireBooking(ctx context.Context, cafeID, bookingID int64, now time.Time) (*models.Booking, error) {
	return r.complete(ctx, "expiring booking", " AND session_end_time <= $3", cafeID, bookingID, now)
}

func (r *bookingRepository) complete(ctx context.Context, action, cond string, cafeID, bookingID int64, now time.Time) (*models.Booking, error) {
	var booking *models.Booking
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		booking, err = casRow(ctx, tx, action,
			`UPDATE bookings SET status = 'completed', completed_at = $3, updated_at = $3
			 WHERE id = $1 AND cafe_id = $2 AND status = 'active'`+cond+`
			 RETURNING `+bookingColumns,
			bookingID, cafeID, now)
		if err != nil {
			return err
		}
		return releaseTerminals(ctx, tx, cafeID, bookingID, now)
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

func (r *bookingRepository) CancelBooking(ctx context.Context, cafeID, bookingID int64, now, windowStart time.Time) (*models.Booking, *models.Refund, error) {
	var booking *models.Booking
	var refund *models.Refund
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		booking, err = casRow(ctx, tx, "cancelling booking",
			`UPDATE bookings SET status = 'cancelled', permanently_cancelled = TRUE, cancelled_at = $3, updated_at = $3
			 WHERE id = $1 AND cafe_id = $2 AND status IN ('booked', 'active') AND NOT permanently_cancelled
			   AND (session_start_time IS NULL OR session_start_time > $4)
			 RETURNING `+bookingColumns,
			bookingID, cafeID, now, windowStart)
		if err != nil {
			return err
		}
		if err := releaseTerminals(ctx, tx, cafeID, bookingID, now); err != nil {
			return err
		}

		if booking.Payment.Status != models.PaymentStatusCompleted {
			return nil
		}
		refund = &models.Refund{
			ID:        uuid.NewString(),
			BookingID: booking.ID,
			CafeID:    booking.CafeID,
			Method:    booking.Payment.Method,
			Amount:    booking.Payment.Amount,
			Status:    models.RefundStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return insertRefund(ctx, tx, refund)
	})
	if err != nil {
		return nil, nil, err
	}
	return booking, refund, nil
}

func (r *bookingRepository) ExtendBooking(ctx context.Context, cafeID, bookingID int64, hours float64, amount decimal.Decimal, now time.Time) (*models.Booking, error) {
	return casRow(ctx, r.db, "extending booking",
		`UPDATE bookings SET extended_hours = extended_hours + $3,
		        session_end_time = CASE WHEN status = 'active'
		            THEN session_start_time + make_interval(secs => ((duration_hours + extended_hours + $3) * 3600)::double precision)
		            ELSE session_end_time END,
		        extension_payment_amount = CASE WHEN extension_payment_status = 'pending'
		            THEN extension_payment_amount + $4 ELSE $4 END,
		        extension_payment_status = 'pending',
		        total_price = total_price + $4, updated_at = $5
		 WHERE id = $1 AND cafe_id = $2 AND status IN ('booked', 'active') AND NOT permanently_cancelled
		   AND (status = 'booked' OR session_end_time > $5)
		 RETURNING `+bookingColumns,
		bookingID, cafeID, hours, amount, now)
}

func (r *bookingRepository) SetExtensionPaymentStatus(ctx context.Context, cafeID, bookingID int64, status models.PaymentStatus, now time.Time) (*models.Booking, error) {
	return casRow(ctx, r.db, "updating extension payment",
		`UPDATE bookings SET extension_payment_status = $3, updated_at = $4
		 WHERE id = $1 AND cafe_id = $2 AND extension_payment_status = 'pending'
		 RETURNING `+bookingColumns,
		bookingID, cafeID, status, now)
}

func (r *bookingRepository) ConsumeOTP(ctx context.Context, cafeID, bookingID int64, now time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET otp_consumed_at = $3, updated_at = $3
		 WHERE id = $1 AND cafe_id = $2 AND status = 'booked' AND otp_hash <> '' AND otp_consumed_at IS NULL`,
		bookingID, cafeID, now)
	if err != nil {
		return fmt.Errorf("%w: consuming otp of booking ID %d: %v", ErrDatabaseError, bookingID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrConflict
	}
	return nil
}
