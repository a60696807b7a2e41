package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gamecafe_backend/internal/models"
)

// RefundRepository defines the interface for refund records. Refund rows are
// created by BookingRepository.CancelBooking.
type RefundRepository interface {
	GetRefundByBookingID(ctx context.Context, bookingID int64) (*models.Refund, error)
	// ListPendingRefunds returns pending refunds that no caller holds a claim on at now.
	ListPendingRefunds(ctx context.Context, now time.Time, limit int) ([]models.Refund, error)
	// ClaimRefund leases a pending refund until now+lease so that only one caller
	// talks to the refund service for it. ErrConflict when the refund is settled or
	// someone else holds an unexpired claim.
	ClaimRefund(ctx context.Context, refundID string, now time.Time, lease time.Duration) error
	// UpdateRefundResult stores the refund service outcome on a pending refund and drops the claim.
	UpdateRefundResult(ctx context.Context, refundID string, result models.RefundDescriptor, now time.Time) (*models.Refund, error)
	// RecordRefundAttempt bumps the attempt counter of a refund that stays pending and drops the claim.
	RecordRefundAttempt(ctx context.Context, refundID string, message string, now time.Time) error
}

type refundRepository struct {
	db *sql.DB
}

// NewRefundRepository creates a new instance of RefundRepository.
func NewRefundRepository(db *sql.DB) RefundRepository {
	return &refundRepository{db: db}
}

const refundColumns = `id, booking_id, cafe_id, method, amount, status, message, attempts, created_at, updated_at`

func scanRefund(row scanner) (*models.Refund, error) {
	var rf models.Refund
	err := row.Scan(&rf.ID, &rf.BookingID, &rf.CafeID, &rf.Method, &rf.Amount, &rf.Status,
		&rf.Message, &rf.Attempts, &rf.CreatedAt, &rf.UpdatedAt)
	if err != nil {
		return nil, wrapDBError(err, "scanning refund")
	}
	return &rf, nil
}

func insertRefund(ctx context.Context, executor SQLExecutor, rf *models.Refund) error {
	_, err := executor.ExecContext(ctx,
		`INSERT INTO refunds (`+refundColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rf.ID, rf.BookingID, rf.CafeID, rf.Method, rf.Amount, rf.Status, rf.Message, rf.Attempts, rf.CreatedAt, rf.UpdatedAt)
	if err != nil {
		return wrapDBError(err, fmt.Sprintf("recording refund for booking ID %d", rf.BookingID))
	}
	return nil
}

func (r *refundRepository) GetRefundByBookingID(ctx context.Context, bookingID int64) (*models.Refund, error) {
	return scanRefund(r.db.QueryRowContext(ctx,
		`SELECT `+refundColumns+` FROM refunds WHERE booking_id = $1`, bookingID))
}

func (r *refundRepository) ListPendingRefunds(ctx context.Context, now time.Time, limit int) ([]models.Refund, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+refundColumns+` FROM refunds
		 WHERE status = 'pending' AND (claimed_until IS NULL OR claimed_until <= $1)
		 ORDER BY created_at LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: querying pending refunds: %v", ErrDatabaseError, err)
	}
	defer rows.Close()

	refunds := []models.Refund{}
	for rows.Next() {
		rf, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, *rf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterating refund rows: %v", ErrDatabaseError, err)
	}
	return refunds, nil
}

func (r *refundRepository) ClaimRefund(ctx context.Context, refundID string, now time.Time, lease time.Duration) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE refunds SET claimed_until = $3, updated_at = $2
		 WHERE id = $1 AND status = 'pending' AND (claimed_until IS NULL OR claimed_until <= $2)`,
		refundID, now, now.Add(lease))
	if err != nil {
		return fmt.Errorf("%w: claiming refund %s: %v", ErrDatabaseError, refundID, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (r *refundRepository) UpdateRefundResult(ctx context.Context, refundID string, result models.RefundDescriptor, now time.Time) (*models.Refund, error) {
	rf, err := scanRefund(r.db.QueryRowContext(ctx,
		`UPDATE refunds SET method = $2, amount = $3, status = $4, message = $5, attempts = attempts + 1,
		        claimed_until = NULL, updated_at = $6
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+refundColumns,
		refundID, result.Method, result.Amount, result.Status, result.Message, now))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConflict
	}
	return rf, err
}

func (r *refundRepository) RecordRefundAttempt(ctx context.Context, refundID string, message string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refunds SET attempts = attempts + 1, message = $2, claimed_until = NULL, updated_at = $3
		 WHERE id = $1 AND status = 'pending'`,
		refundID, message, now)
	if err != nil {
		return fmt.Errorf("%w: recording refund attempt %s: %v", ErrDatabaseError, refundID, err)
	}
	return nil
}
