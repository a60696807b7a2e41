package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RefundStatus tracks a refund through the external refund service.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusCompleted RefundStatus = "completed"
	RefundStatusFailed    RefundStatus = "failed"
)

// Refund is persisted when a paid booking is cancelled, before the refund
// service is contacted, so that no refund is lost.
type Refund struct {
	ID        string          `json:"id" db:"id"`
	BookingID int64           `json:"bookingId" db:"booking_id"`
	CafeID    int64           `json:"cafeId" db:"cafe_id"`
	Method    string          `json:"method" db:"method"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Status    RefundStatus    `json:"status" db:"status"`
	Message   string          `json:"message,omitempty" db:"message"`
	Attempts  int             `json:"attempts" db:"attempts"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time       `json:"updatedAt" db:"updated_at"`
}

// RefundDescriptor is what the caller of Cancel gets back.
type RefundDescriptor struct {
	Method  string          `json:"method"`
	Amount  decimal.Decimal `json:"amount"`
	Status  RefundStatus    `json:"status"`
	Message string          `json:"message"`
}

// Descriptor returns the client-facing view of the refund.
func (r *Refund) Descriptor() *RefundDescriptor {
	return &RefundDescriptor{
		Method:  r.Method,
		Amount:  r.Amount,
		Status:  r.Status,
		Message: r.Message,
	}
}

// RegisteredCustomer is a customer with an account at the cafe.
type RegisteredCustomer struct {
	ID          int64     `json:"id" db:"id"`
	FullName    string    `json:"fullName" db:"full_name"`
	PhoneNumber *string   `json:"phoneNumber,omitempty" db:"phone_number"`
	Email       *string   `json:"email,omitempty" db:"email"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}
