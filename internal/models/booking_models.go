package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// BookingStatus defines the type for booking statuses
type BookingStatus string

const (
	BookingStatusBooked    BookingStatus = "booked"
	BookingStatusActive    BookingStatus = "active"
	BookingStatusCompleted BookingStatus = "completed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// IsValidBookingStatus checks if the provided status string is a valid BookingStatus.
func IsValidBookingStatus(status string) bool {
	switch BookingStatus(status) {
	case BookingStatusBooked, BookingStatusActive, BookingStatusCompleted, BookingStatusCancelled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition may leave this status.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// BookingSource tells walk-in bookings apart from those made in the mobile app.
type BookingSource string

const (
	BookingSourceWalkIn BookingSource = "walk_in"
	BookingSourceMobile BookingSource = "mobile"
)

// PaymentStatus is shared by the booking payment and the extension payment.
// The zero value means not set.
type PaymentStatus string

const (
	PaymentStatusNotSet    PaymentStatus = ""
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// SystemRequirement is one (room, terminal type, count) tuple a booking asks for.
type SystemRequirement struct {
	RoomType          string `json:"roomType"`
	TerminalType      string `json:"terminalType"`
	NumberOfTerminals int    `json:"numberOfTerminals"`
}

// AssignedSystem binds a concrete terminal to a booking.
type AssignedSystem struct {
	TerminalID string `json:"terminalId"`
	RoomType   string `json:"roomType"`
}

// SystemRequirements is stored as a JSONB column.
type SystemRequirements []SystemRequirement

// AssignedSystems is stored as a JSONB column.
type AssignedSystems []AssignedSystem

func (r SystemRequirements) Value() (driver.Value, error) { return jsonValue(r) }
func (r *SystemRequirements) Scan(src interface{}) error { return jsonScan(src, r) }
func (a AssignedSystems) Value() (driver.Value, error) { return jsonValue(a) }
func (a *AssignedSystems) Scan(src interface{}) error { return jsonScan(src, a) }

// TerminalIDs lists the assigned terminal ids in assignment order.
func (a AssignedSystems) TerminalIDs() []string {
	ids := make([]string, 0, len(a))
	for _, s := range a {
		ids = append(ids, s.TerminalID)
	}
	return ids
}

func jsonValue(v interface{}) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func jsonScan(src interface{}, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return errors.New("unsupported JSON column type")
	}
}

// Customer is either a registered customer (CustomerID set) or a walk-in.
type Customer struct {
	CustomerID *int64 `json:"customerId,omitempty" db:"customer_id"`
	Name       string `json:"name" db:"customer_name"`
	Phone      string `json:"phone,omitempty" db:"customer_phone"`
}

// PaymentRecord is the outcome of the booking payment as reported by the payment gateway.
type PaymentRecord struct {
	Method string          `json:"method,omitempty" db:"payment_method"`
	Amount decimal.Decimal `json:"amount" db:"payment_amount"`
	Status PaymentStatus   `json:"status,omitempty" db:"payment_status"`
}

// Booking is a reservation of one or more terminals for a session.
type Booking struct {
	ID                     int64              `json:"id" db:"id"`
	CafeID                 int64              `json:"cafeId" db:"cafe_id"`
	Customer               Customer           `json:"customer"`
	Source                 BookingSource      `json:"source" db:"source"`
	SystemsBooked          SystemRequirements `json:"systemsBooked" db:"systems_booked"`
	Duration               float64            `json:"duration" db:"duration_hours"`
	ExtendedTime           float64            `json:"extendedTime" db:"extended_hours"`
	AssignedSystems        AssignedSystems    `json:"assignedSystems" db:"assigned_systems"`
	Status                 BookingStatus      `json:"status" db:"status"`
	PermanentlyCancelled   bool               `json:"permanentlyCancelled" db:"permanently_cancelled"`
	SessionStartTime       *time.Time         `json:"sessionStartTime,omitempty" db:"session_start_time"`
	SessionEndTime         *time.Time         `json:"sessionEndTime,omitempty" db:"session_end_time"`
	OTPHash                string             `json:"-" db:"otp_hash"`
	OTPConsumedAt          *time.Time         `json:"otpConsumedAt,omitempty" db:"otp_consumed_at"`
	TotalPrice             decimal.Decimal    `json:"totalPrice" db:"total_price"`
	Payment                PaymentRecord      `json:"payment"`
	ExtensionPaymentAmount decimal.Decimal    `json:"extensionPaymentAmount" db:"extension_payment_amount"`
	ExtensionPaymentStatus PaymentStatus      `json:"extensionPaymentStatus,omitempty" db:"extension_payment_status"`
	CancelledAt            *time.Time         `json:"cancelledAt,omitempty" db:"cancelled_at"`
	CompletedAt            *time.Time         `json:"completedAt,omitempty" db:"completed_at"`
	CreatedAt              time.Time          `json:"createdAt" db:"created_at"`
	UpdatedAt              time.Time          `json:"updatedAt" db:"updated_at"`
}

// RequiresOTP reports whether the booking is gated by a mobile OTP.
func (b *Booking) RequiresOTP() bool {
	return b.OTPHash != ""
}

// OTPVerified reports whether assignment is unlocked as far as the OTP gate is concerned.
func (b *Booking) OTPVerified() bool {
	return !b.RequiresOTP() || b.OTPConsumedAt != nil
}

// TotalHours is the billable duration including extensions.
func (b *Booking) TotalHours() float64 {
	return b.Duration + b.ExtendedTime
}

// BookingFilters defines the available filters for querying bookings.
type BookingFilters struct {
	CafeID   int64          `form:"-"`
	Status   *BookingStatus `form:"status"`
	Source   *BookingSource `form:"source"`
	DateFrom *time.Time     `form:"date_from"`
	DateTo   *time.Time     `form:"date_to"`
	Page     int            `form:"page"`
	PageSize int            `form:"page_size"`
}

// SessionProjection is the live view of a session derived from stored timestamps.
type SessionProjection struct {
	Expired     bool    `json:"expired"`
	RemainingMs int64   `json:"remainingMs"`
	Percentage  float64 `json:"percentage"`
}

// BookingView is a booking together with its live session projection.
type BookingView struct {
	Booking
	Session *SessionProjection `json:"session,omitempty"`
}
