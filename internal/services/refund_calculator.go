package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gamecafe_backend/internal/models"

	"github.com/shopspring/decimal"
)

// RefundCalculator decides how much of a cancelled booking's payment goes back
// to the customer, and issues the refund.
type RefundCalculator interface {
	CalculateRefund(ctx context.Context, booking models.Booking, payment models.PaymentRecord) (*models.RefundDescriptor, error)
}

type fullRefundCalculator struct{}

// NewFullRefundCalculator refunds the whole payment through the original method.
func NewFullRefundCalculator() RefundCalculator {
	return fullRefundCalculator{}
}

func (fullRefundCalculator) CalculateRefund(_ context.Context, _ models.Booking, payment models.PaymentRecord) (*models.RefundDescriptor, error) {
	return &models.RefundDescriptor{
		Method:  payment.Method,
		Amount:  payment.Amount,
		Status:  models.RefundStatusCompleted,
		Message: "full refund issued",
	}, nil
}

type httpRefundCalculator struct {
	client *http.Client
	url    string
}

// NewHTTPRefundCalculator posts refund requests to an external refund service.
func NewHTTPRefundCalculator(url string, timeout time.Duration) RefundCalculator {
	return &httpRefundCalculator{
		client: &http.Client{Timeout: timeout},
		url:    url,
	}
}

type refundServiceRequest struct {
	BookingID     int64           `json:"bookingId"`
	CafeID        int64           `json:"cafeId"`
	PaymentMethod string          `json:"paymentMethod"`
	Amount        decimal.Decimal `json:"amount"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
	SessionStart  *time.Time      `json:"sessionStartTime,omitempty"`
	CancelledAt   *time.Time      `json:"cancelledAt,omitempty"`
}

func (c *httpRefundCalculator) CalculateRefund(ctx context.Context, booking models.Booking, payment models.PaymentRecord) (*models.RefundDescriptor, error) {
	body, err := json.Marshal(refundServiceRequest{
		BookingID:     booking.ID,
		CafeID:        booking.CafeID,
		PaymentMethod: payment.Method,
		Amount:        payment.Amount,
		TotalPrice:    booking.TotalPrice,
		SessionStart:  booking.SessionStartTime,
		CancelledAt:   booking.CancelledAt,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding refund request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building refund request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling refund service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("refund service responded with status %d", resp.StatusCode)
	}

	var descriptor models.RefundDescriptor
	if err := json.NewDecoder(resp.Body).Decode(&descriptor); err != nil {
		return nil, fmt.Errorf("decoding refund response: %w", err)
	}
	switch descriptor.Status {
	case models.RefundStatusPending, models.RefundStatusCompleted, models.RefundStatusFailed:
	default:
		return nil, fmt.Errorf("refund service returned unknown status %q", descriptor.Status)
	}
	return &descriptor, nil
}
