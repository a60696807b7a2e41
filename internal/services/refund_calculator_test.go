package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gamecafe_backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPRefundCalculator_CalculateRefund(t *testing.T) {
	var got refundServiceRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"method":"card","amount":"150.00","status":"completed","message":"partial refund"}`))
	}))
	defer srv.Close()

	calc := NewHTTPRefundCalculator(srv.URL, time.Second)
	booking := models.Booking{ID: 12, CafeID: 3, TotalPrice: decimal.NewFromInt(300)}
	payment := models.PaymentRecord{Method: "card", Amount: decimal.NewFromInt(300), Status: models.PaymentStatusCompleted}

	result, err := calc.CalculateRefund(context.Background(), booking, payment)

	require.NoError(t, err)
	assert.Equal(t, models.RefundStatusCompleted, result.Status)
	assert.True(t, decimal.NewFromInt(150).Equal(result.Amount))
	assert.Equal(t, "partial refund", result.Message)
	assert.Equal(t, int64(12), got.BookingID)
	assert.Equal(t, "card", got.PaymentMethod)
	assert.True(t, payment.Amount.Equal(got.Amount))
}

func TestHTTPRefundCalculator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		payload string
	}{
		{"server error", http.StatusBadGateway, `{}`},
		{"unknown status", http.StatusOK, `{"status":"maybe"}`},
		{"garbage", http.StatusOK, `not json`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.payload))
			}))
			defer srv.Close()

			_, err := NewHTTPRefundCalculator(srv.URL, time.Second).CalculateRefund(context.Background(), models.Booking{}, models.PaymentRecord{})
			assert.Error(t, err)
		})
	}
}

func TestFullRefundCalculator(t *testing.T) {
	payment := models.PaymentRecord{Method: "cash", Amount: decimal.RequireFromString("1200.50"), Status: models.PaymentStatusCompleted}

	result, err := NewFullRefundCalculator().CalculateRefund(context.Background(), models.Booking{}, payment)

	require.NoError(t, err)
	assert.Equal(t, "cash", result.Method)
	assert.True(t, payment.Amount.Equal(result.Amount))
	assert.Equal(t, models.RefundStatusCompleted, result.Status)
}
