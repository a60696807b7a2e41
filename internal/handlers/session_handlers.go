package handlers

import (
	"net/http"

	"gamecafe_backend/internal/models"
	"gamecafe_backend/internal/services"

	"github.com/gin-gonic/gin"
)

// SessionHandler exposes the session lifecycle: assignment, end, extension,
// cancellation, sweeping and mobile OTP verification.
type SessionHandler struct {
	assignment   services.AssignmentService
	sweeper      services.SweeperService
	extension    services.ExtensionService
	cancellation services.CancellationService
	otp          services.OTPService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(
	as services.AssignmentService,
	ss services.SweeperService,
	es services.ExtensionService,
	cs services.CancellationService,
	otp services.OTPService,
) *SessionHandler {
	return &SessionHandler{assignment: as, sweeper: ss, extension: es, cancellation: cs, otp: otp}
}

type assignRequest struct {
	Assignments []services.AssignmentRequest `json:"assignments" binding:"required"`
}

// AssignTerminals binds terminals to a booking and starts its session.
func (h *SessionHandler) AssignTerminals(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}
	var req assignRequest
	if !bindJSON(c, &req, "AssignTerminals") {
		return
	}

	booking, err := h.assignment.Assign(c.Request.Context(), scope, bookingID, req.Assignments)
	if err != nil {
		respondServiceError(c, err, "AssignTerminals")
		return
	}
	c.JSON(http.StatusOK, booking)
}

// EndSession completes an active session early.
func (h *SessionHandler) EndSession(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}

	booking, err := h.sweeper.EndSession(c.Request.Context(), scope, bookingID)
	if err != nil {
		respondServiceError(c, err, "EndSession")
		return
	}
	c.JSON(http.StatusOK, booking)
}

// ExtendBooking adds hours to a booked or active booking.
func (h *SessionHandler) ExtendBooking(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}
	var req services.ExtendRequest
	if !bindJSON(c, &req, "ExtendBooking") {
		return
	}

	booking, err := h.extension.Extend(c.Request.Context(), scope, bookingID, req)
	if err != nil {
		respondServiceError(c, err, "ExtendBooking")
		return
	}
	c.JSON(http.StatusOK, booking)
}

type extensionPaymentRequest struct {
	Status string `json:"status" binding:"required"`
}

// ConfirmExtensionPayment records the outcome of a pending extension payment.
func (h *SessionHandler) ConfirmExtensionPayment(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}
	var req extensionPaymentRequest
	if !bindJSON(c, &req, "ConfirmExtensionPayment") {
		return
	}

	booking, err := h.extension.ConfirmExtensionPayment(c.Request.Context(), scope, bookingID, models.PaymentStatus(req.Status))
	if err != nil {
		respondServiceError(c, err, "ConfirmExtensionPayment")
		return
	}
	c.JSON(http.StatusOK, booking)
}

// CancelBooking cancels a booking inside the cancellation window.
func (h *SessionHandler) CancelBooking(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}

	booking, refund, err := h.cancellation.Cancel(c.Request.Context(), scope, bookingID)
	if err != nil {
		respondServiceError(c, err, "CancelBooking")
		return
	}
	resp := gin.H{"booking": booking}
	if refund != nil {
		resp["refund"] = refund
	}
	c.JSON(http.StatusOK, resp)
}

// SweepSessions completes every expired session of the cafe now.
func (h *SessionHandler) SweepSessions(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}

	completed, err := h.sweeper.SweepCafe(c.Request.Context(), scope)
	if err != nil {
		respondServiceError(c, err, "SweepSessions")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Expired sessions completed",
		"count":   len(completed),
	})
}

type verifyOTPRequest struct {
	OTP string `json:"otp" binding:"required"`
}

// VerifyOTP consumes the single-use code of a mobile booking.
func (h *SessionHandler) VerifyOTP(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}
	var req verifyOTPRequest
	if !bindJSON(c, &req, "VerifyOTP") {
		return
	}

	if err := h.otp.Verify(c.Request.Context(), scope, bookingID, req.OTP); err != nil {
		respondServiceError(c, err, "VerifyOTP")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
