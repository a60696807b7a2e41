package handlers

import (
	"net/http"
	"strconv"
	"time"

	"gamecafe_backend/internal/models"
	"gamecafe_backend/internal/services"
	"gamecafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// BookingHandler holds the booking service.
type BookingHandler struct {
	bookingService services.BookingService
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(bs services.BookingService) *BookingHandler {
	return &BookingHandler{bookingService: bs}
}

type createBookingResponse struct {
	*models.Booking
	OTP string `json:"otp,omitempty"`
}

// CreateBooking handles the creation of a new booking.
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	var req services.CreateBookingRequest
	if !bindJSON(c, &req, "CreateBooking") {
		return
	}

	created, err := h.bookingService.CreateBooking(c.Request.Context(), scope, req)
	if err != nil {
		respondServiceError(c, err, "CreateBooking")
		return
	}
	c.JSON(http.StatusCreated, createBookingResponse{Booking: created.Booking, OTP: created.OTP})
}

// GetBookings handles fetching bookings with pagination and filters.
func (h *BookingHandler) GetBookings(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	filters := models.BookingFilters{Page: page, PageSize: pageSize}

	if statusStr := c.Query("status"); statusStr != "" {
		if !models.IsValidBookingStatus(statusStr) {
			utils.RespondValidationFailed(c, "status: "+statusStr)
			return
		}
		status := models.BookingStatus(statusStr)
		filters.Status = &status
	}
	if sourceStr := c.Query("source"); sourceStr != "" {
		source := models.BookingSource(sourceStr)
		if source != models.BookingSourceWalkIn && source != models.BookingSourceMobile {
			utils.RespondValidationFailed(c, "source: "+sourceStr)
			return
		}
		filters.Source = &source
	}
	if dateFromStr := c.Query("date_from"); dateFromStr != "" {
		t, err := time.Parse("2006-01-02", dateFromStr)
		if err != nil {
			utils.RespondValidationFailed(c, "Invalid date_from format. Use YYYY-MM-DD.")
			return
		}
		filters.DateFrom = &t
	}
	if dateToStr := c.Query("date_to"); dateToStr != "" {
		t, err := time.Parse("2006-01-02", dateToStr)
		if err != nil {
			utils.RespondValidationFailed(c, "Invalid date_to format. Use YYYY-MM-DD.")
			return
		}
		t = t.Add(24*time.Hour - time.Nanosecond) // end of day
		filters.DateTo = &t
	}

	bookings, totalCount, err := h.bookingService.GetBookings(c.Request.Context(), scope, filters)
	if err != nil {
		respondServiceError(c, err, "GetBookings")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      bookings,
		"total":     totalCount,
		"page":      page,
		"page_size": pageSize,
	})
}

// GetBookingByID handles fetching a single booking with its live session projection.
func (h *BookingHandler) GetBookingByID(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}

	booking, err := h.bookingService.GetBooking(c.Request.Context(), scope, bookingID)
	if err != nil {
		respondServiceError(c, err, "GetBookingByID")
		return
	}
	c.JSON(http.StatusOK, booking)
}

// GetSession returns only the remaining-time projection of a booking.
func (h *BookingHandler) GetSession(c *gin.Context) {
	scope, ok := scopeFromContext(c)
	if !ok {
		return
	}
	bookingID, ok := parseBookingID(c)
	if !ok {
		return
	}

	session, err := h.bookingService.GetSession(c.Request.Context(), scope, bookingID)
	if err != nil {
		respondServiceError(c, err, "GetSession")
		return
	}
	c.JSON(http.StatusOK, session)
}
