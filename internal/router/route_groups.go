package router

import (
	"gamecafe_backend/internal/handlers"
	"gamecafe_backend/internal/middleware"

	"github.com/gin-gonic/gin"
)

// SetupCafeRoutes sets up the catalog routes.
func SetupCafeRoutes(authenticatedGroup *gin.RouterGroup, cafeHandler *handlers.CafeHandler) {
	cafeRoutes := authenticatedGroup.Group("/cafes")
	{
		cafeRoutes.POST("", cafeHandler.CreateCafe)
		cafeRoutes.GET("/:cafeId", cafeHandler.GetCafe)
		cafeRoutes.PATCH("/:cafeId/rooms/:roomName/terminals/:terminalId/status", cafeHandler.SetTerminalStatus)
	}
}

// SetupBookingRoutes sets up the booking read/create routes under a cafe.
func SetupBookingRoutes(cafeGroup *gin.RouterGroup, bookingHandler *handlers.BookingHandler) {
	bookingRoutes := cafeGroup.Group("/bookings")
	{
		bookingRoutes.POST("", bookingHandler.CreateBooking)
		bookingRoutes.GET("", bookingHandler.GetBookings)
		bookingRoutes.GET("/:id", bookingHandler.GetBookingByID)
		bookingRoutes.GET("/:id/session", bookingHandler.GetSession)
	}
}

// SetupSessionRoutes sets up the session lifecycle routes under a cafe.
func SetupSessionRoutes(cafeGroup *gin.RouterGroup, sessionHandler *handlers.SessionHandler, otpLimiter *middleware.RateLimiter) {
	bookingRoutes := cafeGroup.Group("/bookings/:id")
	{
		bookingRoutes.POST("/assign", sessionHandler.AssignTerminals)
		bookingRoutes.POST("/end", sessionHandler.EndSession)
		bookingRoutes.POST("/extend", sessionHandler.ExtendBooking)
		bookingRoutes.PATCH("/extension-payment", sessionHandler.ConfirmExtensionPayment)
		bookingRoutes.POST("/cancel", sessionHandler.CancelBooking)
		bookingRoutes.POST("/verify-otp", otpLimiter.Limit(), sessionHandler.VerifyOTP)
	}

	cafeGroup.POST("/sessions/sweep", sessionHandler.SweepSessions)
}
