package router

import (
	"net/http"
	"time"

	"gamecafe_backend/internal/events"
	"gamecafe_backend/internal/handlers"
	"gamecafe_backend/internal/middleware"
	"gamecafe_backend/internal/repositories"
	"gamecafe_backend/internal/services"
	"gamecafe_backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

// Dependencies are the storage backends and collaborators the routes are built on.
type Dependencies struct {
	Catalog   repositories.CatalogRepository
	Bookings  repositories.BookingRepository
	Refunds   repositories.RefundRepository
	Customers repositories.CustomerRepository

	Publisher        events.Publisher
	RefundCalculator services.RefundCalculator
	Tokens           *utils.TokenManager

	CancelWindow     time.Duration
	OTPRatePerMinute int
	Clock            services.Clock
}

// Setup initializes the routing for the application and returns the sweeper
// so the caller can run it in the background.
func Setup(engine *gin.Engine, deps Dependencies) services.SweeperService {
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NewLogPublisher()
	}

	// Initialize Services
	catalogService := services.NewCatalogService(deps.Catalog, publisher, deps.Clock)
	otpService := services.NewOTPService(deps.Catalog, deps.Bookings, publisher, deps.Clock)
	cancellationService := services.NewCancellationService(deps.Catalog, deps.Bookings, deps.Refunds,
		deps.RefundCalculator, publisher, deps.CancelWindow, deps.Clock)
	sweeperService := services.NewSweeperService(deps.Catalog, deps.Bookings, cancellationService, publisher, deps.Clock)
	assignmentService := services.NewAssignmentService(deps.Catalog, deps.Bookings, publisher, deps.Clock)
	extensionService := services.NewExtensionService(deps.Catalog, deps.Bookings, publisher, deps.Clock)
	bookingService := services.NewBookingService(deps.Catalog, deps.Bookings, deps.Customers,
		sweeperService, otpService, publisher, deps.Clock)

	// Initialize Handlers
	cafeHandler := handlers.NewCafeHandler(catalogService)
	bookingHandler := handlers.NewBookingHandler(bookingService)
	sessionHandler := handlers.NewSessionHandler(assignmentService, sweeperService, extensionService, cancellationService, otpService)

	otpRate := deps.OTPRatePerMinute
	if otpRate <= 0 {
		otpRate = 10
	}
	otpLimiter := middleware.NewRateLimiter(otpRate, 3)

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := engine.Group("/api/v1")

	authenticated := apiV1.Group("")
	authenticated.Use(middleware.AuthMiddleware(deps.Tokens))
	authenticated.Use(middleware.RoleAuthMiddleware(services.RoleOwner, services.RoleAdmin))
	{
		SetupCafeRoutes(authenticated, cafeHandler)
		cafe := authenticated.Group("/cafes/:cafeId")
		SetupBookingRoutes(cafe, bookingHandler)
		SetupSessionRoutes(cafe, sessionHandler, otpLimiter)
	}

	return sweeperService
}
