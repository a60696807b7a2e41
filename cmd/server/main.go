package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gamecafe_backend/internal/config"
	"gamecafe_backend/internal/database"
	"gamecafe_backend/internal/events"
	"gamecafe_backend/internal/middleware"
	"gamecafe_backend/internal/repositories"
	"gamecafe_backend/internal/router"
	"gamecafe_backend/internal/services"
	"gamecafe_backend/pkg/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		utils.InitLogger("info", "console")
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize Logger
	utils.InitLogger(cfg.LogLevel, cfg.LogFormat)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tokens, err := utils.NewTokenManager(cfg.JWTSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize token manager")
	}

	deps := router.Dependencies{
		Tokens:           tokens,
		CancelWindow:     cfg.CancelWindow,
		OTPRatePerMinute: cfg.OTPRatePerMinute,
	}

	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		store := repositories.NewMemoryStore()
		deps.Catalog, deps.Bookings, deps.Refunds, deps.Customers = store, store, store, store
		utils.LogWarn("Using in-memory store, data is lost on restart")
	default:
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize database")
		}
		defer db.Close()
		deps.Catalog = repositories.NewCatalogRepository(db)
		deps.Bookings = repositories.NewBookingRepository(db)
		deps.Refunds = repositories.NewRefundRepository(db)
		deps.Customers = repositories.NewCustomerRepository(db)
	}

	if cfg.RedisAddr != "" {
		client, err := events.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer client.Close()
		deps.Publisher = events.NewRedisPublisher(client, cfg.EventsChannel)
	} else {
		deps.Publisher = events.NewLogPublisher()
	}

	if cfg.RefundServiceURL != "" {
		deps.RefundCalculator = services.NewHTTPRefundCalculator(cfg.RefundServiceURL, cfg.RefundTimeout)
	} else {
		deps.RefundCalculator = services.NewFullRefundCalculator()
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(utils.GinLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.AllowCredentials = true
	engine.Use(cors.New(corsConfig))

	sweeper := router.Setup(engine, deps)
	go sweeper.Run(ctx, cfg.SweepInterval)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.LogInfo("Server starting", map[string]interface{}{"port": cfg.Port, "store": cfg.StoreDriver})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	utils.LogInfo("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.LogError(err, "Server forced to shutdown")
	}
}
