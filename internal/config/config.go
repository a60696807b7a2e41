package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gamecafe_backend/internal/database"
	"gamecafe_backend/pkg/utils"

	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config is the full runtime configuration, read once at startup.
type Config struct {
	Port      string
	GinMode   string
	LogLevel  string
	LogFormat string

	StoreDriver string
	Database    database.Config

	JWTSecret          string
	CORSAllowedOrigins []string

	SweepInterval    time.Duration
	CancelWindow     time.Duration
	OTPRatePerMinute int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	EventsChannel string

	RefundServiceURL string
	RefundTimeout    time.Duration
}

// Load reads .env (when present) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg := &Config{
		Port:      utils.Getenv("PORT", "8080"),
		GinMode:   utils.Getenv("GIN_MODE", "debug"),
		LogLevel:  utils.Getenv("LOG_LEVEL", "info"),
		LogFormat: utils.Getenv("LOG_FORMAT", "console"),

		StoreDriver: strings.ToLower(utils.Getenv("STORE_DRIVER", StoreDriverPostgres)),
		Database: database.Config{
			Host:        utils.Getenv("DB_HOST", "localhost"),
			Port:        utils.Getenv("DB_PORT", "5432"),
			User:        utils.Getenv("DB_USER", "postgres"),
			Password:    utils.Getenv("DB_PASSWORD", "postgres"),
			Name:        utils.Getenv("DB_NAME", "gamecafe_db"),
			SSLMode:     utils.Getenv("DB_SSLMODE", "disable"),
			ApplySchema: utils.GetenvBool("DB_APPLY_SCHEMA", true),
		},

		JWTSecret:          os.Getenv("JWT_SECRET"),
		CORSAllowedOrigins: splitList(utils.Getenv("CORS_ALLOWED_ORIGINS", "http://localhost:3000")),

		SweepInterval:    utils.GetenvDuration("SWEEP_INTERVAL", 60*time.Second),
		CancelWindow:     utils.GetenvDuration("CANCEL_WINDOW", 15*time.Minute),
		OTPRatePerMinute: utils.GetenvInt("OTP_RATE_PER_MINUTE", 10),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       utils.GetenvInt("REDIS_DB", 0),
		EventsChannel: utils.Getenv("EVENTS_CHANNEL", "gamecafe:bookings"),

		RefundServiceURL: os.Getenv("REFUND_SERVICE_URL"),
		RefundTimeout:    utils.GetenvDuration("REFUND_TIMEOUT", 10*time.Second),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if c.StoreDriver != StoreDriverPostgres && c.StoreDriver != StoreDriverMemory {
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.OTPRatePerMinute <= 0 {
		return errors.New("OTP_RATE_PER_MINUTE must be positive")
	}
	return nil
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
