package config

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Redis configuration (read-view cache + task queue broker)
	Redis RedisConfig

	// Background email queue configuration
	Queue QueueConfig

	// Payment gateway configuration
	Payment PaymentConfig

	// Meeting provider configuration
	Meeting MeetingConfig

	// Booking rules
	Booking BookingConfig

	// Background reconciliation jobs
	Jobs JobsConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret             string
	RefreshSecret      string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// QueueConfig holds asynq worker configuration
type QueueConfig struct {
	Concurrency int
	MaxRetry    int
	// Marker TTL for handler-side idempotency of delivered emails
	DedupeTTL time.Duration
}

// PaymentConfig holds Razorpay-style gateway configuration
type PaymentConfig struct {
	BaseURL          string
	KeyID            string // public key, returned to checkout clients
	KeySecret        string // SECRET - signs orderId|paymentId
	WebhookSecret    string // SECRET - signs raw webhook bodies, must differ from KeySecret
	Currency         string
	MinAmount        float64
	MaxAmount        float64
	DailyCap         float64 // per consultant, COMPLETED since local midnight
	RefundWindowDays int
	RequestTimeout   time.Duration
	RequestsPerSec   float64
}

// MeetingConfig holds meeting-provider configuration
type MeetingConfig struct {
	GoogleEndpoint string // override for tests/emulators, empty means Google default
	ZoomBaseURL    string
	ZoomRatePerSec float64
	JitsiBaseURL   string
	RequestTimeout time.Duration
	TokenSkew      time.Duration
	TokenKey       string // hex, 32 bytes; seals stored OAuth tokens when set
}

// BookingConfig holds booking validation rules
type BookingConfig struct {
	Timezone           string
	PriceEpsilon       float64
	LenientPublicPrice bool // public booking logs a price mismatch instead of rejecting

	// Public booking throttle (fixed windows in Redis)
	MaxPerEmail int
	EmailWindow time.Duration
	MaxPerIP    int
	IPWindow    time.Duration
}

// JobsConfig holds session reconciliation job configuration
type JobsConfig struct {
	Enabled  bool
	Schedule string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := FromEnv()

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// FromEnv builds a Config from the current environment without validating it
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:             getEnv("JWT_SECRET", ""),
			RefreshSecret:      getEnv("JWT_REFRESH_SECRET", ""),
			AccessTokenExpiry:  time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
			RefreshTokenExpiry: time.Duration(getEnvAsInt("JWT_REFRESH_TOKEN_EXPIRY", 604800)) * time.Second,
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: getEnvAsDuration("CACHE_TTL", 5*time.Minute),
		},
		Queue: QueueConfig{
			Concurrency: getEnvAsInt("QUEUE_CONCURRENCY", 5),
			MaxRetry:    getEnvAsInt("QUEUE_MAX_RETRY", 8),
			DedupeTTL:   getEnvAsDuration("QUEUE_DEDUPE_TTL", 72*time.Hour),
		},
		Payment: PaymentConfig{
			BaseURL:          getEnv("PAYMENT_BASE_URL", "https://api.razorpay.com/v1"),
			KeyID:            getEnv("PAYMENT_KEY_ID", ""),
			KeySecret:        getEnv("PAYMENT_KEY_SECRET", ""),
			WebhookSecret:    getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			Currency:         getEnv("PAYMENT_CURRENCY", "INR"),
			MinAmount:        getEnvAsFloat("PAYMENT_MIN_AMOUNT", 1),
			MaxAmount:        getEnvAsFloat("PAYMENT_MAX_AMOUNT", 500000),
			DailyCap:         getEnvAsFloat("PAYMENT_DAILY_CAP", 1000000),
			RefundWindowDays: getEnvAsInt("PAYMENT_REFUND_WINDOW_DAYS", 180),
			RequestTimeout:   getEnvAsDuration("PAYMENT_REQUEST_TIMEOUT", 30*time.Second),
			RequestsPerSec:   getEnvAsFloat("PAYMENT_REQUESTS_PER_SEC", 20),
		},
		Meeting: MeetingConfig{
			GoogleEndpoint: getEnv("GOOGLE_CALENDAR_ENDPOINT", ""),
			ZoomBaseURL:    getEnv("ZOOM_API_BASE_URL", "https://api.zoom.us/v2"),
			ZoomRatePerSec: getEnvAsFloat("ZOOM_RATE_PER_SEC", 10),
			JitsiBaseURL:   getEnv("JITSI_BASE_URL", "https://meet.jit.si"),
			RequestTimeout: getEnvAsDuration("MEETING_REQUEST_TIMEOUT", 15*time.Second),
			TokenSkew:      getEnvAsDuration("MEETING_TOKEN_SKEW", time.Minute),
			TokenKey:       getEnv("MEETING_TOKEN_KEY", ""),
		},
		Booking: BookingConfig{
			Timezone:           getEnv("BOOKING_TIMEZONE", "Asia/Kolkata"),
			PriceEpsilon:       getEnvAsFloat("BOOKING_PRICE_EPSILON", 0.01),
			LenientPublicPrice: getEnvAsBool("BOOKING_LENIENT_PUBLIC_PRICE", false),
			MaxPerEmail:        getEnvAsInt("BOOKING_MAX_PER_EMAIL", 3),
			EmailWindow:        getEnvAsDuration("BOOKING_EMAIL_WINDOW", 10*time.Minute),
			MaxPerIP:           getEnvAsInt("BOOKING_MAX_PER_IP", 10),
			IPWindow:           getEnvAsDuration("BOOKING_IP_WINDOW", time.Hour),
		},
		Jobs: JobsConfig{
			Enabled:  getEnvAsBool("SESSION_JOBS_ENABLED", true),
			Schedule: getEnv("SESSION_JOBS_SCHEDULE", "0 */1 * * * *"),
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Payment.KeySecret == "" {
		return fmt.Errorf("PAYMENT_KEY_SECRET is required")
	}

	if c.Payment.WebhookSecret == "" {
		return fmt.Errorf("PAYMENT_WEBHOOK_SECRET is required")
	}

	if c.Payment.WebhookSecret == c.Payment.KeySecret {
		return fmt.Errorf("PAYMENT_WEBHOOK_SECRET must differ from PAYMENT_KEY_SECRET")
	}

	if c.Payment.MinAmount <= 0 || c.Payment.MaxAmount < c.Payment.MinAmount {
		return fmt.Errorf("invalid payment amount bounds: min=%.2f max=%.2f", c.Payment.MinAmount, c.Payment.MaxAmount)
	}

	if key := c.Meeting.TokenKey; key != "" {
		if raw, err := hex.DecodeString(key); err != nil || len(raw) != 32 {
			return fmt.Errorf("MEETING_TOKEN_KEY must be 64 hex characters")
		}
	}

	if _, err := time.LoadLocation(c.Booking.Timezone); err != nil {
		return fmt.Errorf("invalid BOOKING_TIMEZONE %q: %w", c.Booking.Timezone, err)
	}

	return nil
}

// Location returns the booking timezone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Booking.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid float value for %s, using default: %.2f", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Invalid duration value for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
