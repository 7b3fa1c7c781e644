package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const rateLimitKeyPrefix = "ratelimit:booking:"

// RateLimitService throttles public booking attempts per client email and per IP
type RateLimitService struct {
	client *redis.Client
	config RateLimitConfig
	logger *logrus.Logger
	now    func() time.Time
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxEmailRequests int           // Max booking attempts per client email
	EmailWindow      time.Duration // Time window for email rate limit
	MaxIPRequests    int           // Max booking attempts per IP
	IPWindow         time.Duration // Time window for IP rate limit
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxEmailRequests: 3,                // 3 attempts
		EmailWindow:      10 * time.Minute, // per 10 minutes
		MaxIPRequests:    10,               // 10 attempts
		IPWindow:         1 * time.Hour,    // per hour
	}
}

// NewRateLimitService creates a new rate limit service. Zero limits fall back to defaults.
func NewRateLimitService(client *redis.Client, config RateLimitConfig, logger *logrus.Logger) *RateLimitService {
	defaults := DefaultRateLimitConfig()
	if config.MaxEmailRequests <= 0 || config.EmailWindow <= 0 {
		config.MaxEmailRequests, config.EmailWindow = defaults.MaxEmailRequests, defaults.EmailWindow
	}
	if config.MaxIPRequests <= 0 || config.IPWindow <= 0 {
		config.MaxIPRequests, config.IPWindow = defaults.MaxIPRequests, defaults.IPWindow
	}
	return &RateLimitService{client: client, config: config, logger: logger, now: time.Now}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Type       string // "email" or "ip"
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// CheckBookingRateLimit counts one booking attempt against the email and IP
// windows. Redis failures are logged and the attempt is allowed.
func (s *RateLimitService) CheckBookingRateLimit(ctx context.Context, email, ip string) error {
	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		if err := s.check(ctx, "email", email, s.config.MaxEmailRequests, s.config.EmailWindow); err != nil {
			return err
		}
	}

	if ip != "" {
		if err := s.check(ctx, "ip", ip, s.config.MaxIPRequests, s.config.IPWindow); err != nil {
			return err
		}
	}

	return nil
}

func (s *RateLimitService) check(ctx context.Context, kind, identifier string, limit int, window time.Duration) error {
	count, ttl, err := s.hit(ctx, rateLimitKeyPrefix+kind+":"+identifier, window)
	if err != nil {
		s.logger.WithError(err).WithField("limit_type", kind).Warn("Rate limit check failed, allowing request")
		return nil
	}

	if count > int64(limit) {
		retryAfter := s.now().Add(ttl)
		return &RateLimitError{
			Message:    fmt.Sprintf("Too many booking attempts for this %s. Please try again after %s", kind, retryAfter.Format("15:04:05")),
			RetryAfter: retryAfter,
			Type:       kind,
		}
	}
	return nil
}

// hit increments the window counter and returns it with the time left in the window
func (s *RateLimitService) hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to count request: %w", err)
	}

	ttl := pttl.Val()
	if ttl <= 0 {
		// first hit in the window, or a counter left without expiry
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("failed to set rate limit window: %w", err)
		}
		ttl = window
	}
	return incr.Val(), ttl, nil
}

// GetRateLimitStatus returns the attempts counted so far in the current window
func (s *RateLimitService) GetRateLimitStatus(ctx context.Context, kind, identifier string) (int, error) {
	if kind == "email" {
		identifier = strings.ToLower(strings.TrimSpace(identifier))
	}
	count, err := s.client.Get(ctx, rateLimitKeyPrefix+kind+":"+identifier).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read rate limit status: %w", err)
	}
	return count, nil
}
