package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/consultdesk/booking-backend/internal/config"
	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const dashboardKeyPrefix = "consultant:dashboard:"

// NewRedisClient connects to Redis and pings it once
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// ConsultantCache holds per-consultant read views. Every state transition
// that changes a consultant's sessions or payments calls InvalidateConsultant
// before returning.
type ConsultantCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

// NewConsultantCache creates a new consultant cache
func NewConsultantCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *ConsultantCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ConsultantCache{client: client, ttl: ttl, logger: logger}
}

func dashboardKey(consultantID string) string {
	return dashboardKeyPrefix + consultantID
}

// GetDashboard returns the cached dashboard, or nil on a miss
func (c *ConsultantCache) GetDashboard(ctx context.Context, consultantID string) (*models.ConsultantDashboard, error) {
	raw, err := c.client.Get(ctx, dashboardKey(consultantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dashboard cache: %w", err)
	}

	var dashboard models.ConsultantDashboard
	if err := json.Unmarshal(raw, &dashboard); err != nil {
		// Stale shape from an older release; treat as a miss
		c.logger.WithError(err).WithField("consultant_id", consultantID).Warn("Discarding undecodable dashboard cache entry")
		return nil, nil
	}
	return &dashboard, nil
}

// SetDashboard stores a dashboard for the configured TTL
func (c *ConsultantCache) SetDashboard(ctx context.Context, dashboard *models.ConsultantDashboard) error {
	raw, err := json.Marshal(dashboard)
	if err != nil {
		return fmt.Errorf("failed to encode dashboard: %w", err)
	}
	if err := c.client.Set(ctx, dashboardKey(dashboard.ConsultantID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write dashboard cache: %w", err)
	}
	return nil
}

// InvalidateConsultant drops every cached view of the consultant
func (c *ConsultantCache) InvalidateConsultant(ctx context.Context, consultantID string) error {
	if err := c.client.Del(ctx, dashboardKey(consultantID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate consultant %s: %w", consultantID, err)
	}
	return nil
}
