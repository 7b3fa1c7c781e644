package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const deliveredKeyPrefix = "email:delivered:"

// RedisDeliveryMarker records delivered emails as expiring Redis keys
type RedisDeliveryMarker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeliveryMarker creates a delivery marker. Markers outlive the
// longest retry schedule so late redeliveries still see them.
func NewRedisDeliveryMarker(client *redis.Client, ttl time.Duration) *RedisDeliveryMarker {
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &RedisDeliveryMarker{client: client, ttl: ttl}
}

// Delivered reports whether the email with key was already sent
func (m *RedisDeliveryMarker) Delivered(ctx context.Context, key string) (bool, error) {
	n, err := m.client.Exists(ctx, deliveredKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read delivery marker: %w", err)
	}
	return n > 0, nil
}

// MarkDelivered records that the email with key was sent
func (m *RedisDeliveryMarker) MarkDelivered(ctx context.Context, key string) error {
	if err := m.client.Set(ctx, deliveredKeyPrefix+key, time.Now().UTC().Format(time.RFC3339), m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write delivery marker: %w", err)
	}
	return nil
}
