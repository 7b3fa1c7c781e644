package database

import (
	"context"
	"fmt"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/jmoiron/sqlx"
)

// WebhookEventRepository remembers processed gateway webhook deliveries
type WebhookEventRepository struct {
	db *sqlx.DB
}

// NewWebhookEventRepository creates a new webhook event repository
func NewWebhookEventRepository(db *sqlx.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// Seen reports whether the event id was already processed
func (r *WebhookEventRepository) Seen(ctx context.Context, eventID string) (bool, error) {
	var seen bool
	err := r.db.GetContext(ctx, &seen, `SELECT EXISTS (SELECT 1 FROM webhook_events WHERE event_id = $1)`, eventID)
	if err != nil {
		return false, fmt.Errorf("failed to check webhook event: %w", err)
	}
	return seen, nil
}

// Record stores a processed event. Recording twice is a no-op.
func (r *WebhookEventRepository) Record(ctx context.Context, event models.WebhookEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_events (event_id, event_type, outcome, processed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO NOTHING`,
		event.EventID, event.EventType, event.Outcome, event.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}
