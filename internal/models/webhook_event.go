package models

import "time"

// WebhookOutcome records what processing a delivered webhook event did
type WebhookOutcome string

const (
	WebhookOutcomeApplied WebhookOutcome = "applied"
	WebhookOutcomeNoOp    WebhookOutcome = "noop"
	WebhookOutcomeIgnored WebhookOutcome = "ignored"
)

// WebhookEvent is a processed gateway webhook delivery, keyed by the
// gateway's event id
type WebhookEvent struct {
	EventID     string         `json:"event_id" db:"event_id"`
	EventType   string         `json:"event_type" db:"event_type"`
	Outcome     WebhookOutcome `json:"outcome" db:"outcome"`
	ProcessedAt time.Time      `json:"processed_at" db:"processed_at"`
}
