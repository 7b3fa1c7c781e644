package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Consultant owns sessions, clients and quotations
type Consultant struct {
	ID              string          `json:"id" db:"id"`
	Slug            string          `json:"slug" db:"slug"`
	Name            string          `json:"name" db:"name"`
	Email           string          `json:"email" db:"email"`
	IsApproved      bool            `json:"is_approved" db:"is_approved"`
	IsActive        bool            `json:"is_active" db:"is_active"`
	DefaultPlatform MeetingPlatform `json:"default_platform" db:"default_platform"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// CanAcceptBookings reports whether the consultant is approved and active
func (c *Consultant) CanAcceptBookings() bool {
	return c.IsApproved && c.IsActive
}

// SessionTypePrice is a consultant's configured price for a session type
type SessionTypePrice struct {
	ConsultantID    string          `json:"consultant_id" db:"consultant_id"`
	SessionType     string          `json:"session_type" db:"session_type"`
	Price           decimal.Decimal `json:"price" db:"price"`
	Currency        string          `json:"currency" db:"currency"`
	DurationMinutes int             `json:"duration_minutes" db:"duration_minutes"`
}
