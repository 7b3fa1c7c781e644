package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Client is scoped to a consultant: the same email under two consultants is two clients.
// TotalSessions and TotalAmountPaid are ledger counters, never edited directly.
type Client struct {
	ID              string          `json:"id" db:"id"`
	ConsultantID    string          `json:"consultant_id" db:"consultant_id"`
	Name            string          `json:"name" db:"name"`
	Email           string          `json:"email" db:"email"`
	Phone           *string         `json:"phone,omitempty" db:"phone"`
	TotalSessions   int             `json:"total_sessions" db:"total_sessions"`
	TotalAmountPaid decimal.Decimal `json:"total_amount_paid" db:"total_amount_paid"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// ClientContact is the contact info supplied with a booking
type ClientContact struct {
	Name  string  `json:"name" binding:"required"`
	Email string  `json:"email" binding:"required,email"`
	Phone *string `json:"phone,omitempty"`
}
