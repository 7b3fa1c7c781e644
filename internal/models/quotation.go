package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuotationStatus is the lifecycle status of a quotation
type QuotationStatus string

const (
	QuotationDraft    QuotationStatus = "DRAFT"
	QuotationSent     QuotationStatus = "SENT"
	QuotationAccepted QuotationStatus = "ACCEPTED"
	QuotationRejected QuotationStatus = "REJECTED"
	QuotationExpired  QuotationStatus = "EXPIRED"
)

// Quotation is a priced offer a client pays for outside a session
type Quotation struct {
	ID           string          `json:"id" db:"id"`
	ConsultantID string          `json:"consultant_id" db:"consultant_id"`
	ClientID     string          `json:"client_id" db:"client_id"`
	Title        string          `json:"title" db:"title"`
	Amount       decimal.Decimal `json:"amount" db:"amount"`
	Currency     string          `json:"currency" db:"currency"`
	Status       QuotationStatus `json:"status" db:"status"`
	AcceptedAt   *time.Time      `json:"accepted_at,omitempty" db:"accepted_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Payable reports whether the quotation can still be paid
func (q *Quotation) Payable() bool {
	return q.Status == QuotationDraft || q.Status == QuotationSent
}
