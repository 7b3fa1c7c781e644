package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus is the reconciliation state of a payment transaction.
// PENDING -> COMPLETED | FAILED, COMPLETED -> REFUNDED. Nothing else.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
	TransactionRefunded  TransactionStatus = "REFUNDED"
)

// TransactionMethod says how the money moved
type TransactionMethod string

const (
	TransactionMethodGateway TransactionMethod = "GATEWAY"
	TransactionMethodOffline TransactionMethod = "OFFLINE"
)

// PaymentTransaction references at most one of SessionID and QuotationID
type PaymentTransaction struct {
	ID           string  `json:"id" db:"id"`
	ConsultantID string  `json:"consultant_id" db:"consultant_id"`
	ClientID     *string `json:"client_id,omitempty" db:"client_id"`
	SessionID    *string `json:"session_id,omitempty" db:"session_id"`
	QuotationID  *string `json:"quotation_id,omitempty" db:"quotation_id"`

	GatewayOrderID   *string `json:"gateway_order_id,omitempty" db:"gateway_order_id"`
	GatewayPaymentID *string `json:"gateway_payment_id,omitempty" db:"gateway_payment_id"`
	Receipt          string  `json:"receipt" db:"receipt"`

	Amount         decimal.Decimal   `json:"amount" db:"amount"`
	Currency       string            `json:"currency" db:"currency"`
	Status         TransactionStatus `json:"status" db:"status"`
	Method         TransactionMethod `json:"method" db:"method"`
	RefundedAmount decimal.Decimal   `json:"refunded_amount" db:"refunded_amount"`
	RefundID       *string           `json:"refund_id,omitempty" db:"refund_id"`

	ErrorCode        *string `json:"error_code,omitempty" db:"error_code"`
	ErrorDescription *string `json:"error_description,omitempty" db:"error_description"`
	GatewayResponse  JSONB   `json:"gateway_response,omitempty" db:"gateway_response"`
	Notes            JSONB   `json:"notes,omitempty" db:"notes"`

	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
	RefundedAt  *time.Time `json:"refunded_at,omitempty" db:"refunded_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether no PENDING transition is possible any more
func (t *PaymentTransaction) IsTerminal() bool {
	return t.Status != TransactionPending
}

// CompletionParams carries the gateway facts recorded on PENDING -> COMPLETED
type CompletionParams struct {
	GatewayOrderID   string
	GatewayPaymentID string
	GatewayResponse  JSONB
	ProcessedAt      time.Time
}

// FailureParams carries the gateway facts recorded on PENDING -> FAILED
type FailureParams struct {
	GatewayOrderID   string
	GatewayPaymentID *string
	ErrorCode        string
	ErrorDescription string
	GatewayResponse  JSONB
	ProcessedAt      time.Time
}

// RefundParams carries the gateway facts recorded on COMPLETED -> REFUNDED
type RefundParams struct {
	TransactionID  string
	RefundID       string
	RefundedAmount decimal.Decimal
	RefundedAt     time.Time
}

// SettlementResult describes the fan-out performed by a completion
type SettlementResult struct {
	Transaction *PaymentTransaction
	Session     *Session
	Client      *Client
	Quotation   *Quotation
}
