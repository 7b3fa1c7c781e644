package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventOrderCreated      PaymentEventType = "order_created"
	PaymentEventOrderFailed       PaymentEventType = "order_failed"
	PaymentEventVerifyRequested   PaymentEventType = "verify_requested"
	PaymentEventSignatureRejected PaymentEventType = "signature_rejected"
	PaymentEventWebhookReceived   PaymentEventType = "webhook_received"
	PaymentEventCompleted         PaymentEventType = "payment_completed"
	PaymentEventFailed            PaymentEventType = "payment_failed"
	PaymentEventDuplicate         PaymentEventType = "duplicate_event"
	PaymentEventRefundInitiated   PaymentEventType = "refund_initiated"
	PaymentEventRefundCompleted   PaymentEventType = "refund_completed"
	PaymentEventAmountMismatch    PaymentEventType = "amount_mismatch"
	PaymentEventError             PaymentEventType = "error"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceBackend        PaymentEventSource = "backend"
	PaymentSourceGatewayWebhook PaymentEventSource = "gateway_webhook"
	PaymentSourceGatewayAPI     PaymentEventSource = "gateway_api"
	PaymentSourceClient         PaymentEventSource = "client"
	PaymentSourceSystem         PaymentEventSource = "system"
)

// PaymentAudit represents an immutable audit log entry for payment events
type PaymentAudit struct {
	ID               uuid.UUID `json:"id" db:"id"`
	TransactionID    *string   `json:"transaction_id,omitempty" db:"transaction_id"`
	GatewayOrderID   *string   `json:"gateway_order_id,omitempty" db:"gateway_order_id"`
	GatewayPaymentID *string   `json:"gateway_payment_id,omitempty" db:"gateway_payment_id"`
	WebhookEventID   *string   `json:"webhook_event_id,omitempty" db:"webhook_event_id"`

	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`

	ExpectedAmount *decimal.Decimal `json:"expected_amount,omitempty" db:"expected_amount"`
	ReceivedAmount *decimal.Decimal `json:"received_amount,omitempty" db:"received_amount"`
	Currency       *string          `json:"currency,omitempty" db:"currency"`
	AmountsMatch   *bool            `json:"amounts_match,omitempty" db:"amounts_match"`

	GatewayStatus *string `json:"gateway_status,omitempty" db:"gateway_status"`
	Payload       JSONB   `json:"payload,omitempty" db:"payload"`

	ErrorMessage *string `json:"error_message,omitempty" db:"error_message"`
	ErrorCode    *string `json:"error_code,omitempty" db:"error_code"`

	IsDuplicate bool `json:"is_duplicate" db:"is_duplicate"`

	IPAddress *string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent *string `json:"user_agent,omitempty" db:"user_agent"`
	Device    *string `json:"device,omitempty" db:"device"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetTransaction links the audit to a local transaction
func (pa *PaymentAudit) SetTransaction(txn *PaymentTransaction) *PaymentAudit {
	if txn == nil {
		return pa
	}
	id := txn.ID
	pa.TransactionID = &id
	if txn.GatewayOrderID != nil && pa.GatewayOrderID == nil {
		pa.SetOrderID(*txn.GatewayOrderID)
	}
	return pa
}

// SetOrderID sets the gateway order id
func (pa *PaymentAudit) SetOrderID(orderID string) *PaymentAudit {
	if orderID != "" {
		pa.GatewayOrderID = &orderID
	}
	return pa
}

// SetPaymentID sets the gateway payment id
func (pa *PaymentAudit) SetPaymentID(paymentID string) *PaymentAudit {
	if paymentID != "" {
		pa.GatewayPaymentID = &paymentID
	}
	return pa
}

// SetWebhookEvent sets the gateway's webhook event id
func (pa *PaymentAudit) SetWebhookEvent(eventID string) *PaymentAudit {
	if eventID != "" {
		pa.WebhookEventID = &eventID
	}
	return pa
}

// SetAmounts records expected and received amounts and reports whether they
// match within epsilon
func (pa *PaymentAudit) SetAmounts(expected, received decimal.Decimal, currency string, epsilon decimal.Decimal) bool {
	pa.ExpectedAmount = &expected
	pa.ReceivedAmount = &received
	pa.Currency = &currency

	match := AmountsMatch(expected, received, epsilon)
	pa.AmountsMatch = &match
	return match
}

// SetGatewayStatus sets the payment status reported by the gateway
func (pa *PaymentAudit) SetGatewayStatus(status string) *PaymentAudit {
	pa.GatewayStatus = &status
	return pa
}

// SetPayload stores a structured payload
func (pa *PaymentAudit) SetPayload(payload map[string]interface{}) *PaymentAudit {
	pa.Payload = JSONB(payload)
	return pa
}

// SetError sets error information
func (pa *PaymentAudit) SetError(message string, code string) *PaymentAudit {
	pa.ErrorMessage = &message
	if code != "" {
		pa.ErrorCode = &code
	}
	return pa
}

// SetMetadata sets request metadata
func (pa *PaymentAudit) SetMetadata(ip, userAgent, device string) *PaymentAudit {
	if ip != "" {
		pa.IPAddress = &ip
	}
	if userAgent != "" {
		pa.UserAgent = &userAgent
	}
	if device != "" {
		pa.Device = &device
	}
	return pa
}

// MarkAsDuplicate marks this event as a duplicate
func (pa *PaymentAudit) MarkAsDuplicate() *PaymentAudit {
	pa.IsDuplicate = true
	return pa
}

// AmountsMatch compares two amounts with an absolute tolerance
func AmountsMatch(a, b, epsilon decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(epsilon)
}
