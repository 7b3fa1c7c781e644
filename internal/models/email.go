package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EmailKind identifies a transactional email template
type EmailKind string

const (
	EmailBookingConfirmation EmailKind = "booking_confirmation"
	EmailPaymentReceipt      EmailKind = "payment_receipt"
	EmailRefundIssued        EmailKind = "refund_issued"
	EmailSessionCancelled    EmailKind = "session_cancelled"
	EmailMeetingLinkReady    EmailKind = "meeting_link_ready"
)

// Email is one transactional email. Each kind carries its own payload type.
type Email interface {
	Kind() EmailKind
	// DedupeKey is stable for a given business event so redelivery is harmless
	DedupeKey() string
	Recipients() []Participant
}

// Participant is a named email recipient
type Participant struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// BookingConfirmationEmail is sent after a session is booked
type BookingConfirmationEmail struct {
	SessionID      string      `json:"session_id"`
	Consultant     Participant `json:"consultant"`
	Client         Participant `json:"client"`
	ScheduledAt    *time.Time  `json:"scheduled_at,omitempty"`
	MeetingLink    *string     `json:"meeting_link,omitempty"`
	Amount         string      `json:"amount"`
	Currency       string      `json:"currency"`
	PaymentPending bool        `json:"payment_pending"`
}

func (e BookingConfirmationEmail) Kind() EmailKind { return EmailBookingConfirmation }
func (e BookingConfirmationEmail) DedupeKey() string {
	return string(EmailBookingConfirmation) + ":" + e.SessionID
}
func (e BookingConfirmationEmail) Recipients() []Participant {
	return []Participant{e.Client, e.Consultant}
}

// PaymentReceiptEmail is sent after a transaction completes
type PaymentReceiptEmail struct {
	TransactionID    string      `json:"transaction_id"`
	SessionID        *string     `json:"session_id,omitempty"`
	QuotationID      *string     `json:"quotation_id,omitempty"`
	Client           Participant `json:"client"`
	Amount           string      `json:"amount"`
	Currency         string      `json:"currency"`
	GatewayPaymentID string      `json:"gateway_payment_id"`
}

func (e PaymentReceiptEmail) Kind() EmailKind { return EmailPaymentReceipt }
func (e PaymentReceiptEmail) DedupeKey() string {
	return string(EmailPaymentReceipt) + ":" + e.TransactionID
}
func (e PaymentReceiptEmail) Recipients() []Participant { return []Participant{e.Client} }

// RefundIssuedEmail is sent after a refund is applied
type RefundIssuedEmail struct {
	TransactionID  string      `json:"transaction_id"`
	SessionID      *string     `json:"session_id,omitempty"`
	Client         Participant `json:"client"`
	RefundID       string      `json:"refund_id"`
	RefundedAmount string      `json:"refunded_amount"`
	Currency       string      `json:"currency"`
}

func (e RefundIssuedEmail) Kind() EmailKind { return EmailRefundIssued }
func (e RefundIssuedEmail) DedupeKey() string {
	return string(EmailRefundIssued) + ":" + e.TransactionID + ":" + e.RefundID
}
func (e RefundIssuedEmail) Recipients() []Participant { return []Participant{e.Client} }

// SessionCancelledEmail is sent after a session is cancelled
type SessionCancelledEmail struct {
	SessionID   string      `json:"session_id"`
	Consultant  Participant `json:"consultant"`
	Client      Participant `json:"client"`
	ScheduledAt *time.Time  `json:"scheduled_at,omitempty"`
}

func (e SessionCancelledEmail) Kind() EmailKind { return EmailSessionCancelled }
func (e SessionCancelledEmail) DedupeKey() string {
	return string(EmailSessionCancelled) + ":" + e.SessionID
}
func (e SessionCancelledEmail) Recipients() []Participant {
	return []Participant{e.Client, e.Consultant}
}

// MeetingLinkReadyEmail is sent when a deferred meeting link gets provisioned
type MeetingLinkReadyEmail struct {
	SessionID   string      `json:"session_id"`
	Consultant  Participant `json:"consultant"`
	Client      Participant `json:"client"`
	MeetingLink string      `json:"meeting_link"`
	ScheduledAt *time.Time  `json:"scheduled_at,omitempty"`
}

func (e MeetingLinkReadyEmail) Kind() EmailKind { return EmailMeetingLinkReady }
func (e MeetingLinkReadyEmail) DedupeKey() string {
	return string(EmailMeetingLinkReady) + ":" + e.SessionID
}
func (e MeetingLinkReadyEmail) Recipients() []Participant {
	return []Participant{e.Client, e.Consultant}
}

// DecodeEmail rebuilds a typed email from its kind and JSON payload
func DecodeEmail(kind EmailKind, data []byte) (Email, error) {
	var (
		email Email
		err   error
	)
	switch kind {
	case EmailBookingConfirmation:
		var e BookingConfirmationEmail
		err = json.Unmarshal(data, &e)
		email = e
	case EmailPaymentReceipt:
		var e PaymentReceiptEmail
		err = json.Unmarshal(data, &e)
		email = e
	case EmailRefundIssued:
		var e RefundIssuedEmail
		err = json.Unmarshal(data, &e)
		email = e
	case EmailSessionCancelled:
		var e SessionCancelledEmail
		err = json.Unmarshal(data, &e)
		email = e
	case EmailMeetingLinkReady:
		var e MeetingLinkReadyEmail
		err = json.Unmarshal(data, &e)
		email = e
	default:
		return nil, fmt.Errorf("unknown email kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s email: %w", kind, err)
	}
	return email, nil
}
