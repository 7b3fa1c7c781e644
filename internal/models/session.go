package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// SESSION STATUSES (matches DB CHECK constraints)
// ============================================================================

// SessionStatus represents the lifecycle status of a consulting session
type SessionStatus string

const (
	SessionStatusPending    SessionStatus = "PENDING"     // Created, waiting for payment
	SessionStatusConfirmed  SessionStatus = "CONFIRMED"   // Paid (or settled offline)
	SessionStatusInProgress SessionStatus = "IN_PROGRESS" // Started by the reconciliation job
	SessionStatusCompleted  SessionStatus = "COMPLETED"
	SessionStatusCancelled  SessionStatus = "CANCELLED" // Frees the slot
	SessionStatusReturned   SessionStatus = "RETURNED"  // Payment refunded
	SessionStatusAbandoned  SessionStatus = "ABANDONED" // Never paid, slot elapsed
	SessionStatusNoShow     SessionStatus = "NO_SHOW"
)

// SessionPaymentStatus represents the payment state of a session
type SessionPaymentStatus string

const (
	SessionPaymentPending  SessionPaymentStatus = "PENDING"
	SessionPaymentPaid     SessionPaymentStatus = "PAID"
	SessionPaymentRefunded SessionPaymentStatus = "REFUNDED"
	SessionPaymentFailed   SessionPaymentStatus = "FAILED"
)

// BookingSource records where a session came from
type BookingSource string

const (
	BookingSourcePublic   BookingSource = "PUBLIC_BOOKING"
	BookingSourceManual   BookingSource = "MANUAL"
	BookingSourcePlatform BookingSource = "PLATFORM"
)

// PaymentMethod is how a session is paid for
type PaymentMethod string

const (
	PaymentMethodOnline       PaymentMethod = "ONLINE"
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
)

// IsOnline reports whether the payment settles through the gateway
func (m PaymentMethod) IsOnline() bool {
	return m == "" || m == PaymentMethodOnline
}

// Valid reports whether m is a known payment method
func (m PaymentMethod) Valid() bool {
	switch m {
	case "", PaymentMethodOnline, PaymentMethodCash, PaymentMethodBankTransfer:
		return true
	}
	return false
}

const (
	SlotDateLayout = "2006-01-02"
	SlotTimeLayout = "15:04"
)

// Session is a booked consulting session
type Session struct {
	ID            string  `json:"id" db:"id"`
	ConsultantID  string  `json:"consultant_id" db:"consultant_id"`
	ClientID      string  `json:"client_id" db:"client_id"`
	Title         string  `json:"title" db:"title"`
	SessionType   string  `json:"session_type" db:"session_type"`
	ScheduledDate *string `json:"scheduled_date,omitempty" db:"scheduled_date"` // "2025-03-01", nil for manual bookings
	ScheduledTime *string `json:"scheduled_time,omitempty" db:"scheduled_time"` // "10:00"
	// Absolute start derived from date+time in the booking timezone
	ScheduledAt     *time.Time      `json:"scheduled_at,omitempty" db:"scheduled_at"`
	DurationMinutes int             `json:"duration_minutes" db:"duration_minutes"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Currency        string          `json:"currency" db:"currency"`

	Status        SessionStatus        `json:"status" db:"status"`
	PaymentStatus SessionPaymentStatus `json:"payment_status" db:"payment_status"`
	PaymentMethod PaymentMethod        `json:"payment_method" db:"payment_method"`

	Platform        MeetingPlatform `json:"platform" db:"platform"`
	MeetingLink     *string         `json:"meeting_link,omitempty" db:"meeting_link"`
	MeetingID       *string         `json:"meeting_id,omitempty" db:"meeting_id"`
	MeetingPassword *string         `json:"meeting_password,omitempty" db:"meeting_password"`

	BookingSource BookingSource `json:"booking_source" db:"booking_source"`
	Notes         *string       `json:"notes,omitempty" db:"notes"`

	CancelledAt *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// IsScheduled reports whether the session occupies a slot
func (s *Session) IsScheduled() bool {
	return s.ScheduledDate != nil && s.ScheduledTime != nil && s.ScheduledAt != nil
}

// NeedsMeetingLink reports whether a link should still be provisioned
func (s *Session) NeedsMeetingLink() bool {
	if !s.IsScheduled() || s.MeetingLink != nil {
		return false
	}
	switch s.Status {
	case SessionStatusCancelled, SessionStatusCompleted, SessionStatusReturned, SessionStatusAbandoned, SessionStatusNoShow:
		return false
	}
	return true
}

// EndsAt returns the scheduled end time, nil for unscheduled sessions
func (s *Session) EndsAt() *time.Time {
	if s.ScheduledAt == nil {
		return nil
	}
	end := s.ScheduledAt.Add(time.Duration(s.DurationMinutes) * time.Minute)
	return &end
}

// MeetingDetails holds provisioned meeting link fields
type MeetingDetails struct {
	Link     string
	ID       string
	Password *string
}

// ParseSlot converts a date ("2006-01-02") and time ("15:04") pair into an
// absolute instant in loc.
func ParseSlot(date, clock string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(SlotDateLayout+" "+SlotTimeLayout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid slot %q %q: %w", date, clock, err)
	}
	return t, nil
}
