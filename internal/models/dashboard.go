package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ConsultantDashboard is the cached aggregate view of a consultant's sessions
type ConsultantDashboard struct {
	ConsultantID        string          `json:"consultant_id" db:"consultant_id"`
	TotalSessions       int             `json:"total_sessions" db:"total_sessions"`
	PendingSessions     int             `json:"pending_sessions" db:"pending_sessions"`
	UpcomingSessions    int             `json:"upcoming_sessions" db:"upcoming_sessions"`
	CompletedSessions   int             `json:"completed_sessions" db:"completed_sessions"`
	CancelledSessions   int             `json:"cancelled_sessions" db:"cancelled_sessions"`
	AwaitingMeetingLink int             `json:"awaiting_meeting_link" db:"awaiting_meeting_link"`
	Revenue             decimal.Decimal `json:"revenue" db:"revenue"`
	Refunded            decimal.Decimal `json:"refunded" db:"refunded"`
	GeneratedAt         time.Time       `json:"generated_at" db:"generated_at"`
}
