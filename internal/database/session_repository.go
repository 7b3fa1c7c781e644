package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// Dates and times are rendered as text so they round-trip as "2025-03-01" / "10:00"
const sessionColumns = `
	id, consultant_id, client_id, title, session_type,
	to_char(scheduled_date, 'YYYY-MM-DD') AS scheduled_date,
	to_char(scheduled_time, 'HH24:MI') AS scheduled_time,
	scheduled_at, duration_minutes, amount, currency,
	status, payment_status, payment_method,
	platform, meeting_link, meeting_id, meeting_password,
	booking_source, notes, cancelled_at, created_at, updated_at`

const clientColumns = `
	id, consultant_id, name, email, phone,
	total_sessions, total_amount_paid, created_at, updated_at`

// SessionRepository persists sessions and is the source of truth for slot conflicts
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// CreateSessionParams is everything written by one booking
type CreateSessionParams struct {
	Session *models.Session
	// Settled outside the gateway: credited to the ledger and recorded as a
	// COMPLETED transaction in the same commit
	OfflineTransaction *models.PaymentTransaction
}

// ============================================================================
// BOOKING
// ============================================================================

// HasActiveSlot reports whether a non-cancelled session holds the slot.
// Advisory only; CreateBooked repeats the check under lock.
func (r *SessionRepository) HasActiveSlot(ctx context.Context, consultantID, date, clock string) (bool, error) {
	var exists bool
	query := `
		SELECT EXISTS (
			SELECT 1 FROM sessions
			WHERE consultant_id = $1
			  AND scheduled_date = $2::date
			  AND scheduled_time = $3::time
			  AND status <> 'CANCELLED'
		)`
	if err := r.db.GetContext(ctx, &exists, query, consultantID, date, clock); err != nil {
		return false, fmt.Errorf("failed to check slot: %w", err)
	}
	return exists, nil
}

// CreateBooked inserts the session and bumps the client's counters in one
// transaction. Scheduled sessions take a per-slot advisory lock and recheck
// the slot before inserting; the partial unique index is the backstop.
func (r *SessionRepository) CreateBooked(ctx context.Context, p CreateSessionParams) (*models.Session, *models.Client, error) {
	s := p.Session

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if s.ScheduledDate != nil && s.ScheduledTime != nil {
		lockKey := s.ConsultantID + "|" + *s.ScheduledDate + "|" + *s.ScheduledTime
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, lockKey); err != nil {
			return nil, nil, fmt.Errorf("failed to lock slot: %w", err)
		}

		var taken bool
		err := tx.GetContext(ctx, &taken, `
			SELECT EXISTS (
				SELECT 1 FROM sessions
				WHERE consultant_id = $1
				  AND scheduled_date = $2::date
				  AND scheduled_time = $3::time
				  AND status <> 'CANCELLED'
			)`, s.ConsultantID, *s.ScheduledDate, *s.ScheduledTime)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to check slot: %w", err)
		}
		if taken {
			return nil, nil, ErrSlotTaken
		}
	}

	created := &models.Session{}
	insert := `
		INSERT INTO sessions (
			id, consultant_id, client_id, title, session_type,
			scheduled_date, scheduled_time, scheduled_at, duration_minutes,
			amount, currency, status, payment_status, payment_method,
			platform, meeting_link, meeting_id, meeting_password,
			booking_source, notes, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6::date, $7::time, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16, $17, $18,
			$19, $20, $21, $21
		)
		RETURNING ` + sessionColumns
	err = tx.QueryRowxContext(ctx, insert,
		s.ID, s.ConsultantID, s.ClientID, s.Title, s.SessionType,
		s.ScheduledDate, s.ScheduledTime, s.ScheduledAt, s.DurationMinutes,
		s.Amount, s.Currency, s.Status, s.PaymentStatus, s.PaymentMethod,
		s.Platform, s.MeetingLink, s.MeetingID, s.MeetingPassword,
		s.BookingSource, s.Notes, s.CreatedAt,
	).StructScan(created)
	if err != nil {
		if isUniqueViolation(err, activeSlotConstraint) {
			return nil, nil, ErrSlotTaken
		}
		return nil, nil, fmt.Errorf("failed to insert session: %w", err)
	}

	paidNow := decimal.Zero
	if p.OfflineTransaction != nil {
		paidNow = p.OfflineTransaction.Amount
		if err := insertTransaction(ctx, tx, p.OfflineTransaction); err != nil {
			return nil, nil, err
		}
	}

	client := &models.Client{}
	err = tx.QueryRowxContext(ctx, `
		UPDATE clients
		SET total_sessions = total_sessions + 1,
		    total_amount_paid = total_amount_paid + $2,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+clientColumns, s.ClientID, paidNow).StructScan(client)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update client counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit booking: %w", err)
	}

	return created, client, nil
}

// ============================================================================
// READS
// ============================================================================

// GetByID returns the session or nil if it does not exist
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	session := &models.Session{}
	err := r.db.GetContext(ctx, session, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// ListAwaitingMeetingLink returns upcoming, live sessions on a platform that
// still have no meeting link
func (r *SessionRepository) ListAwaitingMeetingLink(ctx context.Context, consultantID string, platform models.MeetingPlatform, now time.Time) ([]models.Session, error) {
	var sessions []models.Session
	query := `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE consultant_id = $1
		  AND platform = $2
		  AND meeting_link IS NULL
		  AND scheduled_at IS NOT NULL
		  AND scheduled_at > $3
		  AND status IN ('PENDING', 'CONFIRMED')
		ORDER BY scheduled_at`
	if err := r.db.SelectContext(ctx, &sessions, query, consultantID, platform, now); err != nil {
		return nil, fmt.Errorf("failed to list sessions awaiting meeting link: %w", err)
	}
	return sessions, nil
}

// Dashboard aggregates a consultant's sessions and settled revenue
func (r *SessionRepository) Dashboard(ctx context.Context, consultantID string, now time.Time) (*models.ConsultantDashboard, error) {
	dash := &models.ConsultantDashboard{}
	query := `
		SELECT
			$1::uuid AS consultant_id,
			COUNT(*) AS total_sessions,
			COUNT(*) FILTER (WHERE status = 'PENDING') AS pending_sessions,
			COUNT(*) FILTER (WHERE status = 'CONFIRMED' AND scheduled_at > $2) AS upcoming_sessions,
			COUNT(*) FILTER (WHERE status = 'COMPLETED') AS completed_sessions,
			COUNT(*) FILTER (WHERE status = 'CANCELLED') AS cancelled_sessions,
			COUNT(*) FILTER (WHERE meeting_link IS NULL AND scheduled_at > $2
				AND status IN ('PENDING', 'CONFIRMED')) AS awaiting_meeting_link,
			COALESCE((SELECT SUM(amount) FROM payment_transactions
				WHERE consultant_id = $1 AND status IN ('COMPLETED', 'REFUNDED')), 0) AS revenue,
			COALESCE((SELECT SUM(refunded_amount) FROM payment_transactions
				WHERE consultant_id = $1 AND status = 'REFUNDED'), 0) AS refunded,
			$2 AS generated_at
		FROM sessions
		WHERE consultant_id = $1`
	if err := r.db.GetContext(ctx, dash, query, consultantID, now); err != nil {
		return nil, fmt.Errorf("failed to build dashboard: %w", err)
	}
	return dash, nil
}

// ============================================================================
// CONDITIONAL UPDATES
// ============================================================================

// SetMeetingDetails stores a provisioned link unless one is already present.
// Returns false when another writer got there first.
func (r *SessionRepository) SetMeetingDetails(ctx context.Context, id string, details models.MeetingDetails) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE sessions
		SET meeting_link = $2, meeting_id = $3, meeting_password = $4, updated_at = NOW()
		WHERE id = $1 AND meeting_link IS NULL`,
		id, details.Link, details.ID, details.Password)
	if err != nil {
		return false, fmt.Errorf("failed to set meeting details: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to set meeting details: %w", err)
	}
	return rows == 1, nil
}

// Cancel moves a PENDING or CONFIRMED session to CANCELLED, freeing its slot
func (r *SessionRepository) Cancel(ctx context.Context, id string, at time.Time) (*models.Session, error) {
	session := &models.Session{}
	err := r.db.QueryRowxContext(ctx, `
		UPDATE sessions
		SET status = 'CANCELLED', cancelled_at = $2, updated_at = $2
		WHERE id = $1 AND status IN ('PENDING', 'CONFIRMED')
		RETURNING `+sessionColumns, id, at).StructScan(session)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotCancellable
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel session: %w", err)
	}
	return session, nil
}

// ============================================================================
// TIME-BASED RECONCILIATION (bulk, filtered by current status)
// Each returns the consultant ids whose sessions changed.
// ============================================================================

// StartDue moves CONFIRMED sessions whose window contains now to IN_PROGRESS
func (r *SessionRepository) StartDue(ctx context.Context, now time.Time) ([]string, error) {
	return r.bulkTransition(ctx, `
		UPDATE sessions
		SET status = 'IN_PROGRESS', updated_at = $1
		WHERE status = 'CONFIRMED'
		  AND scheduled_at <= $1
		  AND scheduled_at + make_interval(mins => duration_minutes) > $1
		RETURNING consultant_id`, now)
}

// CompleteElapsed moves CONFIRMED or IN_PROGRESS sessions whose window ended to COMPLETED
func (r *SessionRepository) CompleteElapsed(ctx context.Context, now time.Time) ([]string, error) {
	return r.bulkTransition(ctx, `
		UPDATE sessions
		SET status = 'COMPLETED', updated_at = $1
		WHERE status IN ('CONFIRMED', 'IN_PROGRESS')
		  AND scheduled_at + make_interval(mins => duration_minutes) <= $1
		RETURNING consultant_id`, now)
}

// AbandonUnpaid moves never-paid PENDING sessions whose window ended to ABANDONED
func (r *SessionRepository) AbandonUnpaid(ctx context.Context, now time.Time) ([]string, error) {
	return r.bulkTransition(ctx, `
		UPDATE sessions
		SET status = 'ABANDONED', updated_at = $1
		WHERE status = 'PENDING'
		  AND payment_status = 'PENDING'
		  AND scheduled_at + make_interval(mins => duration_minutes) <= $1
		RETURNING consultant_id`, now)
}

func (r *SessionRepository) bulkTransition(ctx context.Context, query string, now time.Time) ([]string, error) {
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, now); err != nil {
		return nil, fmt.Errorf("failed to transition sessions: %w", err)
	}
	return uniqueStrings(ids), nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
