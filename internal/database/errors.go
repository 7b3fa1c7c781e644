package database

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrSlotTaken is returned when a non-cancelled session already holds the slot
	ErrSlotTaken = errors.New("slot already booked")

	// ErrNotPending is returned when a conditional PENDING transition matched no row
	ErrNotPending = errors.New("transaction not in PENDING status or not found")

	// ErrNotCompleted is returned when a refund targets a non-COMPLETED transaction
	ErrNotCompleted = errors.New("transaction not in COMPLETED status")

	// ErrSessionNotCancellable is returned when the session left PENDING/CONFIRMED
	ErrSessionNotCancellable = errors.New("session not in a cancellable status")

	// ErrSessionAlreadySettled is returned when a second transaction tries to complete for one session
	ErrSessionAlreadySettled = errors.New("session already has a completed transaction")
)

const (
	pqUniqueViolation = "23505"

	activeSlotConstraint       = "sessions_active_slot_uq"
	completedSessionConstraint = "payment_transactions_completed_session_uq"
)

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqUniqueViolation && (constraint == "" || pqErr.Constraint == constraint)
}
