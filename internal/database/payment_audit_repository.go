package database

import (
	"context"
	"fmt"
	"time"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log creates a new payment audit entry
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO payment_audits (
			id, transaction_id, gateway_order_id, gateway_payment_id, webhook_event_id,
			event_type, event_source,
			expected_amount, received_amount, currency, amounts_match,
			gateway_status, payload, error_message, error_code, is_duplicate,
			ip_address, user_agent, device, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7,
			$8, $9, $10, $11,
			$12, $13, $14, $15, $16,
			$17, $18, $19, $20
		)`

	_, err := r.db.ExecContext(ctx, query,
		audit.ID, audit.TransactionID, audit.GatewayOrderID, audit.GatewayPaymentID, audit.WebhookEventID,
		audit.EventType, audit.EventSource,
		audit.ExpectedAmount, audit.ReceivedAmount, audit.Currency, audit.AmountsMatch,
		audit.GatewayStatus, audit.Payload, audit.ErrorMessage, audit.ErrorCode, audit.IsDuplicate,
		audit.IPAddress, audit.UserAgent, audit.Device, audit.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"order_id":   audit.GatewayOrderID,
		}).Error("Failed to log payment audit")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
		"order_id":   audit.GatewayOrderID,
	}).Debug("Payment audit logged")

	return nil
}

// ListByOrderID returns the audit trail of a gateway order, oldest first
func (r *PaymentAuditRepository) ListByOrderID(ctx context.Context, orderID string) ([]models.PaymentAudit, error) {
	var audits []models.PaymentAudit
	err := r.db.SelectContext(ctx, &audits, `
		SELECT id, transaction_id, gateway_order_id, gateway_payment_id, webhook_event_id,
		       event_type, event_source, expected_amount, received_amount, currency, amounts_match,
		       gateway_status, payload, error_message, error_code, is_duplicate,
		       ip_address, user_agent, device, created_at
		FROM payment_audits
		WHERE gateway_order_id = $1
		ORDER BY created_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment audits: %w", err)
	}
	return audits, nil
}
