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

const transactionColumns = `
	id, consultant_id, client_id, session_id, quotation_id,
	gateway_order_id, gateway_payment_id, receipt,
	amount, currency, status, method, refunded_amount, refund_id,
	error_code, error_description, gateway_response, notes,
	processed_at, refunded_at, created_at, updated_at`

const quotationColumns = `
	id, consultant_id, client_id, title, amount, currency, status,
	accepted_at, created_at, updated_at`

// PaymentTransactionRepository owns payment_transactions and the fan-out
// updates tied to their terminal transitions
type PaymentTransactionRepository struct {
	db *sqlx.DB
}

// NewPaymentTransactionRepository creates a new payment transaction repository
func NewPaymentTransactionRepository(db *sqlx.DB) *PaymentTransactionRepository {
	return &PaymentTransactionRepository{db: db}
}

// ============================================================================
// CREATE
// ============================================================================

// CreatePending inserts a PENDING transaction before any gateway order exists
func (r *PaymentTransactionRepository) CreatePending(ctx context.Context, txn *models.PaymentTransaction) error {
	txn.Status = models.TransactionPending
	return insertTransaction(ctx, r.db, txn)
}

func insertTransaction(ctx context.Context, ext sqlx.ExtContext, txn *models.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (
			id, consultant_id, client_id, session_id, quotation_id,
			gateway_order_id, gateway_payment_id, receipt,
			amount, currency, status, method, refunded_amount,
			gateway_response, notes, processed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8,
			$9, $10, $11, $12, $13,
			$14, $15, $16, $17, $17
		)`
	_, err := ext.ExecContext(ctx, query,
		txn.ID, txn.ConsultantID, txn.ClientID, txn.SessionID, txn.QuotationID,
		txn.GatewayOrderID, txn.GatewayPaymentID, txn.Receipt,
		txn.Amount, txn.Currency, txn.Status, txn.Method, txn.RefundedAmount,
		txn.GatewayResponse, txn.Notes, txn.ProcessedAt, txn.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, completedSessionConstraint) {
			return ErrSessionAlreadySettled
		}
		return fmt.Errorf("failed to insert payment transaction: %w", err)
	}
	return nil
}

// AttachGatewayOrder records the gateway order id on a fresh PENDING row
func (r *PaymentTransactionRepository) AttachGatewayOrder(ctx context.Context, id, orderID string, response models.JSONB) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET gateway_order_id = $2, gateway_response = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING' AND gateway_order_id IS NULL`,
		id, orderID, response)
	if err != nil {
		return fmt.Errorf("failed to attach gateway order: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to attach gateway order: %w", err)
	}
	if rows == 0 {
		return ErrNotPending
	}
	return nil
}

// MarkOrderFailed fails a PENDING row whose gateway order could not be created
func (r *PaymentTransactionRepository) MarkOrderFailed(ctx context.Context, id, code, description string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET status = 'FAILED', error_code = $2, error_description = $3,
		    processed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`,
		id, code, description)
	if err != nil {
		return fmt.Errorf("failed to mark order failed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark order failed: %w", err)
	}
	if rows == 0 {
		return ErrNotPending
	}
	return nil
}

// ============================================================================
// READS
// ============================================================================

// GetByID returns the transaction or nil if it does not exist
func (r *PaymentTransactionRepository) GetByID(ctx context.Context, id string) (*models.PaymentTransaction, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM payment_transactions WHERE id = $1`, id)
}

// GetByOrderID returns the transaction for a gateway order or nil
func (r *PaymentTransactionRepository) GetByOrderID(ctx context.Context, orderID string) (*models.PaymentTransaction, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM payment_transactions WHERE gateway_order_id = $1`, orderID)
}

// GetByPaymentID returns the transaction for a gateway payment or nil
func (r *PaymentTransactionRepository) GetByPaymentID(ctx context.Context, paymentID string) (*models.PaymentTransaction, error) {
	return r.getOne(ctx, `SELECT `+transactionColumns+` FROM payment_transactions WHERE gateway_payment_id = $1`, paymentID)
}

func (r *PaymentTransactionRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.PaymentTransaction, error) {
	txn := &models.PaymentTransaction{}
	err := r.db.GetContext(ctx, txn, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment transaction: %w", err)
	}
	return txn, nil
}

// SumCompletedSince totals a consultant's COMPLETED transactions processed at or after since
func (r *PaymentTransactionRepository) SumCompletedSince(ctx context.Context, consultantID string, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payment_transactions
		WHERE consultant_id = $1 AND status = 'COMPLETED' AND processed_at >= $2`,
		consultantID, since)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum completed transactions: %w", err)
	}
	return total, nil
}

// ============================================================================
// TERMINAL TRANSITIONS
// ============================================================================

// Complete performs PENDING -> COMPLETED for the order and, in the same
// commit, marks the session PAID/CONFIRMED, credits the client ledger and
// accepts the quotation. ErrNotPending means another caller already settled it.
func (r *PaymentTransactionRepository) Complete(ctx context.Context, p models.CompletionParams) (*models.SettlementResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txn := &models.PaymentTransaction{}
	err = tx.QueryRowxContext(ctx, `
		UPDATE payment_transactions
		SET status = 'COMPLETED', gateway_payment_id = $2, gateway_response = $3,
		    processed_at = $4, updated_at = $4
		WHERE gateway_order_id = $1 AND status = 'PENDING'
		RETURNING `+transactionColumns,
		p.GatewayOrderID, p.GatewayPaymentID, p.GatewayResponse, p.ProcessedAt).StructScan(txn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotPending
	}
	if err != nil {
		if isUniqueViolation(err, completedSessionConstraint) {
			return nil, ErrSessionAlreadySettled
		}
		return nil, fmt.Errorf("failed to complete transaction: %w", err)
	}

	result := &models.SettlementResult{Transaction: txn}
	clientID := txn.ClientID

	if txn.SessionID != nil {
		session := &models.Session{}
		err = tx.QueryRowxContext(ctx, `
			UPDATE sessions
			SET payment_status = 'PAID',
			    status = CASE WHEN status IN ('PENDING', 'ABANDONED') THEN 'CONFIRMED' ELSE status END,
			    updated_at = $2
			WHERE id = $1
			RETURNING `+sessionColumns, *txn.SessionID, p.ProcessedAt).StructScan(session)
		if err != nil {
			return nil, fmt.Errorf("failed to mark session paid: %w", err)
		}
		result.Session = session
		if clientID == nil {
			clientID = &session.ClientID
		}
	}

	if txn.QuotationID != nil {
		quotation := &models.Quotation{}
		err = tx.QueryRowxContext(ctx, `
			UPDATE quotations
			SET status = 'ACCEPTED', accepted_at = $2, updated_at = $2
			WHERE id = $1 AND status IN ('DRAFT', 'SENT')
			RETURNING `+quotationColumns, *txn.QuotationID, p.ProcessedAt).StructScan(quotation)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// already accepted
		case err != nil:
			return nil, fmt.Errorf("failed to accept quotation: %w", err)
		default:
			result.Quotation = quotation
			if clientID == nil {
				clientID = &quotation.ClientID
			}
		}
	}

	if clientID != nil {
		client, err := adjustClientLedger(ctx, tx, *clientID, txn.Amount)
		if err != nil {
			return nil, err
		}
		result.Client = client
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return result, nil
}

// Fail performs PENDING -> FAILED for the order. No fan-out.
func (r *PaymentTransactionRepository) Fail(ctx context.Context, p models.FailureParams) (*models.PaymentTransaction, error) {
	txn := &models.PaymentTransaction{}
	err := r.db.QueryRowxContext(ctx, `
		UPDATE payment_transactions
		SET status = 'FAILED',
		    gateway_payment_id = COALESCE($2, gateway_payment_id),
		    error_code = $3, error_description = $4, gateway_response = $5,
		    processed_at = $6, updated_at = $6
		WHERE gateway_order_id = $1 AND status = 'PENDING'
		RETURNING `+transactionColumns,
		p.GatewayOrderID, p.GatewayPaymentID, p.ErrorCode, p.ErrorDescription, p.GatewayResponse, p.ProcessedAt).StructScan(txn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fail transaction: %w", err)
	}
	return txn, nil
}

// Refund performs COMPLETED -> REFUNDED, returns the session and debits the
// client ledger by exactly the refunded amount, in one commit
func (r *PaymentTransactionRepository) Refund(ctx context.Context, p models.RefundParams) (*models.SettlementResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txn := &models.PaymentTransaction{}
	err = tx.QueryRowxContext(ctx, `
		UPDATE payment_transactions
		SET status = 'REFUNDED', refunded_amount = $2, refund_id = $3,
		    refunded_at = $4, updated_at = $4
		WHERE id = $1 AND status = 'COMPLETED'
		RETURNING `+transactionColumns,
		p.TransactionID, p.RefundedAmount, p.RefundID, p.RefundedAt).StructScan(txn)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotCompleted
	}
	if err != nil {
		return nil, fmt.Errorf("failed to refund transaction: %w", err)
	}

	result := &models.SettlementResult{Transaction: txn}
	clientID := txn.ClientID

	if txn.SessionID != nil {
		session := &models.Session{}
		err = tx.QueryRowxContext(ctx, `
			UPDATE sessions
			SET payment_status = 'REFUNDED', status = 'RETURNED', updated_at = $2
			WHERE id = $1
			RETURNING `+sessionColumns, *txn.SessionID, p.RefundedAt).StructScan(session)
		if err != nil {
			return nil, fmt.Errorf("failed to return session: %w", err)
		}
		result.Session = session
		if clientID == nil {
			clientID = &session.ClientID
		}
	}

	if clientID != nil {
		client, err := adjustClientLedger(ctx, tx, *clientID, p.RefundedAmount.Neg())
		if err != nil {
			return nil, err
		}
		result.Client = client
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit refund: %w", err)
	}
	return result, nil
}

func adjustClientLedger(ctx context.Context, tx *sqlx.Tx, clientID string, delta decimal.Decimal) (*models.Client, error) {
	client := &models.Client{}
	err := tx.QueryRowxContext(ctx, `
		UPDATE clients
		SET total_amount_paid = total_amount_paid + $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+clientColumns, clientID, delta).StructScan(client)
	if err != nil {
		return nil, fmt.Errorf("failed to update client ledger: %w", err)
	}
	return client, nil
}
