package services

import (
	"context"
	"errors"
	"time"

	"github.com/consultdesk/booking-backend/internal/database"
	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/consultdesk/booking-backend/pkg/razorpay"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PaymentReconciler moves payment transactions through
// PENDING -> COMPLETED | FAILED and COMPLETED -> REFUNDED.
//
// Client callbacks and gateway webhooks may both report the same payment.
// Neither is locked against the other: every transition is a conditional
// update, the loser sees no matching row and gets an IdempotentNoOpError.
type PaymentReconciler struct {
	gateway      PaymentGateway
	transactions TransactionStore
	audits       PaymentAuditLogger
	meetings     *MeetingService
	emails       EmailDispatcher
	views        ViewInvalidator
	keySecret    string
	refundWindow time.Duration
	epsilon      decimal.Decimal
	logger       *logrus.Logger
	now          func() time.Time
}

// NewPaymentReconciler creates a new payment reconciler
func NewPaymentReconciler(
	gateway PaymentGateway,
	transactions TransactionStore,
	audits PaymentAuditLogger,
	meetings *MeetingService,
	emails EmailDispatcher,
	views ViewInvalidator,
	keySecret string,
	refundWindowDays int,
	logger *logrus.Logger,
) *PaymentReconciler {
	return &PaymentReconciler{
		gateway:      gateway,
		transactions: transactions,
		audits:       audits,
		meetings:     meetings,
		emails:       emails,
		views:        views,
		keySecret:    keySecret,
		refundWindow: time.Duration(refundWindowDays) * 24 * time.Hour,
		epsilon:      decimal.New(1, -2),
		logger:       logger,
		now:          time.Now,
	}
}

// VerifyPaymentRequest is the checkout callback after a successful payment
type VerifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id" binding:"required"`
	PaymentID string `json:"razorpay_payment_id" binding:"required"`
	Signature string `json:"razorpay_signature" binding:"required"`
}

// ReportFailureRequest is the checkout callback after a failed payment
type ReportFailureRequest struct {
	OrderID   string `json:"razorpay_order_id" binding:"required"`
	PaymentID string `json:"razorpay_payment_id" binding:"required"`
}

// FailureEvent is a gateway-reported payment failure
type FailureEvent struct {
	OrderID          string
	PaymentID        *string
	ErrorCode        string
	ErrorDescription string
	Response         models.JSONB
}

// RefundRequest asks for a full (zero amount) or partial refund
type RefundRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// origin describes who reported an event, for the audit trail
type origin struct {
	source  models.PaymentEventSource
	eventID string
	meta    RequestMeta
}

func (o origin) apply(audit *models.PaymentAudit) *models.PaymentAudit {
	return audit.SetWebhookEvent(o.eventID).SetMetadata(o.meta.IP, o.meta.UserAgent, o.meta.Device)
}

// ============================================================================
// COMPLETION
// ============================================================================

// ProcessSuccessfulPayment handles the checkout callback. The signature over
// orderId|paymentId is checked first, then the gateway must report the
// payment as captured.
func (r *PaymentReconciler) ProcessSuccessfulPayment(ctx context.Context, req VerifyPaymentRequest, meta RequestMeta) (*models.SettlementResult, error) {
	from := origin{source: models.PaymentSourceClient, meta: meta}

	r.audit(ctx, from.apply(models.NewPaymentAudit(models.PaymentEventVerifyRequested, from.source).
		SetOrderID(req.OrderID).
		SetPaymentID(req.PaymentID)))

	if !razorpay.VerifyPaymentSignature(req.OrderID, req.PaymentID, req.Signature, r.keySecret) {
		r.audit(ctx, from.apply(models.NewPaymentAudit(models.PaymentEventSignatureRejected, from.source).
			SetOrderID(req.OrderID).
			SetPaymentID(req.PaymentID).
			SetError("payment signature mismatch", CodeInvalidSignature)))
		r.logger.WithFields(logrus.Fields{
			"order_id":   req.OrderID,
			"payment_id": req.PaymentID,
			"ip":         meta.IP,
		}).Warn("Rejected payment with invalid signature")
		return nil, newValidationError(CodeInvalidSignature, "payment signature is invalid")
	}

	payment, err := r.fetchCaptured(ctx, req.PaymentID, req.OrderID)
	if err != nil {
		return nil, err
	}
	return r.settle(ctx, payment, from)
}

// SettleCapturedPayment handles a payment.captured webhook. The webhook body
// is only a hint; the payment is re-fetched from the gateway.
func (r *PaymentReconciler) SettleCapturedPayment(ctx context.Context, paymentID, orderID, eventID string) (*models.SettlementResult, error) {
	payment, err := r.fetchCaptured(ctx, paymentID, orderID)
	if err != nil {
		return nil, err
	}
	return r.settle(ctx, payment, origin{source: models.PaymentSourceGatewayWebhook, eventID: eventID})
}

func (r *PaymentReconciler) fetchCaptured(ctx context.Context, paymentID, orderID string) (*razorpay.Payment, error) {
	payment, err := r.gateway.FetchPayment(ctx, paymentID)
	if err != nil {
		return nil, &ProviderError{Code: CodeGatewayUnavailable, Provider: "razorpay", Err: err}
	}
	if payment.OrderID != orderID {
		return nil, newValidationError(CodeOrderMismatch, "payment %s does not belong to order %s", paymentID, orderID)
	}
	if !payment.IsCaptured() {
		return nil, newValidationError(CodePaymentNotCaptured, "payment %s is %s, not captured", paymentID, payment.Status)
	}
	return payment, nil
}

func (r *PaymentReconciler) settle(ctx context.Context, payment *razorpay.Payment, from origin) (*models.SettlementResult, error) {
	logger := r.logger.WithFields(logrus.Fields{
		"order_id":   payment.OrderID,
		"payment_id": payment.ID,
		"source":     from.source,
	})

	txn, err := r.findByOrder(ctx, payment)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		r.audit(ctx, from.apply(models.NewPaymentAudit(models.PaymentEventError, from.source).
			SetOrderID(payment.OrderID).
			SetPaymentID(payment.ID).
			SetError("no transaction for order", CodeOrderNotFound)))
		logger.Error("Captured payment has no matching transaction")
		return nil, newValidationError(CodeOrderNotFound, "no transaction for order %s", payment.OrderID)
	}

	if txn.Status != models.TransactionPending {
		return nil, r.notPending(ctx, txn, payment, from, logger)
	}

	received := razorpay.FromMinorUnits(payment.Amount)
	check := from.apply(models.NewPaymentAudit(models.PaymentEventAmountMismatch, from.source).
		SetTransaction(txn).
		SetPaymentID(payment.ID))
	if !check.SetAmounts(txn.Amount, received, payment.Currency, r.epsilon) || payment.Currency != txn.Currency {
		r.audit(ctx, check)
		logger.WithFields(logrus.Fields{
			"expected": txn.Amount.String(),
			"received": received.String(),
			"currency": payment.Currency,
		}).Error("Captured amount does not match transaction, left PENDING for review")
		return nil, newValidationError(CodeAmountMismatch, "captured %s %s, expected %s %s", received, payment.Currency, txn.Amount, txn.Currency)
	}

	result, err := r.transactions.Complete(ctx, models.CompletionParams{
		GatewayOrderID:   payment.OrderID,
		GatewayPaymentID: payment.ID,
		GatewayResponse:  toJSONB(payment),
		ProcessedAt:      r.now(),
	})
	switch {
	case errors.Is(err, database.ErrNotPending):
		current, getErr := r.transactions.GetByID(ctx, txn.ID)
		if getErr != nil {
			return nil, getErr
		}
		if current == nil {
			return nil, newValidationError(CodeOrderNotFound, "no transaction for order %s", payment.OrderID)
		}
		logger.Info("Lost settlement race")
		return nil, r.notPending(ctx, current, payment, from, logger)
	case errors.Is(err, database.ErrSessionAlreadySettled):
		r.audit(ctx, from.apply(models.NewPaymentAudit(models.PaymentEventError, from.source).
			SetTransaction(txn).
			SetPaymentID(payment.ID).
			SetError("session already paid by another transaction", CodeAlreadyPaid)))
		logger.WithField("transaction_id", txn.ID).Error("Second captured payment for a paid session, needs manual refund")
		return nil, newValidationError(CodeAlreadyPaid, "session is already paid by another transaction")
	case err != nil:
		return nil, err
	}

	r.audit(ctx, from.apply(models.NewPaymentAudit(models.PaymentEventCompleted, from.source).
		SetTransaction(result.Transaction).
		SetPaymentID(payment.ID).
		SetGatewayStatus(payment.Status)))

	logger.WithFields(logrus.Fields{
		"transaction_id": result.Transaction.ID,
		"amount":         result.Transaction.Amount.String(),
	}).Info("Payment completed")

	r.afterSettlement(ctx, result, payment.ID)
	return result, nil
}

// notPending classifies a captured payment whose transaction already left
// PENDING. Only the payment that settled the transaction is a duplicate. Any
// other captured payment holds funds that must be refunded by hand.
func (r *PaymentReconciler) notPending(ctx context.Context, txn *models.PaymentTransaction, payment *razorpay.Payment, from origin, logger *logrus.Entry) error {
	settledBy := txn.GatewayPaymentID != nil && *txn.GatewayPaymentID == payment.ID
	if settledBy && (txn.Status == models.TransactionCompleted || txn.Status == models.TransactionRefunded) {
		r.audit(ctx, from.apply(models.NewPaymentAudit(models.PaymentEventDuplicate, from.source).
			SetTransaction(txn).
			SetPaymentID(payment.ID).
			SetGatewayStatus(payment.Status).
			MarkAsDuplicate()))
		logger.WithField("status", txn.Status).Info("Payment already reconciled")
		return &IdempotentNoOpError{Reason: "transaction " + txn.ID + " is " + string(txn.Status)}
	}

	r.audit(ctx, from.apply(models.NewPaymentAudit(models.PaymentEventError, from.source).
		SetTransaction(txn).
		SetPaymentID(payment.ID).
		SetGatewayStatus(payment.Status).
		SetError("captured payment for a transaction that is "+string(txn.Status), CodeOrderNotPending)))
	logger.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"status":         txn.Status,
		"amount":         razorpay.FromMinorUnits(payment.Amount).String(),
	}).Error("Captured payment for a transaction that is no longer pending, needs manual refund")
	return newValidationError(CodeOrderNotPending, "transaction %s is %s, captured payment %s was not applied", txn.ID, txn.Status, payment.ID)
}

// findByOrder locates the transaction for the payment's order. When the
// order id was never attached, the transaction id in the order notes is used
// and the order is attached now.
func (r *PaymentReconciler) findByOrder(ctx context.Context, payment *razorpay.Payment) (*models.PaymentTransaction, error) {
	txn, err := r.transactions.GetByOrderID(ctx, payment.OrderID)
	if err != nil || txn != nil {
		return txn, err
	}

	txnID := payment.Notes["transaction_id"]
	if txnID == "" {
		return nil, nil
	}
	txn, err = r.transactions.GetByID(ctx, txnID)
	if err != nil || txn == nil {
		return nil, err
	}
	if txn.GatewayOrderID != nil {
		// Belongs to a different order
		return nil, nil
	}
	if err := r.transactions.AttachGatewayOrder(ctx, txn.ID, payment.OrderID, nil); err != nil && !errors.Is(err, database.ErrNotPending) {
		return nil, err
	}
	r.logger.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"order_id":       payment.OrderID,
	}).Warn("Attached gateway order during settlement")
	return r.transactions.GetByOrderID(ctx, payment.OrderID)
}

// afterSettlement runs the best-effort side effects of a completion. None of
// them can undo the committed transition.
func (r *PaymentReconciler) afterSettlement(ctx context.Context, result *models.SettlementResult, paymentID string) {
	txn := result.Transaction
	r.invalidate(ctx, txn.ConsultantID)

	if result.Session != nil && result.Session.NeedsMeetingLink() {
		if _, err := r.meetings.ProvisionDeferred(ctx, result.Session.ID); err != nil {
			r.logger.WithError(err).WithFields(logrus.Fields{
				"session_id": result.Session.ID,
				"code":       ErrorCode(err),
			}).Warn("Deferred meeting provisioning failed after payment, needs follow-up")
		}
	}

	if result.Client != nil {
		r.enqueue(ctx, models.PaymentReceiptEmail{
			TransactionID:    txn.ID,
			SessionID:        txn.SessionID,
			QuotationID:      txn.QuotationID,
			Client:           models.Participant{Name: result.Client.Name, Email: result.Client.Email},
			Amount:           txn.Amount.StringFixed(2),
			Currency:         txn.Currency,
			GatewayPaymentID: paymentID,
		})
	}
}

// ============================================================================
// FAILURE
// ============================================================================

// HandleFailedPayment performs PENDING -> FAILED for the order. No fan-out.
func (r *PaymentReconciler) HandleFailedPayment(ctx context.Context, event FailureEvent, eventID string) (*models.PaymentTransaction, error) {
	return r.fail(ctx, event, origin{source: models.PaymentSourceGatewayWebhook, eventID: eventID})
}

// ReportFailedPayment handles the checkout failure callback. The client is
// not trusted: the gateway must confirm the payment failed for that order.
func (r *PaymentReconciler) ReportFailedPayment(ctx context.Context, req ReportFailureRequest, meta RequestMeta) (*models.PaymentTransaction, error) {
	payment, err := r.gateway.FetchPayment(ctx, req.PaymentID)
	if err != nil {
		return nil, &ProviderError{Code: CodeGatewayUnavailable, Provider: "razorpay", Err: err}
	}
	if payment.OrderID != req.OrderID {
		return nil, newValidationError(CodeOrderMismatch, "payment %s does not belong to order %s", req.PaymentID, req.OrderID)
	}
	if payment.Status != razorpay.PaymentFailed {
		return nil, newValidationError(CodeInvalidRequest, "payment %s is %s, not failed", req.PaymentID, payment.Status)
	}
	return r.fail(ctx, failureFromPayment(payment), origin{source: models.PaymentSourceClient, meta: meta})
}

func (r *PaymentReconciler) fail(ctx context.Context, event FailureEvent, from origin) (*models.PaymentTransaction, error) {
	txn, err := r.transactions.Fail(ctx, models.FailureParams{
		GatewayOrderID:   event.OrderID,
		GatewayPaymentID: event.PaymentID,
		ErrorCode:        event.ErrorCode,
		ErrorDescription: event.ErrorDescription,
		GatewayResponse:  event.Response,
		ProcessedAt:      r.now(),
	})
	if errors.Is(err, database.ErrNotPending) {
		r.audit(ctx, from.apply(models.NewPaymentAudit(models.PaymentEventDuplicate, from.source).
			SetOrderID(event.OrderID).
			MarkAsDuplicate()))
		return nil, &IdempotentNoOpError{Reason: "no PENDING transaction for order " + event.OrderID}
	}
	if err != nil {
		return nil, err
	}

	audit := from.apply(models.NewPaymentAudit(models.PaymentEventFailed, from.source).
		SetTransaction(txn).
		SetError(event.ErrorDescription, event.ErrorCode))
	if event.PaymentID != nil {
		audit.SetPaymentID(*event.PaymentID)
	}
	r.audit(ctx, audit)

	r.logger.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"order_id":       event.OrderID,
		"error_code":     event.ErrorCode,
	}).Info("Payment failed")
	return txn, nil
}

func failureFromPayment(payment *razorpay.Payment) FailureEvent {
	id := payment.ID
	event := FailureEvent{
		OrderID:   payment.OrderID,
		PaymentID: &id,
		Response:  toJSONB(payment),
	}
	if payment.ErrorCode != nil {
		event.ErrorCode = *payment.ErrorCode
	}
	if payment.ErrorDescription != nil {
		event.ErrorDescription = *payment.ErrorDescription
	}
	return event
}

// ============================================================================
// REFUND
// ============================================================================

// ProcessRefund refunds one of the consultant's completed gateway
// transactions. A zero amount refunds in full.
func (r *PaymentReconciler) ProcessRefund(ctx context.Context, consultantID, transactionID string, req RefundRequest, meta RequestMeta) (*models.SettlementResult, error) {
	txn, err := r.transactions.GetByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil || txn.ConsultantID != consultantID {
		return nil, &NotFoundError{Resource: "transaction", ID: transactionID}
	}

	switch {
	case txn.Status == models.TransactionRefunded:
		return nil, &IdempotentNoOpError{Reason: "transaction " + txn.ID + " already refunded"}
	case txn.Status != models.TransactionCompleted:
		return nil, newValidationError(CodeNotRefundable, "transaction %s is %s", txn.ID, txn.Status)
	case txn.Method != models.TransactionMethodGateway || txn.GatewayPaymentID == nil:
		return nil, newValidationError(CodeNotRefundable, "transaction %s was not paid through the gateway", txn.ID)
	}

	if txn.ProcessedAt == nil || r.now().Sub(*txn.ProcessedAt) > r.refundWindow {
		return nil, newValidationError(CodeRefundWindow, "refund window of %d days has passed", int(r.refundWindow.Hours()/24))
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = txn.Amount
	}
	if !amount.IsPositive() || amount.GreaterThan(txn.Amount) {
		return nil, newValidationError(CodeRefundAmount, "refund amount %s must be positive and at most %s", amount, txn.Amount)
	}

	from := origin{source: models.PaymentSourceBackend, meta: meta}
	initiated := from.apply(models.NewPaymentAudit(models.PaymentEventRefundInitiated, from.source).
		SetTransaction(txn).
		SetPaymentID(*txn.GatewayPaymentID))
	initiated.SetAmounts(txn.Amount, amount, txn.Currency, r.epsilon)
	r.audit(ctx, initiated)

	notes := map[string]string{"transaction_id": txn.ID}
	if req.Reason != "" {
		notes["reason"] = req.Reason
	}
	refund, err := r.gateway.Refund(ctx, *txn.GatewayPaymentID, razorpay.RefundRequest{
		Amount: razorpay.ToMinorUnits(amount),
		Notes:  notes,
	})
	if err != nil {
		code, description := gatewayErrorDetail(err)
		r.audit(ctx, from.apply(models.NewPaymentAudit(models.PaymentEventError, models.PaymentSourceGatewayAPI).
			SetTransaction(txn).
			SetError(description, code)))
		return nil, &ProviderError{Code: CodeGatewayUnavailable, Provider: "razorpay", Err: err}
	}

	return r.applyRefund(ctx, txn, refund, from)
}

// ApplyGatewayRefund handles a refund.processed webhook, including refunds
// issued from the gateway dashboard
func (r *PaymentReconciler) ApplyGatewayRefund(ctx context.Context, refund *razorpay.Refund, eventID string) (*models.SettlementResult, error) {
	txn, err := r.transactions.GetByPaymentID(ctx, refund.PaymentID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, newValidationError(CodeOrderNotFound, "no transaction for payment %s", refund.PaymentID)
	}
	from := origin{source: models.PaymentSourceGatewayWebhook, eventID: eventID}
	if txn.Status != models.TransactionCompleted {
		return nil, r.notCompleted(ctx, txn, refund, from)
	}
	return r.applyRefund(ctx, txn, refund, from)
}

// notCompleted classifies a refund for a transaction that already left
// COMPLETED. Only the refund recorded on the transaction is a duplicate. A
// different refund id means money left the gateway without reaching the
// ledger.
func (r *PaymentReconciler) notCompleted(ctx context.Context, txn *models.PaymentTransaction, refund *razorpay.Refund, from origin) error {
	if txn.Status != models.TransactionRefunded {
		return newValidationError(CodeNotRefundable, "transaction %s is %s", txn.ID, txn.Status)
	}
	if txn.RefundID != nil && *txn.RefundID == refund.ID {
		return &IdempotentNoOpError{Reason: "transaction " + txn.ID + " already refunded by " + refund.ID}
	}

	recorded := ""
	if txn.RefundID != nil {
		recorded = *txn.RefundID
	}
	refunded := razorpay.FromMinorUnits(refund.Amount)
	r.audit(ctx, from.apply(models.NewPaymentAudit(models.PaymentEventError, from.source).
		SetTransaction(txn).
		SetGatewayStatus(refund.Status).
		SetPayload(map[string]interface{}{"refund_id": refund.ID, "amount": refunded.String()}).
		SetError("additional refund on a refunded transaction", CodeRefundUnreconciled)))
	r.logger.WithFields(logrus.Fields{
		"transaction_id":    txn.ID,
		"refund_id":         refund.ID,
		"recorded_refund":   recorded,
		"refunded":          refunded.String(),
		"recorded_refunded": txn.RefundedAmount.String(),
	}).Error("Refund not reflected in ledger, needs manual reconciliation")
	return newValidationError(CodeRefundUnreconciled, "refund %s on transaction %s was not applied", refund.ID, txn.ID)
}

func (r *PaymentReconciler) applyRefund(ctx context.Context, txn *models.PaymentTransaction, refund *razorpay.Refund, from origin) (*models.SettlementResult, error) {
	refunded := razorpay.FromMinorUnits(refund.Amount)

	result, err := r.transactions.Refund(ctx, models.RefundParams{
		TransactionID:  txn.ID,
		RefundID:       refund.ID,
		RefundedAmount: refunded,
		RefundedAt:     r.now(),
	})
	if errors.Is(err, database.ErrNotCompleted) {
		current, getErr := r.transactions.GetByID(ctx, txn.ID)
		if getErr != nil {
			return nil, getErr
		}
		if current == nil {
			return nil, &NotFoundError{Resource: "transaction", ID: txn.ID}
		}
		return nil, r.notCompleted(ctx, current, refund, from)
	}
	if err != nil {
		return nil, err
	}

	completed := from.apply(models.NewPaymentAudit(models.PaymentEventRefundCompleted, from.source).
		SetTransaction(result.Transaction).
		SetGatewayStatus(refund.Status))
	completed.SetAmounts(txn.Amount, refunded, txn.Currency, r.epsilon)
	r.audit(ctx, completed)

	r.logger.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"refund_id":      refund.ID,
		"refunded":       refunded.String(),
	}).Info("Payment refunded")

	r.invalidate(ctx, txn.ConsultantID)
	if result.Client != nil {
		r.enqueue(ctx, models.RefundIssuedEmail{
			TransactionID:  txn.ID,
			SessionID:      txn.SessionID,
			Client:         models.Participant{Name: result.Client.Name, Email: result.Client.Email},
			RefundID:       refund.ID,
			RefundedAmount: refunded.StringFixed(2),
			Currency:       txn.Currency,
		})
	}
	return result, nil
}

func (r *PaymentReconciler) invalidate(ctx context.Context, consultantID string) {
	if err := r.views.InvalidateConsultant(ctx, consultantID); err != nil {
		r.logger.WithError(err).WithField("consultant_id", consultantID).Error("Failed to invalidate consultant views")
	}
}

func (r *PaymentReconciler) enqueue(ctx context.Context, email models.Email) {
	if err := r.emails.Enqueue(ctx, email); err != nil {
		r.logger.WithError(err).WithField("email_kind", email.Kind()).Warn("Failed to enqueue email")
	}
}

func (r *PaymentReconciler) audit(ctx context.Context, audit *models.PaymentAudit) {
	if err := r.audits.Log(ctx, audit); err != nil {
		r.logger.WithError(err).WithField("event_type", audit.EventType).Error("Failed to write payment audit")
	}
}
