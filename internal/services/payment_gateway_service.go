package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/consultdesk/booking-backend/internal/config"
	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/consultdesk/booking-backend/pkg/razorpay"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// PaymentGatewayService creates gateway orders backed by a local PENDING
// transaction. It never settles anything; that is the reconciler's job.
type PaymentGatewayService struct {
	gateway      PaymentGateway
	transactions TransactionStore
	sessions     SessionStore
	quotations   QuotationStore
	audits       PaymentAuditLogger
	cfg          config.PaymentConfig
	epsilon      decimal.Decimal
	loc          *time.Location
	logger       *logrus.Logger
	now          func() time.Time
}

// NewPaymentGatewayService creates a new payment gateway service
func NewPaymentGatewayService(
	gateway PaymentGateway,
	transactions TransactionStore,
	sessions SessionStore,
	quotations QuotationStore,
	audits PaymentAuditLogger,
	cfg config.PaymentConfig,
	epsilon float64,
	loc *time.Location,
	logger *logrus.Logger,
) *PaymentGatewayService {
	return &PaymentGatewayService{
		gateway:      gateway,
		transactions: transactions,
		sessions:     sessions,
		quotations:   quotations,
		audits:       audits,
		cfg:          cfg,
		epsilon:      decimal.NewFromFloat(epsilon),
		loc:          loc,
		logger:       logger,
		now:          time.Now,
	}
}

// CreateOrderRequest asks for a gateway order against exactly one session or quotation
type CreateOrderRequest struct {
	SessionID   *string           `json:"session_id,omitempty"`
	QuotationID *string           `json:"quotation_id,omitempty"`
	Amount      decimal.Decimal   `json:"amount" binding:"required"`
	Notes       map[string]string `json:"notes,omitempty"`
}

// OrderResult is what a checkout client needs to open the gateway widget
type OrderResult struct {
	TransactionID string          `json:"transaction_id"`
	OrderID       string          `json:"order_id"`
	Amount        decimal.Decimal `json:"amount"`
	AmountMinor   int64           `json:"amount_minor"`
	Currency      string          `json:"currency"`
	Receipt       string          `json:"receipt"`
	KeyID         string          `json:"key_id"`
}

// paymentTarget is the session or quotation an order pays for
type paymentTarget struct {
	consultantID string
	clientID     string
	amount       decimal.Decimal
	currency     string
	sessionID    *string
	quotationID  *string
}

// CreateOrder validates the amount locally, persists a PENDING transaction
// and only then creates the gateway order
func (s *PaymentGatewayService) CreateOrder(ctx context.Context, req CreateOrderRequest, meta RequestMeta) (*OrderResult, error) {
	if (req.SessionID == nil) == (req.QuotationID == nil) {
		return nil, newValidationError(CodeInvalidTarget, "exactly one of session_id and quotation_id is required")
	}

	minAmount := decimal.NewFromFloat(s.cfg.MinAmount)
	maxAmount := decimal.NewFromFloat(s.cfg.MaxAmount)
	if !req.Amount.IsPositive() || req.Amount.LessThan(minAmount) || req.Amount.GreaterThan(maxAmount) {
		return nil, newValidationError(CodeAmountOutOfRange, "amount %s must be between %s and %s", req.Amount, minAmount, maxAmount)
	}

	target, err := s.resolveTarget(ctx, req)
	if err != nil {
		return nil, err
	}
	if !models.AmountsMatch(req.Amount, target.amount, s.epsilon) {
		return nil, newValidationError(CodeAmountMismatch, "amount %s does not match amount due %s", req.Amount, target.amount)
	}

	if s.cfg.DailyCap > 0 {
		paidToday, err := s.transactions.SumCompletedSince(ctx, target.consultantID, s.startOfDay())
		if err != nil {
			return nil, err
		}
		dailyCap := decimal.NewFromFloat(s.cfg.DailyCap)
		if paidToday.Add(target.amount).GreaterThan(dailyCap) {
			return nil, newValidationError(CodeDailyLimitExceeded, "daily limit %s reached", dailyCap)
		}
	}

	now := s.now()
	clientID := target.clientID
	txn := &models.PaymentTransaction{
		ID:             uuid.New().String(),
		ConsultantID:   target.consultantID,
		ClientID:       &clientID,
		SessionID:      target.sessionID,
		QuotationID:    target.quotationID,
		Amount:         target.amount,
		Currency:       target.currency,
		Method:         models.TransactionMethodGateway,
		RefundedAmount: decimal.Zero,
		CreatedAt:      now,
	}
	txn.Receipt = receiptFor("rcpt", txn.ID)

	notes := map[string]string{}
	for k, v := range req.Notes {
		notes[k] = v
	}
	notes["transaction_id"] = txn.ID
	notes["consultant_id"] = target.consultantID
	if target.sessionID != nil {
		notes["session_id"] = *target.sessionID
	}
	if target.quotationID != nil {
		notes["quotation_id"] = *target.quotationID
	}
	txn.Notes = stringMapToJSONB(notes)

	if err := s.transactions.CreatePending(ctx, txn); err != nil {
		return nil, err
	}

	logger := s.logger.WithFields(logrus.Fields{
		"transaction_id": txn.ID,
		"consultant_id":  txn.ConsultantID,
		"amount":         txn.Amount.String(),
	})

	order, err := s.gateway.CreateOrder(ctx, razorpay.OrderRequest{
		Amount:   razorpay.ToMinorUnits(txn.Amount),
		Currency: txn.Currency,
		Receipt:  txn.Receipt,
		Notes:    notes,
	})
	if err != nil {
		code, description := gatewayErrorDetail(err)
		if markErr := s.transactions.MarkOrderFailed(ctx, txn.ID, code, description); markErr != nil {
			logger.WithError(markErr).Error("Failed to mark transaction failed after order error")
		}
		s.audit(ctx, models.NewPaymentAudit(models.PaymentEventOrderFailed, models.PaymentSourceGatewayAPI).
			SetTransaction(txn).
			SetError(description, code).
			SetMetadata(meta.IP, meta.UserAgent, meta.Device))
		logger.WithError(err).Error("Gateway order creation failed")
		return nil, &ProviderError{Code: CodeGatewayUnavailable, Provider: "razorpay", Err: err}
	}

	if err := s.transactions.AttachGatewayOrder(ctx, txn.ID, order.ID, toJSONB(order)); err != nil {
		// The order carries transaction_id in its notes; settlement attaches it then
		logger.WithError(err).WithField("order_id", order.ID).Error("Failed to attach gateway order to transaction")
	}
	txn.GatewayOrderID = &order.ID

	audit := models.NewPaymentAudit(models.PaymentEventOrderCreated, models.PaymentSourceBackend).
		SetTransaction(txn).
		SetGatewayStatus(order.Status).
		SetMetadata(meta.IP, meta.UserAgent, meta.Device)
	audit.SetAmounts(txn.Amount, razorpay.FromMinorUnits(order.Amount), order.Currency, s.epsilon)
	s.audit(ctx, audit)

	logger.WithField("order_id", order.ID).Info("Payment order created")

	return &OrderResult{
		TransactionID: txn.ID,
		OrderID:       order.ID,
		Amount:        txn.Amount,
		AmountMinor:   order.Amount,
		Currency:      order.Currency,
		Receipt:       txn.Receipt,
		KeyID:         s.gateway.KeyID(),
	}, nil
}

func (s *PaymentGatewayService) resolveTarget(ctx context.Context, req CreateOrderRequest) (*paymentTarget, error) {
	if req.SessionID != nil {
		session, err := s.sessions.GetByID(ctx, *req.SessionID)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, &NotFoundError{Resource: "session", ID: *req.SessionID}
		}
		if session.PaymentStatus == models.SessionPaymentPaid {
			return nil, newValidationError(CodeAlreadyPaid, "session %s is already paid", session.ID)
		}
		if !session.PaymentMethod.IsOnline() {
			return nil, newValidationError(CodeInvalidTarget, "session %s is settled offline", session.ID)
		}
		switch session.Status {
		case models.SessionStatusPending, models.SessionStatusConfirmed, models.SessionStatusAbandoned:
		default:
			return nil, newValidationError(CodeInvalidTarget, "session %s is %s", session.ID, session.Status)
		}
		id := session.ID
		return &paymentTarget{
			consultantID: session.ConsultantID,
			clientID:     session.ClientID,
			amount:       session.Amount,
			currency:     session.Currency,
			sessionID:    &id,
		}, nil
	}

	quotation, err := s.quotations.GetByID(ctx, *req.QuotationID)
	if err != nil {
		return nil, err
	}
	if quotation == nil {
		return nil, &NotFoundError{Resource: "quotation", ID: *req.QuotationID}
	}
	if quotation.Status == models.QuotationAccepted {
		return nil, newValidationError(CodeAlreadyPaid, "quotation %s is already accepted", quotation.ID)
	}
	if !quotation.Payable() {
		return nil, newValidationError(CodeInvalidTarget, "quotation %s is %s", quotation.ID, quotation.Status)
	}
	id := quotation.ID
	return &paymentTarget{
		consultantID: quotation.ConsultantID,
		clientID:     quotation.ClientID,
		amount:       quotation.Amount,
		currency:     quotation.Currency,
		quotationID:  &id,
	}, nil
}

// startOfDay is local midnight in the booking timezone
func (s *PaymentGatewayService) startOfDay() time.Time {
	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
}

func (s *PaymentGatewayService) audit(ctx context.Context, audit *models.PaymentAudit) {
	if err := s.audits.Log(ctx, audit); err != nil {
		s.logger.WithError(err).WithField("event_type", audit.EventType).Error("Failed to write payment audit")
	}
}

func gatewayErrorDetail(err error) (code, description string) {
	var apiErr *razorpay.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, apiErr.Description
	}
	return "GATEWAY_ERROR", err.Error()
}

// toJSONB snapshots a gateway entity for storage
func toJSONB(v interface{}) models.JSONB {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out models.JSONB
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func stringMapToJSONB(m map[string]string) models.JSONB {
	out := make(models.JSONB, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
