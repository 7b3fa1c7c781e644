package services

import (
	"context"
	"time"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/consultdesk/booking-backend/pkg/razorpay"
	"github.com/sirupsen/logrus"
)

// WebhookDelivery is one raw webhook request
type WebhookDelivery struct {
	EventID   string
	Signature string
	RawBody   []byte
	Meta      RequestMeta
}

type webhookHandlerFunc func(ctx context.Context, event *razorpay.WebhookEvent, eventID string) error

// WebhookService authenticates gateway webhooks and dispatches them to the
// reconciler. Unknown event types are acknowledged and ignored.
type WebhookService struct {
	reconciler    *PaymentReconciler
	events        WebhookEventStore
	audits        PaymentAuditLogger
	webhookSecret string
	handlers      map[string]webhookHandlerFunc
	logger        *logrus.Logger
	now           func() time.Time
}

// NewWebhookService creates a new webhook service
func NewWebhookService(
	reconciler *PaymentReconciler,
	events WebhookEventStore,
	audits PaymentAuditLogger,
	webhookSecret string,
	logger *logrus.Logger,
) *WebhookService {
	s := &WebhookService{
		reconciler:    reconciler,
		events:        events,
		audits:        audits,
		webhookSecret: webhookSecret,
		logger:        logger,
		now:           time.Now,
	}
	s.handlers = map[string]webhookHandlerFunc{
		razorpay.EventPaymentCaptured: s.handlePaymentCaptured,
		razorpay.EventPaymentFailed:   s.handlePaymentFailed,
		razorpay.EventRefundProcessed: s.handleRefundProcessed,
	}
	return s
}

// ProcessWebhookEvent verifies the signature over the raw body before
// parsing anything. Already-applied events return WebhookOutcomeNoOp and
// a nil error so the sender stops redelivering.
func (s *WebhookService) ProcessWebhookEvent(ctx context.Context, delivery WebhookDelivery) (models.WebhookOutcome, error) {
	logger := s.logger.WithField("event_id", delivery.EventID)

	if delivery.Signature == "" || !razorpay.VerifyWebhookSignature(delivery.RawBody, delivery.Signature, s.webhookSecret) {
		s.audit(ctx, models.NewPaymentAudit(models.PaymentEventSignatureRejected, models.PaymentSourceGatewayWebhook).
			SetWebhookEvent(delivery.EventID).
			SetMetadata(delivery.Meta.IP, delivery.Meta.UserAgent, delivery.Meta.Device).
			SetError("webhook signature mismatch", CodeInvalidSignature))
		logger.WithField("ip", delivery.Meta.IP).Warn("Rejected webhook with invalid signature")
		return "", newValidationError(CodeInvalidSignature, "webhook signature is invalid")
	}

	event, err := razorpay.ParseWebhookEvent(delivery.RawBody)
	if err != nil {
		return "", newValidationError(CodeInvalidRequest, "%v", err)
	}
	logger = logger.WithField("event_type", event.Event)

	if delivery.EventID != "" {
		seen, err := s.events.Seen(ctx, delivery.EventID)
		if err != nil {
			return "", err
		}
		if seen {
			s.audit(ctx, models.NewPaymentAudit(models.PaymentEventDuplicate, models.PaymentSourceGatewayWebhook).
				SetWebhookEvent(delivery.EventID).
				MarkAsDuplicate())
			logger.Info("Duplicate webhook delivery")
			return models.WebhookOutcomeNoOp, nil
		}
	}

	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventWebhookReceived, models.PaymentSourceGatewayWebhook).
		SetWebhookEvent(delivery.EventID).
		SetPayload(map[string]interface{}{"event": event.Event, "account_id": event.AccountID}))

	handler, ok := s.handlers[event.Event]
	if !ok {
		logger.Info("Ignoring unhandled webhook event type")
		s.record(ctx, delivery.EventID, event.Event, models.WebhookOutcomeIgnored)
		return models.WebhookOutcomeIgnored, nil
	}

	outcome := models.WebhookOutcomeApplied
	if err := handler(ctx, event, delivery.EventID); err != nil {
		if !IsIdempotentNoOp(err) {
			// Not recorded, so the gateway's redelivery gets another attempt
			logger.WithError(err).Warn("Webhook processing failed")
			return "", err
		}
		logger.WithError(err).Info("Webhook already applied")
		outcome = models.WebhookOutcomeNoOp
	}

	s.record(ctx, delivery.EventID, event.Event, outcome)
	return outcome, nil
}

func (s *WebhookService) handlePaymentCaptured(ctx context.Context, event *razorpay.WebhookEvent, eventID string) error {
	payment := event.PaymentEntity()
	if payment == nil {
		return newValidationError(CodeInvalidRequest, "%s without payment entity", event.Event)
	}
	_, err := s.reconciler.SettleCapturedPayment(ctx, payment.ID, payment.OrderID, eventID)
	return err
}

func (s *WebhookService) handlePaymentFailed(ctx context.Context, event *razorpay.WebhookEvent, eventID string) error {
	payment := event.PaymentEntity()
	if payment == nil {
		return newValidationError(CodeInvalidRequest, "%s without payment entity", event.Event)
	}
	_, err := s.reconciler.HandleFailedPayment(ctx, failureFromPayment(payment), eventID)
	return err
}

func (s *WebhookService) handleRefundProcessed(ctx context.Context, event *razorpay.WebhookEvent, eventID string) error {
	refund := event.RefundEntity()
	if refund == nil {
		return newValidationError(CodeInvalidRequest, "%s without refund entity", event.Event)
	}
	_, err := s.reconciler.ApplyGatewayRefund(ctx, refund, eventID)
	return err
}

func (s *WebhookService) record(ctx context.Context, eventID, eventType string, outcome models.WebhookOutcome) {
	if eventID == "" {
		return
	}
	err := s.events.Record(ctx, models.WebhookEvent{
		EventID:     eventID,
		EventType:   eventType,
		Outcome:     outcome,
		ProcessedAt: s.now(),
	})
	if err != nil {
		s.logger.WithError(err).WithField("event_id", eventID).Error("Failed to record webhook event")
	}
}

func (s *WebhookService) audit(ctx context.Context, audit *models.PaymentAudit) {
	if err := s.audits.Log(ctx, audit); err != nil {
		s.logger.WithError(err).WithField("event_type", audit.EventType).Error("Failed to write payment audit")
	}
}
