package handlers

import (
	"context"
	"net/http"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/consultdesk/booking-backend/internal/services"
	"github.com/consultdesk/booking-backend/pkg/razorpay"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// WebhookProcessor is satisfied by *services.WebhookService
type WebhookProcessor interface {
	ProcessWebhookEvent(ctx context.Context, delivery services.WebhookDelivery) (models.WebhookOutcome, error)
}

// WebhookHandler receives gateway webhooks
type WebhookHandler struct {
	webhooks WebhookProcessor
	logger   *logrus.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(webhooks WebhookProcessor, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks, logger: logger}
}

// ============================================================================
// WEBHOOK - POST /api/v1/payments/webhook
// ============================================================================

// HandleWebhook passes the raw body to the webhook service untouched; the
// signature covers the exact bytes received. Any 2xx stops redelivery, so
// only processing failures answer 5xx.
// @Summary Gateway webhook
// @Tags Payments
// @Accept json
// @Produce json
// @Param X-Razorpay-Signature header string true "HMAC-SHA256 of the raw body"
// @Param X-Razorpay-Event-Id header string false "Gateway event id"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{} "Invalid signature"
// @Router /payments/webhook [post]
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		badRequest(c, err)
		return
	}

	outcome, err := h.webhooks.ProcessWebhookEvent(c.Request.Context(), services.WebhookDelivery{
		EventID:   c.GetHeader(razorpay.HeaderEventID),
		Signature: c.GetHeader(razorpay.HeaderSignature),
		RawBody:   body,
		Meta:      requestMeta(c),
	})
	if err != nil {
		respondError(c, h.logger, "webhook", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": outcome})
}
