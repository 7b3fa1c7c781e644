package handlers

import (
	"context"
	"net/http"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/consultdesk/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// OrderCreator is satisfied by *services.PaymentGatewayService
type OrderCreator interface {
	CreateOrder(ctx context.Context, req services.CreateOrderRequest, meta services.RequestMeta) (*services.OrderResult, error)
}

// Reconciler is satisfied by *services.PaymentReconciler
type Reconciler interface {
	ProcessSuccessfulPayment(ctx context.Context, req services.VerifyPaymentRequest, meta services.RequestMeta) (*models.SettlementResult, error)
	ReportFailedPayment(ctx context.Context, req services.ReportFailureRequest, meta services.RequestMeta) (*models.PaymentTransaction, error)
	ProcessRefund(ctx context.Context, consultantID, transactionID string, req services.RefundRequest, meta services.RequestMeta) (*models.SettlementResult, error)
}

// AuditTrailReader is satisfied by *services.PaymentAuditService
type AuditTrailReader interface {
	OrderTrail(ctx context.Context, consultantID, orderID string) ([]models.PaymentAudit, error)
}

// PaymentHandler handles checkout, verification and refund endpoints
type PaymentHandler struct {
	orders     OrderCreator
	reconciler Reconciler
	audits     AuditTrailReader
	logger     *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(orders OrderCreator, reconciler Reconciler, audits AuditTrailReader, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{
		orders:     orders,
		reconciler: reconciler,
		audits:     audits,
		logger:     logger,
	}
}

// settlementResponse flattens a settlement for clients
func settlementResponse(result *models.SettlementResult) gin.H {
	body := gin.H{"transaction": result.Transaction}
	if result.Session != nil {
		body["session"] = result.Session
	}
	if result.Quotation != nil {
		body["quotation"] = result.Quotation
	}
	return body
}

// ============================================================================
// CREATE ORDER - POST /api/v1/payments/orders
// ============================================================================

// CreateOrder opens a gateway order for a session or an accepted quotation
// @Summary Create payment order
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body services.CreateOrderRequest true "Order request"
// @Success 201 {object} services.OrderResult
// @Failure 400 {object} map[string]interface{} "Invalid target or amount"
// @Failure 409 {object} map[string]interface{} "Already paid"
// @Failure 502 {object} map[string]interface{} "Gateway unavailable"
// @Router /payments/orders [post]
func (h *PaymentHandler) CreateOrder(c *gin.Context) {
	var req services.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.orders.CreateOrder(c.Request.Context(), req, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, "create_order", err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// ============================================================================
// VERIFY PAYMENT - POST /api/v1/payments/verify
// ============================================================================

// VerifyPayment settles a payment reported by the checkout widget
// @Summary Verify payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body services.VerifyPaymentRequest true "Checkout callback"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{} "Invalid signature"
// @Failure 400 {object} map[string]interface{} "Payment not captured or amount mismatch"
// @Router /payments/verify [post]
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	var req services.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.reconciler.ProcessSuccessfulPayment(c.Request.Context(), req, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, "verify_payment", err)
		return
	}

	body := settlementResponse(result)
	body["status"] = "completed"
	c.JSON(http.StatusOK, body)
}

// ============================================================================
// REPORT FAILURE - POST /api/v1/payments/failure
// ============================================================================

// ReportFailure records a failed checkout after confirming it with the gateway
// @Summary Report failed payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param request body services.ReportFailureRequest true "Checkout failure callback"
// @Success 200 {object} models.PaymentTransaction
// @Router /payments/failure [post]
func (h *PaymentHandler) ReportFailure(c *gin.Context) {
	var req services.ReportFailureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	txn, err := h.reconciler.ReportFailedPayment(c.Request.Context(), req, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, "report_failure", err)
		return
	}

	c.JSON(http.StatusOK, txn)
}

// ============================================================================
// REFUND - POST /api/v1/payments/:id/refund
// ============================================================================

// Refund refunds a completed transaction in full or in part
// @Summary Refund payment
// @Tags Payments
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param id path string true "Transaction ID"
// @Param request body services.RefundRequest false "Amount (zero for full) and reason"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{} "Refund window exceeded or invalid amount"
// @Failure 404 {object} map[string]interface{} "Transaction not found"
// @Router /payments/{id}/refund [post]
func (h *PaymentHandler) Refund(c *gin.Context) {
	id, ok := consultantID(c)
	if !ok {
		return
	}

	var req services.RefundRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	result, err := h.reconciler.ProcessRefund(c.Request.Context(), id, c.Param("id"), req, requestMeta(c))
	if err != nil {
		respondError(c, h.logger, "refund", err)
		return
	}

	body := settlementResponse(result)
	body["status"] = "refunded"
	c.JSON(http.StatusOK, body)
}

// ============================================================================
// AUDIT TRAIL - GET /api/v1/payments/orders/:orderId/audit
// ============================================================================

// AuditTrail lists the audit entries of one of the consultant's orders
// @Summary Payment audit trail
// @Tags Payments
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param orderId path string true "Gateway order ID"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{} "Order not found"
// @Router /payments/orders/{orderId}/audit [get]
func (h *PaymentHandler) AuditTrail(c *gin.Context) {
	id, ok := consultantID(c)
	if !ok {
		return
	}

	orderID := c.Param("orderId")
	trail, err := h.audits.OrderTrail(c.Request.Context(), id, orderID)
	if err != nil {
		respondError(c, h.logger, "audit_trail", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id": orderID,
		"events":   trail,
		"count":    len(trail),
	})
}
