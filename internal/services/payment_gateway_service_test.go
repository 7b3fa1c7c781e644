package services

import (
	"context"
	"testing"
	"time"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/consultdesk/booking-backend/pkg/razorpay"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookOnly(t *testing.T, h *harness, clock string) *BookingResult {
	t.Helper()
	booked, err := h.booking.BookSession(context.Background(), testSlug, bookingRequest("2025-03-01", clock))
	require.NoError(t, err)
	return booked
}

func TestCreateOrder_Success(t *testing.T) {
	h := newHarness()
	booked := bookOnly(t, h, "10:00")

	order, err := h.payments.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: &booked.Session.ID,
		Amount:    decimal.NewFromInt(1000),
		Notes:     map[string]string{"source": "widget"},
	}, RequestMeta{IP: "203.0.113.7", UserAgent: "Mozilla/5.0"})
	require.NoError(t, err)

	assert.Equal(t, "order_1", order.OrderID)
	assert.Equal(t, int64(100000), order.AmountMinor)
	assert.Equal(t, "INR", order.Currency)
	assert.Equal(t, "rzp_test_key", order.KeyID)
	assert.LessOrEqual(t, len(order.Receipt), 40)

	txn := h.txn(order.TransactionID)
	assert.Equal(t, models.TransactionPending, txn.Status)
	assert.Equal(t, models.TransactionMethodGateway, txn.Method)
	require.NotNil(t, txn.GatewayOrderID)
	assert.Equal(t, "order_1", *txn.GatewayOrderID)
	require.NotNil(t, txn.ClientID)
	assert.Equal(t, booked.Client.ID, *txn.ClientID)

	require.Len(t, h.gateway.orders, 1)
	notes := h.gateway.orders[0].Notes
	assert.Equal(t, order.TransactionID, notes["transaction_id"])
	assert.Equal(t, booked.Session.ID, notes["session_id"])
	assert.Equal(t, testConsultantID, notes["consultant_id"])
	assert.Equal(t, "widget", notes["source"])

	assert.Equal(t, 1, h.audits.count(models.PaymentEventOrderCreated))
}

func TestCreateOrder_Validation(t *testing.T) {
	h := newHarness()
	booked := bookOnly(t, h, "10:00")
	sessionID := booked.Session.ID

	tests := []struct {
		name string
		req  CreateOrderRequest
		code string
	}{
		{
			name: "no target",
			req:  CreateOrderRequest{Amount: decimal.NewFromInt(1000)},
			code: CodeInvalidTarget,
		},
		{
			name: "both targets",
			req:  CreateOrderRequest{SessionID: &sessionID, QuotationID: strPtr("q"), Amount: decimal.NewFromInt(1000)},
			code: CodeInvalidTarget,
		},
		{
			name: "zero amount",
			req:  CreateOrderRequest{SessionID: &sessionID, Amount: decimal.Zero},
			code: CodeAmountOutOfRange,
		},
		{
			name: "below minimum",
			req:  CreateOrderRequest{SessionID: &sessionID, Amount: decimal.NewFromFloat(0.5)},
			code: CodeAmountOutOfRange,
		},
		{
			name: "above maximum",
			req:  CreateOrderRequest{SessionID: &sessionID, Amount: decimal.NewFromInt(500001)},
			code: CodeAmountOutOfRange,
		},
		{
			name: "amount differs from session",
			req:  CreateOrderRequest{SessionID: &sessionID, Amount: decimal.NewFromInt(900)},
			code: CodeAmountMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.payments.CreateOrder(context.Background(), tt.req, RequestMeta{})
			requireCode(t, err, tt.code)
		})
	}
	assert.Empty(t, h.gateway.orders)
}

func TestCreateOrder_UnknownSession(t *testing.T) {
	h := newHarness()
	_, err := h.payments.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: strPtr(uuid.New().String()),
		Amount:    decimal.NewFromInt(1000),
	}, RequestMeta{})

	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestCreateOrder_AlreadyPaid(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	booked, order := bookAndOrder(t, h)
	h.gateway.capture(order.OrderID, "pay_1", 100000, nil)
	_, err := h.reconciler.ProcessSuccessfulPayment(ctx, verifyRequest(order.OrderID, "pay_1"), RequestMeta{})
	require.NoError(t, err)

	_, err = h.payments.CreateOrder(ctx, CreateOrderRequest{SessionID: &booked.Session.ID, Amount: decimal.NewFromInt(1000)}, RequestMeta{})
	requireCode(t, err, CodeAlreadyPaid)
}

func TestCreateOrder_SecondCaptureForPaidSession(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	booked := bookOnly(t, h, "10:00")

	first, err := h.payments.CreateOrder(ctx, CreateOrderRequest{SessionID: &booked.Session.ID, Amount: decimal.NewFromInt(1000)}, RequestMeta{})
	require.NoError(t, err)
	second, err := h.payments.CreateOrder(ctx, CreateOrderRequest{SessionID: &booked.Session.ID, Amount: decimal.NewFromInt(1000)}, RequestMeta{})
	require.NoError(t, err)

	h.gateway.capture(first.OrderID, "pay_1", 100000, nil)
	h.gateway.capture(second.OrderID, "pay_2", 100000, nil)

	_, err = h.reconciler.ProcessSuccessfulPayment(ctx, verifyRequest(first.OrderID, "pay_1"), RequestMeta{})
	require.NoError(t, err)
	_, err = h.reconciler.ProcessSuccessfulPayment(ctx, verifyRequest(second.OrderID, "pay_2"), RequestMeta{})
	requireCode(t, err, CodeAlreadyPaid)

	assert.Equal(t, models.TransactionPending, h.txn(second.TransactionID).Status)
	assert.True(t, h.client(booked.Client.ID).TotalAmountPaid.Equal(decimal.NewFromInt(1000)))
}

func TestCreateOrder_OfflineSessionRejected(t *testing.T) {
	h := newHarness()
	req := bookingRequest("2025-03-01", "10:00")
	req.PaymentMethod = models.PaymentMethodCash
	created, err := h.booking.CreateSession(context.Background(), testConsultantID, req)
	require.NoError(t, err)

	_, err = h.payments.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: &created.Session.ID,
		Amount:    decimal.NewFromInt(1000),
	}, RequestMeta{})
	assert.Error(t, err)
	assert.Contains(t, []string{CodeAlreadyPaid, CodeInvalidTarget}, ErrorCode(err))
}

func TestCreateOrder_CancelledSessionRejected(t *testing.T) {
	h := newHarness()
	booked := bookOnly(t, h, "10:00")
	_, err := h.booking.CancelSession(context.Background(), testConsultantID, booked.Session.ID)
	require.NoError(t, err)

	_, err = h.payments.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: &booked.Session.ID,
		Amount:    decimal.NewFromInt(1000),
	}, RequestMeta{})
	requireCode(t, err, CodeInvalidTarget)
}

func TestCreateOrder_DailyCap(t *testing.T) {
	h := newHarness()
	booked := bookOnly(t, h, "10:00")

	earlier := h.now.Add(-2 * time.Hour)
	h.db.txns["earlier"] = &models.PaymentTransaction{
		ID:           "earlier",
		ConsultantID: testConsultantID,
		Amount:       decimal.NewFromInt(199500),
		Currency:     "INR",
		Status:       models.TransactionCompleted,
		Method:       models.TransactionMethodGateway,
		ProcessedAt:  &earlier,
	}
	yesterday := h.now.Add(-24 * time.Hour)
	h.db.txns["yesterday"] = &models.PaymentTransaction{
		ID:           "yesterday",
		ConsultantID: testConsultantID,
		Amount:       decimal.NewFromInt(100000),
		Currency:     "INR",
		Status:       models.TransactionCompleted,
		Method:       models.TransactionMethodGateway,
		ProcessedAt:  &yesterday,
	}

	_, err := h.payments.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: &booked.Session.ID,
		Amount:    decimal.NewFromInt(1000),
	}, RequestMeta{})
	requireCode(t, err, CodeDailyLimitExceeded)

	// the next local day starts fresh
	h.now = h.now.Add(24 * time.Hour)
	_, err = h.payments.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: &booked.Session.ID,
		Amount:    decimal.NewFromInt(1000),
	}, RequestMeta{})
	assert.NoError(t, err)
}

func TestCreateOrder_GatewayFailureMarksTransactionFailed(t *testing.T) {
	h := newHarness()
	booked := bookOnly(t, h, "10:00")
	h.gateway.createErr = &razorpay.APIError{StatusCode: 503, Code: "SERVER_ERROR", Description: "try later"}

	_, err := h.payments.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: &booked.Session.ID,
		Amount:    decimal.NewFromInt(1000),
	}, RequestMeta{})
	requireCode(t, err, CodeGatewayUnavailable)

	var failed *models.PaymentTransaction
	for _, txn := range h.db.txns {
		failed = txn
	}
	require.NotNil(t, failed)
	assert.Equal(t, models.TransactionFailed, failed.Status)
	require.NotNil(t, failed.ErrorCode)
	assert.Equal(t, "SERVER_ERROR", *failed.ErrorCode)
	assert.Equal(t, 1, h.audits.count(models.PaymentEventOrderFailed))

	// session stays payable
	h.gateway.createErr = nil
	_, err = h.payments.CreateOrder(context.Background(), CreateOrderRequest{
		SessionID: &booked.Session.ID,
		Amount:    decimal.NewFromInt(1000),
	}, RequestMeta{})
	assert.NoError(t, err)
}

func TestCreateOrder_Quotation(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	client, err := memClients{h.db}.FindOrCreate(ctx, testConsultantID, models.ClientContact{Name: "Q", Email: "q@example.com"})
	require.NoError(t, err)

	h.db.quotations["accepted"] = &models.Quotation{
		ID: "accepted", ConsultantID: testConsultantID, ClientID: client.ID,
		Amount: decimal.NewFromInt(5000), Currency: "INR", Status: models.QuotationAccepted,
	}
	h.db.quotations["rejected"] = &models.Quotation{
		ID: "rejected", ConsultantID: testConsultantID, ClientID: client.ID,
		Amount: decimal.NewFromInt(5000), Currency: "INR", Status: models.QuotationRejected,
	}
	h.db.quotations["draft"] = &models.Quotation{
		ID: "draft", ConsultantID: testConsultantID, ClientID: client.ID,
		Amount: decimal.NewFromInt(5000), Currency: "INR", Status: models.QuotationDraft,
	}

	_, err = h.payments.CreateOrder(ctx, CreateOrderRequest{QuotationID: strPtr("accepted"), Amount: decimal.NewFromInt(5000)}, RequestMeta{})
	requireCode(t, err, CodeAlreadyPaid)

	_, err = h.payments.CreateOrder(ctx, CreateOrderRequest{QuotationID: strPtr("rejected"), Amount: decimal.NewFromInt(5000)}, RequestMeta{})
	requireCode(t, err, CodeInvalidTarget)

	_, err = h.payments.CreateOrder(ctx, CreateOrderRequest{QuotationID: strPtr("missing"), Amount: decimal.NewFromInt(5000)}, RequestMeta{})
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)

	order, err := h.payments.CreateOrder(ctx, CreateOrderRequest{QuotationID: strPtr("draft"), Amount: decimal.NewFromInt(5000)}, RequestMeta{})
	require.NoError(t, err)
	txn := h.txn(order.TransactionID)
	assert.Nil(t, txn.SessionID)
	require.NotNil(t, txn.QuotationID)
	assert.Equal(t, "draft", *txn.QuotationID)
	assert.Equal(t, "draft", h.gateway.orders[0].Notes["quotation_id"])
}
