package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEmail(t *testing.T) {
	t.Run("round trips a receipt", func(t *testing.T) {
		sessionID := "sess-1"
		in := PaymentReceiptEmail{
			TransactionID:    "txn-1",
			SessionID:        &sessionID,
			Client:           Participant{Name: "Asha", Email: "asha@example.com"},
			Amount:           "1000.00",
			Currency:         "INR",
			GatewayPaymentID: "pay_1",
		}
		data, err := json.Marshal(in)
		require.NoError(t, err)

		out, err := DecodeEmail(in.Kind(), data)
		require.NoError(t, err)

		receipt, ok := out.(PaymentReceiptEmail)
		require.True(t, ok)
		assert.Equal(t, in, receipt)
		assert.Equal(t, "payment_receipt:txn-1", out.DedupeKey())
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := DecodeEmail("newsletter", []byte(`{}`))
		assert.Error(t, err)
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := DecodeEmail(EmailSessionCancelled, []byte(`{"session_id":`))
		assert.Error(t, err)
	})
}
