package razorpay

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the hex HMAC-SHA256 of message under secret
func Sign(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyPaymentSignature checks the checkout signature over "orderId|paymentId"
func VerifyPaymentSignature(orderID, paymentID, signature, keySecret string) bool {
	if orderID == "" || paymentID == "" || signature == "" || keySecret == "" {
		return false
	}
	expected := Sign(keySecret, []byte(orderID+"|"+paymentID))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyWebhookSignature checks the signature over the raw, unparsed body
func VerifyWebhookSignature(rawBody []byte, signature, webhookSecret string) bool {
	if len(rawBody) == 0 || signature == "" || webhookSecret == "" {
		return false
	}
	expected := Sign(webhookSecret, rawBody)
	return hmac.Equal([]byte(expected), []byte(signature))
}
