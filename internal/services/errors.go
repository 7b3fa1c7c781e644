package services

import (
	"errors"
	"fmt"
)

// Machine-readable error codes. Callers branch on these, so they are stable.
const (
	CodeInvalidRequest         = "INVALID_REQUEST"
	CodeConsultantUnavailable  = "CONSULTANT_UNAVAILABLE"
	CodeUnknownSessionType     = "UNKNOWN_SESSION_TYPE"
	CodePriceMismatch          = "PRICE_MISMATCH"
	CodePastSlot               = "PAST_SLOT"
	CodeSlotConflict           = "SLOT_CONFLICT"
	CodeUnsupportedPlatform    = "UNSUPPORTED_PLATFORM"
	CodeCredentialMissing      = "CREDENTIAL_MISSING"
	CodeCredentialExpired      = "CREDENTIAL_EXPIRED"
	CodeInsufficientPermission = "INSUFFICIENT_PERMISSION"
	CodeProviderUnavailable    = "PROVIDER_UNAVAILABLE"
	CodeNotCancellable         = "NOT_CANCELLABLE"
	CodeAlreadyCancelled       = "ALREADY_CANCELLED"
	CodeForbidden              = "FORBIDDEN"

	CodeInvalidTarget      = "INVALID_PAYMENT_TARGET"
	CodeAmountOutOfRange   = "AMOUNT_OUT_OF_RANGE"
	CodeDailyLimitExceeded = "DAILY_LIMIT_EXCEEDED"
	CodeAmountMismatch     = "AMOUNT_MISMATCH"
	CodeAlreadyPaid        = "ALREADY_PAID"
	CodeInvalidSignature   = "INVALID_SIGNATURE"
	CodePaymentNotCaptured = "PAYMENT_NOT_CAPTURED"
	CodeOrderMismatch      = "ORDER_MISMATCH"
	CodeOrderNotFound      = "ORDER_NOT_FOUND"
	CodeOrderNotPending    = "ORDER_NOT_PENDING"
	CodeNotRefundable      = "NOT_REFUNDABLE"
	CodeRefundWindow       = "REFUND_WINDOW_EXCEEDED"
	CodeRefundAmount       = "INVALID_REFUND_AMOUNT"
	CodeRefundUnreconciled = "REFUND_NOT_RECONCILED"
	CodeGatewayUnavailable = "GATEWAY_UNAVAILABLE"
)

// ValidationError means the caller's input violates a business rule. Never retried.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newValidationError(code, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError means a referenced entity does not exist
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ProviderError wraps a failure of the gateway or a meeting provider.
// Code tells credential problems apart from outages.
type ProviderError struct {
	Code     string
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Code, e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IdempotentNoOpError means the event was already applied. Webhook
// handlers acknowledge it so the sender stops redelivering.
type IdempotentNoOpError struct {
	Reason string
}

func (e *IdempotentNoOpError) Error() string {
	return "already processed: " + e.Reason
}

// IsIdempotentNoOp reports whether err is an already-applied event
func IsIdempotentNoOp(err error) bool {
	var noop *IdempotentNoOpError
	return errors.As(err, &noop)
}

// ErrorCode returns the machine-readable code carried by err, if any
func ErrorCode(err error) string {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return vErr.Code
	}
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr.Code
	}
	return ""
}
