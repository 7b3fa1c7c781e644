package handlers

import (
	"errors"
	"net/http"

	"github.com/consultdesk/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// conflictCodes are validation codes that describe a state clash rather than bad input
var conflictCodes = map[string]bool{
	services.CodeSlotConflict:       true,
	services.CodeAlreadyPaid:        true,
	services.CodeOrderNotPending:    true,
	services.CodeRefundUnreconciled: true,
	services.CodeNotCancellable:     true,
	services.CodeAlreadyCancelled:   true,
}

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	var vErr *services.ValidationError
	var nfErr *services.NotFoundError
	var pErr *services.ProviderError

	switch {
	case services.IsIdempotentNoOp(err):
		return http.StatusOK
	case errors.As(err, &vErr):
		switch {
		case conflictCodes[vErr.Code]:
			return http.StatusConflict
		case vErr.Code == services.CodeForbidden:
			return http.StatusForbidden
		case vErr.Code == services.CodeInvalidSignature:
			return http.StatusUnauthorized
		}
		return http.StatusBadRequest
	case errors.As(err, &nfErr):
		return http.StatusNotFound
	case errors.As(err, &pErr):
		if pErr.Code == services.CodeProviderUnavailable || pErr.Code == services.CodeGatewayUnavailable {
			return http.StatusBadGateway
		}
		return http.StatusFailedDependency
	}
	return http.StatusInternalServerError
}

// respondError writes the JSON error body for err. Already-applied events
// are answered 200 so retrying callers stop.
func respondError(c *gin.Context, logger *logrus.Logger, operation string, err error) {
	status := statusFor(err)

	if services.IsIdempotentNoOp(err) {
		c.JSON(status, gin.H{"status": "already_processed", "message": err.Error()})
		return
	}

	if status == http.StatusInternalServerError {
		logger.WithError(err).WithField("operation", operation).Error("Request failed")
		c.JSON(status, gin.H{"error": "internal_error", "message": "An internal error occurred"})
		return
	}

	body := gin.H{"error": err.Error()}
	if code := services.ErrorCode(err); code != "" {
		body["code"] = code
	}
	if status >= http.StatusBadGateway || status == http.StatusFailedDependency {
		logger.WithError(err).WithField("operation", operation).Warn("Provider failure")
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": "invalid request: " + err.Error(),
		"code":  services.CodeInvalidRequest,
	})
}
