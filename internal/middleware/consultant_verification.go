package middleware

import (
	"context"
	"net/http"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ConsultantLookup is the part of the consultant repository the guard needs
type ConsultantLookup interface {
	GetByID(ctx context.Context, id string) (*models.Consultant, error)
}

// RequireActiveConsultant rejects tokens whose consultant no longer exists or
// was deactivated. Must be used after AuthMiddleware.
func RequireActiveConsultant(consultants ConsultantLookup, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		consultantCtx, exists := GetConsultantContext(c)
		if !exists {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Consultant context not found",
				"code":    "MISSING_USER_CONTEXT",
			})
			return
		}

		consultant, err := consultants.GetByID(c.Request.Context(), consultantCtx.ConsultantID)
		if err != nil {
			logger.WithError(err).WithField("consultant_id", consultantCtx.ConsultantID).
				Error("Failed to load consultant for verification check")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error":   "internal_error",
				"message": "Failed to verify consultant",
			})
			return
		}

		if consultant == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "not_consultant",
				"message": "Consultant account not found",
				"code":    "CONSULTANT_NOT_FOUND",
			})
			return
		}

		if !consultant.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "not_active",
				"message": "Your consultant account is deactivated",
				"code":    "ACCOUNT_INACTIVE",
			})
			return
		}

		c.Next()
	}
}
