package handlers

import (
	"net/http"

	"github.com/consultdesk/booking-backend/internal/middleware"
	"github.com/consultdesk/booking-backend/internal/services"
	"github.com/consultdesk/booking-backend/internal/utils"
	"github.com/gin-gonic/gin"
)

// requestMeta collects the caller details recorded on payment audits
func requestMeta(c *gin.Context) services.RequestMeta {
	userAgent := utils.GetUserAgent(c)
	return services.RequestMeta{
		IP:        utils.GetRealIP(c),
		UserAgent: userAgent,
		Device:    utils.ParseUserAgent(userAgent).Summary(),
	}
}

// consultantID returns the authenticated consultant, writing a 401 when absent
func consultantID(c *gin.Context) (string, bool) {
	consultantCtx, exists := middleware.GetConsultantContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "consultant not authenticated"})
		return "", false
	}
	return consultantCtx.ConsultantID, true
}
