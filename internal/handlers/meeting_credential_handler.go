package handlers

import (
	"net/http"
	"strings"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/consultdesk/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// MeetingCredentialHandler stores OAuth grants for meeting platforms
type MeetingCredentialHandler struct {
	meetings MeetingRepairer
	logger   *logrus.Logger
}

// NewMeetingCredentialHandler creates a new MeetingCredentialHandler
func NewMeetingCredentialHandler(meetings MeetingRepairer, logger *logrus.Logger) *MeetingCredentialHandler {
	return &MeetingCredentialHandler{meetings: meetings, logger: logger}
}

// ============================================================================
// CONNECT PLATFORM - PUT /api/v1/meeting-credentials/:platform
// ============================================================================

// ConnectPlatform saves a fresh grant and provisions links for paid sessions
// that were booked while the platform was unavailable
// @Summary Connect a meeting platform
// @Tags Meeting Credentials
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param platform path string true "google_meet or zoom"
// @Param request body services.CredentialGrant true "OAuth grant"
// @Success 200 {object} services.RepairSummary
// @Failure 400 {object} map[string]interface{} "Unsupported platform"
// @Router /meeting-credentials/{platform} [put]
func (h *MeetingCredentialHandler) ConnectPlatform(c *gin.Context) {
	id, ok := consultantID(c)
	if !ok {
		return
	}

	var grant services.CredentialGrant
	if err := c.ShouldBindJSON(&grant); err != nil {
		badRequest(c, err)
		return
	}

	platform := models.MeetingPlatform(strings.ToUpper(c.Param("platform")))
	summary, err := h.meetings.ConnectPlatform(c.Request.Context(), id, platform, grant)
	if err != nil {
		respondError(c, h.logger, "connect_platform", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"platform": platform,
		"repair":   summary,
	})
}
