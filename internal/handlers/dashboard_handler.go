package handlers

import (
	"context"
	"net/http"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DashboardReader is satisfied by *services.DashboardService
type DashboardReader interface {
	GetDashboard(ctx context.Context, consultantID string) (*models.ConsultantDashboard, error)
}

// DashboardHandler serves the consultant dashboard view
type DashboardHandler struct {
	dashboards DashboardReader
	logger     *logrus.Logger
}

// NewDashboardHandler creates a new DashboardHandler
func NewDashboardHandler(dashboards DashboardReader, logger *logrus.Logger) *DashboardHandler {
	return &DashboardHandler{dashboards: dashboards, logger: logger}
}

// GetDashboard returns session counts and revenue for the authenticated consultant
// @Summary Consultant dashboard
// @Tags Consultant
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Success 200 {object} models.ConsultantDashboard
// @Router /consultant/dashboard [get]
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	id, ok := consultantID(c)
	if !ok {
		return
	}

	dashboard, err := h.dashboards.GetDashboard(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "dashboard", err)
		return
	}

	c.JSON(http.StatusOK, dashboard)
}
