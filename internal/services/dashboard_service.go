package services

import (
	"context"
	"time"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// DashboardCache stores rendered consultant dashboards. GetDashboard
// returns nil on a miss.
type DashboardCache interface {
	GetDashboard(ctx context.Context, consultantID string) (*models.ConsultantDashboard, error)
	SetDashboard(ctx context.Context, dashboard *models.ConsultantDashboard) error
}

// DashboardService serves the consultant dashboard through a read-through cache
type DashboardService struct {
	sessions SessionStore
	cache    DashboardCache
	logger   *logrus.Logger
	now      func() time.Time
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(sessions SessionStore, cache DashboardCache, logger *logrus.Logger) *DashboardService {
	return &DashboardService{
		sessions: sessions,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

// GetDashboard returns the cached dashboard or rebuilds it from the store.
// Cache failures degrade to a store read.
func (s *DashboardService) GetDashboard(ctx context.Context, consultantID string) (*models.ConsultantDashboard, error) {
	cached, err := s.cache.GetDashboard(ctx, consultantID)
	if err != nil {
		s.logger.WithError(err).WithField("consultant_id", consultantID).Warn("Dashboard cache read failed")
	}
	if cached != nil {
		return cached, nil
	}

	dashboard, err := s.sessions.Dashboard(ctx, consultantID, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetDashboard(ctx, dashboard); err != nil {
		s.logger.WithError(err).WithField("consultant_id", consultantID).Warn("Dashboard cache write failed")
	}
	return dashboard, nil
}
