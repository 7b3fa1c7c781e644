package services

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// SessionJobService moves sessions along by wall-clock time. Every step is a
// conditional bulk update, so it is safe alongside user-driven updates.
type SessionJobService struct {
	store  SessionJobStore
	views  ViewInvalidator
	logger *logrus.Logger
	now    func() time.Time
}

// NewSessionJobService creates a new session job service
func NewSessionJobService(store SessionJobStore, views ViewInvalidator, logger *logrus.Logger) *SessionJobService {
	return &SessionJobService{
		store:  store,
		views:  views,
		logger: logger,
		now:    time.Now,
	}
}

// JobReport summarizes one reconciliation pass
type JobReport struct {
	Started   int       `json:"started_consultants"`
	Completed int       `json:"completed_consultants"`
	Abandoned int       `json:"abandoned_consultants"`
	RanAt     time.Time `json:"ran_at"`
}

// StartDueSessions moves CONFIRMED sessions whose start has passed to IN_PROGRESS
func (s *SessionJobService) StartDueSessions(ctx context.Context) (int, error) {
	return s.run(ctx, "start_due", s.store.StartDue)
}

// CompleteElapsedSessions moves CONFIRMED and IN_PROGRESS sessions whose end has passed to COMPLETED
func (s *SessionJobService) CompleteElapsedSessions(ctx context.Context) (int, error) {
	return s.run(ctx, "complete_elapsed", s.store.CompleteElapsed)
}

// AbandonUnpaidSessions moves unpaid PENDING sessions whose end has passed to ABANDONED
func (s *SessionJobService) AbandonUnpaidSessions(ctx context.Context) (int, error) {
	return s.run(ctx, "abandon_unpaid", s.store.AbandonUnpaid)
}

// RunAll runs every step in order. A failing step does not stop the others.
func (s *SessionJobService) RunAll(ctx context.Context) (*JobReport, error) {
	report := &JobReport{RanAt: s.now()}
	var firstErr error

	steps := []struct {
		count *int
		fn    func(context.Context) (int, error)
	}{
		{&report.Started, s.StartDueSessions},
		{&report.Completed, s.CompleteElapsedSessions},
		{&report.Abandoned, s.AbandonUnpaidSessions},
	}
	for _, step := range steps {
		n, err := step.fn(ctx)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		*step.count = n
	}
	return report, firstErr
}

func (s *SessionJobService) run(ctx context.Context, name string, fn func(context.Context, time.Time) ([]string, error)) (int, error) {
	start := s.now()
	consultantIDs, err := fn(ctx, start)
	if err != nil {
		s.logger.WithError(err).WithField("job", name).Error("Session job failed")
		return 0, err
	}

	for _, id := range consultantIDs {
		if err := s.views.InvalidateConsultant(ctx, id); err != nil {
			s.logger.WithError(err).WithField("consultant_id", id).Error("Failed to invalidate consultant views")
		}
	}

	if len(consultantIDs) > 0 {
		s.logger.WithFields(logrus.Fields{
			"job":         name,
			"consultants": len(consultantIDs),
			"duration":    time.Since(start).String(),
		}).Info("Session job applied")
	}
	return len(consultantIDs), nil
}
