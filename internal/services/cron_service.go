package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronService manages scheduled background jobs
type CronService struct {
	cron     *cron.Cron
	jobs     *SessionJobService
	schedule string
	timeout  time.Duration
	logger   *logrus.Logger

	mu      sync.Mutex
	running bool
	last    *JobReport
	lastErr error
}

// NewCronService creates a new CronService
func NewCronService(jobs *SessionJobService, schedule string, logger *logrus.Logger) *CronService {
	// Cron format with seconds: second minute hour day month weekday
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	return &CronService{
		cron:     c,
		jobs:     jobs,
		schedule: schedule,
		timeout:  time.Minute,
		logger:   logger,
	}
}

// Start starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service...")

	// "0 */1 * * * *" = every minute
	_, err := s.cron.AddFunc(s.schedule, s.reconcileSessionsJob)
	if err != nil {
		return fmt.Errorf("failed to schedule session reconciliation job: %w", err)
	}
	s.logger.WithField("schedule", s.schedule).Info("✓ Scheduled: Session reconciliation")

	s.cron.Start()
	s.logger.Info("✓ Cron service started successfully")

	return nil
}

// Stop stops all cron jobs and waits for a running job to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service...")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("✓ Cron service stopped")
}

// reconcileSessionsJob starts, completes and abandons sessions by elapsed time
func (s *CronService) reconcileSessionsJob() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("[CRON] Session reconciliation still running, skipping")
		return
	}
	s.running = true
	s.mu.Unlock()

	startTime := time.Now()
	report, err := s.jobs.RunAll(ctx)

	s.mu.Lock()
	s.running = false
	s.last = report
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.WithError(err).Error("[CRON ERROR] Session reconciliation failed")
		return
	}
	s.logger.WithFields(logrus.Fields{
		"started":   report.Started,
		"completed": report.Completed,
		"abandoned": report.Abandoned,
		"duration":  time.Since(startTime).String(),
	}).Debug("[CRON] ✓ Session reconciliation finished")
}

// RunSessionReconciliationNow runs the reconciliation job immediately
func (s *CronService) RunSessionReconciliationNow() (*JobReport, error) {
	s.logger.Info("[MANUAL] Running session reconciliation now...")
	s.reconcileSessionsJob()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastErr
}

// GetJobStatus returns the status of scheduled jobs
func (s *CronService) GetJobStatus() map[string]interface{} {
	entries := s.cron.Entries()

	jobs := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		jobs = append(jobs, map[string]interface{}{
			"id":       entry.ID,
			"next_run": entry.Next,
			"prev_run": entry.Prev,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	status := map[string]interface{}{
		"running":   len(entries) > 0,
		"busy":      s.running,
		"job_count": len(entries),
		"jobs":      jobs,
		"schedule":  s.schedule,
	}
	if s.last != nil {
		status["last_run"] = s.last
	}
	if s.lastErr != nil {
		status["last_error"] = s.lastErr.Error()
	}
	return status
}
