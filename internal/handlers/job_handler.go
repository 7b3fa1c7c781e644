package handlers

import (
	"net/http"

	"github.com/consultdesk/booking-backend/internal/services"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// JobRunner is satisfied by *services.CronService
type JobRunner interface {
	RunSessionReconciliationNow() (*services.JobReport, error)
	GetJobStatus() map[string]interface{}
}

// JobHandler exposes the session reconciliation jobs to admins
type JobHandler struct {
	jobs   JobRunner
	logger *logrus.Logger
}

// NewJobHandler creates a new JobHandler
func NewJobHandler(jobs JobRunner, logger *logrus.Logger) *JobHandler {
	return &JobHandler{jobs: jobs, logger: logger}
}

// RunNow runs the reconciliation jobs immediately
// @Summary Run session jobs now
// @Tags Admin
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Success 200 {object} services.JobReport
// @Router /admin/jobs/run [post]
func (h *JobHandler) RunNow(c *gin.Context) {
	report, err := h.jobs.RunSessionReconciliationNow()
	if err != nil {
		h.logger.WithError(err).Warn("Manual session reconciliation finished with errors")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":  "some jobs failed",
			"report": report,
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

// Status reports the job schedule and last run
// @Summary Session job status
// @Tags Admin
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Success 200 {object} map[string]interface{}
// @Router /admin/jobs/status [get]
func (h *JobHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.GetJobStatus())
}
