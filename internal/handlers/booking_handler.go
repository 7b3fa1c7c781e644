package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/consultdesk/booking-backend/internal/services"
	"github.com/consultdesk/booking-backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Booker is satisfied by *services.BookingService
type Booker interface {
	BookSession(ctx context.Context, slug string, req services.BookingRequest) (*services.BookingResult, error)
	CreateSession(ctx context.Context, consultantID string, req services.BookingRequest) (*services.BookingResult, error)
	CancelSession(ctx context.Context, consultantID, sessionID string) (*models.Session, error)
}

// MeetingRepairer is satisfied by *services.MeetingService
type MeetingRepairer interface {
	RepairMeetingLink(ctx context.Context, consultantID, sessionID string) (*models.Session, error)
	ConnectPlatform(ctx context.Context, consultantID string, platform models.MeetingPlatform, grant services.CredentialGrant) (*services.RepairSummary, error)
}

// BookingLimiter is satisfied by *services.RateLimitService
type BookingLimiter interface {
	CheckBookingRateLimit(ctx context.Context, email, ip string) error
}

// BookingHandler handles public booking and consultant session endpoints
type BookingHandler struct {
	booking  Booker
	meetings MeetingRepairer
	limiter  BookingLimiter // optional, public booking only
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler. limiter may be nil.
func NewBookingHandler(booking Booker, meetings MeetingRepairer, limiter BookingLimiter, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		booking:  booking,
		meetings: meetings,
		limiter:  limiter,
		logger:   logger,
	}
}

// ============================================================================
// PUBLIC BOOKING - POST /api/v1/public/consultants/:slug/book
// ============================================================================

// BookPublic books a session through a consultant's public booking page
// @Summary Book a session
// @Description Public booking by consultant slug. Always paid online; the meeting link may be deferred.
// @Tags Booking
// @Accept json
// @Produce json
// @Param slug path string true "Consultant slug"
// @Param request body services.BookingRequest true "Booking request"
// @Success 201 {object} services.BookingResult
// @Failure 400 {object} map[string]interface{} "Validation error"
// @Failure 404 {object} map[string]interface{} "Consultant not found"
// @Failure 409 {object} map[string]interface{} "Slot already booked"
// @Failure 429 {object} map[string]interface{} "Too many booking attempts"
// @Router /public/consultants/{slug}/book [post]
func (h *BookingHandler) BookPublic(c *gin.Context) {
	var req services.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if h.limiter != nil {
		clientIP := utils.GetRealIP(c)
		if err := h.limiter.CheckBookingRateLimit(c.Request.Context(), req.Client.Email, clientIP); err != nil {
			var rlErr *services.RateLimitError
			if errors.As(err, &rlErr) {
				h.logger.WithFields(logrus.Fields{
					"slug":       c.Param("slug"),
					"ip":         clientIP,
					"limit_type": rlErr.Type,
				}).Warn("Public booking rate limited")

				c.Header("Retry-After", strconv.Itoa(int(time.Until(rlErr.RetryAfter).Seconds())+1))
				c.JSON(http.StatusTooManyRequests, gin.H{
					"error":       "rate_limit_exceeded",
					"message":     rlErr.Message,
					"retry_after": rlErr.RetryAfter,
					"type":        rlErr.Type,
				})
				return
			}
			respondError(c, h.logger, "book_public", err)
			return
		}
	}

	result, err := h.booking.BookSession(c.Request.Context(), c.Param("slug"), req)
	if err != nil {
		respondError(c, h.logger, "book_public", err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// ============================================================================
// CREATE SESSION - POST /api/v1/sessions
// ============================================================================

// CreateSession books a session on behalf of the authenticated consultant
// @Summary Create session
// @Tags Sessions
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body services.BookingRequest true "Booking request"
// @Success 201 {object} services.BookingResult
// @Failure 400 {object} map[string]interface{} "Validation error"
// @Failure 409 {object} map[string]interface{} "Slot already booked"
// @Failure 424 {object} map[string]interface{} "Meeting credential missing or expired"
// @Router /sessions [post]
func (h *BookingHandler) CreateSession(c *gin.Context) {
	id, ok := consultantID(c)
	if !ok {
		return
	}

	var req services.BookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.booking.CreateSession(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.logger, "create_session", err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// ============================================================================
// CANCEL SESSION - POST /api/v1/sessions/:id/cancel
// ============================================================================

// CancelSession cancels a pending or confirmed session. No refund is issued.
// @Summary Cancel session
// @Tags Sessions
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param id path string true "Session ID"
// @Success 200 {object} models.Session
// @Failure 404 {object} map[string]interface{} "Session not found"
// @Failure 409 {object} map[string]interface{} "Session not cancellable"
// @Router /sessions/{id}/cancel [post]
func (h *BookingHandler) CancelSession(c *gin.Context) {
	id, ok := consultantID(c)
	if !ok {
		return
	}

	session, err := h.booking.CancelSession(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "cancel_session", err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// ============================================================================
// REPAIR MEETING LINK - POST /api/v1/sessions/:id/meeting-link
// ============================================================================

// RepairMeetingLink provisions the link of a session whose meeting was deferred
// @Summary Provision a deferred meeting link
// @Tags Sessions
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param id path string true "Session ID"
// @Success 200 {object} models.Session
// @Failure 424 {object} map[string]interface{} "Meeting credential missing or expired"
// @Failure 502 {object} map[string]interface{} "Meeting provider unavailable"
// @Router /sessions/{id}/meeting-link [post]
func (h *BookingHandler) RepairMeetingLink(c *gin.Context) {
	id, ok := consultantID(c)
	if !ok {
		return
	}

	session, err := h.meetings.RepairMeetingLink(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "repair_meeting_link", err)
		return
	}

	c.JSON(http.StatusOK, session)
}
