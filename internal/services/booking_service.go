package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/consultdesk/booking-backend/internal/config"
	"github.com/consultdesk/booking-backend/internal/database"
	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// BookingService creates and cancels sessions. It is the only writer of a
// client's session counter and of slot occupancy.
type BookingService struct {
	consultants ConsultantStore
	clients     ClientStore
	sessions    SessionStore
	meetings    *MeetingService
	emails      EmailDispatcher
	views       ViewInvalidator
	cfg         config.BookingConfig
	loc         *time.Location
	logger      *logrus.Logger
	now         func() time.Time
}

// NewBookingService creates a new booking service
func NewBookingService(
	consultants ConsultantStore,
	clients ClientStore,
	sessions SessionStore,
	meetings *MeetingService,
	emails EmailDispatcher,
	views ViewInvalidator,
	cfg config.BookingConfig,
	loc *time.Location,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		consultants: consultants,
		clients:     clients,
		sessions:    sessions,
		meetings:    meetings,
		emails:      emails,
		views:       views,
		cfg:         cfg,
		loc:         loc,
		logger:      logger,
		now:         time.Now,
	}
}

// BookingRequest is a request to book a session. Date and time are both
// set for a scheduled session or both omitted for a manual one.
type BookingRequest struct {
	Client        models.ClientContact   `json:"client" binding:"required"`
	SessionType   string                 `json:"session_type" binding:"required"`
	Title         string                 `json:"title"`
	ScheduledDate *string                `json:"scheduled_date,omitempty"` // "2025-03-01"
	ScheduledTime *string                `json:"scheduled_time,omitempty"` // "10:00"
	Amount        decimal.Decimal        `json:"amount"`                   // zero means the configured price
	Platform      models.MeetingPlatform `json:"platform,omitempty"`
	PaymentMethod models.PaymentMethod   `json:"payment_method,omitempty"`
	Source        models.BookingSource   `json:"booking_source,omitempty"`
	Notes         *string                `json:"notes,omitempty"`
}

// BookingResult is the outcome of a successful booking
type BookingResult struct {
	Session *models.Session `json:"session"`
	Client  *models.Client  `json:"client"`
	// MeetingDeferred is set when the link will be provisioned later;
	// MeetingDeferredReason carries the credential or outage code
	MeetingDeferred       bool   `json:"meeting_deferred"`
	MeetingDeferredReason string `json:"meeting_deferred_reason,omitempty"`
}

type bookingPolicy struct {
	source models.BookingSource
	// strictPrice rejects a mismatched amount instead of charging the configured price
	strictPrice bool
	// deferMeeting books without a link when the provider cannot create one
	deferMeeting bool
}

// BookSession is the public booking path, addressed by consultant slug.
// Always paid online; meeting provisioning problems never block the booking.
func (s *BookingService) BookSession(ctx context.Context, slug string, req BookingRequest) (*BookingResult, error) {
	consultant, err := s.consultants.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if consultant == nil {
		return nil, &NotFoundError{Resource: "consultant", ID: slug}
	}

	req.PaymentMethod = models.PaymentMethodOnline
	return s.book(ctx, consultant, req, bookingPolicy{
		source:       models.BookingSourcePublic,
		strictPrice:  !s.cfg.LenientPublicPrice,
		deferMeeting: true,
	})
}

// CreateSession is the authenticated path used by the consultant.
// Meeting provisioning problems fail the call so the consultant can reconnect.
func (s *BookingService) CreateSession(ctx context.Context, consultantID string, req BookingRequest) (*BookingResult, error) {
	consultant, err := s.consultants.GetByID(ctx, consultantID)
	if err != nil {
		return nil, err
	}
	if consultant == nil {
		return nil, &NotFoundError{Resource: "consultant", ID: consultantID}
	}

	source := models.BookingSourceManual
	if req.Source == models.BookingSourcePlatform {
		source = models.BookingSourcePlatform
	}
	return s.book(ctx, consultant, req, bookingPolicy{
		source:      source,
		strictPrice: true,
	})
}

func (s *BookingService) book(ctx context.Context, consultant *models.Consultant, req BookingRequest, policy bookingPolicy) (*BookingResult, error) {
	logger := s.logger.WithFields(logrus.Fields{
		"consultant_id": consultant.ID,
		"session_type":  req.SessionType,
		"source":        policy.source,
	})

	if !consultant.CanAcceptBookings() {
		return nil, newValidationError(CodeConsultantUnavailable, "consultant is not accepting bookings")
	}
	if !req.PaymentMethod.Valid() {
		return nil, newValidationError(CodeInvalidRequest, "unknown payment method %q", req.PaymentMethod)
	}

	price, err := s.consultants.GetSessionTypePrice(ctx, consultant.ID, req.SessionType)
	if err != nil {
		return nil, err
	}
	if price == nil {
		return nil, newValidationError(CodeUnknownSessionType, "session type %q is not offered", req.SessionType)
	}

	amount := price.Price
	if !req.Amount.IsZero() && !models.AmountsMatch(req.Amount, price.Price, s.epsilon()) {
		if policy.strictPrice {
			return nil, newValidationError(CodePriceMismatch, "amount %s does not match price %s", req.Amount, price.Price)
		}
		logger.WithFields(logrus.Fields{
			"requested_amount": req.Amount.String(),
			"price":            price.Price.String(),
		}).Warn("Booking amount does not match configured price, charging configured price")
	}

	platform := req.Platform
	if platform == "" {
		platform = consultant.DefaultPlatform
	}
	if !s.meetings.SupportsPlatform(platform) {
		return nil, newValidationError(CodeUnsupportedPlatform, "unsupported meeting platform %q", platform)
	}

	var scheduledAt *time.Time
	if req.ScheduledDate != nil || req.ScheduledTime != nil {
		if req.ScheduledDate == nil || req.ScheduledTime == nil {
			return nil, newValidationError(CodeInvalidRequest, "scheduled_date and scheduled_time must be given together")
		}
		start, err := models.ParseSlot(*req.ScheduledDate, *req.ScheduledTime, s.loc)
		if err != nil {
			return nil, newValidationError(CodeInvalidRequest, "%v", err)
		}
		if !start.After(s.now()) {
			return nil, newValidationError(CodePastSlot, "slot %s %s is in the past", *req.ScheduledDate, *req.ScheduledTime)
		}
		// Advisory check so conflicting requests fail before touching clients;
		// CreateBooked repeats it under the slot lock
		taken, err := s.sessions.HasActiveSlot(ctx, consultant.ID, *req.ScheduledDate, *req.ScheduledTime)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, slotConflict(req)
		}
		scheduledAt = &start
	}

	client, err := s.clients.FindOrCreate(ctx, consultant.ID, req.Client)
	if err != nil {
		return nil, err
	}

	now := s.now()
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = req.SessionType + " with " + consultant.Name
	}
	session := &models.Session{
		ID:              uuid.New().String(),
		ConsultantID:    consultant.ID,
		ClientID:        client.ID,
		Title:           title,
		SessionType:     req.SessionType,
		ScheduledDate:   req.ScheduledDate,
		ScheduledTime:   req.ScheduledTime,
		ScheduledAt:     scheduledAt,
		DurationMinutes: price.DurationMinutes,
		Amount:          amount,
		Currency:        price.Currency,
		Status:          models.SessionStatusPending,
		PaymentStatus:   models.SessionPaymentPending,
		PaymentMethod:   req.PaymentMethod,
		Platform:        platform,
		BookingSource:   policy.source,
		Notes:           req.Notes,
		CreatedAt:       now,
	}
	if session.PaymentMethod == "" {
		session.PaymentMethod = models.PaymentMethodOnline
	}

	result := &BookingResult{}
	if session.IsScheduled() {
		details, err := s.meetings.Provision(ctx, session, consultant, client.Email)
		var pErr *ProviderError
		switch {
		case err == nil:
			session.MeetingLink = &details.Link
			session.MeetingID = &details.ID
			session.MeetingPassword = details.Password
		case policy.deferMeeting && errors.As(err, &pErr):
			result.MeetingDeferred = true
			result.MeetingDeferredReason = pErr.Code
			logger.WithError(err).Warn("Meeting link deferred")
		default:
			return nil, err
		}
	}

	params := database.CreateSessionParams{Session: session}
	if !session.PaymentMethod.IsOnline() {
		session.Status = models.SessionStatusConfirmed
		session.PaymentStatus = models.SessionPaymentPaid
		params.OfflineTransaction = offlineTransaction(session, now)
	}

	created, updatedClient, err := s.sessions.CreateBooked(ctx, params)
	if err != nil {
		if errors.Is(err, database.ErrSlotTaken) {
			if session.MeetingID != nil {
				logger.WithField("meeting_id", *session.MeetingID).Warn("Slot taken after meeting was provisioned, meeting left orphaned")
			}
			return nil, slotConflict(req)
		}
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"session_id": created.ID,
		"client_id":  updatedClient.ID,
		"status":     created.Status,
	}).Info("Session booked")

	s.invalidate(ctx, consultant.ID)

	email := models.BookingConfirmationEmail{
		SessionID:      created.ID,
		Consultant:     models.Participant{Name: consultant.Name, Email: consultant.Email},
		Client:         models.Participant{Name: updatedClient.Name, Email: updatedClient.Email},
		ScheduledAt:    created.ScheduledAt,
		MeetingLink:    created.MeetingLink,
		Amount:         created.Amount.StringFixed(2),
		Currency:       created.Currency,
		PaymentPending: created.PaymentStatus == models.SessionPaymentPending,
	}
	if err := s.emails.Enqueue(ctx, email); err != nil {
		logger.WithError(err).WithField("session_id", created.ID).Warn("Failed to enqueue booking confirmation")
	}

	result.Session = created
	result.Client = updatedClient
	return result, nil
}

// CancelSession cancels one of the consultant's sessions and frees its slot.
// A paid session is not refunded here.
func (s *BookingService) CancelSession(ctx context.Context, consultantID, sessionID string) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.ConsultantID != consultantID {
		return nil, &NotFoundError{Resource: "session", ID: sessionID}
	}
	if session.Status == models.SessionStatusCancelled {
		return nil, newValidationError(CodeAlreadyCancelled, "session %s is already cancelled", sessionID)
	}

	cancelled, err := s.sessions.Cancel(ctx, sessionID, s.now())
	if err != nil {
		if errors.Is(err, database.ErrSessionNotCancellable) {
			return nil, newValidationError(CodeNotCancellable, "session %s cannot be cancelled from its current status", sessionID)
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"session_id":    sessionID,
		"consultant_id": consultantID,
	}).Info("Session cancelled")

	s.invalidate(ctx, consultantID)
	s.notifyCancelled(ctx, cancelled)

	return cancelled, nil
}

func (s *BookingService) notifyCancelled(ctx context.Context, session *models.Session) {
	consultant, err := s.consultants.GetByID(ctx, session.ConsultantID)
	if err != nil || consultant == nil {
		s.logger.WithError(err).WithField("session_id", session.ID).Warn("Skipping cancellation email, consultant unavailable")
		return
	}
	client, err := s.clients.GetByID(ctx, session.ClientID)
	if err != nil || client == nil {
		s.logger.WithError(err).WithField("session_id", session.ID).Warn("Skipping cancellation email, client unavailable")
		return
	}
	err = s.emails.Enqueue(ctx, models.SessionCancelledEmail{
		SessionID:   session.ID,
		Consultant:  models.Participant{Name: consultant.Name, Email: consultant.Email},
		Client:      models.Participant{Name: client.Name, Email: client.Email},
		ScheduledAt: session.ScheduledAt,
	})
	if err != nil {
		s.logger.WithError(err).WithField("session_id", session.ID).Warn("Failed to enqueue cancellation email")
	}
}

func (s *BookingService) invalidate(ctx context.Context, consultantID string) {
	if err := s.views.InvalidateConsultant(ctx, consultantID); err != nil {
		s.logger.WithError(err).WithField("consultant_id", consultantID).Error("Failed to invalidate consultant views")
	}
}

func (s *BookingService) epsilon() decimal.Decimal {
	return decimal.NewFromFloat(s.cfg.PriceEpsilon)
}

func slotConflict(req BookingRequest) error {
	return newValidationError(CodeSlotConflict, "slot %s %s is already booked", *req.ScheduledDate, *req.ScheduledTime)
}

func offlineTransaction(session *models.Session, now time.Time) *models.PaymentTransaction {
	sessionID := session.ID
	clientID := session.ClientID
	processedAt := now
	return &models.PaymentTransaction{
		ID:             uuid.New().String(),
		ConsultantID:   session.ConsultantID,
		ClientID:       &clientID,
		SessionID:      &sessionID,
		Receipt:        receiptFor("off", sessionID),
		Amount:         session.Amount,
		Currency:       session.Currency,
		Status:         models.TransactionCompleted,
		Method:         models.TransactionMethodOffline,
		RefundedAmount: decimal.Zero,
		Notes:          models.JSONB{"payment_method": string(session.PaymentMethod)},
		ProcessedAt:    &processedAt,
		CreatedAt:      now,
	}
}

// receiptFor builds a gateway receipt (max 40 chars) from a prefix and an id
func receiptFor(prefix, id string) string {
	receipt := prefix + "_" + strings.ReplaceAll(id, "-", "")
	if len(receipt) > 40 {
		receipt = receipt[:40]
	}
	return receipt
}
