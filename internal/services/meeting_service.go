package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/consultdesk/booking-backend/pkg/meeting"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// MeetingService resolves consultant credentials and provisions meeting links,
// both at booking time and later for sessions whose link was deferred
type MeetingService struct {
	provisioner MeetingLinkGenerator
	credentials CredentialStore
	sessions    SessionStore
	consultants ConsultantStore
	clients     ClientStore
	emails      EmailDispatcher
	views       ViewInvalidator
	logger      *logrus.Logger
	now         func() time.Time
}

// NewMeetingService creates a new meeting service
func NewMeetingService(
	provisioner MeetingLinkGenerator,
	credentials CredentialStore,
	sessions SessionStore,
	consultants ConsultantStore,
	clients ClientStore,
	emails EmailDispatcher,
	views ViewInvalidator,
	logger *logrus.Logger,
) *MeetingService {
	return &MeetingService{
		provisioner: provisioner,
		credentials: credentials,
		sessions:    sessions,
		consultants: consultants,
		clients:     clients,
		emails:      emails,
		views:       views,
		logger:      logger,
		now:         time.Now,
	}
}

// CredentialGrant is a freshly obtained OAuth token for a platform
type CredentialGrant struct {
	AccessToken  string     `json:"access_token" binding:"required"`
	RefreshToken *string    `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scope        *string    `json:"scope,omitempty"`
}

// RepairSummary reports what a reconnect-triggered repair pass did
type RepairSummary struct {
	Attempted   int      `json:"attempted"`
	Provisioned int      `json:"provisioned"`
	Failed      int      `json:"failed"`
	Skipped     int      `json:"skipped"`
	FailedIDs   []string `json:"failed_session_ids,omitempty"`
	SkippedIDs  []string `json:"skipped_session_ids,omitempty"`
}

// SupportsPlatform reports whether links can be generated for platform
func (s *MeetingService) SupportsPlatform(platform models.MeetingPlatform) bool {
	return s.provisioner.Supports(string(platform))
}

// Provision creates a meeting for a scheduled session that is not persisted yet.
// Errors are *ProviderError with a credential or outage code.
func (s *MeetingService) Provision(ctx context.Context, session *models.Session, consultant *models.Consultant, clientEmail string) (*models.MeetingDetails, error) {
	if session.ScheduledAt == nil {
		return nil, newValidationError(CodeInvalidRequest, "session %s has no scheduled time", session.ID)
	}

	token, err := s.tokenFor(ctx, consultant.ID, session.Platform)
	if err != nil {
		return nil, err
	}

	link, err := s.provisioner.GenerateMeetingLink(ctx, string(session.Platform), meeting.Request{
		Title:           session.Title,
		StartTime:       *session.ScheduledAt,
		Duration:        time.Duration(session.DurationMinutes) * time.Minute,
		ConsultantEmail: consultant.Email,
		ClientEmail:     clientEmail,
		RequestID:       session.ID,
	}, token)
	if err != nil {
		return nil, toProviderError(err, session.Platform)
	}

	return &models.MeetingDetails{Link: link.URL, ID: link.ID, Password: link.Password}, nil
}

// ProvisionDeferred provisions and stores a link for a persisted session that
// lacks one. Returns the session as stored afterwards.
func (s *MeetingService) ProvisionDeferred(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, &NotFoundError{Resource: "session", ID: sessionID}
	}
	if !session.NeedsMeetingLink() {
		return session, nil
	}

	consultant, err := s.consultants.GetByID(ctx, session.ConsultantID)
	if err != nil {
		return nil, err
	}
	if consultant == nil {
		return nil, &NotFoundError{Resource: "consultant", ID: session.ConsultantID}
	}
	client, err := s.clients.GetByID(ctx, session.ClientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, &NotFoundError{Resource: "client", ID: session.ClientID}
	}

	details, err := s.Provision(ctx, session, consultant, client.Email)
	if err != nil {
		return nil, err
	}

	applied, err := s.sessions.SetMeetingDetails(ctx, session.ID, *details)
	if err != nil {
		return nil, err
	}
	if !applied {
		// A concurrent repair stored its link first; ours is discarded
		s.logger.WithField("session_id", session.ID).Info("Meeting link already present, discarding duplicate")
		return s.sessions.GetByID(ctx, session.ID)
	}

	session.MeetingLink = &details.Link
	session.MeetingID = &details.ID
	session.MeetingPassword = details.Password

	s.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"platform":   session.Platform,
	}).Info("Deferred meeting link provisioned")

	s.invalidate(ctx, session.ConsultantID)
	s.enqueue(ctx, models.MeetingLinkReadyEmail{
		SessionID:   session.ID,
		Consultant:  models.Participant{Name: consultant.Name, Email: consultant.Email},
		Client:      models.Participant{Name: client.Name, Email: client.Email},
		MeetingLink: details.Link,
		ScheduledAt: session.ScheduledAt,
	})

	return session, nil
}

// RepairMeetingLink is the explicit retry for one session of the consultant
func (s *MeetingService) RepairMeetingLink(ctx context.Context, consultantID, sessionID string) (*models.Session, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.ConsultantID != consultantID {
		return nil, &NotFoundError{Resource: "session", ID: sessionID}
	}
	if !session.IsScheduled() {
		return nil, newValidationError(CodeInvalidRequest, "session %s is not scheduled", sessionID)
	}
	return s.ProvisionDeferred(ctx, sessionID)
}

// ConnectPlatform stores a new credential, then provisions links for the
// consultant's upcoming sessions on that platform that are still missing one
func (s *MeetingService) ConnectPlatform(ctx context.Context, consultantID string, platform models.MeetingPlatform, grant CredentialGrant) (*RepairSummary, error) {
	if !s.SupportsPlatform(platform) {
		return nil, newValidationError(CodeUnsupportedPlatform, "unsupported meeting platform %q", platform)
	}
	if grant.AccessToken == "" {
		return nil, newValidationError(CodeInvalidRequest, "access_token is required")
	}

	err := s.credentials.Upsert(ctx, &models.MeetingCredential{
		ConsultantID: consultantID,
		Platform:     platform,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
		ExpiresAt:    grant.ExpiresAt,
		Scope:        grant.Scope,
	})
	if err != nil {
		return nil, err
	}

	sessions, err := s.sessions.ListAwaitingMeetingLink(ctx, consultantID, platform, s.now())
	if err != nil {
		return nil, err
	}

	// Attempted + Skipped always equals the sessions awaiting a link
	summary := &RepairSummary{}
	for i, session := range sessions {
		summary.Attempted++
		if _, err := s.ProvisionDeferred(ctx, session.ID); err != nil {
			summary.Failed++
			summary.FailedIDs = append(summary.FailedIDs, session.ID)
			s.logger.WithError(err).WithField("session_id", session.ID).Warn("Meeting link repair failed")
			// Credential problems will fail every remaining session the same way
			if code := ErrorCode(err); code == CodeCredentialExpired || code == CodeInsufficientPermission {
				for _, rest := range sessions[i+1:] {
					summary.SkippedIDs = append(summary.SkippedIDs, rest.ID)
				}
				summary.Skipped = len(summary.SkippedIDs)
				break
			}
			continue
		}
		summary.Provisioned++
	}

	s.logger.WithFields(logrus.Fields{
		"consultant_id": consultantID,
		"platform":      platform,
		"attempted":     summary.Attempted,
		"provisioned":   summary.Provisioned,
		"failed":        summary.Failed,
		"skipped":       summary.Skipped,
	}).Info("Meeting platform connected")

	return summary, nil
}

func (s *MeetingService) tokenFor(ctx context.Context, consultantID string, platform models.MeetingPlatform) (*oauth2.Token, error) {
	cred, err := s.credentials.Get(ctx, consultantID, platform)
	if err != nil {
		return nil, fmt.Errorf("failed to load meeting credential: %w", err)
	}
	if cred == nil {
		return nil, nil
	}
	token := &oauth2.Token{AccessToken: cred.AccessToken, TokenType: "Bearer"}
	if cred.ExpiresAt != nil {
		token.Expiry = *cred.ExpiresAt
	}
	return token, nil
}

func (s *MeetingService) invalidate(ctx context.Context, consultantID string) {
	if err := s.views.InvalidateConsultant(ctx, consultantID); err != nil {
		s.logger.WithError(err).WithField("consultant_id", consultantID).Error("Failed to invalidate consultant views")
	}
}

func (s *MeetingService) enqueue(ctx context.Context, email models.Email) {
	if err := s.emails.Enqueue(ctx, email); err != nil {
		s.logger.WithError(err).WithField("email_kind", email.Kind()).Warn("Failed to enqueue email")
	}
}

func toProviderError(err error, platform models.MeetingPlatform) error {
	if errors.Is(err, meeting.ErrUnsupportedPlatform) {
		return newValidationError(CodeUnsupportedPlatform, "unsupported meeting platform %q", platform)
	}
	kind, ok := meeting.KindOf(err)
	if !ok {
		kind = meeting.KindProviderUnavailable
	}
	code := CodeProviderUnavailable
	switch kind {
	case meeting.KindMissingCredential:
		code = CodeCredentialMissing
	case meeting.KindExpiredCredential:
		code = CodeCredentialExpired
	case meeting.KindInsufficientPermission:
		code = CodeInsufficientPermission
	}
	return &ProviderError{Code: code, Provider: string(platform), Err: err}
}
