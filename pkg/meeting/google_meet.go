package meeting

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// PlatformGoogleMeet is the platform key for Google Meet
const PlatformGoogleMeet = "GOOGLE_MEET"

// GoogleMeetProvider creates Meet links through calendar events with
// conference data on the consultant's primary calendar
type GoogleMeetProvider struct {
	endpoint string
	timeout  time.Duration
}

// NewGoogleMeetProvider creates the provider. An empty endpoint uses Google's.
func NewGoogleMeetProvider(endpoint string, timeout time.Duration) *GoogleMeetProvider {
	return &GoogleMeetProvider{endpoint: endpoint, timeout: timeout}
}

func (p *GoogleMeetProvider) Platform() string         { return PlatformGoogleMeet }
func (p *GoogleMeetProvider) RequiresCredential() bool { return true }

// CreateMeeting inserts a calendar event that requests a hangoutsMeet conference
func (p *GoogleMeetProvider) CreateMeeting(ctx context.Context, req Request, token *oauth2.Token) (*Link, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}

	svc, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, &Error{Kind: KindProviderUnavailable, Platform: PlatformGoogleMeet, Err: err}
	}

	event := &calendar.Event{
		Summary: req.Title,
		Start:   &calendar.EventDateTime{DateTime: req.StartTime.Format(time.RFC3339)},
		End:     &calendar.EventDateTime{DateTime: req.StartTime.Add(req.Duration).Format(time.RFC3339)},
		Attendees: []*calendar.EventAttendee{
			{Email: req.ConsultantEmail, Organizer: true},
			{Email: req.ClientEmail},
		},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				RequestId:             req.RequestID,
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}

	created, err := svc.Events.Insert("primary", event).
		ConferenceDataVersion(1).
		SendUpdates("none").
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyGoogleError(err)
	}

	link := created.HangoutLink
	meetingID := created.Id
	if created.ConferenceData != nil {
		if created.ConferenceData.ConferenceId != "" {
			meetingID = created.ConferenceData.ConferenceId
		}
		if link == "" {
			for _, ep := range created.ConferenceData.EntryPoints {
				if ep.EntryPointType == "video" {
					link = ep.Uri
					break
				}
			}
		}
	}
	if link == "" {
		return nil, &Error{
			Kind:     KindProviderUnavailable,
			Platform: PlatformGoogleMeet,
			Err:      fmt.Errorf("event %s created without a conference link", created.Id),
		}
	}

	return &Link{URL: link, ID: meetingID}, nil
}

func classifyGoogleError(err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusUnauthorized:
			return &Error{Kind: KindExpiredCredential, Platform: PlatformGoogleMeet, Err: err}
		case http.StatusForbidden:
			// Calendar also reports quota exhaustion as 403
			for _, item := range gErr.Errors {
				if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
					return &Error{Kind: KindProviderUnavailable, Platform: PlatformGoogleMeet, Err: err}
				}
			}
			return &Error{Kind: KindInsufficientPermission, Platform: PlatformGoogleMeet, Err: err}
		}
	}
	return &Error{Kind: KindProviderUnavailable, Platform: PlatformGoogleMeet, Err: err}
}
