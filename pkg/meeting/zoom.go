package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// PlatformZoom is the platform key for Zoom
const PlatformZoom = "ZOOM"

// ZoomProvider creates scheduled meetings through the Zoom REST API
type ZoomProvider struct {
	baseURL string
	timeout time.Duration
	limiter *rate.Limiter
}

// NewZoomProvider creates the provider, throttled to ratePerSec outbound calls
func NewZoomProvider(baseURL string, ratePerSec float64, timeout time.Duration) *ZoomProvider {
	limit := rate.Inf
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
	}
	return &ZoomProvider{
		baseURL: baseURL,
		timeout: timeout,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (p *ZoomProvider) Platform() string         { return PlatformZoom }
func (p *ZoomProvider) RequiresCredential() bool { return true }

type zoomMeetingRequest struct {
	Topic     string              `json:"topic"`
	Type      int                 `json:"type"`
	StartTime string              `json:"start_time"`
	Duration  int                 `json:"duration"`
	Timezone  string              `json:"timezone"`
	Settings  zoomMeetingSettings `json:"settings"`
}

type zoomMeetingSettings struct {
	JoinBeforeHost  bool                `json:"join_before_host"`
	WaitingRoom     bool                `json:"waiting_room"`
	MeetingInvitees []map[string]string `json:"meeting_invitees,omitempty"`
}

type zoomMeetingResponse struct {
	ID       int64  `json:"id"`
	JoinURL  string `json:"join_url"`
	Password string `json:"password"`
}

// CreateMeeting schedules a meeting on the token owner's account
func (p *ZoomProvider) CreateMeeting(ctx context.Context, req Request, token *oauth2.Token) (*Link, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, &Error{Kind: KindProviderUnavailable, Platform: PlatformZoom, Err: err}
	}

	body, err := json.Marshal(zoomMeetingRequest{
		Topic:     req.Title,
		Type:      2, // scheduled
		StartTime: req.StartTime.UTC().Format("2006-01-02T15:04:05Z"),
		Duration:  int(req.Duration.Minutes()),
		Timezone:  "UTC",
		Settings: zoomMeetingSettings{
			WaitingRoom:     true,
			MeetingInvitees: []map[string]string{{"email": req.ClientEmail}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal zoom request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/users/me/meetings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build zoom request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, &Error{Kind: KindProviderUnavailable, Platform: PlatformZoom, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindProviderUnavailable, Platform: PlatformZoom, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &Error{Kind: KindExpiredCredential, Platform: PlatformZoom, Err: fmt.Errorf("zoom: %s", respBody)}
	case resp.StatusCode == http.StatusForbidden:
		return nil, &Error{Kind: KindInsufficientPermission, Platform: PlatformZoom, Err: fmt.Errorf("zoom: %s", respBody)}
	case resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK:
		return nil, &Error{
			Kind:     KindProviderUnavailable,
			Platform: PlatformZoom,
			Err:      fmt.Errorf("zoom returned status %d: %s", resp.StatusCode, respBody),
		}
	}

	var meeting zoomMeetingResponse
	if err := json.Unmarshal(respBody, &meeting); err != nil {
		return nil, &Error{Kind: KindProviderUnavailable, Platform: PlatformZoom, Err: err}
	}
	if meeting.JoinURL == "" {
		return nil, &Error{Kind: KindProviderUnavailable, Platform: PlatformZoom, Err: fmt.Errorf("zoom returned no join url")}
	}

	link := &Link{URL: meeting.JoinURL, ID: strconv.FormatInt(meeting.ID, 10)}
	if meeting.Password != "" {
		pw := meeting.Password
		link.Password = &pw
	}
	return link, nil
}
