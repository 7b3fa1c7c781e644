package meeting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// Kind classifies a provisioning failure so callers can pick a remediation
type Kind string

const (
	KindMissingCredential      Kind = "missing_credential"
	KindExpiredCredential      Kind = "expired_credential"
	KindInsufficientPermission Kind = "insufficient_permission"
	KindProviderUnavailable    Kind = "provider_unavailable"
)

// Error is a classified provisioning failure. Credential kinds are never
// retried here; the caller reconnects and asks again.
type Error struct {
	Kind     Kind
	Platform string
	Err      error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Platform, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Platform, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind from err
func KindOf(err error) (Kind, bool) {
	var mErr *Error
	if errors.As(err, &mErr) {
		return mErr.Kind, true
	}
	return "", false
}

// ErrUnsupportedPlatform is returned for platforms with no registered provider
var ErrUnsupportedPlatform = errors.New("unsupported meeting platform")

// Request is a logical meeting to create
type Request struct {
	Title           string
	StartTime       time.Time
	Duration        time.Duration
	ConsultantEmail string
	ClientEmail     string
	// Idempotency key forwarded to providers that support one
	RequestID string
}

// Link is a joinable meeting
type Link struct {
	URL      string
	ID       string
	Password *string
}

// Provider creates meetings on one platform
type Provider interface {
	Platform() string
	RequiresCredential() bool
	CreateMeeting(ctx context.Context, req Request, token *oauth2.Token) (*Link, error)
}

// Provisioner routes requests to the provider for a platform
type Provisioner struct {
	providers map[string]Provider
	skew      time.Duration
	now       func() time.Time
}

// NewProvisioner registers providers. Tokens expiring within skew count as expired.
func NewProvisioner(skew time.Duration, providers ...Provider) *Provisioner {
	p := &Provisioner{
		providers: make(map[string]Provider, len(providers)),
		skew:      skew,
		now:       time.Now,
	}
	for _, provider := range providers {
		p.providers[provider.Platform()] = provider
	}
	return p
}

// Supports reports whether a provider is registered for platform
func (p *Provisioner) Supports(platform string) bool {
	_, ok := p.providers[platform]
	return ok
}

// RequiresCredential reports whether platform needs an OAuth token
func (p *Provisioner) RequiresCredential(platform string) bool {
	provider, ok := p.providers[platform]
	return ok && provider.RequiresCredential()
}

// GenerateMeetingLink creates a meeting, failing fast with a classified
// Error when the platform needs a token that is absent or expired
func (p *Provisioner) GenerateMeetingLink(ctx context.Context, platform string, req Request, token *oauth2.Token) (*Link, error) {
	provider, ok := p.providers[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}

	if provider.RequiresCredential() {
		if token == nil || token.AccessToken == "" {
			return nil, &Error{Kind: KindMissingCredential, Platform: platform}
		}
		if !token.Expiry.IsZero() && !p.now().Add(p.skew).Before(token.Expiry) {
			return nil, &Error{
				Kind:     KindExpiredCredential,
				Platform: platform,
				Err:      fmt.Errorf("token expired at %s", token.Expiry.Format(time.RFC3339)),
			}
		}
	}

	link, err := provider.CreateMeeting(ctx, req, token)
	if err != nil {
		if _, classified := KindOf(err); classified {
			return nil, err
		}
		return nil, &Error{Kind: KindProviderUnavailable, Platform: platform, Err: err}
	}
	return link, nil
}
