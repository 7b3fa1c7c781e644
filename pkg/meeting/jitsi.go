package meeting

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// PlatformJitsi is the platform key for Jitsi Meet
const PlatformJitsi = "JITSI"

// JitsiProvider builds room URLs locally. No account or token is involved.
type JitsiProvider struct {
	baseURL string
}

// NewJitsiProvider creates the provider for a Jitsi deployment
func NewJitsiProvider(baseURL string) *JitsiProvider {
	return &JitsiProvider{baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *JitsiProvider) Platform() string         { return PlatformJitsi }
func (p *JitsiProvider) RequiresCredential() bool { return false }

// CreateMeeting picks a random room name
func (p *JitsiProvider) CreateMeeting(_ context.Context, _ Request, _ *oauth2.Token) (*Link, error) {
	room := "consultdesk-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return &Link{URL: p.baseURL + "/" + room, ID: room}, nil
}
