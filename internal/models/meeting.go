package models

import "time"

// MeetingPlatform identifies a video meeting provider
type MeetingPlatform string

const (
	PlatformGoogleMeet MeetingPlatform = "GOOGLE_MEET"
	PlatformZoom       MeetingPlatform = "ZOOM"
	PlatformJitsi      MeetingPlatform = "JITSI"
)

// MeetingCredential is a consultant's OAuth grant for a meeting platform
type MeetingCredential struct {
	ConsultantID string          `json:"consultant_id" db:"consultant_id"`
	Platform     MeetingPlatform `json:"platform" db:"platform"`
	AccessToken  string          `json:"-" db:"access_token"`
	RefreshToken *string         `json:"-" db:"refresh_token"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty" db:"expires_at"`
	Scope        *string         `json:"scope,omitempty" db:"scope"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// ExpiredAt reports whether the token is expired at now, treating tokens
// that expire within skew as already expired.
func (c *MeetingCredential) ExpiredAt(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return !now.Add(skew).Before(*c.ExpiresAt)
}
