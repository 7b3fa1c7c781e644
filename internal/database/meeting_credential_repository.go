package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/consultdesk/booking-backend/pkg/sealer"
	"github.com/jmoiron/sqlx"
)

// MeetingCredentialRepository stores consultants' meeting-platform tokens.
// Access and refresh tokens are sealed at rest when box is non-nil.
type MeetingCredentialRepository struct {
	db  *sqlx.DB
	box *sealer.Box
}

// NewMeetingCredentialRepository creates a new meeting credential repository
func NewMeetingCredentialRepository(db *sqlx.DB, box *sealer.Box) *MeetingCredentialRepository {
	return &MeetingCredentialRepository{db: db, box: box}
}

// Get returns the credential or nil when the consultant never connected the platform
func (r *MeetingCredentialRepository) Get(ctx context.Context, consultantID string, platform models.MeetingPlatform) (*models.MeetingCredential, error) {
	cred := &models.MeetingCredential{}
	err := r.db.GetContext(ctx, cred, `
		SELECT consultant_id, platform, access_token, refresh_token, expires_at, scope, created_at, updated_at
		FROM meeting_credentials
		WHERE consultant_id = $1 AND platform = $2`, consultantID, platform)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get meeting credential: %w", err)
	}

	if cred.AccessToken, err = r.box.Open(cred.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to open access token: %w", err)
	}
	if cred.RefreshToken != nil {
		refresh, err := r.box.Open(*cred.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("failed to open refresh token: %w", err)
		}
		cred.RefreshToken = &refresh
	}
	return cred, nil
}

// Upsert stores a freshly granted credential
func (r *MeetingCredentialRepository) Upsert(ctx context.Context, cred *models.MeetingCredential) error {
	access, err := r.box.Seal(cred.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to seal access token: %w", err)
	}
	var refresh *string
	if cred.RefreshToken != nil {
		sealed, err := r.box.Seal(*cred.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to seal refresh token: %w", err)
		}
		refresh = &sealed
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO meeting_credentials (
			consultant_id, platform, access_token, refresh_token, expires_at, scope, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		ON CONFLICT (consultant_id, platform) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, meeting_credentials.refresh_token),
			expires_at = EXCLUDED.expires_at,
			scope = EXCLUDED.scope,
			updated_at = NOW()`,
		cred.ConsultantID, cred.Platform, access, refresh, cred.ExpiresAt, cred.Scope)
	if err != nil {
		return fmt.Errorf("failed to upsert meeting credential: %w", err)
	}
	return nil
}
