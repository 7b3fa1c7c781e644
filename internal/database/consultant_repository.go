package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/jmoiron/sqlx"
)

const consultantColumns = `
	id, slug, name, email, is_approved, is_active, default_platform, created_at, updated_at`

// ConsultantRepository reads consultants and their pricing
type ConsultantRepository struct {
	db *sqlx.DB
}

// NewConsultantRepository creates a new consultant repository
func NewConsultantRepository(db *sqlx.DB) *ConsultantRepository {
	return &ConsultantRepository{db: db}
}

// GetByID returns the consultant or nil
func (r *ConsultantRepository) GetByID(ctx context.Context, id string) (*models.Consultant, error) {
	return r.getOne(ctx, `SELECT `+consultantColumns+` FROM consultants WHERE id = $1`, id)
}

// GetBySlug returns the consultant with a public booking slug or nil
func (r *ConsultantRepository) GetBySlug(ctx context.Context, slug string) (*models.Consultant, error) {
	return r.getOne(ctx, `SELECT `+consultantColumns+` FROM consultants WHERE slug = $1`, slug)
}

func (r *ConsultantRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.Consultant, error) {
	consultant := &models.Consultant{}
	err := r.db.GetContext(ctx, consultant, query, arg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get consultant: %w", err)
	}
	return consultant, nil
}

// GetSessionTypePrice returns the configured price for a session type or nil
func (r *ConsultantRepository) GetSessionTypePrice(ctx context.Context, consultantID, sessionType string) (*models.SessionTypePrice, error) {
	price := &models.SessionTypePrice{}
	err := r.db.GetContext(ctx, price, `
		SELECT consultant_id, session_type, price, currency, duration_minutes
		FROM consultant_session_types
		WHERE consultant_id = $1 AND session_type = $2`, consultantID, sessionType)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session type price: %w", err)
	}
	return price, nil
}
