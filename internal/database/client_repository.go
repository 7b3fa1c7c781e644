package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ClientRepository handles consultant-scoped clients
type ClientRepository struct {
	db *sqlx.DB
}

// NewClientRepository creates a new client repository
func NewClientRepository(db *sqlx.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// FindOrCreate returns the client with this email under the consultant,
// creating it if needed. Concurrent callers converge on the same row.
func (r *ClientRepository) FindOrCreate(ctx context.Context, consultantID string, contact models.ClientContact) (*models.Client, error) {
	email := strings.ToLower(strings.TrimSpace(contact.Email))
	now := time.Now()

	client := &models.Client{}
	query := `
		INSERT INTO clients (id, consultant_id, name, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (consultant_id, email)
		DO UPDATE SET phone = COALESCE(clients.phone, EXCLUDED.phone)
		RETURNING ` + clientColumns
	err := r.db.QueryRowxContext(ctx, query,
		uuid.New().String(), consultantID, strings.TrimSpace(contact.Name), email, contact.Phone, now,
	).StructScan(client)
	if err != nil {
		return nil, fmt.Errorf("failed to find or create client: %w", err)
	}
	return client, nil
}

// GetByID returns the client or nil if it does not exist
func (r *ClientRepository) GetByID(ctx context.Context, id string) (*models.Client, error) {
	client := &models.Client{}
	err := r.db.GetContext(ctx, client, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return client, nil
}
