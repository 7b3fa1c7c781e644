package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/jmoiron/sqlx"
)

// QuotationRepository reads quotations. Acceptance happens inside settlement.
type QuotationRepository struct {
	db *sqlx.DB
}

// NewQuotationRepository creates a new quotation repository
func NewQuotationRepository(db *sqlx.DB) *QuotationRepository {
	return &QuotationRepository{db: db}
}

// GetByID returns the quotation or nil
func (r *QuotationRepository) GetByID(ctx context.Context, id string) (*models.Quotation, error) {
	quotation := &models.Quotation{}
	err := r.db.GetContext(ctx, quotation, `SELECT `+quotationColumns+` FROM quotations WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quotation: %w", err)
	}
	return quotation, nil
}
