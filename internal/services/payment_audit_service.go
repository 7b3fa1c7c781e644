package services

import (
	"context"
	"fmt"

	"github.com/consultdesk/booking-backend/internal/models"
)

// PaymentAuditReader lists the audit trail of a gateway order
type PaymentAuditReader interface {
	ListByOrderID(ctx context.Context, orderID string) ([]models.PaymentAudit, error)
}

// PaymentAuditService exposes payment audit trails to the owning consultant
type PaymentAuditService struct {
	transactions TransactionStore
	audits       PaymentAuditReader
}

// NewPaymentAuditService creates a new payment audit service
func NewPaymentAuditService(transactions TransactionStore, audits PaymentAuditReader) *PaymentAuditService {
	return &PaymentAuditService{transactions: transactions, audits: audits}
}

// OrderTrail returns the audit entries of an order, oldest first. Orders of
// other consultants are reported as not found.
func (s *PaymentAuditService) OrderTrail(ctx context.Context, consultantID, orderID string) ([]models.PaymentAudit, error) {
	txn, err := s.transactions.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}
	if txn == nil || txn.ConsultantID != consultantID {
		return nil, &NotFoundError{Resource: "order", ID: orderID}
	}

	trail, err := s.audits.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit trail: %w", err)
	}
	if trail == nil {
		trail = []models.PaymentAudit{}
	}
	return trail, nil
}
