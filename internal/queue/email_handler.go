package queue

import (
	"context"
	"fmt"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Sender delivers one email
type Sender interface {
	Send(ctx context.Context, email models.Email) error
}

// DeliveryMarker remembers which emails were delivered
type DeliveryMarker interface {
	Delivered(ctx context.Context, key string) (bool, error)
	MarkDelivered(ctx context.Context, key string) error
}

// EmailHandler processes email tasks. A task redelivered after a successful
// send is acknowledged without sending again.
type EmailHandler struct {
	sender Sender
	marker DeliveryMarker
	logger *logrus.Logger
}

// NewEmailHandler creates a new email task handler
func NewEmailHandler(sender Sender, marker DeliveryMarker, logger *logrus.Logger) *EmailHandler {
	return &EmailHandler{sender: sender, marker: marker, logger: logger}
}

// ProcessTask implements asynq.Handler
func (h *EmailHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	email, err := DecodeEmailTask(task.Payload())
	if err != nil {
		h.logger.WithError(err).Error("Dropping undecodable email task")
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	key := email.DedupeKey()
	logger := h.logger.WithFields(logrus.Fields{
		"email_kind": email.Kind(),
		"dedupe_key": key,
	})

	if !hasRecipients(email) {
		logger.Warn("Email has no recipient address, dropping")
		return nil
	}

	delivered, err := h.marker.Delivered(ctx, key)
	if err != nil {
		return fmt.Errorf("check delivery marker: %w", err)
	}
	if delivered {
		logger.Info("Email already delivered, skipping")
		return nil
	}

	if err := h.sender.Send(ctx, email); err != nil {
		logger.WithError(err).Warn("Email send failed, will retry")
		return err
	}

	if err := h.marker.MarkDelivered(ctx, key); err != nil {
		// The email went out; a redelivery may send it twice
		logger.WithError(err).Error("Failed to record email delivery")
	}
	logger.Info("Email delivered")
	return nil
}

func hasRecipients(email models.Email) bool {
	for _, r := range email.Recipients() {
		if r.Email != "" {
			return true
		}
	}
	return false
}
