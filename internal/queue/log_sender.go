package queue

import (
	"context"
	"encoding/json"

	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// LogSender writes emails to the log instead of a mail provider. Used in
// development and wherever no provider is configured.
type LogSender struct {
	logger *logrus.Logger
}

// NewLogSender creates a new log-only sender
func NewLogSender(logger *logrus.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs one line per recipient
func (s *LogSender) Send(_ context.Context, email models.Email) error {
	body, err := json.Marshal(email)
	if err != nil {
		return err
	}
	for _, recipient := range email.Recipients() {
		if recipient.Email == "" {
			continue
		}
		s.logger.WithFields(logrus.Fields{
			"email_kind": email.Kind(),
			"to":         recipient.Email,
			"name":       recipient.Name,
			"body":       string(body),
		}).Info("Email (log sender)")
	}
	return nil
}
