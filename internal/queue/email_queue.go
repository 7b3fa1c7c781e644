package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/consultdesk/booking-backend/internal/config"
	"github.com/consultdesk/booking-backend/internal/models"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

const (
	// TypeSendEmail is the asynq task type for transactional emails
	TypeSendEmail = "email:send"
	// EmailQueueName is the asynq queue email tasks run on
	EmailQueueName = "emails"
)

// emailTask is the task payload: the kind selects the decoder for data
type emailTask struct {
	Kind models.EmailKind `json:"kind"`
	Data json.RawMessage  `json:"data"`
}

// TaskEnqueuer is the part of *asynq.Client the queue uses
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EmailQueue hands emails to background workers. Enqueue returns once the
// task is durable in Redis; delivery happens later, at least once.
type EmailQueue struct {
	client    TaskEnqueuer
	maxRetry  int
	retention time.Duration
	logger    *logrus.Logger
}

// NewEmailQueue creates a new email queue
func NewEmailQueue(client TaskEnqueuer, cfg config.QueueConfig, logger *logrus.Logger) *EmailQueue {
	return &EmailQueue{
		client:    client,
		maxRetry:  cfg.MaxRetry,
		retention: cfg.DedupeTTL,
		logger:    logger,
	}
}

// NewEmailTask encodes an email as an asynq task
func NewEmailTask(email models.Email) (*asynq.Task, error) {
	data, err := json.Marshal(email)
	if err != nil {
		return nil, fmt.Errorf("encode %s email: %w", email.Kind(), err)
	}
	payload, err := json.Marshal(emailTask{Kind: email.Kind(), Data: data})
	if err != nil {
		return nil, fmt.Errorf("encode email task: %w", err)
	}
	return asynq.NewTask(TypeSendEmail, payload), nil
}

// DecodeEmailTask rebuilds the email carried by a task payload
func DecodeEmailTask(payload []byte) (models.Email, error) {
	var task emailTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, fmt.Errorf("decode email task: %w", err)
	}
	return models.DecodeEmail(task.Kind, task.Data)
}

// Enqueue schedules the email. The dedupe key is the task id, so enqueueing
// the same business event twice while the first task is retained is a no-op.
func (q *EmailQueue) Enqueue(ctx context.Context, email models.Email) error {
	task, err := NewEmailTask(email)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.Queue(EmailQueueName),
		asynq.TaskID(email.DedupeKey()),
		asynq.MaxRetry(q.maxRetry),
	}
	if q.retention > 0 {
		opts = append(opts, asynq.Retention(q.retention))
	}

	info, err := q.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		q.logger.WithFields(logrus.Fields{
			"email_kind": email.Kind(),
			"dedupe_key": email.DedupeKey(),
		}).Debug("Email already queued")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue %s email: %w", email.Kind(), err)
	}

	q.logger.WithFields(logrus.Fields{
		"email_kind": email.Kind(),
		"task_id":    info.ID,
		"queue":      info.Queue,
	}).Debug("Email queued")
	return nil
}
