package queue

import (
	"context"
	"fmt"

	"github.com/consultdesk/booking-backend/internal/config"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// RedisOpt builds the asynq connection options from the Redis config
func RedisOpt(cfg config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// Worker runs the background email handlers
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	logger *logrus.Logger
}

// NewWorker creates an asynq server listening on the email queue
func NewWorker(redisOpt asynq.RedisConnOpt, cfg config.QueueConfig, handler *EmailHandler, logger *logrus.Logger) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 5
	}

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			EmailQueueName: 1,
		},
		Logger:   logger,
		LogLevel: asynq.WarnLevel,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.WithError(err).WithFields(logrus.Fields{
				"task_type": task.Type(),
				"retried":   retried,
				"max_retry": maxRetry,
			}).Warn("Background task failed")
		}),
	})

	mux := asynq.NewServeMux()
	mux.Handle(TypeSendEmail, handler)

	return &Worker{server: server, mux: mux, logger: logger}
}

// Start begins processing in background goroutines
func (w *Worker) Start() error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start email worker: %w", err)
	}
	w.logger.Info("✓ Email worker started")
	return nil
}

// Shutdown stops fetching tasks and waits for in-flight ones
func (w *Worker) Shutdown() {
	w.server.Shutdown()
	w.logger.Info("✓ Email worker stopped")
}
