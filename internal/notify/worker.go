package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/afterdarksys/servicedesk/internal/models"
)

// Queue is the persistence the worker drains
type Queue interface {
	ClaimPending(ctx context.Context, limit int) ([]models.Notification, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Worker periodically sends queued notifications
type Worker struct {
	queue    Queue
	sender   Sender
	logger   *zap.Logger
	interval time.Duration
	batch    int
}

// NewWorker creates a notification worker
func NewWorker(queue Queue, sender Sender, logger *zap.Logger, interval time.Duration, batch int) *Worker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if batch <= 0 {
		batch = 50
	}
	return &Worker{queue: queue, sender: sender, logger: logger, interval: interval, batch: batch}
}

// Run processes the queue on every tick until ctx is cancelled
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, _, err := w.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				w.logger.Error("Failed to process notification queue", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// ProcessOnce sends one batch and returns how many were sent and failed
func (w *Worker) ProcessOnce(ctx context.Context) (int, int, error) {
	pending, err := w.queue.ClaimPending(ctx, w.batch)
	if err != nil {
		return 0, 0, fmt.Errorf("can't get pending notifications: %w", err)
	}

	var sent, failed int
	for _, n := range pending {
		if err := ctx.Err(); err != nil {
			return sent, failed, err
		}

		if err := w.sender.Send(ctx, n.Email, n.Subject, n.BodyText); err != nil {
			failed++
			w.logger.Warn("Failed to send notification",
				zap.String("notification_id", n.ID.String()),
				zap.String("email", n.Email),
				zap.Int("attempt", n.Attempts+1),
				zap.Error(err),
			)
			if err := w.queue.MarkFailed(ctx, n.ID, err.Error()); err != nil {
				return sent, failed, fmt.Errorf("can't record failure for %s: %w", n.ID, err)
			}
			continue
		}

		if err := w.queue.MarkSent(ctx, n.ID); err != nil {
			return sent, failed, fmt.Errorf("can't mark %s sent: %w", n.ID, err)
		}
		sent++
	}

	if len(pending) > 0 {
		w.logger.Debug("Processed notification batch", zap.Int("sent", sent), zap.Int("failed", failed))
	}
	return sent, failed, nil
}
