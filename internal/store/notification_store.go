package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/afterdarksys/servicedesk/internal/models"
)

// NotificationStore handles the outbound mail queue
type NotificationStore struct {
	db *sql.DB
}

// EnqueueForTicket queues one notification per linked resource and the
// ticket creator, skipping the author. Private messages only reach staff.
func (s *NotificationStore) EnqueueForTicket(ctx context.Context, ticketID, messageID, authorID uuid.UUID, staffOnly bool, subject, body string) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_queue (id, user_id, email, subject, body_text, ticket_id, message_id, max_attempts)
		SELECT gen_random_uuid(), u.id, u.email, $4, $5, $1, $2, $6
		FROM users u
		WHERE u.is_active
		  AND u.id <> $3
		  AND ($7 = FALSE OR u.role <> 'client')
		  AND u.id IN (
		      SELECT r.user_id FROM ticket_resources r WHERE r.ticket_id = $1
		      UNION
		      SELECT t.created_by FROM tickets t WHERE t.id = $1
		  )
	`, ticketID, messageID, authorID, subject, body, models.DefaultNotificationAttempts, staffOnly)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue ticket notifications: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// claimLease is how long a claimed notification stays reserved. A worker
// that dies mid-batch releases its rows once the lease runs out.
const claimLease = 5 * time.Minute

// ClaimPending reserves up to limit due notifications for the caller and
// returns them. Concurrent workers never claim the same row. Notifications
// for deleted messages are skipped.
func (s *NotificationStore) ClaimPending(ctx context.Context, limit int) ([]models.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE notification_queue
		SET status = 'sending', scheduled_for = NOW() + $2::int * INTERVAL '1 second'
		WHERE id IN (
		    SELECT q.id FROM notification_queue q
		    WHERE q.status IN ('pending', 'sending')
		      AND q.scheduled_for <= NOW()
		      AND q.attempts < q.max_attempts
		      AND NOT EXISTS (
		          SELECT 1 FROM messages m WHERE m.id = q.message_id AND m.deleted_at IS NOT NULL
		      )
		    ORDER BY q.scheduled_for
		    LIMIT $1
		    FOR UPDATE SKIP LOCKED
		)
		RETURNING id, user_id, email, subject, body_text, ticket_id, message_id, status,
		          attempts, max_attempts, sent_at, error_message, created_at, scheduled_for
	`, limit, int(claimLease/time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to claim pending notifications: %w", err)
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(&n.ID, &n.UserID, &n.Email, &n.Subject, &n.BodyText, &n.TicketID, &n.MessageID,
			&n.Status, &n.Attempts, &n.MaxAttempts, &n.SentAt, &n.ErrorMessage, &n.CreatedAt, &n.ScheduledFor)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// cancelForMessage withdraws the unsent notifications of a message
func cancelForMessage(ctx context.Context, tx *sql.Tx, messageID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE notification_queue SET status = 'cancelled'
		WHERE message_id = $1 AND status IN ('pending', 'sending')
	`, messageID)
	if err != nil {
		return fmt.Errorf("failed to cancel message notifications: %w", err)
	}
	return nil
}

// MarkSent records a successful delivery
func (s *NotificationStore) MarkSent(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notification_queue
		SET status = 'sent', sent_at = NOW(), attempts = attempts + 1, error_message = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt. The notification is retried with a
// growing delay until it runs out of attempts.
func (s *NotificationStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE notification_queue
		SET attempts = attempts + 1,
		    error_message = $2,
		    status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
		    scheduled_for = NOW() + (attempts + 1) * INTERVAL '1 minute'
		WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}
	return nil
}
