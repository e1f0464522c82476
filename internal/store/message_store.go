package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/afterdarksys/servicedesk/internal/models"
)

// MessageStore handles ticket thread database operations
type MessageStore struct {
	db *sql.DB
}

const messageSelect = `
	SELECT
		m.id, m.ticket_id, m.body, m.is_private, m.status_id, m.minutes,
		m.created_by, m.is_system, m.ref_msg_id, m.edited, m.created_at, m.updated_at,
		u.id, u.email, u.full_name, u.role
	FROM messages m
	LEFT JOIN users u ON u.id = m.created_by
`

func scanMessage(row rowScanner) (*models.Message, error) {
	m := &models.Message{}
	var statusID, minutes sql.NullInt64
	var authorID *uuid.UUID
	var email, name, role sql.NullString

	err := row.Scan(
		&m.ID, &m.TicketID, &m.Body, &m.IsPrivate, &statusID, &minutes,
		&m.CreatedBy, &m.IsSystem, &m.RefMsgID, &m.Edited, &m.CreatedAt, &m.UpdatedAt,
		&authorID, &email, &name, &role,
	)
	if err != nil {
		return nil, err
	}

	if statusID.Valid {
		sid := models.StatusID(statusID.Int64)
		m.StatusID = &sid
	}
	if minutes.Valid {
		v := int(minutes.Int64)
		m.Minutes = &v
	}
	if authorID != nil {
		m.Author = &models.UserSummary{
			ID:       *authorID,
			Email:    email.String,
			FullName: name.String,
			Role:     models.Role(role.String),
		}
	}
	m.Attachments = []models.Attachment{}
	return m, nil
}

// Create stores a user message. A proposed status is only recorded here;
// the ticket status changes through TicketStore.UpdateStatus.
func (s *MessageStore) Create(ctx context.Context, userID uuid.UUID, input *models.CreateMessageInput) (*models.Message, error) {
	id := uuid.New()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, ticket_id, body, is_private, status_id, minutes, created_by, ref_msg_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
	`, id, input.TicketID, input.Body, input.IsPrivate, input.StatusID, input.Minutes, userID, input.RefMsgID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", mapError(err))
	}

	return s.GetByID(ctx, id)
}

// GetByID retrieves a message that has not been removed
func (s *MessageStore) GetByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, messageSelect+" WHERE m.id = $1 AND m.deleted_at IS NULL", messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	atts, err := s.attachmentsFor(ctx, []uuid.UUID{m.ID})
	if err != nil {
		return nil, err
	}
	m.Attachments = append(m.Attachments, atts[m.ID]...)
	return m, nil
}

// List returns one page of a thread, newest first, with attachments loaded
func (s *MessageStore) List(ctx context.Context, filter *models.MessageListFilter) ([]models.Message, int, error) {
	filter.SetDefaults()

	where := "m.ticket_id = $1 AND m.deleted_at IS NULL"
	if !filter.IncludePrivate {
		where += " AND m.is_private = FALSE"
	}

	var total int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages m WHERE "+where, filter.TicketID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		messageSelect+" WHERE "+where+" ORDER BY m.created_at DESC, m.id LIMIT $2 OFFSET $3",
		filter.TicketID, filter.PageSize, filter.Offset(),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	msgs := []models.Message{}
	var ids []uuid.UUID
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, *m)
		ids = append(ids, m.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(ids) > 0 {
		atts, err := s.attachmentsFor(ctx, ids)
		if err != nil {
			return nil, 0, err
		}
		for i := range msgs {
			msgs[i].Attachments = append(msgs[i].Attachments, atts[msgs[i].ID]...)
		}
	}

	return msgs, total, nil
}

func (s *MessageStore) attachmentsFor(ctx context.Context, messageIDs []uuid.UUID) (map[uuid.UUID][]models.Attachment, error) {
	ids := make([]string, len(messageIDs))
	for i, id := range messageIDs {
		ids[i] = id.String()
	}

	rows, err := s.db.QueryContext(ctx, attachmentSelect+" WHERE message_id = ANY($1::uuid[]) ORDER BY created_at", pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to load attachments: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]models.Attachment)
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		out[a.MessageID] = append(out[a.MessageID], *a)
	}
	return out, rows.Err()
}

// UpdateBody replaces the body of a message and marks it edited
func (s *MessageStore) UpdateBody(ctx context.Context, messageID uuid.UUID, body string, userID uuid.UUID) (*models.Message, error) {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var ticketID uuid.UUID
		err := tx.QueryRowContext(ctx, `
			UPDATE messages SET body = $1, edited = TRUE, updated_at = NOW()
			WHERE id = $2 AND deleted_at IS NULL
			RETURNING ticket_id
		`, body, messageID).Scan(&ticketID)
		if err != nil {
			return mapError(err)
		}
		return logEvent(ctx, tx, ticketID, &userID, models.EventMessageEdited, map[string]interface{}{
			"message_id": messageID.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, messageID)
}

// SoftDelete hides a message from the thread and withdraws its unsent mail
func (s *MessageStore) SoftDelete(ctx context.Context, messageID uuid.UUID, userID uuid.UUID) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var ticketID uuid.UUID
		err := tx.QueryRowContext(ctx, `
			UPDATE messages SET deleted_at = NOW()
			WHERE id = $1 AND deleted_at IS NULL
			RETURNING ticket_id
		`, messageID).Scan(&ticketID)
		if err != nil {
			return mapError(err)
		}
		if err := cancelForMessage(ctx, tx, messageID); err != nil {
			return err
		}
		return logEvent(ctx, tx, ticketID, &userID, models.EventMessageDeleted, map[string]interface{}{
			"message_id": messageID.String(),
		})
	})
}
