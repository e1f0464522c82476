package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/afterdarksys/servicedesk/internal/models"
)

// AttachmentStore handles attachment metadata. File bytes live in object storage.
type AttachmentStore struct {
	db *sql.DB
}

const attachmentSelect = `
	SELECT id, message_id, ticket_id, name, path, att_type, content_type, size,
	       estimated_hours, created_by, created_at
	FROM attachments
`

func scanAttachment(row rowScanner) (*models.Attachment, error) {
	a := &models.Attachment{}
	var attType string
	var estimate decimal.NullDecimal
	err := row.Scan(
		&a.ID, &a.MessageID, &a.TicketID, &a.Name, &a.Path, &attType, &a.ContentType,
		&a.Size, &estimate, &a.CreatedBy, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.AttType = models.AttachmentType(attType)
	if estimate.Valid {
		v := estimate.Decimal
		a.EstimatedHours = &v
	}
	return a, nil
}

// Create records an uploaded file. The message must belong to the ticket.
func (s *AttachmentStore) Create(ctx context.Context, a *models.Attachment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	var estimate decimal.NullDecimal
	if a.EstimatedHours != nil {
		estimate = decimal.NullDecimal{Decimal: *a.EstimatedHours, Valid: true}
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO attachments (id, message_id, ticket_id, name, path, att_type, content_type, size, estimated_hours, created_by)
		SELECT $1, m.id, m.ticket_id, $4, $5, $6, $7, $8, $9, $10
		FROM messages m
		WHERE m.id = $2 AND m.ticket_id = $3 AND m.deleted_at IS NULL
		RETURNING created_at
	`, a.ID, a.MessageID, a.TicketID, a.Name, a.Path, string(a.AttType), a.ContentType, a.Size, estimate, a.CreatedBy,
	).Scan(&a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: message %s on ticket %s", ErrInvalidReference, a.MessageID, a.TicketID)
	}
	if err != nil {
		return fmt.Errorf("failed to create attachment: %w", mapError(err))
	}
	return nil
}

// GetByPath retrieves attachment metadata by object key
func (s *AttachmentStore) GetByPath(ctx context.Context, path string) (*models.Attachment, error) {
	a, err := scanAttachment(s.db.QueryRowContext(ctx, attachmentSelect+" WHERE path = $1", path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return a, nil
}
