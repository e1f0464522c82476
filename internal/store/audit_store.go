package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/afterdarksys/servicedesk/internal/models"
)

// EventStore handles the ticket history
type EventStore struct {
	db *sql.DB
}

// Log records an event for a ticket
func (s *EventStore) Log(ctx context.Context, ticketID uuid.UUID, userID *uuid.UUID, action string, changes map[string]interface{}) error {
	return logEvent(ctx, s.db, ticketID, userID, action, changes)
}

// logEvent writes a history row on q so callers can record inside their transaction
func logEvent(ctx context.Context, q querier, ticketID uuid.UUID, userID *uuid.UUID, action string, changes map[string]interface{}) error {
	var changesJSON []byte
	if len(changes) > 0 {
		var err error
		changesJSON, err = json.Marshal(changes)
		if err != nil {
			return fmt.Errorf("failed to encode event changes: %w", err)
		}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO ticket_events (ticket_id, user_id, action, changes)
		VALUES ($1, $2, $3, $4)
	`, ticketID, userID, action, changesJSON)
	if err != nil {
		return fmt.Errorf("failed to log %s event: %w", action, mapError(err))
	}
	return nil
}

// ListByTicket returns a ticket's history, oldest first
func (s *EventStore) ListByTicket(ctx context.Context, ticketID uuid.UUID) ([]models.TicketEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, user_id, action, changes, created_at
		FROM ticket_events
		WHERE ticket_id = $1
		ORDER BY created_at ASC, id ASC
	`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket events: %w", err)
	}
	defer rows.Close()

	events := []models.TicketEvent{}
	for rows.Next() {
		var e models.TicketEvent
		var changesJSON []byte
		if err := rows.Scan(&e.ID, &e.TicketID, &e.UserID, &e.Action, &changesJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ticket event: %w", err)
		}
		if len(changesJSON) > 0 {
			e.Changes = json.RawMessage(changesJSON)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
