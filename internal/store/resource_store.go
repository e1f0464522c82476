package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/afterdarksys/servicedesk/internal/models"
)

// ResourceStore handles ticket/user links
type ResourceStore struct {
	db *sql.DB
}

// List returns the users linked to a ticket, main resource first
func (s *ResourceStore) List(ctx context.Context, ticketID uuid.UUID) ([]models.TicketResource, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.ticket_id, r.user_id, r.is_main, r.linked_by, r.linked_at,
		       u.email, u.full_name, u.role
		FROM ticket_resources r
		JOIN users u ON u.id = r.user_id
		WHERE r.ticket_id = $1
		ORDER BY r.is_main DESC, u.full_name
	`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	resources := []models.TicketResource{}
	for rows.Next() {
		var r models.TicketResource
		var u models.UserSummary
		var role string
		if err := rows.Scan(&r.TicketID, &r.UserID, &r.IsMain, &r.LinkedBy, &r.LinkedAt, &u.Email, &u.FullName, &role); err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		u.ID = r.UserID
		u.Role = models.Role(role)
		r.User = &u
		resources = append(resources, r)
	}
	return resources, rows.Err()
}

// Link attaches a user to a ticket. Linking twice is a no-op.
func (s *ResourceStore) Link(ctx context.Context, ticketID, userID, linkedBy uuid.UUID) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO ticket_resources (ticket_id, user_id, linked_by)
			VALUES ($1, $2, $3)
			ON CONFLICT (ticket_id, user_id) DO NOTHING
		`, ticketID, userID, linkedBy)
		if err != nil {
			return fmt.Errorf("failed to link resource: %w", mapError(err))
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		return logEvent(ctx, tx, ticketID, &linkedBy, models.EventResourceLinked, map[string]interface{}{
			"user_id": userID.String(),
		})
	})
}

// Unlink removes a user from a ticket
func (s *ResourceStore) Unlink(ctx context.Context, ticketID, userID, by uuid.UUID) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"DELETE FROM ticket_resources WHERE ticket_id = $1 AND user_id = $2",
			ticketID, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to unlink resource: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return logEvent(ctx, tx, ticketID, &by, models.EventResourceUnlinked, map[string]interface{}{
			"user_id": userID.String(),
		})
	})
}

// SetMain flags or unflags a linked user as the main resource. Flagging one
// user clears the flag on every other resource of the ticket.
func (s *ResourceStore) SetMain(ctx context.Context, ticketID, userID uuid.UUID, isMain bool, by uuid.UUID) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var current bool
		err := tx.QueryRowContext(ctx,
			"SELECT is_main FROM ticket_resources WHERE ticket_id = $1 AND user_id = $2 FOR UPDATE",
			ticketID, userID,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get resource: %w", err)
		}
		if current == isMain {
			return nil
		}

		if isMain {
			_, err = tx.ExecContext(ctx,
				"UPDATE ticket_resources SET is_main = FALSE WHERE ticket_id = $1 AND user_id <> $2 AND is_main",
				ticketID, userID,
			)
			if err != nil {
				return fmt.Errorf("failed to clear main resource: %w", err)
			}
		}

		_, err = tx.ExecContext(ctx,
			"UPDATE ticket_resources SET is_main = $1 WHERE ticket_id = $2 AND user_id = $3",
			isMain, ticketID, userID,
		)
		if err != nil {
			return fmt.Errorf("failed to set main resource: %w", mapError(err))
		}

		return logEvent(ctx, tx, ticketID, &by, models.EventResourceMain, map[string]interface{}{
			"user_id": userID.String(),
			"is_main": isMain,
		})
	})
}
