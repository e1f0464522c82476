package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/afterdarksys/servicedesk/internal/models"
)

// TicketStore handles ticket database operations
type TicketStore struct {
	db *sql.DB
}

const ticketSelect = `
	SELECT
		t.id, t.external_id, t.title, t.description,
		t.status_id, s.name, s.color,
		t.priority_id, pr.name, t.category_id, c.name, t.module_id, m.name,
		t.project_id, p.kind, t.partner_id, t.created_by, t.created_at, t.updated_at,
		t.planned_end_date, t.actual_end_date, t.is_closed, t.is_private,
		t.ref_ticket_id, rt.external_id, t.version
	FROM tickets t
	JOIN statuses s ON s.id = t.status_id
	JOIN projects p ON p.id = t.project_id
	LEFT JOIN priorities pr ON pr.id = t.priority_id
	LEFT JOIN categories c ON c.id = t.category_id
	LEFT JOIN modules m ON m.id = t.module_id
	LEFT JOIN tickets rt ON rt.id = t.ref_ticket_id
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTicket(row rowScanner) (*models.Ticket, error) {
	t := &models.Ticket{}
	var statusID int
	var priorityID, categoryID, moduleID sql.NullInt64
	var priorityName, categoryName, moduleName sql.NullString
	var kind string

	err := row.Scan(
		&t.ID, &t.ExternalID, &t.Title, &t.Description,
		&statusID, &t.Status.Name, &t.Status.Color,
		&priorityID, &priorityName, &categoryID, &categoryName, &moduleID, &moduleName,
		&t.ProjectID, &kind, &t.PartnerID, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt,
		&t.PlannedEndDate, &t.ActualEndDate, &t.IsClosed, &t.IsPrivate,
		&t.RefTicketID, &t.RefExternalID, &t.Version,
	)
	if err != nil {
		return nil, err
	}

	t.Status.ID = models.StatusID(statusID)
	t.ProjectKind = models.ProjectKind(kind)
	t.Priority = lookup(priorityID, priorityName)
	t.Category = lookup(categoryID, categoryName)
	t.Module = lookup(moduleID, moduleName)
	return t, nil
}

func lookup(id sql.NullInt64, name sql.NullString) *models.Lookup {
	if !id.Valid {
		return nil
	}
	return &models.Lookup{ID: int(id.Int64), Name: name.String}
}

// Create creates a ticket together with its opening system message
func (s *TicketStore) Create(ctx context.Context, p models.Principal, input *models.CreateTicketInput) (*models.Ticket, error) {
	id := uuid.New()
	now := time.Now().UTC()

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var kind string
		var partnerID *uuid.UUID
		err := tx.QueryRowContext(ctx,
			"SELECT kind, partner_id FROM projects WHERE id = $1 AND is_active",
			input.ProjectID,
		).Scan(&kind, &partnerID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: project %s", ErrInvalidReference, input.ProjectID)
		}
		if err != nil {
			return fmt.Errorf("failed to get project: %w", err)
		}

		if p.IsClient() {
			if partnerID == nil || p.PartnerID == nil || *partnerID != *p.PartnerID {
				return fmt.Errorf("%w: project %s", ErrInvalidReference, input.ProjectID)
			}
		}

		var seq int64
		if err := tx.QueryRowContext(ctx, "SELECT nextval('ticket_external_seq')").Scan(&seq); err != nil {
			return fmt.Errorf("failed to generate ticket number: %w", err)
		}
		externalID := models.FormatExternalID(models.ProjectKind(kind), now.Year(), seq)

		_, err = tx.ExecContext(ctx, `
			INSERT INTO tickets (
				id, external_id, title, description, status_id, priority_id,
				category_id, module_id, project_id, partner_id, created_by,
				created_at, updated_at, planned_end_date, is_private, ref_ticket_id
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12, $13, $14, $15)
		`,
			id, externalID, input.Title, input.Description, int(models.StatusOpen),
			input.PriorityID, input.CategoryID, input.ModuleID, input.ProjectID,
			partnerID, p.UserID, now, input.PlannedEndDate, input.IsPrivate, input.RefTicketID,
		)
		if err != nil {
			return fmt.Errorf("failed to create ticket: %w", mapError(err))
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO messages (id, ticket_id, body, is_private, status_id, created_by, is_system, created_at, updated_at)
			VALUES ($1, $2, $3, FALSE, $4, $5, TRUE, $6, $6)
		`, uuid.New(), id, openingMessage(input), int(models.StatusOpen), p.UserID, now)
		if err != nil {
			return fmt.Errorf("failed to create opening message: %w", mapError(err))
		}

		return logEvent(ctx, tx, id, &p.UserID, models.EventCreated, map[string]interface{}{
			"external_id": externalID,
			"status_id":   int(models.StatusOpen),
		})
	})
	if err != nil {
		return nil, err
	}

	return s.GetByID(ctx, id)
}

func openingMessage(input *models.CreateTicketInput) string {
	if strings.TrimSpace(input.Description) != "" {
		return input.Description
	}
	return "Ticket opened: " + input.Title
}

// GetByID retrieves a ticket by ID
func (s *TicketStore) GetByID(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error) {
	return getTicket(ctx, s.db, ticketID)
}

func getTicket(ctx context.Context, q querier, ticketID uuid.UUID) (*models.Ticket, error) {
	t, err := scanTicket(q.QueryRowContext(ctx, ticketSelect+" WHERE t.id = $1", ticketID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return t, nil
}

// GetByExternalID retrieves a ticket by its display id
func (s *TicketStore) GetByExternalID(ctx context.Context, externalID string) (*models.Ticket, error) {
	t, err := scanTicket(s.db.QueryRowContext(ctx, ticketSelect+" WHERE t.external_id = $1", strings.ToUpper(externalID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return t, nil
}

// List retrieves tickets with filtering
func (s *TicketStore) List(ctx context.Context, filter *models.TicketListFilter) ([]models.Ticket, int, error) {
	filter.SetDefaults()

	conditions := []string{"TRUE"}
	var args []interface{}
	argNum := 1

	if len(filter.StatusIDs) > 0 {
		ids := make([]int64, len(filter.StatusIDs))
		for i, id := range filter.StatusIDs {
			ids[i] = int64(id)
		}
		conditions = append(conditions, fmt.Sprintf("t.status_id = ANY($%d)", argNum))
		args = append(args, pq.Array(ids))
		argNum++
	}

	if filter.ProjectID != nil {
		conditions = append(conditions, fmt.Sprintf("t.project_id = $%d", argNum))
		args = append(args, *filter.ProjectID)
		argNum++
	}

	if filter.PartnerID != nil {
		conditions = append(conditions, fmt.Sprintf("t.partner_id = $%d", argNum))
		args = append(args, *filter.PartnerID)
		argNum++
	}

	if filter.CreatedBy != nil {
		conditions = append(conditions, fmt.Sprintf("t.created_by = $%d", argNum))
		args = append(args, *filter.CreatedBy)
		argNum++
	}

	if filter.ResourceID != nil {
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM ticket_resources r WHERE r.ticket_id = t.id AND r.user_id = $%d)", argNum))
		args = append(args, *filter.ResourceID)
		argNum++
	}

	if !filter.IncludePrivate {
		conditions = append(conditions, "t.is_private = FALSE")
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(t.title ILIKE $%d OR t.description ILIKE $%d OR t.external_id ILIKE $%d)", argNum, argNum, argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	whereClause := strings.Join(conditions, " AND ")

	var total int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM tickets t WHERE %s", whereClause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tickets: %w", err)
	}

	validSortFields := map[string]string{
		"created_at":  "t.created_at",
		"updated_at":  "t.updated_at",
		"external_id": "t.external_id",
		"title":       "t.title",
		"status":      "t.status_id",
	}
	sortBy, ok := validSortFields[filter.SortBy]
	if !ok {
		sortBy = "t.created_at"
	}

	sortOrder := "DESC"
	if filter.SortOrder == "asc" {
		sortOrder = "ASC"
	}

	query := fmt.Sprintf("%s WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d",
		ticketSelect, whereClause, sortBy, sortOrder, argNum, argNum+1)
	args = append(args, filter.PerPage, filter.Offset())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	tickets := []models.Ticket{}
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, *t)
	}

	return tickets, total, rows.Err()
}

// UpdateStatus moves a ticket to a new status under a row lock. It returns
// the updated ticket and whether anything changed.
func (s *TicketStore) UpdateStatus(ctx context.Context, ticketID uuid.UUID, to models.StatusID, userID uuid.UUID) (*models.Ticket, bool, error) {
	var changed bool

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := lockTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}

		from := t.Status.ID
		changed, err = t.ApplyStatus(to, time.Now().UTC())
		if err != nil || !changed {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE tickets
			SET status_id = $1, is_closed = $2, actual_end_date = COALESCE($3, actual_end_date),
			    version = version + 1, updated_at = $4
			WHERE id = $5
		`, int(t.Status.ID), t.IsClosed, t.ActualEndDate, t.UpdatedAt, ticketID)
		if err != nil {
			return fmt.Errorf("failed to update ticket status: %w", err)
		}

		return logEvent(ctx, tx, ticketID, &userID, models.EventStatusChange, map[string]interface{}{
			"old_status": int(from),
			"new_status": int(to),
		})
	})
	if err != nil {
		return nil, false, err
	}

	t, err := s.GetByID(ctx, ticketID)
	return t, changed, err
}

// lockTicket reads the mutable state of a ticket with FOR UPDATE
func lockTicket(ctx context.Context, tx *sql.Tx, ticketID uuid.UUID) (*models.Ticket, error) {
	t := &models.Ticket{ID: ticketID}
	var statusID int
	var kind string
	err := tx.QueryRowContext(ctx, `
		SELECT t.status_id, s.name, t.project_id, p.kind, t.is_closed, t.version
		FROM tickets t
		JOIN statuses s ON s.id = t.status_id
		JOIN projects p ON p.id = t.project_id
		WHERE t.id = $1
		FOR UPDATE OF t
	`, ticketID).Scan(&statusID, &t.Status.Name, &t.ProjectID, &kind, &t.IsClosed, &t.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock ticket: %w", err)
	}
	t.Status.ID = models.StatusID(statusID)
	t.ProjectKind = models.ProjectKind(kind)
	return t, nil
}

// UpdateCategorization changes the category, module or priority of an open ticket
func (s *TicketStore) UpdateCategorization(ctx context.Context, ticketID uuid.UUID, field models.CategorizationField, valueID int, userID uuid.UUID) (*models.Ticket, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("unknown field %q", string(field))
	}

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := lockTicket(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if err := t.CanEditCategorization(); err != nil {
			return err
		}

		var exists bool
		if field == models.FieldModule {
			err = tx.QueryRowContext(ctx,
				"SELECT EXISTS (SELECT 1 FROM modules WHERE id = $1 AND (project_id IS NULL OR project_id = $2))",
				valueID, t.ProjectID,
			).Scan(&exists)
		} else {
			err = tx.QueryRowContext(ctx,
				fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)", field.LookupTable()),
				valueID,
			).Scan(&exists)
		}
		if err != nil {
			return fmt.Errorf("failed to check %s: %w", field, err)
		}
		if !exists {
			return fmt.Errorf("%w: %s %d", ErrInvalidReference, field, valueID)
		}

		var old sql.NullInt64
		err = tx.QueryRowContext(ctx,
			fmt.Sprintf("SELECT %s FROM tickets WHERE id = $1", field.Column()), ticketID,
		).Scan(&old)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", field, err)
		}
		if old.Valid && int(old.Int64) == valueID {
			return nil
		}

		_, err = tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE tickets SET %s = $1, version = version + 1, updated_at = NOW() WHERE id = $2", field.Column()),
			valueID, ticketID,
		)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", field, mapError(err))
		}

		changes := map[string]interface{}{"field": string(field), "new": valueID}
		if old.Valid {
			changes["old"] = old.Int64
		}
		return logEvent(ctx, tx, ticketID, &userID, models.EventCategorizationEdit, changes)
	})
	if err != nil {
		return nil, err
	}

	return s.GetByID(ctx, ticketID)
}
