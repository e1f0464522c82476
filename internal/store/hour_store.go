package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/afterdarksys/servicedesk/internal/models"
)

// HourStore handles hour appointments
type HourStore struct {
	db *sql.DB
}

// Create logs an hour appointment. The project is taken from the ticket.
func (s *HourStore) Create(ctx context.Context, h *models.TicketHour) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO ticket_hours (id, user_id, ticket_id, message_id, project_id, minutes, appoint_date, appoint_start, appoint_end)
		SELECT $1, $2, t.id, $4, t.project_id, $5, $6::date, $7::time, $8::time
		FROM tickets t
		WHERE t.id = $3
		RETURNING project_id, created_at
	`, h.ID, h.UserID, h.TicketID, h.MessageID, h.Minutes, h.AppointDate, h.AppointStart, h.AppointEnd,
	).Scan(&h.ProjectID, &h.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to log hours: %w", mapError(err))
	}
	return nil
}

// List returns hour appointments matching the filter, newest first
func (s *HourStore) List(ctx context.Context, filter *models.HourListFilter) ([]models.TicketHour, error) {
	where, args := hourConditions(filter)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, user_id, ticket_id, message_id, project_id, minutes,
		       to_char(appoint_date, 'YYYY-MM-DD'), to_char(appoint_start, 'HH24:MI'),
		       to_char(appoint_end, 'HH24:MI'), created_at
		FROM ticket_hours
		WHERE %s
		ORDER BY appoint_date DESC, appoint_start DESC
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list hours: %w", err)
	}
	defer rows.Close()

	hours := []models.TicketHour{}
	for rows.Next() {
		var h models.TicketHour
		err := rows.Scan(&h.ID, &h.UserID, &h.TicketID, &h.MessageID, &h.ProjectID, &h.Minutes,
			&h.AppointDate, &h.AppointStart, &h.AppointEnd, &h.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hours: %w", err)
		}
		hours = append(hours, h)
	}
	return hours, rows.Err()
}

// Summary aggregates logged minutes per ticket and per user
func (s *HourStore) Summary(ctx context.Context, filter *models.HourListFilter) (*models.HoursSummary, error) {
	where, args := hourConditions(filter)

	summary := &models.HoursSummary{
		ProjectID: filter.ProjectID,
		ByTicket:  []models.HoursTotal{},
		ByUser:    []models.HoursTotal{},
	}

	byTicket, err := s.totals(ctx, fmt.Sprintf(`
		SELECT h.ticket_id, t.external_id, SUM(h.minutes)
		FROM ticket_hours h
		JOIN tickets t ON t.id = h.ticket_id
		WHERE %s
		GROUP BY h.ticket_id, t.external_id
		ORDER BY t.external_id
	`, qualify(where, "h.")), args)
	if err != nil {
		return nil, err
	}
	summary.ByTicket = append(summary.ByTicket, byTicket...)

	byUser, err := s.totals(ctx, fmt.Sprintf(`
		SELECT h.user_id, u.full_name, SUM(h.minutes)
		FROM ticket_hours h
		JOIN users u ON u.id = h.user_id
		WHERE %s
		GROUP BY h.user_id, u.full_name
		ORDER BY u.full_name
	`, qualify(where, "h.")), args)
	if err != nil {
		return nil, err
	}
	summary.ByUser = append(summary.ByUser, byUser...)

	for _, t := range summary.ByTicket {
		summary.TotalMinutes += t.Minutes
	}
	summary.TotalHours = models.MinutesToHours(summary.TotalMinutes)
	return summary, nil
}

func (s *HourStore) totals(ctx context.Context, query string, args []interface{}) ([]models.HoursTotal, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate hours: %w", err)
	}
	defer rows.Close()

	var out []models.HoursTotal
	for rows.Next() {
		var t models.HoursTotal
		if err := rows.Scan(&t.ID, &t.Label, &t.Minutes); err != nil {
			return nil, fmt.Errorf("failed to scan hour total: %w", err)
		}
		t.Hours = models.MinutesToHours(t.Minutes)
		out = append(out, t)
	}
	return out, rows.Err()
}

func hourConditions(filter *models.HourListFilter) (string, []interface{}) {
	conditions := []string{"TRUE"}
	var args []interface{}
	argNum := 1

	if filter.TicketID != nil {
		conditions = append(conditions, fmt.Sprintf("ticket_id = $%d", argNum))
		args = append(args, *filter.TicketID)
		argNum++
	}
	if filter.ProjectID != nil {
		conditions = append(conditions, fmt.Sprintf("project_id = $%d", argNum))
		args = append(args, *filter.ProjectID)
		argNum++
	}
	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argNum))
		args = append(args, *filter.UserID)
		argNum++
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("appoint_date >= $%d", argNum))
		args = append(args, filter.From.Format(models.DateLayout))
		argNum++
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("appoint_date <= $%d", argNum))
		args = append(args, filter.To.Format(models.DateLayout))
	}

	return strings.Join(conditions, " AND "), args
}

// qualify prefixes the hour columns of a condition list with a table alias
func qualify(where, alias string) string {
	r := strings.NewReplacer(
		"ticket_id =", alias+"ticket_id =",
		"project_id =", alias+"project_id =",
		"user_id =", alias+"user_id =",
		"appoint_date", alias+"appoint_date",
	)
	return r.Replace(where)
}
