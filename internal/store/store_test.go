package store

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/afterdarksys/servicedesk/internal/models"
)

func TestMapError(t *testing.T) {
	assert.Nil(t, mapError(nil))
	assert.ErrorIs(t, mapError(sql.ErrNoRows), ErrNotFound)
	assert.ErrorIs(t, mapError(fmt.Errorf("wrapped: %w", sql.ErrNoRows)), ErrNotFound)

	dup := &pq.Error{Code: "23505", Constraint: "ticket_resources_one_main_idx"}
	err := mapError(dup)
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "ticket_resources_one_main_idx")

	fk := &pq.Error{Code: "23503", Constraint: "tickets_project_id_fkey"}
	assert.ErrorIs(t, mapError(fk), ErrInvalidReference)

	other := errors.New("boom")
	assert.Equal(t, other, mapError(other))
}

func TestHourConditions(t *testing.T) {
	ticketID := uuid.New()
	userID := uuid.New()
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	where, args := hourConditions(&models.HourListFilter{
		TicketID: &ticketID,
		UserID:   &userID,
		From:     &from,
	})

	assert.Equal(t, "TRUE AND ticket_id = $1 AND user_id = $2 AND appoint_date >= $3", where)
	assert.Equal(t, []interface{}{ticketID, userID, "2026-03-01"}, args)

	where, args = hourConditions(&models.HourListFilter{})
	assert.Equal(t, "TRUE", where)
	assert.Empty(t, args)
}

func TestQualify(t *testing.T) {
	where := "TRUE AND ticket_id = $1 AND project_id = $2 AND appoint_date <= $3"
	assert.Equal(t,
		"TRUE AND h.ticket_id = $1 AND h.project_id = $2 AND h.appoint_date <= $3",
		qualify(where, "h."),
	)
}

func TestLookup(t *testing.T) {
	assert.Nil(t, lookup(sql.NullInt64{}, sql.NullString{}))
	assert.Equal(t,
		&models.Lookup{ID: 2, Name: "High"},
		lookup(sql.NullInt64{Int64: 2, Valid: true}, sql.NullString{String: "High", Valid: true}),
	)
}
