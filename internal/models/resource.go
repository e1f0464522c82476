package models

import (
	"time"

	"github.com/google/uuid"
)

// TicketResource links a user working on a ticket
type TicketResource struct {
	TicketID uuid.UUID    `db:"ticket_id" json:"ticket_id"`
	UserID   uuid.UUID    `db:"user_id" json:"user_id"`
	IsMain   bool         `db:"is_main" json:"is_main"`
	LinkedBy *uuid.UUID   `db:"linked_by" json:"linked_by,omitempty"`
	LinkedAt time.Time    `db:"linked_at" json:"linked_at"`
	User     *UserSummary `db:"-" json:"user,omitempty"`
}

// MainResource returns the resource flagged as main, if any
func MainResource(resources []TicketResource) *TicketResource {
	for i := range resources {
		if resources[i].IsMain {
			return &resources[i]
		}
	}
	return nil
}

// HasResource reports whether the user is linked to the ticket
func HasResource(resources []TicketResource, userID uuid.UUID) bool {
	for _, r := range resources {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// ResourceInput identifies a ticket/user link
type ResourceInput struct {
	TicketID uuid.UUID `json:"ticket_id" binding:"required"`
	UserID   uuid.UUID `json:"user_id" binding:"required"`
}

// SetMainResourceInput toggles the main flag of a link
type SetMainResourceInput struct {
	TicketID uuid.UUID `json:"ticket_id" binding:"required"`
	UserID   uuid.UUID `json:"user_id" binding:"required"`
	IsMain   *bool     `json:"is_main" binding:"required"`
}
