package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TicketEvent is an entry of a ticket's history
type TicketEvent struct {
	ID        int64           `db:"id" json:"id"`
	TicketID  uuid.UUID       `db:"ticket_id" json:"ticket_id"`
	UserID    *uuid.UUID      `db:"user_id" json:"user_id,omitempty"`
	Action    string          `db:"action" json:"action"`
	Changes   json.RawMessage `db:"changes" json:"changes,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// Ticket event actions
const (
	EventCreated            = "created"
	EventStatusChange       = "status_change"
	EventCategorizationEdit = "categorization_edit"
	EventResourceLinked     = "resource_linked"
	EventResourceUnlinked   = "resource_unlinked"
	EventResourceMain       = "resource_main"
	EventMessageEdited      = "message_edited"
	EventMessageDeleted     = "message_deleted"
)

// Notification is a queued outbound email
type Notification struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	UserID       *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	Email        string     `db:"email" json:"email"`
	Subject      string     `db:"subject" json:"subject"`
	BodyText     string     `db:"body_text" json:"-"`
	TicketID     *uuid.UUID `db:"ticket_id" json:"ticket_id,omitempty"`
	MessageID    *uuid.UUID `db:"message_id" json:"message_id,omitempty"`
	Status       string     `db:"status" json:"status"`
	Attempts     int        `db:"attempts" json:"attempts"`
	MaxAttempts  int        `db:"max_attempts" json:"max_attempts"`
	SentAt       *time.Time `db:"sent_at" json:"sent_at,omitempty"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	ScheduledFor time.Time  `db:"scheduled_for" json:"scheduled_for"`
}

// Notification status constants
const (
	NotificationStatusPending   = "pending"
	NotificationStatusSending   = "sending"
	NotificationStatusSent      = "sent"
	NotificationStatusFailed    = "failed"
	NotificationStatusCancelled = "cancelled"
)

// DefaultNotificationAttempts bounds delivery retries
const DefaultNotificationAttempts = 3
