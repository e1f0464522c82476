package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MessagePageSize is the default number of messages per thread page
	MessagePageSize = 6
	// MessageEditWindow bounds how long an author may edit a message
	MessageEditWindow = 15 * time.Minute
)

var (
	ErrEmptyBody          = errors.New("message body is required")
	ErrPrivateFromClient  = errors.New("clients cannot post private messages")
	ErrEditWindowExpired  = errors.New("message can no longer be edited")
	ErrNotMessageAuthor   = errors.New("only the author can change this message")
	ErrSystemMessageFixed = errors.New("system messages cannot be changed")
)

// Message is a threaded note on a ticket
type Message struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	TicketID  uuid.UUID    `db:"ticket_id" json:"ticket_id"`
	Body      string       `db:"body" json:"body"`
	BodyHTML  string       `db:"-" json:"body_html,omitempty"`
	IsPrivate bool         `db:"is_private" json:"is_private"`
	StatusID  *StatusID    `db:"status_id" json:"status_id,omitempty"`
	Minutes   *int         `db:"minutes" json:"minutes,omitempty"`
	CreatedBy *uuid.UUID   `db:"created_by" json:"created_by,omitempty"`
	Author    *UserSummary `db:"-" json:"user,omitempty"`
	IsSystem  bool         `db:"is_system" json:"is_system"`
	RefMsgID  *uuid.UUID   `db:"ref_msg_id" json:"ref_msg_id,omitempty"`
	Edited    bool         `db:"edited" json:"edited"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
	DeletedAt *time.Time   `db:"deleted_at" json:"-"`

	Attachments []Attachment `db:"-" json:"attachments"`
}

// CanEdit returns nil if the principal may edit the message body at now
func (m *Message) CanEdit(p Principal, now time.Time) error {
	if m.IsSystem {
		return ErrSystemMessageFixed
	}
	if m.CreatedBy == nil || *m.CreatedBy != p.UserID {
		return ErrNotMessageAuthor
	}
	if now.Sub(m.CreatedAt) > MessageEditWindow {
		return ErrEditWindowExpired
	}
	return nil
}

// CanDelete returns nil if the principal may remove the message
func (m *Message) CanDelete(p Principal) error {
	if m.IsSystem {
		return ErrSystemMessageFixed
	}
	if p.IsAdmin() {
		return nil
	}
	if m.CreatedBy == nil || *m.CreatedBy != p.UserID {
		return ErrNotMessageAuthor
	}
	return nil
}

// ValidateBody rejects blank message bodies
func ValidateBody(body string) error {
	if strings.TrimSpace(body) == "" {
		return ErrEmptyBody
	}
	return nil
}

// VisibleMessages filters a thread for the principal. Clients never see
// private messages; staff see them unless hidePrivate is set.
func VisibleMessages(msgs []Message, p Principal, hidePrivate bool) []Message {
	showPrivate := !p.IsClient() && !hidePrivate
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.IsPrivate && !showPrivate {
			continue
		}
		out = append(out, m)
	}
	return out
}

// CreateMessageInput represents input for posting a message
type CreateMessageInput struct {
	TicketID  uuid.UUID  `json:"ticket_id" binding:"required"`
	Body      string     `json:"body" binding:"required"`
	IsPrivate bool       `json:"is_private"`
	StatusID  *int       `json:"status_id,omitempty" binding:"omitempty,min=1"`
	Minutes   *int       `json:"minutes,omitempty" binding:"omitempty,min=0"`
	RefMsgID  *uuid.UUID `json:"ref_msg_id,omitempty"`
}

// UpdateMessageInput represents input for editing a message
type UpdateMessageInput struct {
	Body string `json:"body" binding:"required"`
}

// MessageListFilter selects a page of a ticket thread
type MessageListFilter struct {
	TicketID       uuid.UUID
	IncludePrivate bool
	Page           int
	PageSize       int
}

// SetDefaults sets default values for the filter
func (f *MessageListFilter) SetDefaults() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = MessagePageSize
	}
}

// Offset returns the offset for pagination
func (f *MessageListFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}
