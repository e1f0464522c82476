package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrTicketFinalized = errors.New("ticket is finalized")

// Ticket represents a support or project ticket
type Ticket struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	ExternalID     string      `db:"external_id" json:"external_id"`
	Title          string      `db:"title" json:"title"`
	Description    string      `db:"description" json:"description"`
	Status         Status      `db:"-" json:"status"`
	Priority       *Lookup     `db:"-" json:"priority,omitempty"`
	Category       *Lookup     `db:"-" json:"category,omitempty"`
	Module         *Lookup     `db:"-" json:"module,omitempty"`
	ProjectID      uuid.UUID   `db:"project_id" json:"project_id"`
	ProjectKind    ProjectKind `db:"-" json:"project_kind"`
	PartnerID      *uuid.UUID  `db:"partner_id" json:"partner_id,omitempty"`
	CreatedBy      uuid.UUID   `db:"created_by" json:"created_by"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
	PlannedEndDate *time.Time  `db:"planned_end_date" json:"planned_end_date,omitempty"`
	ActualEndDate  *time.Time  `db:"actual_end_date" json:"actual_end_date,omitempty"`
	IsClosed       bool        `db:"is_closed" json:"is_closed"`
	IsPrivate      bool        `db:"is_private" json:"is_private"`
	RefTicketID    *uuid.UUID  `db:"ref_ticket_id" json:"ref_ticket_id,omitempty"`
	RefExternalID  *string     `db:"ref_external_id" json:"ref_external_id,omitempty"`
	Version        int         `db:"version" json:"version"`

	// Relationships (populated on detail reads)
	Resources []TicketResource `db:"-" json:"resources,omitempty"`
}

// IsTicketFinalized reports whether the ticket reached its terminal status.
// Older records may only carry the status name, so both are checked.
func IsTicketFinalized(t *Ticket) bool {
	if t == nil {
		return false
	}
	return t.Status.ID == StatusFinalized || IsFinalizedName(t.Status.Name)
}

// IsFinalized returns true if the ticket is finalized
func (t *Ticket) IsFinalized() bool {
	return IsTicketFinalized(t)
}

// CanEditCategorization returns nil if category, module and priority may change
func (t *Ticket) CanEditCategorization() error {
	if t.IsFinalized() {
		return ErrTicketFinalized
	}
	return nil
}

// ApplyStatus moves the ticket to the given status, enforcing the transition
// table. Finalizing closes the ticket and stamps the actual end date.
// It returns false when the status was already current.
func (t *Ticket) ApplyStatus(to StatusID, now time.Time) (bool, error) {
	from := t.Status.ID
	if IsFinalizedName(t.Status.Name) {
		from = StatusFinalized
	}
	if err := ValidateTransition(from, to); err != nil {
		return false, err
	}
	if from == to {
		return false, nil
	}

	t.Status = to.Info()
	if to == StatusFinalized {
		t.IsClosed = true
		end := now
		t.ActualEndDate = &end
	}
	t.UpdatedAt = now
	t.Version++
	return true, nil
}

// FormatExternalID builds the display id for a ticket
func FormatExternalID(kind ProjectKind, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%05d", kind.ExternalPrefix(), year, seq)
}

// Project is the contract or build project a ticket belongs to
type Project struct {
	ID        uuid.UUID   `db:"id" json:"id"`
	Name      string      `db:"name" json:"name"`
	Kind      ProjectKind `db:"kind" json:"kind"`
	PartnerID *uuid.UUID  `db:"partner_id" json:"partner_id,omitempty"`
	IsActive  bool        `db:"is_active" json:"is_active"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
}

// CreateTicketInput represents input for creating a ticket
type CreateTicketInput struct {
	Title          string     `json:"title" binding:"required,min=3,max=300"`
	Description    string     `json:"description" binding:"required"`
	ProjectID      uuid.UUID  `json:"project_id" binding:"required"`
	PriorityID     *int       `json:"priority_id,omitempty" binding:"omitempty,min=1"`
	CategoryID     *int       `json:"category_id,omitempty" binding:"omitempty,min=1"`
	ModuleID       *int       `json:"module_id,omitempty" binding:"omitempty,min=1"`
	PlannedEndDate *time.Time `json:"planned_end_date,omitempty"`
	IsPrivate      bool       `json:"is_private"`
	RefTicketID    *uuid.UUID `json:"ref_ticket_id,omitempty"`
}

// UpdateStatusInput is the body of a status change
type UpdateStatusInput struct {
	TicketID uuid.UUID `json:"ticket_id" binding:"required"`
	StatusID int       `json:"status_id" binding:"required,min=1"`
}

// EditCategorizationInput is the body of a category, module or priority edit
type EditCategorizationInput struct {
	Field   CategorizationField `json:"field" binding:"required,edit_field"`
	ValueID int                 `json:"value_id" binding:"required,min=1"`
}

// TicketListFilter represents filters for listing tickets
type TicketListFilter struct {
	StatusIDs []int      `json:"status_ids,omitempty"`
	ProjectID *uuid.UUID `json:"project_id,omitempty"`
	PartnerID *uuid.UUID `json:"partner_id,omitempty"`
	CreatedBy *uuid.UUID `json:"created_by,omitempty"`
	// ResourceID limits results to tickets the user is linked to
	ResourceID     *uuid.UUID `json:"resource_id,omitempty"`
	IncludePrivate bool       `json:"include_private"`
	Search         string     `json:"search,omitempty"`
	Page           int        `json:"page"`
	PerPage        int        `json:"per_page"`
	SortBy         string     `json:"sort_by"`
	SortOrder      string     `json:"sort_order"`
}

// SetDefaults sets default values for the filter
func (f *TicketListFilter) SetDefaults() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 || f.PerPage > 100 {
		f.PerPage = 20
	}
	if f.SortBy == "" {
		f.SortBy = "created_at"
	}
	if f.SortOrder == "" {
		f.SortOrder = "desc"
	}
}

// Offset returns the offset for pagination
func (f *TicketListFilter) Offset() int {
	return (f.Page - 1) * f.PerPage
}
