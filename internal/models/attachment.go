package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AttachmentType classifies an uploaded file
type AttachmentType string

const (
	AttachmentTypeEvidence      AttachmentType = "Evidência"
	AttachmentTypeSpecification AttachmentType = "Especificação"
	AttachmentTypeDocument      AttachmentType = "Documento"
	AttachmentTypeOther         AttachmentType = "Outro"
)

var (
	ErrAttachmentTypeRequired = errors.New("attachment type is required")
	ErrEstimateRequired       = errors.New("specification attachments require a positive hour estimate")
)

// Valid returns true if the attachment type is known
func (a AttachmentType) Valid() bool {
	switch a {
	case AttachmentTypeEvidence, AttachmentTypeSpecification, AttachmentTypeDocument, AttachmentTypeOther:
		return true
	}
	return false
}

// RequiresEstimate returns true if uploads of this type carry an hour estimate
func (a AttachmentType) RequiresEstimate() bool {
	return a == AttachmentTypeSpecification
}

// ValidateAttachment checks a staged upload before it is sent
func ValidateAttachment(attType AttachmentType, estimate *decimal.Decimal) error {
	if attType == "" {
		return ErrAttachmentTypeRequired
	}
	if !attType.Valid() {
		return fmt.Errorf("unknown attachment type %q", string(attType))
	}
	if attType.RequiresEstimate() && (estimate == nil || !estimate.IsPositive()) {
		return ErrEstimateRequired
	}
	return nil
}

// Attachment is a file owned by exactly one message
type Attachment struct {
	ID             uuid.UUID        `db:"id" json:"id"`
	MessageID      uuid.UUID        `db:"message_id" json:"message_id"`
	TicketID       uuid.UUID        `db:"ticket_id" json:"ticket_id"`
	Name           string           `db:"name" json:"name"`
	Path           string           `db:"path" json:"path"`
	AttType        AttachmentType   `db:"att_type" json:"att_type"`
	ContentType    string           `db:"content_type" json:"content_type"`
	Size           int64            `db:"size" json:"size"`
	EstimatedHours *decimal.Decimal `db:"estimated_hours" json:"estimated_hours,omitempty"`
	CreatedBy      uuid.UUID        `db:"created_by" json:"created_by"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}
