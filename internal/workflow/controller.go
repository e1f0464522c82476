// Package workflow coordinates the multi-call ticket actions a user performs
// from a client: posting a message with a status change, attachments and
// hours, and the resource and categorization side actions.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/afterdarksys/servicedesk/internal/client"
	"github.com/afterdarksys/servicedesk/internal/models"
	"github.com/afterdarksys/servicedesk/internal/policy"
)

// API is the part of the REST client the controller drives
type API interface {
	GetTicket(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error)
	SetStatus(ctx context.Context, ticketID uuid.UUID, status models.StatusID) (*models.Ticket, bool, error)
	EditCategorization(ctx context.Context, kind models.ProjectKind, ticketID uuid.UUID, field models.CategorizationField, valueID int) (*models.Ticket, error)

	CreateMessage(ctx context.Context, input *models.CreateMessageInput) (*models.Message, error)
	ListMessages(ctx context.Context, q client.MessageQuery) (*models.Page[models.Message], error)
	DeleteMessage(ctx context.Context, messageID uuid.UUID) error

	UploadAttachment(ctx context.Context, up client.AttachmentUpload) (*models.Attachment, error)

	ListResources(ctx context.Context, ticketID uuid.UUID) ([]models.TicketResource, error)
	LinkResource(ctx context.Context, ticketID, userID uuid.UUID) ([]models.TicketResource, error)
	UnlinkResource(ctx context.Context, ticketID, userID uuid.UUID) ([]models.TicketResource, error)
	SetMainResource(ctx context.Context, ticketID, userID uuid.UUID, isMain bool) ([]models.TicketResource, error)

	LogHours(ctx context.Context, input *models.CreateHourInput) (*models.TicketHour, error)
	ListHours(ctx context.Context, q client.HourQuery) (*client.HourList, error)
}

var _ API = (*client.Client)(nil)

// StagedAttachment is a file waiting to be uploaded with a message
type StagedAttachment struct {
	Name           string
	Content        io.Reader
	AttType        models.AttachmentType
	EstimatedHours *decimal.Decimal
}

// MessageDraft is everything a user prepares before pressing send
type MessageDraft struct {
	Body        string
	IsPrivate   bool
	StatusID    *models.StatusID
	Hours       *models.HourEntry
	Attachments []StagedAttachment
	RefMsgID    *uuid.UUID
}

// Snapshot is a consistent view of a ticket after a refresh
type Snapshot struct {
	Ticket    *models.Ticket               `json:"ticket"`
	Messages  *models.Page[models.Message] `json:"messages"`
	Resources []models.TicketResource      `json:"resources"`
	Hours     *client.HourList             `json:"hours,omitempty"`
}

// Controller runs ticket actions for one principal
type Controller struct {
	api       API
	principal models.Principal
	policy    *policy.Enforcer
	logger    *zap.Logger

	onMessageSent func(ctx context.Context, ticketID uuid.UUID)
}

// Option configures a Controller
type Option func(*Controller)

// WithEnforcer replaces the default role policies
func WithEnforcer(e *policy.Enforcer) Option {
	return func(c *Controller) {
		c.policy = e
	}
}

// WithOnMessageSent registers a callback run after a message and all its
// follow-up calls succeeded
func WithOnMessageSent(fn func(ctx context.Context, ticketID uuid.UUID)) Option {
	return func(c *Controller) {
		c.onMessageSent = fn
	}
}

// New creates a controller acting as p
func New(api API, p models.Principal, logger *zap.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		api:       api,
		principal: p,
		logger:    logger.With(zap.String("user_id", p.UserID.String()), zap.String("role", string(p.Role))),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy == nil {
		c.policy = policy.MustNewEnforcer()
	}
	return c
}

// Principal returns the acting user
func (c *Controller) Principal() models.Principal {
	return c.principal
}

// CanSend reports whether the principal may post a public message on the ticket
func (c *Controller) CanSend(t *models.Ticket) policy.Decision {
	return c.policy.CanSend(c.principal, t, false)
}

// CanLog reports whether the principal may log hours on the ticket
func (c *Controller) CanLog(t *models.Ticket) policy.Decision {
	return c.policy.CanLog(c.principal, t)
}

// validateDraft checks the draft without touching the network
func (c *Controller) validateDraft(t *models.Ticket, d *MessageDraft) error {
	verr := &ValidationError{}

	if err := models.ValidateBody(d.Body); err != nil {
		verr.add("%v", err)
	}
	if d.IsPrivate && c.principal.IsClient() {
		verr.add("%v", models.ErrPrivateFromClient)
	}
	for _, a := range d.Attachments {
		if err := models.ValidateAttachment(a.AttType, a.EstimatedHours); err != nil {
			verr.add("%s: %v", a.Name, err)
		}
	}
	if d.StatusID != nil {
		if err := models.ValidateTransition(t.Status.ID, *d.StatusID); err != nil {
			verr.add("%v", err)
		}
	}
	if d.Hours != nil {
		if err := validateEntry(*d.Hours); err != nil {
			verr.add("%v", err)
		}
	}
	return verr.orNil()
}

// PostMessage sends a message and runs its follow-up calls in order: status
// change, attachment uploads, hour appointment. Finalizing is the exception
// and runs after the uploads and hours, since a finalized ticket takes no
// more hours. Nothing runs after a failed message post. A failed status change
// removes the message again. Other failures keep what was already saved and
// are returned as *StepError.
func (c *Controller) PostMessage(ctx context.Context, t *models.Ticket, d MessageDraft) (*models.Message, error) {
	if err := c.validateDraft(t, &d); err != nil {
		return nil, err
	}
	if dec := c.policy.CanSend(c.principal, t, d.IsPrivate); !dec.Allowed {
		return nil, &DeniedError{Reason: dec.Reason}
	}
	if d.StatusID != nil && *d.StatusID != t.Status.ID {
		if dec := c.policy.CanChangeStatus(c.principal, t, *d.StatusID); !dec.Allowed {
			return nil, &DeniedError{Reason: dec.Reason}
		}
	}

	logHours := false
	minutes := 0
	if d.Hours != nil {
		if dec := c.CanLog(t); dec.Allowed {
			logHours = true
			minutes, _ = d.Hours.Minutes()
		} else {
			c.logger.Debug("Skipping hour appointment", zap.String("reason", dec.Reason))
		}
	}

	input := &models.CreateMessageInput{
		TicketID:  t.ID,
		Body:      d.Body,
		IsPrivate: d.IsPrivate,
		RefMsgID:  d.RefMsgID,
	}
	if d.StatusID != nil {
		s := int(*d.StatusID)
		input.StatusID = &s
	}
	if logHours {
		input.Minutes = &minutes
	}

	msg, err := c.api.CreateMessage(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("post message: %w", err)
	}
	committed := []Step{StepMessage}

	changeStatus := d.StatusID != nil && *d.StatusID != t.Status.ID
	// A finalized ticket refuses hours, so finalizing goes last.
	deferStatus := changeStatus && *d.StatusID == models.StatusFinalized

	if changeStatus && !deferStatus {
		if err := c.postStatus(ctx, t, msg, *d.StatusID, committed); err != nil {
			return messageIfKept(msg, err), err
		}
		committed = append(committed, StepStatus)
	}

	for _, a := range d.Attachments {
		att, err := c.api.UploadAttachment(ctx, client.AttachmentUpload{
			TicketID:       t.ID,
			MessageID:      msg.ID,
			Name:           a.Name,
			Content:        a.Content,
			AttType:        a.AttType,
			EstimatedHours: a.EstimatedHours,
		})
		if err != nil {
			return msg, &StepError{Step: StepAttachment, Committed: committed, Err: fmt.Errorf("%s: %w", a.Name, err)}
		}
		msg.Attachments = append(msg.Attachments, *att)
	}
	if len(d.Attachments) > 0 {
		committed = append(committed, StepAttachment)
	}

	if logHours {
		_, err := c.api.LogHours(ctx, &models.CreateHourInput{
			TicketID:     t.ID,
			MessageID:    &msg.ID,
			AppointDate:  d.Hours.Date,
			AppointStart: d.Hours.Start,
			AppointEnd:   d.Hours.End,
			Minutes:      &minutes,
		})
		if err != nil {
			return msg, &StepError{Step: StepHours, Committed: committed, Err: err}
		}
		committed = append(committed, StepHours)
	}

	if deferStatus {
		if err := c.postStatus(ctx, t, msg, *d.StatusID, committed); err != nil {
			return messageIfKept(msg, err), err
		}
	}

	c.logger.Info("Message posted",
		zap.String("ticket_id", t.ID.String()),
		zap.String("message_id", msg.ID.String()),
		zap.Int("attachments", len(d.Attachments)),
		zap.Bool("hours", logHours),
	)

	if c.onMessageSent != nil {
		c.onMessageSent(ctx, t.ID)
	}
	return msg, nil
}

// postStatus applies the status carried by a just-posted message. On failure
// the message is deleted again; the returned StepError reports whether that
// worked and which earlier steps stay saved.
func (c *Controller) postStatus(ctx context.Context, t *models.Ticket, msg *models.Message, status models.StatusID, committed []Step) *StepError {
	_, _, err := c.api.SetStatus(ctx, t.ID, status)
	if err == nil {
		return nil
	}
	stepErr := &StepError{Step: StepStatus, Err: err}
	if delErr := c.api.DeleteMessage(ctx, msg.ID); delErr != nil {
		c.logger.Warn("Failed to remove message after status change failed",
			zap.String("message_id", msg.ID.String()), zap.Error(delErr))
		stepErr.Committed = committed
		return stepErr
	}
	stepErr.Compensated = true
	// Attachments and hours outlive their message; report them as saved.
	for _, step := range committed {
		if step != StepMessage {
			stepErr.Committed = append(stepErr.Committed, step)
		}
	}
	return stepErr
}

// messageIfKept returns msg unless the failed step removed it.
func messageIfKept(msg *models.Message, err *StepError) *models.Message {
	if err.Compensated {
		return nil
	}
	return msg
}

// LogHours records an appointment on the ticket. userID may be nil to log
// for the principal.
func (c *Controller) LogHours(ctx context.Context, t *models.Ticket, messageID, userID *uuid.UUID, entry models.HourEntry) (*models.TicketHour, error) {
	if dec := c.CanLog(t); !dec.Allowed {
		return nil, &DeniedError{Reason: dec.Reason}
	}
	if err := validateEntry(entry); err != nil {
		return nil, &ValidationError{Problems: []string{err.Error()}}
	}
	minutes, _ := entry.Minutes()

	hour, err := c.api.LogHours(ctx, &models.CreateHourInput{
		TicketID:     t.ID,
		MessageID:    messageID,
		UserID:       userID,
		AppointDate:  entry.Date,
		AppointStart: entry.Start,
		AppointEnd:   entry.End,
		Minutes:      &minutes,
	})
	if err != nil {
		return nil, fmt.Errorf("log hours: %w", err)
	}
	return hour, nil
}

// SetStatus moves the ticket to status after checking the transition locally
func (c *Controller) SetStatus(ctx context.Context, t *models.Ticket, status models.StatusID) (*models.Ticket, error) {
	if err := models.ValidateTransition(t.Status.ID, status); err != nil {
		if models.IsTicketFinalized(t) {
			return nil, models.ErrTicketFinalized
		}
		return nil, &ValidationError{Problems: []string{err.Error()}}
	}
	if dec := c.policy.CanChangeStatus(c.principal, t, status); !dec.Allowed {
		return nil, &DeniedError{Reason: dec.Reason}
	}

	updated, changed, err := c.api.SetStatus(ctx, t.ID, status)
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	if changed {
		c.logger.Info("Ticket status changed",
			zap.String("ticket_id", t.ID.String()),
			zap.Int("from", int(t.Status.ID)),
			zap.Int("to", int(status)),
		)
	}
	return updated, nil
}

// Pause puts the ticket on hold on behalf of the requester
func (c *Controller) Pause(ctx context.Context, t *models.Ticket) (*models.Ticket, error) {
	return c.SetStatus(ctx, t, models.StatusPausedByRequester)
}

// RequestClosure finalizes the ticket on behalf of the requester
func (c *Controller) RequestClosure(ctx context.Context, t *models.Ticket) (*models.Ticket, error) {
	return c.SetStatus(ctx, t, models.StatusFinalized)
}

// LinkResource links a user and returns the current resource list
func (c *Controller) LinkResource(ctx context.Context, ticketID, userID uuid.UUID) ([]models.TicketResource, error) {
	resources, err := c.api.LinkResource(ctx, ticketID, userID)
	if err != nil {
		return nil, fmt.Errorf("link resource: %w", err)
	}
	return resources, nil
}

// UnlinkResource unlinks a user and returns the current resource list
func (c *Controller) UnlinkResource(ctx context.Context, ticketID, userID uuid.UUID) ([]models.TicketResource, error) {
	resources, err := c.api.UnlinkResource(ctx, ticketID, userID)
	if err != nil {
		return nil, fmt.Errorf("unlink resource: %w", err)
	}
	return resources, nil
}

// SetMainResource flags the main resource and returns the current resource list
func (c *Controller) SetMainResource(ctx context.Context, ticketID, userID uuid.UUID, isMain bool) ([]models.TicketResource, error) {
	resources, err := c.api.SetMainResource(ctx, ticketID, userID, isMain)
	if err != nil {
		return nil, fmt.Errorf("set main resource: %w", err)
	}
	return resources, nil
}

// EditCategorization changes category, module or priority. Finalized
// tickets are refused without a call.
func (c *Controller) EditCategorization(ctx context.Context, t *models.Ticket, field models.CategorizationField, valueID int) (*models.Ticket, error) {
	if models.IsTicketFinalized(t) {
		return nil, models.ErrTicketFinalized
	}
	if !field.Valid() {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("unknown field %q", string(field))}}
	}
	if valueID < 1 {
		return nil, &ValidationError{Problems: []string{"value id must be positive"}}
	}
	if dec := c.policy.CanEditCategorization(c.principal, t); !dec.Allowed {
		return nil, &DeniedError{Reason: dec.Reason}
	}

	updated, err := c.api.EditCategorization(ctx, t.ProjectKind, t.ID, field, valueID)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Refresh re-reads the ticket, the first thread page, resources and hours
// concurrently
func (c *Controller) Refresh(ctx context.Context, ticketID uuid.UUID) (*Snapshot, error) {
	snap := &Snapshot{}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := c.api.GetTicket(ctx, ticketID)
		snap.Ticket = t
		return err
	})
	g.Go(func() error {
		page, err := c.api.ListMessages(ctx, client.MessageQuery{TicketID: ticketID, Page: 1})
		snap.Messages = page
		return err
	})
	g.Go(func() error {
		resources, err := c.api.ListResources(ctx, ticketID)
		snap.Resources = resources
		return err
	})
	if c.policy.Can(c.principal.Role, policy.ObjectHours, policy.ActionRead) {
		g.Go(func() error {
			hours, err := c.api.ListHours(ctx, client.HourQuery{TicketID: &ticketID})
			snap.Hours = hours
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("refresh ticket: %w", err)
	}
	return snap, nil
}

// validateEntry rejects malformed and empty appointments
func validateEntry(e models.HourEntry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if m, _ := e.Minutes(); m == 0 {
		return errors.New("appointment end must be after its start")
	}
	return nil
}

// IsDenied reports whether err is a local or remote permission refusal
func IsDenied(err error) bool {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return true
	}
	var apiErr *client.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden
}
