package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/afterdarksys/servicedesk/internal/api/middleware"
	"github.com/afterdarksys/servicedesk/internal/models"
	"github.com/afterdarksys/servicedesk/internal/pkg/apperr"
	"github.com/afterdarksys/servicedesk/internal/pkg/logger"
	"github.com/afterdarksys/servicedesk/internal/policy"
	"github.com/afterdarksys/servicedesk/internal/render"
	"github.com/afterdarksys/servicedesk/internal/storage"
	"github.com/afterdarksys/servicedesk/internal/store"
)

// TicketRepository is the ticket persistence used by the handlers
type TicketRepository interface {
	Create(ctx context.Context, p models.Principal, input *models.CreateTicketInput) (*models.Ticket, error)
	GetByID(ctx context.Context, ticketID uuid.UUID) (*models.Ticket, error)
	List(ctx context.Context, filter *models.TicketListFilter) ([]models.Ticket, int, error)
	UpdateStatus(ctx context.Context, ticketID uuid.UUID, to models.StatusID, userID uuid.UUID) (*models.Ticket, bool, error)
	UpdateCategorization(ctx context.Context, ticketID uuid.UUID, field models.CategorizationField, valueID int, userID uuid.UUID) (*models.Ticket, error)
}

// MessageRepository is the thread persistence used by the handlers
type MessageRepository interface {
	Create(ctx context.Context, userID uuid.UUID, input *models.CreateMessageInput) (*models.Message, error)
	GetByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error)
	List(ctx context.Context, filter *models.MessageListFilter) ([]models.Message, int, error)
	UpdateBody(ctx context.Context, messageID uuid.UUID, body string, userID uuid.UUID) (*models.Message, error)
	SoftDelete(ctx context.Context, messageID uuid.UUID, userID uuid.UUID) error
}

// AttachmentRepository stores attachment metadata
type AttachmentRepository interface {
	Create(ctx context.Context, a *models.Attachment) error
	GetByPath(ctx context.Context, path string) (*models.Attachment, error)
}

// ResourceRepository stores ticket/user links
type ResourceRepository interface {
	List(ctx context.Context, ticketID uuid.UUID) ([]models.TicketResource, error)
	Link(ctx context.Context, ticketID, userID, linkedBy uuid.UUID) error
	Unlink(ctx context.Context, ticketID, userID, by uuid.UUID) error
	SetMain(ctx context.Context, ticketID, userID uuid.UUID, isMain bool, by uuid.UUID) error
}

// HourRepository stores hour appointments
type HourRepository interface {
	Create(ctx context.Context, h *models.TicketHour) error
	List(ctx context.Context, filter *models.HourListFilter) ([]models.TicketHour, error)
	Summary(ctx context.Context, filter *models.HourListFilter) (*models.HoursSummary, error)
}

// EventRepository reads ticket history
type EventRepository interface {
	ListByTicket(ctx context.Context, ticketID uuid.UUID) ([]models.TicketEvent, error)
}

// NotificationRepository queues mail about new messages
type NotificationRepository interface {
	EnqueueForTicket(ctx context.Context, ticketID, messageID, authorID uuid.UUID, staffOnly bool, subject, body string) (int, error)
}

// ProjectRepository reads projects and categorization values
type ProjectRepository interface {
	List(ctx context.Context, partnerID *uuid.UUID, activeOnly bool) ([]models.Project, error)
	Lookups(ctx context.Context, field models.CategorizationField, projectID *uuid.UUID) ([]models.Lookup, error)
}

// UserRepository reads user accounts
type UserRepository interface {
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// Checker reports whether a dependency is reachable
type Checker func(ctx context.Context) error

// Deps wires the handlers to their collaborators
type Deps struct {
	Tickets       TicketRepository
	Messages      MessageRepository
	Attachments   AttachmentRepository
	Resources     ResourceRepository
	Hours         HourRepository
	Events        EventRepository
	Notifications NotificationRepository
	Projects      ProjectRepository
	Users         UserRepository
	Files         storage.FileStore
	Policy        *policy.Enforcer
	Renderer      render.Renderer
	Logger        *zap.Logger

	MessagePageSize int
	MaxUploadBytes  int64
	BaseURL         string
	ReadyChecks     map[string]Checker
}

// Handler serves the REST API
type Handler struct {
	Deps
	now func() time.Time
}

// New creates the API handler
func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.MessagePageSize < 1 {
		d.MessagePageSize = models.MessagePageSize
	}
	if d.MaxUploadBytes < 1 {
		d.MaxUploadBytes = 25 << 20
	}
	return &Handler{Deps: d, now: time.Now}
}

// RegisterValidators adds the custom binding tags used by the request types
func RegisterValidators(v *validator.Validate) error {
	rules := map[string]validator.Func{
		"hhmm": func(fl validator.FieldLevel) bool {
			_, err := models.ParseClock(fl.Field().String())
			return err == nil
		},
		"edit_field": func(fl validator.FieldLevel) bool {
			return models.CategorizationField(fl.Field().String()).Valid()
		},
		"att_type": func(fl validator.FieldLevel) bool {
			return models.AttachmentType(fl.Field().String()).Valid()
		},
	}
	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", tag, err)
		}
	}
	return nil
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /health/ready
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, check := range h.ReadyChecks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status":    state,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// principal returns the authenticated caller; Auth always runs first
func principal(c *gin.Context) models.Principal {
	p, _ := middleware.PrincipalFrom(c)
	return p
}

// respondError renders err with the matching status and logs server faults
func (h *Handler) respondError(c *gin.Context, err error) {
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		logger.From(c.Request.Context()).Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	middleware.RespondError(c, appErr)
}

func toAppError(err error) *apperr.AppError {
	var appErr *apperr.AppError
	var verrs validator.ValidationErrors

	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.As(err, &verrs):
		return apperr.Validation(validationMessage(verrs))
	case errors.Is(err, store.ErrNotFound):
		return apperr.NotFound("resource")
	case errors.Is(err, store.ErrInvalidReference):
		return apperr.Validation(err.Error())
	case errors.Is(err, store.ErrConflict):
		return apperr.Conflict(err.Error())
	case errors.Is(err, models.ErrTicketFinalized):
		return apperr.Conflict("ticket is finalized")
	case errors.Is(err, models.ErrInvalidTransition):
		return apperr.Conflict(err.Error())
	case errors.Is(err, models.ErrUnknownStatus),
		errors.Is(err, models.ErrEmptyBody),
		errors.Is(err, models.ErrAttachmentTypeRequired),
		errors.Is(err, models.ErrEstimateRequired):
		return apperr.Validation(err.Error())
	case errors.Is(err, models.ErrPrivateFromClient),
		errors.Is(err, models.ErrNotMessageAuthor),
		errors.Is(err, models.ErrSystemMessageFixed),
		errors.Is(err, models.ErrEditWindowExpired):
		return apperr.Forbidden(err.Error())
	}
	return apperr.Internal(err)
}

func validationMessage(verrs validator.ValidationErrors) string {
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed on '%s'", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// bindJSON decodes the request body, rendering a 400 on failure
func (h *Handler) bindJSON(c *gin.Context, dst interface{}) bool {
	return h.bindWith(c, dst, c.ShouldBindJSON)
}

// bindForm decodes a form or multipart body, rendering a 400 on failure
func (h *Handler) bindForm(c *gin.Context, dst interface{}) bool {
	return h.bindWith(c, dst, c.ShouldBind)
}

func (h *Handler) bindWith(c *gin.Context, dst interface{}, bind func(interface{}) error) bool {
	if err := bind(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			h.respondError(c, err)
		} else {
			middleware.RespondError(c, apperr.Validation("invalid request body").WithDetails(err.Error()))
		}
		return false
	}
	return true
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		middleware.RespondError(c, apperr.Validation("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

func uuidQuery(c *gin.Context, name string, required bool) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		if required {
			middleware.RespondError(c, apperr.Validation(name+" is required"))
			return nil, false
		}
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		middleware.RespondError(c, apperr.Validation("invalid "+name))
		return nil, false
	}
	return &id, true
}

func intQuery(c *gin.Context, name string, def int) int {
	if v, err := strconv.Atoi(c.Query(name)); err == nil {
		return v
	}
	return def
}

func parseDecimal(raw string) (*decimal.Decimal, error) {
	raw = strings.TrimSpace(strings.ReplaceAll(raw, ",", "."))
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid decimal %q", raw)
	}
	return &d, nil
}

// loadTicket fetches a ticket the principal may view. Hidden tickets are
// reported as missing.
func (h *Handler) loadTicket(c *gin.Context, ticketID uuid.UUID) (*models.Ticket, bool) {
	t, err := h.Tickets.GetByID(c.Request.Context(), ticketID)
	if errors.Is(err, store.ErrNotFound) {
		middleware.RespondError(c, apperr.NotFound("ticket"))
		return nil, false
	}
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	if d := h.Policy.CanView(principal(c), t); !d.Allowed {
		middleware.RespondError(c, apperr.NotFound("ticket"))
		return nil, false
	}
	return t, true
}

func deny(c *gin.Context, d policy.Decision) {
	middleware.RespondError(c, apperr.Forbidden(d.Reason))
}
