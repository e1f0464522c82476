package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/afterdarksys/servicedesk/internal/api/middleware"
	"github.com/afterdarksys/servicedesk/internal/models"
	"github.com/afterdarksys/servicedesk/internal/notify"
	"github.com/afterdarksys/servicedesk/internal/pkg/apperr"
	"github.com/afterdarksys/servicedesk/internal/pkg/logger"
)

// CreateMessage handles POST /api/messages. A status_id on the message is
// only recorded; the ticket moves through PUT /api/tickets.
func (h *Handler) CreateMessage(c *gin.Context) {
	p := principal(c)

	var input models.CreateMessageInput
	if !h.bindJSON(c, &input) {
		return
	}
	if err := models.ValidateBody(input.Body); err != nil {
		h.respondError(c, err)
		return
	}
	if input.IsPrivate && p.IsClient() {
		h.respondError(c, models.ErrPrivateFromClient)
		return
	}
	if input.StatusID != nil && !models.StatusID(*input.StatusID).Valid() {
		h.respondError(c, models.ErrUnknownStatus)
		return
	}

	ticket, ok := h.loadTicket(c, input.TicketID)
	if !ok {
		return
	}
	if d := h.Policy.CanSend(p, ticket, input.IsPrivate); !d.Allowed {
		deny(c, d)
		return
	}

	msg, err := h.Messages.Create(c.Request.Context(), p.UserID, &input)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.renderBody(c, msg)
	h.notifyMessage(c, ticket, msg)

	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// ListMessages handles GET /api/messages
func (h *Handler) ListMessages(c *gin.Context) {
	p := principal(c)

	ticket, ok := h.ticketFromQuery(c)
	if !ok {
		return
	}

	hidePrivate := c.Query("hide_private") == "true"
	filter := &models.MessageListFilter{
		TicketID:       ticket.ID,
		IncludePrivate: !p.IsClient() && !hidePrivate,
		Page:           intQuery(c, "page", 1),
		PageSize:       intQuery(c, "page_size", h.MessagePageSize),
	}

	msgs, total, err := h.Messages.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	msgs = models.VisibleMessages(msgs, p, hidePrivate)
	for i := range msgs {
		h.renderBody(c, &msgs[i])
	}

	c.JSON(http.StatusOK, models.NewPage(msgs, filter.Page, filter.PageSize, total))
}

// UpdateMessage handles PATCH /api/messages/:id
func (h *Handler) UpdateMessage(c *gin.Context) {
	p := principal(c)

	msg, ok := h.loadMessage(c)
	if !ok {
		return
	}

	var input models.UpdateMessageInput
	if !h.bindJSON(c, &input) {
		return
	}
	if err := models.ValidateBody(input.Body); err != nil {
		h.respondError(c, err)
		return
	}
	if err := msg.CanEdit(p, h.now()); err != nil {
		h.respondError(c, err)
		return
	}

	updated, err := h.Messages.UpdateBody(c.Request.Context(), msg.ID, input.Body, p.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.renderBody(c, updated)

	c.JSON(http.StatusOK, gin.H{"message": updated})
}

// DeleteMessage handles DELETE /api/messages/:id
func (h *Handler) DeleteMessage(c *gin.Context) {
	p := principal(c)

	msg, ok := h.loadMessage(c)
	if !ok {
		return
	}
	if err := msg.CanDelete(p); err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.Messages.SoftDelete(c.Request.Context(), msg.ID, p.UserID); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// loadMessage fetches the :id message if its ticket and privacy allow the caller to see it
func (h *Handler) loadMessage(c *gin.Context) (*models.Message, bool) {
	id, ok := uuidParam(c, "id")
	if !ok {
		return nil, false
	}

	msg, err := h.Messages.GetByID(c.Request.Context(), id)
	if err != nil {
		if toAppError(err).Code == apperr.CodeNotFound {
			middleware.RespondError(c, apperr.NotFound("message"))
			return nil, false
		}
		h.respondError(c, err)
		return nil, false
	}
	if msg.IsPrivate && principal(c).IsClient() {
		middleware.RespondError(c, apperr.NotFound("message"))
		return nil, false
	}
	if _, ok := h.loadTicket(c, msg.TicketID); !ok {
		return nil, false
	}
	return msg, true
}

func (h *Handler) renderBody(c *gin.Context, m *models.Message) {
	if h.Renderer == nil {
		return
	}
	html, err := h.Renderer.Render(m.Body)
	if err != nil {
		logger.From(c.Request.Context()).Warn("Failed to render message body",
			zap.String("message_id", m.ID.String()), zap.Error(err))
		return
	}
	m.BodyHTML = html
}

// notifyMessage queues mail for the ticket's participants. Failures are
// logged and never fail the request.
func (h *Handler) notifyMessage(c *gin.Context, t *models.Ticket, m *models.Message) {
	if h.Notifications == nil {
		return
	}
	subject, body := notify.MessageMail(t, m, h.BaseURL)
	n, err := h.Notifications.EnqueueForTicket(c.Request.Context(), t.ID, m.ID, principal(c).UserID, m.IsPrivate, subject, body)
	if err != nil {
		logger.From(c.Request.Context()).Warn("Failed to queue message notifications",
			zap.String("ticket_id", t.ID.String()), zap.Error(err))
		return
	}
	logger.From(c.Request.Context()).Debug("Queued message notifications",
		zap.String("ticket_id", t.ID.String()), zap.Int("recipients", n))
}
