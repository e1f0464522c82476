package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/afterdarksys/servicedesk/internal/models"
	"github.com/afterdarksys/servicedesk/internal/pkg/apperr"
	"github.com/afterdarksys/servicedesk/internal/store"
)

// ListResources handles GET /api/ticket-resources
func (h *Handler) ListResources(c *gin.Context) {
	ticket, ok := h.ticketFromQuery(c)
	if !ok {
		return
	}
	h.respondResources(c, ticket)
}

// LinkResource handles POST /api/ticket-resources/link
func (h *Handler) LinkResource(c *gin.Context) {
	p := principal(c)

	var input models.ResourceInput
	if !h.bindJSON(c, &input) {
		return
	}
	ticket, ok := h.managedTicket(c, input.TicketID)
	if !ok {
		return
	}
	if _, err := h.Users.GetByID(c.Request.Context(), input.UserID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = apperr.NotFound("user")
		}
		h.respondError(c, err)
		return
	}

	if err := h.Resources.Link(c.Request.Context(), ticket.ID, input.UserID, p.UserID); err != nil {
		h.respondError(c, err)
		return
	}
	h.respondResources(c, ticket)
}

// SetMainResource handles PUT /api/ticket-resources
func (h *Handler) SetMainResource(c *gin.Context) {
	p := principal(c)

	var input models.SetMainResourceInput
	if !h.bindJSON(c, &input) {
		return
	}
	ticket, ok := h.managedTicket(c, input.TicketID)
	if !ok {
		return
	}

	if err := h.Resources.SetMain(c.Request.Context(), ticket.ID, input.UserID, *input.IsMain, p.UserID); err != nil {
		h.respondError(c, err)
		return
	}
	h.respondResources(c, ticket)
}

// UnlinkResource handles DELETE /api/ticket-resources
func (h *Handler) UnlinkResource(c *gin.Context) {
	p := principal(c)

	var input models.ResourceInput
	if !h.bindJSON(c, &input) {
		return
	}
	ticket, ok := h.managedTicket(c, input.TicketID)
	if !ok {
		return
	}

	if err := h.Resources.Unlink(c.Request.Context(), ticket.ID, input.UserID, p.UserID); err != nil {
		h.respondError(c, err)
		return
	}
	h.respondResources(c, ticket)
}

func (h *Handler) managedTicket(c *gin.Context, ticketID uuid.UUID) (*models.Ticket, bool) {
	ticket, ok := h.loadTicket(c, ticketID)
	if !ok {
		return nil, false
	}
	if d := h.Policy.CanManageResources(principal(c), ticket); !d.Allowed {
		deny(c, d)
		return nil, false
	}
	return ticket, true
}

func (h *Handler) respondResources(c *gin.Context, ticket *models.Ticket) {
	resources, err := h.Resources.List(c.Request.Context(), ticket.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"resources": resources})
}
