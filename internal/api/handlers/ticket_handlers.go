package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/afterdarksys/servicedesk/internal/api/middleware"
	"github.com/afterdarksys/servicedesk/internal/models"
	"github.com/afterdarksys/servicedesk/internal/pkg/apperr"
	"github.com/afterdarksys/servicedesk/internal/policy"
	"github.com/afterdarksys/servicedesk/internal/store"
)

// CreateTicket handles POST /api/tickets
func (h *Handler) CreateTicket(c *gin.Context) {
	p := principal(c)
	if !h.Policy.Can(p.Role, policy.ObjectTicket, policy.ActionCreate) {
		deny(c, policy.Deny("your role cannot open tickets"))
		return
	}

	var input models.CreateTicketInput
	if !h.bindJSON(c, &input) {
		return
	}
	if p.IsClient() {
		input.IsPrivate = false
	}

	ticket, err := h.Tickets.Create(c.Request.Context(), p, &input)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"ticket": ticket})
}

// ListTickets handles GET /api/tickets
func (h *Handler) ListTickets(c *gin.Context) {
	p := principal(c)

	filter := &models.TicketListFilter{
		Search:    c.Query("search"),
		Page:      intQuery(c, "page", 1),
		PerPage:   intQuery(c, "per_page", 20),
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if raw := c.Query("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || !models.StatusID(id).Valid() {
				middleware.RespondError(c, apperr.Validation(fmt.Sprintf("invalid status %q", part)))
				return
			}
			filter.StatusIDs = append(filter.StatusIDs, id)
		}
	}

	var ok bool
	if filter.ProjectID, ok = uuidQuery(c, "project_id", false); !ok {
		return
	}
	if filter.PartnerID, ok = uuidQuery(c, "partner_id", false); !ok {
		return
	}
	if c.Query("mine") == "true" {
		filter.ResourceID = &p.UserID
	}

	if p.IsClient() {
		filter.PartnerID = p.PartnerID
		filter.IncludePrivate = false
	} else {
		filter.IncludePrivate = true
	}

	tickets, total, err := h.Tickets.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.NewPage(tickets, filter.Page, filter.PerPage, total))
}

// GetTicket handles GET /api/tickets/:id
func (h *Handler) GetTicket(c *gin.Context) {
	ticketID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	var ticket *models.Ticket
	var resources []models.TicketResource

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.Go(func() error {
		var err error
		ticket, err = h.Tickets.GetByID(ctx, ticketID)
		return err
	})
	g.Go(func() error {
		var err error
		resources, err = h.Resources.List(ctx, ticketID)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			middleware.RespondError(c, apperr.NotFound("ticket"))
			return
		}
		h.respondError(c, err)
		return
	}

	if d := h.Policy.CanView(principal(c), ticket); !d.Allowed {
		middleware.RespondError(c, apperr.NotFound("ticket"))
		return
	}

	ticket.Resources = resources
	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

// GetTicketHistory handles GET /api/tickets/:id/history
func (h *Handler) GetTicketHistory(c *gin.Context) {
	ticketID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	if _, ok := h.loadTicket(c, ticketID); !ok {
		return
	}

	events, err := h.Events.ListByTicket(c.Request.Context(), ticketID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": events})
}

// UpdateTicketStatus handles PUT /api/tickets
func (h *Handler) UpdateTicketStatus(c *gin.Context) {
	p := principal(c)

	var input models.UpdateStatusInput
	if !h.bindJSON(c, &input) {
		return
	}

	ticket, ok := h.loadTicket(c, input.TicketID)
	if !ok {
		return
	}

	to := models.StatusID(input.StatusID)
	if err := models.ValidateTransition(ticket.Status.ID, to); err != nil {
		if models.IsTicketFinalized(ticket) && to != models.StatusFinalized {
			h.respondError(c, models.ErrTicketFinalized)
			return
		}
		h.respondError(c, err)
		return
	}
	if d := h.Policy.CanChangeStatus(p, ticket, to); !d.Allowed {
		deny(c, d)
		return
	}

	updated, changed, err := h.Tickets.UpdateStatus(c.Request.Context(), ticket.ID, to, p.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ticket": updated, "changed": changed})
}

// EditCategorization returns the handler for PATCH /api/<segment>/tickets/:id.
// Each project kind has its own route and rejects tickets of the other kind.
func (h *Handler) EditCategorization(kind models.ProjectKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principal(c)

		ticketID, ok := uuidParam(c, "id")
		if !ok {
			return
		}

		var input models.EditCategorizationInput
		if !h.bindJSON(c, &input) {
			return
		}

		ticket, ok := h.loadTicket(c, ticketID)
		if !ok {
			return
		}
		if ticket.ProjectKind != kind {
			middleware.RespondError(c, apperr.Validation(fmt.Sprintf(
				"ticket belongs to a %s project, use /api/%s/tickets", ticket.ProjectKind, ticket.ProjectKind.RouteSegment())))
			return
		}
		if err := ticket.CanEditCategorization(); err != nil {
			h.respondError(c, err)
			return
		}
		if d := h.Policy.CanEditCategorization(p, ticket); !d.Allowed {
			deny(c, d)
			return
		}

		updated, err := h.Tickets.UpdateCategorization(c.Request.Context(), ticket.ID, input.Field, input.ValueID, p.UserID)
		if err != nil {
			h.respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"ticket": updated})
	}
}

// ticketFromQuery reads the ticket_id query parameter and loads the ticket
func (h *Handler) ticketFromQuery(c *gin.Context) (*models.Ticket, bool) {
	id, ok := uuidQuery(c, "ticket_id", true)
	if !ok {
		return nil, false
	}
	return h.loadTicket(c, *id)
}
