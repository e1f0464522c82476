package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/afterdarksys/servicedesk/internal/api/middleware"
	"github.com/afterdarksys/servicedesk/internal/models"
	"github.com/afterdarksys/servicedesk/internal/pkg/apperr"
	"github.com/afterdarksys/servicedesk/internal/policy"
	"github.com/afterdarksys/servicedesk/internal/store"
)

// LogHours handles POST /api/ticket-hours. Minutes are always derived from
// the reported range.
func (h *Handler) LogHours(c *gin.Context) {
	p := principal(c)

	var input models.CreateHourInput
	if !h.bindJSON(c, &input) {
		return
	}
	entry := input.Entry()
	if err := entry.Validate(); err != nil {
		middleware.RespondError(c, apperr.Validation(err.Error()))
		return
	}
	minutes, _ := entry.Minutes()
	if minutes == 0 {
		middleware.RespondError(c, apperr.Validation("appointment end must be after its start"))
		return
	}

	ticket, ok := h.loadTicket(c, input.TicketID)
	if !ok {
		return
	}
	if d := h.Policy.CanLog(p, ticket); !d.Allowed {
		deny(c, d)
		return
	}

	userID := p.UserID
	if input.UserID != nil && *input.UserID != p.UserID {
		if !p.IsAdmin() {
			deny(c, policy.Deny("only administrators log hours for other users"))
			return
		}
		userID = *input.UserID
	}

	if input.MessageID != nil {
		msg, err := h.Messages.GetByID(c.Request.Context(), *input.MessageID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && msg.TicketID != ticket.ID) {
			middleware.RespondError(c, apperr.Validation("message_id does not belong to the ticket"))
			return
		}
		if err != nil {
			h.respondError(c, err)
			return
		}
	}

	hour := &models.TicketHour{
		UserID:       userID,
		TicketID:     ticket.ID,
		MessageID:    input.MessageID,
		Minutes:      minutes,
		AppointDate:  entry.Date,
		AppointStart: entry.Start,
		AppointEnd:   entry.End,
	}
	if err := h.Hours.Create(c.Request.Context(), hour); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"hour": hour})
}

// ListHours handles GET /api/ticket-hours
func (h *Handler) ListHours(c *gin.Context) {
	p := principal(c)
	if !h.Policy.Can(p.Role, policy.ObjectHours, policy.ActionRead) {
		deny(c, policy.Deny("your role cannot read hour appointments"))
		return
	}

	filter, ok := h.hourFilter(c)
	if !ok {
		return
	}
	if filter.TicketID != nil {
		if _, ok := h.loadTicket(c, *filter.TicketID); !ok {
			return
		}
	}

	hours, err := h.Hours.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	var total int64
	for _, hr := range hours {
		total += int64(hr.Minutes)
	}

	c.JSON(http.StatusOK, gin.H{
		"hours":         hours,
		"total_minutes": total,
		"total_hours":   models.MinutesToHours(total),
	})
}

// HoursDashboard handles GET /api/dashboard/hours
func (h *Handler) HoursDashboard(c *gin.Context) {
	p := principal(c)
	if !h.Policy.Can(p.Role, policy.ObjectDashboard, policy.ActionRead) {
		deny(c, policy.Deny("your role cannot read dashboards"))
		return
	}

	filter, ok := h.hourFilter(c)
	if !ok {
		return
	}

	summary, err := h.Hours.Summary(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (h *Handler) hourFilter(c *gin.Context) (*models.HourListFilter, bool) {
	filter := &models.HourListFilter{}

	var ok bool
	if filter.TicketID, ok = uuidQuery(c, "ticket_id", false); !ok {
		return nil, false
	}
	if filter.ProjectID, ok = uuidQuery(c, "project_id", false); !ok {
		return nil, false
	}
	if filter.UserID, ok = uuidQuery(c, "user_id", false); !ok {
		return nil, false
	}
	if filter.From, ok = dateQuery(c, "from"); !ok {
		return nil, false
	}
	if filter.To, ok = dateQuery(c, "to"); !ok {
		return nil, false
	}
	return filter, true
}

func dateQuery(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	d, err := time.Parse(models.DateLayout, raw)
	if err != nil {
		middleware.RespondError(c, apperr.Validation("invalid "+name+", expected YYYY-MM-DD"))
		return nil, false
	}
	return &d, true
}
