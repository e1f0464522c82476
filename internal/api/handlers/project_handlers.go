package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/afterdarksys/servicedesk/internal/api/middleware"
	"github.com/afterdarksys/servicedesk/internal/models"
	"github.com/afterdarksys/servicedesk/internal/pkg/apperr"
)

// ListProjects handles GET /api/projects. Clients only see their partner's
// active projects.
func (h *Handler) ListProjects(c *gin.Context) {
	p := principal(c)

	partnerID := p.PartnerID
	activeOnly := c.Query("all") != "true"
	if p.IsClient() {
		if partnerID == nil {
			c.JSON(http.StatusOK, gin.H{"projects": []models.Project{}})
			return
		}
		activeOnly = true
	} else {
		id, ok := uuidQuery(c, "partner_id", false)
		if !ok {
			return
		}
		partnerID = id
	}

	projects, err := h.Projects.List(c.Request.Context(), partnerID, activeOnly)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// ListLookups handles GET /api/lookups/:field, the selectable values of a
// categorization field
func (h *Handler) ListLookups(c *gin.Context) {
	field := models.CategorizationField(c.Param("field"))
	if !field.Valid() {
		middleware.RespondError(c, apperr.NotFound("field"))
		return
	}
	projectID, ok := uuidQuery(c, "project_id", false)
	if !ok {
		return
	}

	values, err := h.Projects.Lookups(c.Request.Context(), field, projectID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"field": field, "values": values})
}
