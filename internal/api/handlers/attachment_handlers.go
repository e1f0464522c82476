package handlers

import (
	"errors"
	"fmt"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/afterdarksys/servicedesk/internal/api/middleware"
	"github.com/afterdarksys/servicedesk/internal/models"
	"github.com/afterdarksys/servicedesk/internal/pkg/apperr"
	"github.com/afterdarksys/servicedesk/internal/pkg/logger"
	"github.com/afterdarksys/servicedesk/internal/policy"
	"github.com/afterdarksys/servicedesk/internal/storage"
	"github.com/afterdarksys/servicedesk/internal/store"
)

// attachmentForm is the multipart body of an upload
type attachmentForm struct {
	MessageID      string `form:"messageId" binding:"required,uuid"`
	TicketID       string `form:"ticketId" binding:"required,uuid"`
	AttType        string `form:"att_type"`
	EstimatedHours string `form:"estimated_hours"`
}

// UploadAttachment handles POST /api/attachment
func (h *Handler) UploadAttachment(c *gin.Context) {
	p := principal(c)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes+(1<<20))

	var form attachmentForm
	if !h.bindForm(c, &form) {
		return
	}

	estimate, err := parseDecimal(form.EstimatedHours)
	if err != nil {
		middleware.RespondError(c, apperr.Validation(err.Error()))
		return
	}
	attType := models.AttachmentType(form.AttType)
	if err := models.ValidateAttachment(attType, estimate); err != nil {
		h.respondError(c, err)
		return
	}
	if !attType.RequiresEstimate() {
		estimate = nil
	}

	file, err := c.FormFile("file")
	if err != nil {
		middleware.RespondError(c, apperr.Validation("file is required"))
		return
	}
	if file.Size > h.MaxUploadBytes {
		middleware.RespondError(c, apperr.Validation(fmt.Sprintf("file exceeds %d bytes", h.MaxUploadBytes)))
		return
	}

	ticket, ok := h.loadTicket(c, uuid.MustParse(form.TicketID))
	if !ok {
		return
	}
	if !h.Policy.Can(p.Role, policy.ObjectAttachment, policy.ActionCreate) {
		deny(c, policy.Deny("your role cannot upload attachments"))
		return
	}

	// The message must be on this ticket and visible to the caller.
	msg, err := h.Messages.GetByID(c.Request.Context(), uuid.MustParse(form.MessageID))
	if errors.Is(err, store.ErrNotFound) || (err == nil && (msg.TicketID != ticket.ID || (msg.IsPrivate && p.IsClient()))) {
		middleware.RespondError(c, apperr.NotFound("message"))
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	src, err := file.Open()
	if err != nil {
		h.respondError(c, fmt.Errorf("failed to read upload: %w", err))
		return
	}
	defer src.Close()

	key := storage.ObjectKey(ticket.ID, file.Filename)
	if err := h.Files.Upload(c.Request.Context(), key, src, file.Size, contentType); err != nil {
		h.respondError(c, err)
		return
	}

	att := &models.Attachment{
		MessageID:      msg.ID,
		TicketID:       ticket.ID,
		Name:           file.Filename,
		Path:           key,
		AttType:        attType,
		ContentType:    contentType,
		Size:           file.Size,
		EstimatedHours: estimate,
		CreatedBy:      p.UserID,
	}
	if err := h.Attachments.Create(c.Request.Context(), att); err != nil {
		if delErr := h.Files.Delete(c.Request.Context(), key); delErr != nil {
			logger.From(c.Request.Context()).Warn("Failed to remove orphaned upload",
				zap.String("key", key), zap.Error(delErr))
		}
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"attachment": att})
}

// Download handles GET /api/download?path=
func (h *Handler) Download(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		middleware.RespondError(c, apperr.Validation("path is required"))
		return
	}

	att, err := h.Attachments.GetByPath(c.Request.Context(), path)
	if errors.Is(err, store.ErrNotFound) {
		middleware.RespondError(c, apperr.NotFound("attachment"))
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}

	msg, err := h.Messages.GetByID(c.Request.Context(), att.MessageID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && msg.IsPrivate && principal(c).IsClient()) {
		middleware.RespondError(c, apperr.NotFound("attachment"))
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	if _, ok := h.loadTicket(c, att.TicketID); !ok {
		return
	}

	body, info, err := h.Files.Open(c.Request.Context(), att.Path)
	if errors.Is(err, storage.ErrObjectNotFound) {
		middleware.RespondError(c, apperr.NotFound("attachment"))
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer body.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = att.ContentType
	}
	c.DataFromReader(http.StatusOK, info.Size, contentType, body, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": att.Name}),
	})
}
