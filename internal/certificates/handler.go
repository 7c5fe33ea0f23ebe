package certificates

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventflow/backend/internal/middleware"
	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/apperr"
	"github.com/eventflow/backend/pkg/response"
	"github.com/eventflow/backend/pkg/storage"
)

// GenerateRequest is the body for POST /admin/certificates.
type GenerateRequest struct {
	EventID string `json:"event_id" binding:"required,uuid"`
	UserID  string `json:"user_id" binding:"required,uuid"`
}

// Handler handles certificate HTTP endpoints.
type Handler struct {
	svc    *Service
	queue  Enqueuer
	logger *zap.Logger
}

// NewHandler creates a certificate handler. q may be nil, which disables async approval.
func NewHandler(svc *Service, q Enqueuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, queue: q, logger: logger}
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	if apperr.CodeOf(err) == apperr.CodeUnknown {
		h.logger.Error(msg, zap.Error(err))
	}
	response.Error(c, err, msg)
}

func parseID(c *gin.Context, name, label string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.BadRequest(c, "invalid "+label)
		return uuid.Nil, false
	}
	return id, true
}

// Generate handles POST /admin/certificates.
func (h *Handler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	cert, err := h.svc.GenerateCertificate(c.Request.Context(), uuid.MustParse(req.EventID), uuid.MustParse(req.UserID))
	if err != nil {
		h.fail(c, err, "failed to generate certificate")
		return
	}
	response.Created(c, cert)
}

// GeneratePending handles POST /admin/certificates/generate-pending?event_id=.
func (h *Handler) GeneratePending(c *gin.Context) {
	var eventID *uuid.UUID
	if s := c.Query("event_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid event_id")
			return
		}
		eventID = &id
	}
	res, err := h.svc.GeneratePendingForEvent(c.Request.Context(), eventID)
	if err != nil {
		h.fail(c, err, "failed to generate certificates")
		return
	}
	response.OK(c, res)
}

// Pending handles GET /admin/events/:id/certificates/pending.
func (h *Handler) Pending(c *gin.Context) {
	eventID, ok := parseID(c, "id", "event id")
	if !ok {
		return
	}
	list, err := h.svc.PendingCertificates(c.Request.Context(), eventID)
	if err != nil {
		h.fail(c, err, "failed to list pending certificates")
		return
	}
	response.OK(c, list)
}

// Approve handles POST /admin/certificates/:id/approve.
func (h *Handler) Approve(c *gin.Context) {
	id, ok := parseID(c, "id", "certificate id")
	if !ok {
		return
	}
	cert, err := h.svc.ApproveCertificate(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to approve certificate")
		return
	}
	response.OK(c, cert)
}

// ApproveAll handles POST /admin/events/:id/certificates/approve-all. With
// ?async=true the approvals are queued for the worker.
func (h *Handler) ApproveAll(c *gin.Context) {
	eventID, ok := parseID(c, "id", "event id")
	if !ok {
		return
	}
	if async, _ := strconv.ParseBool(c.Query("async")); async {
		if h.queue == nil {
			response.BadRequest(c, "async approval is not available")
			return
		}
		n, err := h.svc.QueueApprovals(c.Request.Context(), eventID, h.queue)
		if err != nil {
			h.fail(c, err, "failed to queue approvals")
			return
		}
		c.JSON(http.StatusAccepted, response.Body{Success: true, Data: gin.H{"queued": n}})
		return
	}
	res, err := h.svc.ApproveAllPending(c.Request.Context(), eventID)
	if err != nil {
		h.fail(c, err, "failed to approve certificates")
		return
	}
	response.OK(c, res)
}

// Revoke handles DELETE /admin/certificates/:id.
func (h *Handler) Revoke(c *gin.Context) {
	id, ok := parseID(c, "id", "certificate id")
	if !ok {
		return
	}
	if err := h.svc.RevokeCertificate(c.Request.Context(), id); err != nil {
		h.fail(c, err, "failed to revoke certificate")
		return
	}
	response.NoContent(c)
}

// Send handles POST /admin/registrations/:id/send-certificate.
func (h *Handler) Send(c *gin.Context) {
	id, ok := parseID(c, "id", "registration id")
	if !ok {
		return
	}
	cert, err := h.svc.SendToParticipant(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to send certificate")
		return
	}
	response.OK(c, cert)
}

// SendBulk handles POST /admin/events/:id/certificates/send-bulk.
func (h *Handler) SendBulk(c *gin.Context) {
	eventID, ok := parseID(c, "id", "event id")
	if !ok {
		return
	}
	res, err := h.svc.SendBulk(c.Request.Context(), eventID)
	if err != nil {
		h.fail(c, err, "failed to send certificates")
		return
	}
	response.OK(c, res)
}

// UploadTemplate handles PUT /admin/events/:id/certificate-template with a
// multipart "file" field or a raw application/pdf body.
func (h *Handler) UploadTemplate(c *gin.Context) {
	eventID, ok := parseID(c, "id", "event id")
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxTemplateSize+1<<20)

	var (
		name string
		data []byte
	)
	if fh, err := c.FormFile("file"); err == nil {
		if fh.Size > storage.MaxTemplateSize {
			response.BadRequest(c, "template file exceeds 10MB")
			return
		}
		f, err := fh.Open()
		if err != nil {
			response.BadRequest(c, "cannot read uploaded file")
			return
		}
		defer f.Close()
		if data, err = io.ReadAll(f); err != nil {
			response.BadRequest(c, "cannot read uploaded file")
			return
		}
		name = fh.Filename
	} else {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.BadRequest(c, "cannot read request body")
			return
		}
		data = body
		name = c.Query("file_name")
	}

	var uploadedBy *uuid.UUID
	if actor, ok := middleware.ActorFrom(c); ok {
		uploadedBy = &actor.UserID
	}
	t, err := h.svc.UploadTemplate(c.Request.Context(), eventID, name, uploadedBy, data)
	if err != nil {
		h.fail(c, err, "failed to upload template")
		return
	}
	response.Created(c, t)
}

// GetTemplate handles GET /admin/events/:id/certificate-template.
func (h *Handler) GetTemplate(c *gin.Context) {
	eventID, ok := parseID(c, "id", "event id")
	if !ok {
		return
	}
	t, err := h.svc.GetTemplate(c.Request.Context(), eventID)
	if err != nil {
		h.fail(c, err, "failed to load template")
		return
	}
	response.OK(c, t)
}

// DeleteTemplate handles DELETE /admin/events/:id/certificate-template.
func (h *Handler) DeleteTemplate(c *gin.Context) {
	eventID, ok := parseID(c, "id", "event id")
	if !ok {
		return
	}
	if err := h.svc.DeleteTemplate(c.Request.Context(), eventID); err != nil {
		h.fail(c, err, "failed to delete template")
		return
	}
	response.NoContent(c)
}

// Mine handles GET /me/certificates.
func (h *Handler) Mine(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	list, err := h.svc.ParticipantCertificates(c.Request.Context(), actor.UserID)
	if err != nil {
		h.fail(c, err, "failed to list certificates")
		return
	}
	response.OK(c, list)
}

// Download handles GET /certificates/:id/download. Participants may only
// download their own certificates.
func (h *Handler) Download(c *gin.Context) {
	id, ok := parseID(c, "id", "certificate id")
	if !ok {
		return
	}
	d, data, err := h.svc.File(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "failed to load certificate")
		return
	}
	if actor, ok := middleware.ActorFrom(c); ok && actor.Role == string(models.RoleParticipant) {
		if d.UserID == nil || *d.UserID != actor.UserID {
			response.Forbidden(c, "not your certificate")
			return
		}
	}
	c.Header("Content-Disposition", `attachment; filename="cert-`+d.CertificateNumber+`.pdf"`)
	c.Data(http.StatusOK, storage.ContentTypePDF, data)
}
