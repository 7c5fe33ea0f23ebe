package reports

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventflow/backend/internal/attendance"
	"github.com/eventflow/backend/internal/middleware"
	"github.com/eventflow/backend/pkg/pagination"
	"github.com/eventflow/backend/pkg/response"
)

// Handler serves the admin reports.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a reports handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func pageRequest(c *gin.Context) pagination.Request {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("page_size"))
	return pagination.Request{Page: page, PageSize: size}
}

// optionalBool parses an optional boolean query parameter.
func optionalBool(c *gin.Context, key string) (*bool, bool) {
	s := c.Query(key)
	if s == "" {
		return nil, true
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, false
	}
	return &v, true
}

func optionalUUID(c *gin.Context, key string) (*uuid.UUID, bool) {
	s := c.Query(key)
	if s == "" {
		return nil, true
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, false
	}
	return &id, true
}

func (h *Handler) registrationFilter(c *gin.Context) (RegistrationFilter, bool) {
	f := RegistrationFilter{Search: c.Query("search"), Request: pageRequest(c)}
	var ok bool
	if f.EventID, ok = optionalUUID(c, "event_id"); !ok {
		response.BadRequest(c, "invalid event_id")
		return f, false
	}
	if f.CheckedIn, ok = optionalBool(c, "checked_in"); !ok {
		response.BadRequest(c, "invalid checked_in")
		return f, false
	}
	if s := c.Query("state"); s != "" {
		st, ok := attendance.ParseState(s)
		if !ok {
			response.BadRequest(c, "state must be not_arrived, checked_in or checked_out")
			return f, false
		}
		f.State = &st
	}
	return f, true
}

// Registrations handles GET /admin/registrations.
func (h *Handler) Registrations(c *gin.Context) {
	f, ok := h.registrationFilter(c)
	if !ok {
		return
	}
	page, err := h.svc.Registrations(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list registrations failed", zap.Error(err))
		response.Error(c, err, "failed to load registrations")
		return
	}
	response.OK(c, page)
}

// Attendance handles GET /admin/attendance.
func (h *Handler) Attendance(c *gin.Context) {
	f, ok := h.registrationFilter(c)
	if !ok {
		return
	}
	page, err := h.svc.Attendance(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list attendance failed", zap.Error(err))
		response.Error(c, err, "failed to load attendance")
		return
	}
	response.OK(c, page)
}

// Certificates handles GET /admin/certificates.
func (h *Handler) Certificates(c *gin.Context) {
	f := CertificateFilter{Search: c.Query("search"), Request: pageRequest(c)}
	var ok bool
	if f.EventID, ok = optionalUUID(c, "event_id"); !ok {
		response.BadRequest(c, "invalid event_id")
		return
	}
	if f.Approved, ok = optionalBool(c, "approved"); !ok {
		response.BadRequest(c, "invalid approved")
		return
	}
	page, err := h.svc.Certificates(c.Request.Context(), f)
	if err != nil {
		h.logger.Error("list certificates failed", zap.Error(err))
		response.Error(c, err, "failed to load certificates")
		return
	}
	response.OK(c, page)
}

// Participants handles GET /admin/events/:id/participants.
func (h *Handler) Participants(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	page, err := h.svc.CheckedInParticipants(c.Request.Context(), id, pageRequest(c))
	if err != nil {
		h.logger.Error("list participants failed", zap.Error(err), zap.String("event_id", id.String()))
		response.Error(c, err, "failed to load participants")
		return
	}
	response.OK(c, page)
}

// Dashboard handles GET /admin/dashboard.
func (h *Handler) Dashboard(c *gin.Context) {
	d, err := h.svc.Dashboard(c.Request.Context())
	if err != nil {
		h.logger.Error("dashboard failed", zap.Error(err))
		response.Error(c, err, "failed to load dashboard")
		return
	}
	response.OK(c, d)
}

// Export handles GET /admin/registrations/export with the list filters.
func (h *Handler) Export(c *gin.Context) {
	f, ok := h.registrationFilter(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+h.svc.ExportFilename()+`"`)
	if err := h.svc.ExportRegistrations(c.Request.Context(), f, c.Writer); err != nil {
		h.logger.Error("export registrations failed", zap.Error(err))
		if !c.Writer.Written() {
			response.Error(c, err, "failed to export registrations")
		}
	}
}

// MySummary handles GET /me/summary.
func (h *Handler) MySummary(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}
	s, err := h.svc.ParticipantSummary(c.Request.Context(), actor.UserID)
	if err != nil {
		h.logger.Error("participant summary failed", zap.Error(err))
		response.Error(c, err, "failed to load summary")
		return
	}
	response.OK(c, s)
}
