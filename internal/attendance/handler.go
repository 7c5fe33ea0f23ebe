package attendance

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventflow/backend/internal/middleware"
	"github.com/eventflow/backend/pkg/apperr"
	"github.com/eventflow/backend/pkg/response"
)

// Handler exposes attendance transitions to staff.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an attendance handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

type transitionFunc func(h *Handler, c *gin.Context, id, staff uuid.UUID) (any, error)

func (h *Handler) run(c *gin.Context, fn transitionFunc) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	var staff uuid.UUID
	if actor, ok := middleware.ActorFrom(c); ok {
		staff = actor.UserID
	}
	out, err := fn(h, c, id, staff)
	if err != nil {
		switch apperr.CodeOf(err) {
		case apperr.CodeUnknown:
			h.logger.Error("attendance transition failed", zap.Error(err), zap.String("registration_id", id.String()))
		default:
			h.logger.Info("attendance transition rejected", zap.Error(err), zap.String("registration_id", id.String()))
		}
		response.Error(c, err, "attendance update failed")
		return
	}
	response.OK(c, out)
}

// CheckIn handles POST /registrations/:id/check-in.
func (h *Handler) CheckIn(c *gin.Context) {
	h.run(c, func(h *Handler, c *gin.Context, id, staff uuid.UUID) (any, error) {
		return h.svc.CheckIn(c.Request.Context(), id, staff)
	})
}

// CheckOut handles POST /registrations/:id/check-out.
func (h *Handler) CheckOut(c *gin.Context) {
	h.run(c, func(h *Handler, c *gin.Context, id, staff uuid.UUID) (any, error) {
		return h.svc.CheckOut(c.Request.Context(), id, staff)
	})
}

// Toggle handles POST /registrations/:id/toggle-check-in.
func (h *Handler) Toggle(c *gin.Context) {
	h.run(c, func(h *Handler, c *gin.Context, id, staff uuid.UUID) (any, error) {
		return h.svc.ToggleCheckIn(c.Request.Context(), id, staff)
	})
}

// Scan handles POST /staff/scan/:id, the target of registration QR codes.
func (h *Handler) Scan(c *gin.Context) {
	h.run(c, func(h *Handler, c *gin.Context, id, staff uuid.UUID) (any, error) {
		return h.svc.ProcessScan(c.Request.Context(), id, staff)
	})
}

// Counts handles GET /attendance/counts?event_id=.
func (h *Handler) Counts(c *gin.Context) {
	var eventID *uuid.UUID
	if s := c.Query("event_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			response.BadRequest(c, "invalid event_id")
			return
		}
		eventID = &id
	}
	counts, err := h.svc.Counts(c.Request.Context(), eventID)
	if err != nil {
		h.logger.Error("attendance counts failed", zap.Error(err))
		response.Internal(c, "failed to load counts")
		return
	}
	response.OK(c, counts)
}
