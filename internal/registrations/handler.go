package registrations

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventflow/backend/internal/middleware"
	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/response"
)

// RegisterRequest is the body for POST /events/:id/register.
type RegisterRequest struct {
	FullName   string `json:"full_name"`
	TicketType string `json:"ticket_type" binding:"max=50"`
}

// Handler handles registration HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Register handles POST /events/:id/register for the authenticated user.
func (h *Handler) Register(c *gin.Context) {
	eventID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	var req RegisterRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request: "+err.Error())
			return
		}
	}
	attendee := models.User{
		ID:       actor.UserID,
		Email:    actor.Email,
		FullName: req.FullName,
		Role:     models.Role(actor.Role),
	}
	reg, err := h.svc.Register(c.Request.Context(), eventID, attendee, req.TicketType)
	if err != nil {
		h.logger.Info("register failed", zap.Error(err), zap.String("event_id", eventID.String()))
		response.Error(c, err, "failed to register")
		return
	}
	response.Created(c, reg)
}

// Get handles GET /registrations/:id. Participants may only read their own.
func (h *Handler) Get(c *gin.Context) {
	d, ok := h.load(c)
	if !ok {
		return
	}
	response.OK(c, d)
}

// Mine handles GET /me/registrations.
func (h *Handler) Mine(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}
	list, err := h.svc.ListForUser(c.Request.Context(), actor.UserID)
	if err != nil {
		h.logger.Error("list registrations failed", zap.Error(err))
		response.Internal(c, "failed to list registrations")
		return
	}
	response.OK(c, list)
}

// QRCode handles GET /registrations/:id/qr and returns a PNG.
func (h *Handler) QRCode(c *gin.Context) {
	d, ok := h.load(c)
	if !ok {
		return
	}
	png, err := h.svc.QRCode(c.Request.Context(), d.ID)
	if err != nil {
		h.logger.Error("qr code failed", zap.Error(err), zap.String("registration_id", d.ID.String()))
		response.Error(c, err, "failed to render qr code")
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// Delete handles DELETE /registrations/:id (admin).
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		response.Error(c, err, "failed to delete registration")
		return
	}
	response.NoContent(c)
}

func (h *Handler) load(c *gin.Context) (*models.RegistrationDetail, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid registration id")
		return nil, false
	}
	d, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err, "failed to load registration")
		return nil, false
	}
	if actor, ok := middleware.ActorFrom(c); ok && actor.Role == string(models.RoleParticipant) {
		if d.UserID == nil || *d.UserID != actor.UserID {
			response.Forbidden(c, "not your registration")
			return nil, false
		}
	}
	return d, true
}
