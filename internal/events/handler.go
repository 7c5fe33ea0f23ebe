package events

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventflow/backend/internal/middleware"
	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/apperr"
	"github.com/eventflow/backend/pkg/response"
)

// Store is the event persistence used by the handler.
type Store interface {
	Create(ctx context.Context, e *models.Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	List(ctx context.Context, publishedOnly bool) ([]models.Event, error)
	SetPublished(ctx context.Context, id uuid.UUID, published bool) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CreateRequest is the body for POST /events.
type CreateRequest struct {
	Title       string  `json:"title" binding:"required,max=200"`
	Description string  `json:"description"`
	StartDate   string  `json:"start_date" binding:"required"`
	EndDate     *string `json:"end_date"`
	Location    string  `json:"location"`
	Capacity    *int    `json:"capacity" binding:"omitempty,min=1"`
	IsPublished bool    `json:"is_published"`
}

// PublishRequest is the body for PUT /events/:id/publish.
type PublishRequest struct {
	Published bool `json:"published"`
}

// Handler handles event HTTP endpoints.
type Handler struct {
	store  Store
	logger *zap.Logger
}

// NewHandler creates an event handler.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, logger: logger}
}

// Create handles POST /events (admin only).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartDate)
	if err != nil {
		response.BadRequest(c, "invalid start_date")
		return
	}
	var end *time.Time
	if req.EndDate != nil {
		t, err := time.Parse(time.RFC3339, *req.EndDate)
		if err != nil {
			response.BadRequest(c, "invalid end_date")
			return
		}
		if t.Before(start) {
			response.BadRequest(c, "end_date must not be before start_date")
			return
		}
		end = &t
	}
	e := &models.Event{
		Title:       req.Title,
		Description: req.Description,
		StartDate:   start,
		EndDate:     end,
		Location:    req.Location,
		Capacity:    req.Capacity,
		IsPublished: req.IsPublished,
	}
	if err := h.store.Create(c.Request.Context(), e); err != nil {
		h.logger.Error("create event failed", zap.Error(err))
		response.Internal(c, "failed to create event")
		return
	}
	response.Created(c, e)
}

// GetByID handles GET /events/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	e, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err, "failed to load event")
		return
	}
	response.OK(c, e)
}

// List handles GET /events. Participants only see published events.
func (h *Handler) List(c *gin.Context) {
	publishedOnly := true
	if actor, ok := middleware.ActorFrom(c); ok && actor.Role != string(models.RoleParticipant) {
		publishedOnly = c.Query("published") == "1"
	}
	list, err := h.store.List(c.Request.Context(), publishedOnly)
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err))
		response.Internal(c, "failed to list events")
		return
	}
	response.OK(c, list)
}

// SetPublished handles PUT /events/:id/publish (admin only).
func (h *Handler) SetPublished(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if err := h.store.SetPublished(c.Request.Context(), id, req.Published); err != nil {
		response.Error(c, err, "failed to update event")
		return
	}
	response.OK(c, gin.H{"id": id, "is_published": req.Published})
}

// Delete handles DELETE /events/:id (admin only).
func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid event id")
		return
	}
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		if !apperr.IsCode(err, apperr.CodeNotFound) {
			h.logger.Error("delete event failed", zap.Error(err), zap.String("event_id", id.String()))
		}
		response.Error(c, err, "failed to delete event")
		return
	}
	response.NoContent(c)
}
