package users

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eventflow/backend/internal/middleware"
	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/apperr"
	"github.com/eventflow/backend/pkg/pagination"
	"github.com/eventflow/backend/pkg/response"
)

// Directory is the user lookup the handler needs.
type Directory interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	List(ctx context.Context, search string, role models.Role, req pagination.Request) (pagination.Page[models.User], error)
}

// MeResponse is the caller's identity as seen by this service.
type MeResponse struct {
	UserID   uuid.UUID `json:"user_id"`
	Email    string    `json:"email"`
	Role     string    `json:"role"`
	FullName string    `json:"full_name,omitempty"`
	Known    bool      `json:"known"`
}

// Handler handles user directory endpoints.
type Handler struct {
	users  Directory
	logger *zap.Logger
}

// NewHandler creates a user directory handler.
func NewHandler(users Directory, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, logger: logger}
}

// Me handles GET /me. Known is false until the caller's first registration
// creates a local user row.
func (h *Handler) Me(c *gin.Context) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		response.Unauthorized(c, "unauthorized")
		return
	}
	out := MeResponse{UserID: actor.UserID, Email: actor.Email, Role: actor.Role}
	u, err := h.users.GetByID(c.Request.Context(), actor.UserID)
	switch {
	case err == nil:
		out.FullName = u.FullName
		out.Known = true
	case apperr.IsCode(err, apperr.CodeNotFound):
	default:
		h.logger.Error("load user failed", zap.Error(err), zap.String("user_id", actor.UserID.String()))
		response.Internal(c, "failed to load user")
		return
	}
	response.OK(c, out)
}

// List handles GET /admin/users?search=&role=&page=&page_size=.
func (h *Handler) List(c *gin.Context) {
	role := models.Role(c.Query("role"))
	switch role {
	case "", models.RoleAdmin, models.RoleStaff, models.RoleParticipant:
	default:
		response.BadRequest(c, "invalid role")
		return
	}
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("page_size"))
	list, err := h.users.List(c.Request.Context(), c.Query("search"), role, pagination.Request{Page: page, PageSize: size})
	if err != nil {
		h.logger.Error("list users failed", zap.Error(err))
		response.Internal(c, "failed to list users")
		return
	}
	response.OK(c, list)
}
