package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eventflow/backend/internal/auditlog"
	"github.com/eventflow/backend/internal/auth"
	"github.com/eventflow/backend/pkg/response"
)

const (
	// ContextUserID is the key for user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserRole is the key for user role in gin context.
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for user email in gin context.
	ContextUserEmail = "user_email"
)

// Actor is the authenticated caller of a request.
type Actor struct {
	UserID    uuid.UUID
	Email     string
	Role      string
	IPAddress string
}

// JWT returns a middleware that validates JWT and sets user claims in context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Unauthorized(c, "missing authorization header")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.Unauthorized(c, "invalid authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}

// ActorFrom returns the caller set by JWT; ok is false on unauthenticated routes.
func ActorFrom(c *gin.Context) (Actor, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return Actor{}, false
	}
	id, ok := v.(uuid.UUID)
	if !ok {
		return Actor{}, false
	}
	return Actor{
		UserID:    id,
		Email:     c.GetString(ContextUserEmail),
		Role:      c.GetString(ContextUserRole),
		IPAddress: c.ClientIP(),
	}, true
}

// AuditContext copies the authenticated actor into the request context so the
// audit sink can stamp entries written by services.
func AuditContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor, ok := ActorFrom(c); ok {
			id := actor.UserID
			ctx := auditlog.WithActor(c.Request.Context(), auditlog.Actor{
				UserID:    &id,
				Email:     actor.Email,
				Role:      actor.Role,
				IPAddress: actor.IPAddress,
			})
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
