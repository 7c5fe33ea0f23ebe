// Package auditlog records system actions in the append-only audit_logs table.
package auditlog

import (
	"context"

	"github.com/google/uuid"
)

// Actor identifies who performed an action.
type Actor struct {
	UserID    *uuid.UUID
	Email     string
	Role      string
	IPAddress string
}

type actorKey struct{}

// WithActor attaches the request's actor so sinks can stamp entries with it.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the actor attached by WithActor.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}

// Entry is one action to record. Zero actor fields are filled from the context actor.
type Entry struct {
	Action      string
	Description string
	Actor       Actor
}

// Sink records audit entries.
type Sink interface {
	Log(ctx context.Context, e Entry) error
}

// resolveActor merges the explicit actor with the one carried by ctx.
func resolveActor(ctx context.Context, explicit Actor) Actor {
	fromCtx, _ := ActorFrom(ctx)
	a := explicit
	if a.UserID == nil {
		a.UserID = fromCtx.UserID
	}
	if a.Email == "" {
		a.Email = fromCtx.Email
	}
	if a.Role == "" {
		a.Role = fromCtx.Role
	}
	if a.IPAddress == "" {
		a.IPAddress = fromCtx.IPAddress
	}
	return a
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
