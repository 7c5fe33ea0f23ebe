package auditlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/eventflow/backend/pkg/clock"
)

// Repository is the PostgreSQL audit sink. Rows are only ever inserted.
type Repository struct {
	pool   *pgxpool.Pool
	clock  clock.Clock
	logger *zap.Logger
}

// NewRepository creates an audit log repository.
func NewRepository(pool *pgxpool.Pool, clk clock.Clock, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Repository{pool: pool, clock: clk, logger: logger}
}

// Log inserts an entry, truncating fields to their column widths.
func (r *Repository) Log(ctx context.Context, e Entry) error {
	if e.Action == "" {
		return errors.New("audit: action required")
	}
	a := resolveActor(ctx, e.Actor)
	const q = `INSERT INTO audit_logs (action, user_id, user_email, user_role, description, ip_address, timestamp)
		VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), NULLIF($5,''), NULLIF($6,''), $7)`
	_, err := r.pool.Exec(ctx, q,
		truncate(e.Action, 100), a.UserID, truncate(a.Email, 256), truncate(a.Role, 50),
		truncate(e.Description, 255), truncate(a.IPAddress, 45), r.clock.Now())
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	r.logger.Debug("audit", zap.String("action", e.Action), zap.String("description", e.Description))
	return nil
}
