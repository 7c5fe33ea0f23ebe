package auditlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/pagination"
)

// Filter selects audit entries. To is exclusive.
type Filter struct {
	Search string
	Action string
	From   *time.Time
	To     *time.Time
	pagination.Request
}

func (f Filter) where() *pagination.Where {
	w := &pagination.Where{}
	w.Search(f.Search, "user_email", "description", "ip_address", "action")
	if a := strings.TrimSpace(f.Action); a != "" {
		w.Add("action = %s", a)
	}
	if f.From != nil {
		w.Add("timestamp >= %s", *f.From)
	}
	if f.To != nil {
		w.Add("timestamp < %s", *f.To)
	}
	return w
}

// List returns a page of audit entries, newest first. The total is counted
// before the page is read.
func (r *Repository) List(ctx context.Context, f Filter) (pagination.Page[models.AuditLog], error) {
	req := f.Request.Normalize()
	w := f.where()

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return pagination.Page[models.AuditLog]{}, fmt.Errorf("count audit logs: %w", err)
	}

	limit, args := w.Limit(req)
	q := `SELECT id, action, user_id, COALESCE(user_email, ''), COALESCE(user_role, ''), COALESCE(description, ''), COALESCE(ip_address, ''), timestamp
		FROM audit_logs` + w.SQL() + ` ORDER BY timestamp DESC, id DESC` + limit
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return pagination.Page[models.AuditLog]{}, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()
	var items []models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.Action, &l.UserID, &l.UserEmail, &l.UserRole, &l.Description, &l.IPAddress, &l.Timestamp); err != nil {
			return pagination.Page[models.AuditLog]{}, err
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return pagination.Page[models.AuditLog]{}, err
	}
	return pagination.New(items, req, total), nil
}

// Actions returns the distinct action names, sorted.
func (r *Repository) Actions(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT action FROM audit_logs ORDER BY action`)
	if err != nil {
		return nil, fmt.Errorf("list audit actions: %w", err)
	}
	defer rows.Close()
	actions := []string{}
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
