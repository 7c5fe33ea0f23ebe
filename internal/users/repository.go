// Package users is the local directory of people known from registrations.
package users

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eventflow/backend/internal/models"
	"github.com/eventflow/backend/pkg/apperr"
	"github.com/eventflow/backend/pkg/database"
	"github.com/eventflow/backend/pkg/pagination"
)

// Repository reads the local user directory. Rows are created on first
// registration from token claims; credentials never reach this service.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a user repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, email, full_name, role, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var role string
	if err := row.Scan(&u.ID, &u.Email, &u.FullName, &role, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return &u, nil
}

// GetByID returns a user by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if database.IsNoRows(err) {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// List returns a page of users ordered by name then email, optionally
// filtered by a search over name and email and by role.
func (r *Repository) List(ctx context.Context, search string, role models.Role, req pagination.Request) (pagination.Page[models.User], error) {
	req = req.Normalize()
	w := &pagination.Where{}
	w.Search(search, "full_name", "email")
	if role != "" {
		w.Add("role = %s", string(role))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return pagination.Page[models.User]{}, fmt.Errorf("count users: %w", err)
	}
	limit, args := w.Limit(req)
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users`+w.SQL()+` ORDER BY full_name, email, id`+limit, args...)
	if err != nil {
		return pagination.Page[models.User]{}, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var list []models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return pagination.Page[models.User]{}, err
		}
		list = append(list, *u)
	}
	if err := rows.Err(); err != nil {
		return pagination.Page[models.User]{}, err
	}
	return pagination.New(list, req, total), nil
}
