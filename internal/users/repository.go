package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, tenantID string) ([]User, error)
	GetUser(ctx context.Context, userID string) (*User, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userQuery = `
	SELECT u.id, u.tenant_id, u.email, u.name, COALESCE(ur.role_id, ''), u.is_active, u.created_at, u.updated_at
	FROM users u
	LEFT JOIN user_roles ur ON ur.user_id = u.id`

// ListUsers returns all users of a tenant.
func (r *Repository) ListUsers(ctx context.Context, tenantID string) ([]User, error) {
	rows, err := r.pool.Query(ctx, userQuery+` WHERE u.tenant_id = $1 ORDER BY u.email`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.TenantID, &u.Email, &u.Name, &u.RoleID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// GetUser fetches one user, nil when absent.
func (r *Repository) GetUser(ctx context.Context, userID string) (*User, error) {
	var u User
	err := r.pool.QueryRow(ctx, userQuery+` WHERE u.id = $1`, userID).
		Scan(&u.ID, &u.TenantID, &u.Email, &u.Name, &u.RoleID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
