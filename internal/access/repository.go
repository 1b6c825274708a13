package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolationCode = "23505"

// Repository is the PostgreSQL-backed Store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const roleColumns = `id, tenant_id, name, description, COALESCE(parent_id, ''), permissions, is_system, created_at, updated_at`

func scanRole(row pgx.Row) (*Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.TenantID, &role.Name, &role.Description, &role.ParentID, &role.Permissions, &role.IsSystem, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// GetRole fetches a role by id, nil when absent.
func (r *Repository) GetRole(ctx context.Context, roleID string) (*Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, roleID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return role, err
}

// GetRoleByName fetches a role by case-folded name within a tenant.
func (r *Repository) GetRoleByName(ctx context.Context, tenantID, name string) (*Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE tenant_id = $1 AND lower(name) = $2`, tenantID, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return role, err
}

// ListRoles returns all roles of a tenant ordered by name.
func (r *Repository) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	return r.queryRoles(ctx, `SELECT `+roleColumns+` FROM roles WHERE tenant_id = $1 ORDER BY name`, tenantID)
}

// GetRolesByParent returns the direct children of a role.
func (r *Repository) GetRolesByParent(ctx context.Context, parentID string) ([]Role, error) {
	return r.queryRoles(ctx, `SELECT `+roleColumns+` FROM roles WHERE parent_id = $1`, parentID)
}

func (r *Repository) queryRoles(ctx context.Context, query string, args ...any) ([]Role, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *role)
	}
	return roles, rows.Err()
}

// PutRole upserts a role.
func (r *Repository) PutRole(ctx context.Context, role *Role) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO roles (id, tenant_id, name, description, parent_id, permissions, is_system, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			parent_id = EXCLUDED.parent_id,
			permissions = EXCLUDED.permissions,
			updated_at = EXCLUDED.updated_at`,
		role.ID, role.TenantID, role.Name, role.Description, role.ParentID, role.Permissions, role.IsSystem, role.CreatedAt, role.UpdatedAt)
	return mapPgError(err)
}

// DeleteRole removes a role by id.
func (r *Repository) DeleteRole(ctx context.Context, roleID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: role %s", ErrNotFound, roleID)
	}
	return nil
}

// GetUserRole returns the role id assigned to a user, empty when none.
func (r *Repository) GetUserRole(ctx context.Context, userID string) (string, error) {
	var roleID string
	err := r.pool.QueryRow(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1`, userID).Scan(&roleID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return roleID, err
}

// SetUserRole assigns a role to a user; an empty roleID clears the
// assignment.
func (r *Repository) SetUserRole(ctx context.Context, userID, roleID string) error {
	if roleID == "" {
		_, err := r.pool.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1`, userID)
		return err
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET role_id = EXCLUDED.role_id`,
		userID, roleID)
	return mapPgError(err)
}

// ListUserIDsByRole returns every user directly assigned to a role.
func (r *Repository) ListUserIDsByRole(ctx context.Context, roleID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var userIDs []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, userID)
	}
	return userIDs, rows.Err()
}

// GetOverridesForUser returns every override of a user.
func (r *Repository) GetOverridesForUser(ctx context.Context, userID string) ([]Override, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT user_id, permission, type, reason, granted_by, created_at
		FROM user_permission_overrides WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var overrides []Override
	for rows.Next() {
		var ov Override
		if err := rows.Scan(&ov.UserID, &ov.Permission, &ov.Type, &ov.Reason, &ov.GrantedBy, &ov.CreatedAt); err != nil {
			return nil, err
		}
		overrides = append(overrides, ov)
	}
	return overrides, rows.Err()
}

// PutOverride upserts the override for its (user, permission) pair.
func (r *Repository) PutOverride(ctx context.Context, ov *Override) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO user_permission_overrides (user_id, permission, type, reason, granted_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, permission) DO UPDATE SET
			type = EXCLUDED.type,
			reason = EXCLUDED.reason,
			granted_by = EXCLUDED.granted_by,
			created_at = EXCLUDED.created_at`,
		ov.UserID, ov.Permission, string(ov.Type), ov.Reason, ov.GrantedBy, ov.CreatedAt)
	return mapPgError(err)
}

// DeleteOverride removes one override.
func (r *Repository) DeleteOverride(ctx context.Context, userID, permission string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_permission_overrides WHERE user_id = $1 AND permission = $2`, userID, permission)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: override %s/%s", ErrNotFound, userID, permission)
	}
	return nil
}

func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}
