package users

import "time"

// User represents an account for management. Authentication happens
// upstream; this service only tracks identity, tenancy and role binding.
type User struct {
	ID        string
	TenantID  string
	Email     string
	Name      string
	RoleID    string // empty when no role assigned
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
