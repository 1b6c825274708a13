package users

import (
	"context"
	"fmt"

	"github.com/freightdesk/freightdesk/internal/access"
)

// Service handles user management on top of the access store. Role
// assignment writes through the store and then invalidates the user's
// cached permission set, in that order.
type Service struct {
	repo        RepositoryPort
	store       access.Store
	invalidator access.Invalidator
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, store access.Store, invalidator access.Invalidator) *Service {
	return &Service{repo: repo, store: store, invalidator: invalidator}
}

// ListUsers returns all users of a tenant.
func (s *Service) ListUsers(ctx context.Context, tenantID string) ([]User, error) {
	return s.repo.ListUsers(ctx, tenantID)
}

// GetUser fetches one user.
func (s *Service) GetUser(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", access.ErrNotFound, userID)
	}
	return user, nil
}

// AssignRole binds a user to a role within the same tenant.
func (s *Service) AssignRole(ctx context.Context, userID, roleID string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	role, err := s.store.GetRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role == nil {
		return fmt.Errorf("%w: role %s", access.ErrNotFound, roleID)
	}
	if role.TenantID != user.TenantID {
		return fmt.Errorf("%w: role belongs to a different tenant", access.ErrValidation)
	}
	if err := s.store.SetUserRole(ctx, userID, roleID); err != nil {
		return err
	}
	return s.invalidator.InvalidateUser(ctx, userID)
}

// UnassignRole clears the user's role binding.
func (s *Service) UnassignRole(ctx context.Context, userID string) error {
	if _, err := s.GetUser(ctx, userID); err != nil {
		return err
	}
	if err := s.store.SetUserRole(ctx, userID, ""); err != nil {
		return err
	}
	return s.invalidator.InvalidateUser(ctx, userID)
}
