package access

import (
	"context"
	"sort"
	"sync"
	"time"
)

// memoryStore is an in-memory Store used across the package tests. Calls
// are counted per method and errors can be injected per method via fail.
type memoryStore struct {
	mu        sync.Mutex
	roles     map[string]Role
	userRoles map[string]string
	overrides map[string]map[string]Override

	calls map[string]int
	fail  map[string]error

	// onGetOverrides runs inside GetOverridesForUser, before the result is
	// returned. Tests use it to race invalidations against a resolution.
	onGetOverrides func()
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		roles:     make(map[string]Role),
		userRoles: make(map[string]string),
		overrides: make(map[string]map[string]Override),
		calls:     make(map[string]int),
		fail:      make(map[string]error),
	}
}

func (s *memoryStore) addRole(role Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role.ID] = role
}

func (s *memoryStore) callCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *memoryStore) resetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = make(map[string]int)
}

func (s *memoryStore) enter(method string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[method]++
	return s.fail[method]
}

func (s *memoryStore) GetRole(ctx context.Context, roleID string) (*Role, error) {
	if err := s.enter("GetRole"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return nil, nil
	}
	cp := role
	return &cp, nil
}

func (s *memoryStore) GetRoleByName(ctx context.Context, tenantID, name string) (*Role, error) {
	if err := s.enter("GetRoleByName"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.roles {
		if role.TenantID == tenantID && foldName(role.Name) == foldName(name) {
			cp := role
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) ListRoles(ctx context.Context, tenantID string) ([]Role, error) {
	if err := s.enter("ListRoles"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Role
	for _, role := range s.roles {
		if role.TenantID == tenantID {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memoryStore) GetRolesByParent(ctx context.Context, parentID string) ([]Role, error) {
	if err := s.enter("GetRolesByParent"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Role
	for _, role := range s.roles {
		if role.ParentID == parentID {
			out = append(out, role)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryStore) PutRole(ctx context.Context, role *Role) error {
	if err := s.enter("PutRole"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[role.ID] = *role
	return nil
}

func (s *memoryStore) DeleteRole(ctx context.Context, roleID string) error {
	if err := s.enter("DeleteRole"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, roleID)
	return nil
}

func (s *memoryStore) GetUserRole(ctx context.Context, userID string) (string, error) {
	if err := s.enter("GetUserRole"); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userRoles[userID], nil
}

func (s *memoryStore) SetUserRole(ctx context.Context, userID, roleID string) error {
	if err := s.enter("SetUserRole"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if roleID == "" {
		delete(s.userRoles, userID)
		return nil
	}
	s.userRoles[userID] = roleID
	return nil
}

func (s *memoryStore) ListUserIDsByRole(ctx context.Context, roleID string) ([]string, error) {
	if err := s.enter("ListUserIDsByRole"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for userID, assigned := range s.userRoles {
		if assigned == roleID {
			out = append(out, userID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *memoryStore) GetOverridesForUser(ctx context.Context, userID string) ([]Override, error) {
	if err := s.enter("GetOverridesForUser"); err != nil {
		return nil, err
	}
	if s.onGetOverrides != nil {
		s.onGetOverrides()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Override
	for _, ov := range s.overrides[userID] {
		out = append(out, ov)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Permission < out[j].Permission })
	return out, nil
}

func (s *memoryStore) PutOverride(ctx context.Context, ov *Override) error {
	if err := s.enter("PutOverride"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overrides[ov.UserID] == nil {
		s.overrides[ov.UserID] = make(map[string]Override)
	}
	stored := *ov
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.overrides[ov.UserID][ov.Permission] = stored
	return nil
}

func (s *memoryStore) DeleteOverride(ctx context.Context, userID, permission string) error {
	if err := s.enter("DeleteOverride"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides[userID], permission)
	return nil
}

// recordingInvalidator captures invalidation calls for assertions.
type recordingInvalidator struct {
	mu    sync.Mutex
	users []string
	roles []string
}

func (r *recordingInvalidator) InvalidateUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	return nil
}

func (r *recordingInvalidator) InvalidateRole(ctx context.Context, roleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roles = append(r.roles, roleID)
	return nil
}
