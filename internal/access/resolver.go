package access

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"golang.org/x/sync/singleflight"
)

// ResolverMetrics counts cache traffic. Implementations must be safe for
// concurrent use; a nil recorder disables counting.
type ResolverMetrics interface {
	PermissionCacheHit()
	PermissionCacheMiss()
	PermissionResolved()
	UsersInvalidated(n int)
}

// Resolver computes and caches effective permission sets and answers point
// queries. It is a passive library: all work happens on the caller's
// goroutine and honours the caller's context.
type Resolver struct {
	store   Store
	cache   Cache
	logger  *slog.Logger
	metrics ResolverMetrics
	group   singleflight.Group
}

// NewResolver builds a Resolver. metrics may be nil.
func NewResolver(store Store, cache Cache, logger *slog.Logger, metrics ResolverMetrics) *Resolver {
	return &Resolver{store: store, cache: cache, logger: logger, metrics: metrics}
}

// HasPermission reports whether userID holds permission. A cache hit does
// no store I/O; a miss resolves and repopulates the cache. Callers treat an
// error as a denial.
func (r *Resolver) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	perms, ok, err := r.cache.Get(ctx, userID)
	if err != nil {
		// The cache is a projection; losing it costs a recomputation, not
		// correctness.
		if r.logger != nil {
			r.logger.Warn("permission cache read", slog.String("user", userID), slog.Any("error", err))
		}
		ok = false
	}
	if ok {
		if r.metrics != nil {
			r.metrics.PermissionCacheHit()
		}
		return contains(perms, permission), nil
	}
	if r.metrics != nil {
		r.metrics.PermissionCacheMiss()
	}
	resolved, err := r.Resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	return contains(resolved, permission), nil
}

// GetEffectivePermissions returns the user's resolved permission set,
// served from cache when possible.
func (r *Resolver) GetEffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	perms, ok, err := r.cache.Get(ctx, userID)
	if err == nil && ok {
		if r.metrics != nil {
			r.metrics.PermissionCacheHit()
		}
		return perms, nil
	}
	if r.metrics != nil {
		r.metrics.PermissionCacheMiss()
	}
	return r.Resolve(ctx, userID)
}

// Resolve computes the effective set for userID and stores it. Concurrent
// calls for the same user collapse into one computation.
func (r *Resolver) Resolve(ctx context.Context, userID string) ([]string, error) {
	resultChan := r.group.DoChan(userID, func() (interface{}, error) {
		return r.resolve(ctx, userID)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]string), nil
	}
}

// resolve is the expensive path: role chain union, then overrides in fixed
// order (all GRANTs, then all REVOKEs, so a REVOKE always wins).
func (r *Resolver) resolve(ctx context.Context, userID string) ([]string, error) {
	// Read the generation before touching the store; Put is fenced on it.
	generation, genErr := r.cache.Generation(ctx, userID)

	set := make(map[string]struct{})
	roleID, err := r.store.GetUserRole(ctx, userID)
	if err != nil {
		return nil, err
	}
	if roleID != "" {
		chain, err := roleChain(ctx, r.store, roleID)
		switch {
		case errors.Is(err, ErrNotFound):
			// Dangling reference: the role-derived layer fails closed to
			// nothing rather than failing the caller. Overrides still apply.
			if r.logger != nil {
				r.logger.Warn("user assigned to missing role", slog.String("user", userID), slog.String("role", roleID))
			}
		case err != nil:
			return nil, err
		default:
			for _, role := range chain {
				for _, p := range role.Permissions {
					set[p] = struct{}{}
				}
			}
		}
	}

	// Overrides are the most security-relevant layer: any load error
	// propagates instead of being skipped.
	overrides, err := r.store.GetOverridesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, ov := range overrides {
		if ov.Type == OverrideGrant {
			set[ov.Permission] = struct{}{}
		}
	}
	for _, ov := range overrides {
		if ov.Type == OverrideRevoke {
			delete(set, ov.Permission)
		}
	}

	perms := make([]string, 0, len(set))
	for p := range set {
		perms = append(perms, p)
	}
	sort.Strings(perms)

	if err := ctx.Err(); err != nil {
		// Cancelled mid-resolution: do not populate the cache.
		return nil, err
	}
	if genErr == nil {
		if err := r.cache.Put(ctx, userID, perms, generation); err != nil && r.logger != nil {
			r.logger.Warn("permission cache write", slog.String("user", userID), slog.Any("error", err))
		}
	}
	if r.metrics != nil {
		r.metrics.PermissionResolved()
	}
	return perms, nil
}

// InvalidateUser drops the cached set for one user.
func (r *Resolver) InvalidateUser(ctx context.Context, userID string) error {
	if r.metrics != nil {
		r.metrics.UsersInvalidated(1)
	}
	return r.cache.Invalidate(ctx, userID)
}

// InvalidateRole drops the cached set of every user assigned to roleID or
// to any of its descendants, which all inherit from it.
func (r *Resolver) InvalidateRole(ctx context.Context, roleID string) error {
	roleIDs, err := descendantRoleIDs(ctx, r.store, roleID)
	if err != nil {
		return err
	}
	var userIDs []string
	for _, id := range roleIDs {
		assigned, err := r.store.ListUserIDsByRole(ctx, id)
		if err != nil {
			return err
		}
		userIDs = append(userIDs, assigned...)
	}
	if len(userIDs) == 0 {
		return nil
	}
	if r.metrics != nil {
		r.metrics.UsersInvalidated(len(userIDs))
	}
	return r.cache.Invalidate(ctx, userIDs...)
}

func contains(perms []string, permission string) bool {
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}
