package access

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"log/slog"

	"github.com/freightdesk/freightdesk/internal/shared"
)

// Middleware wires authorization checks for HTTP handlers. A denial is
// always a bare 403: callers never learn whether it came from a missing
// grant, an explicit revoke, or an internal anomaly that failed closed.
type Middleware struct {
	Checker PermissionChecker
	Logger  *slog.Logger
}

// Require ensures the current user holds every listed permission.
func (m Middleware) Require(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID := shared.ActorFromContext(r.Context())
			if userID == "" {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			for _, p := range normalized {
				ok, err := m.Checker.HasPermission(r.Context(), userID, p)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("authorization check", slog.String("permission", p), slog.Any("error", err))
					}
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
				if !ok {
					http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAny ensures the current user holds at least one listed permission.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	normalized := normalizePermissions(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			userID := shared.ActorFromContext(r.Context())
			if userID == "" {
				http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
				return
			}
			for _, p := range normalized {
				ok, err := m.Checker.HasPermission(r.Context(), userID, p)
				if err != nil {
					if m.Logger != nil {
						m.Logger.Error("authorization check", slog.String("permission", p), slog.Any("error", err))
					}
					continue
				}
				if ok {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}

// Guard wraps an operation with a permission check, keeping the resolution
// engine free of transport concerns. The actor is taken from the context.
func Guard(checker PermissionChecker, permission string, op func(context.Context) error) func(context.Context) error {
	permission = strings.ToLower(strings.TrimSpace(permission))
	return func(ctx context.Context) error {
		userID := shared.ActorFromContext(ctx)
		if userID == "" {
			return fmt.Errorf("%w: no actor in context", ErrForbidden)
		}
		ok, err := checker.HasPermission(ctx, userID, permission)
		if err != nil || !ok {
			return fmt.Errorf("%w: %s", ErrForbidden, permission)
		}
		return op(ctx)
	}
}
