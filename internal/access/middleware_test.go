package access

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/freightdesk/freightdesk/internal/shared"
)

type stubChecker struct {
	allowed map[string]bool
	err     error
}

func (c *stubChecker) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	return c.allowed[permission], nil
}

func doRequest(t *testing.T, handler http.Handler, actor string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if actor != "" {
		req = req.WithContext(shared.ContextWithActor(req.Context(), actor))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAllowsWhenAllPermissionsHeld(t *testing.T) {
	mw := Middleware{Checker: &stubChecker{allowed: map[string]bool{"shipments.view": true, "shipments.edit": true}}}
	handler := mw.Require("shipments.view", "Shipments.Edit")(okHandler())

	rec := doRequest(t, handler, "u1")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireDeniesOnMissingPermission(t *testing.T) {
	mw := Middleware{Checker: &stubChecker{allowed: map[string]bool{"shipments.view": true}}}
	handler := mw.Require("shipments.view", "shipments.edit")(okHandler())

	rec := doRequest(t, handler, "u1")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireDeniesWithoutActor(t *testing.T) {
	mw := Middleware{Checker: &stubChecker{allowed: map[string]bool{"shipments.view": true}}}
	handler := mw.Require("shipments.view")(okHandler())

	rec := doRequest(t, handler, "")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireFailsClosedOnCheckerError(t *testing.T) {
	mw := Middleware{Checker: &stubChecker{err: errors.New("store down")}}
	handler := mw.Require("shipments.view")(okHandler())

	rec := doRequest(t, handler, "u1")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireAnyGrantsOnFirstMatch(t *testing.T) {
	mw := Middleware{Checker: &stubChecker{allowed: map[string]bool{"roles.edit": true}}}
	handler := mw.RequireAny("roles.view", "roles.edit")(okHandler())

	rec := doRequest(t, handler, "u1")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAnyDeniesWhenNoneHeld(t *testing.T) {
	mw := Middleware{Checker: &stubChecker{allowed: map[string]bool{}}}
	handler := mw.RequireAny("roles.view", "roles.edit")(okHandler())

	rec := doRequest(t, handler, "u1")
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuardWrapsOperation(t *testing.T) {
	checker := &stubChecker{allowed: map[string]bool{"roles.edit": true}}
	ran := false
	op := Guard(checker, "roles.edit", func(ctx context.Context) error {
		ran = true
		return nil
	})

	ctx := shared.ContextWithActor(context.Background(), "u1")
	require.NoError(t, op(ctx))
	require.True(t, ran)
}

func TestGuardDeniesWithoutPermission(t *testing.T) {
	checker := &stubChecker{allowed: map[string]bool{}}
	op := Guard(checker, "roles.edit", func(ctx context.Context) error {
		t.Fatal("operation must not run")
		return nil
	})

	ctx := shared.ContextWithActor(context.Background(), "u1")
	require.ErrorIs(t, op(ctx), ErrForbidden)
}

func TestGuardDeniesWithoutActor(t *testing.T) {
	checker := &stubChecker{allowed: map[string]bool{"roles.edit": true}}
	op := Guard(checker, "roles.edit", func(ctx context.Context) error { return nil })

	require.ErrorIs(t, op(context.Background()), ErrForbidden)
}
