// Package http exposes the access-control admin surface over HTTP. Each
// endpoint maps 1:1 onto a manager or resolver operation with the same
// inputs and error taxonomy.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/freightdesk/freightdesk/internal/access"
	"github.com/freightdesk/freightdesk/internal/platform/httpx"
	"github.com/freightdesk/freightdesk/internal/shared"
	"github.com/freightdesk/freightdesk/jobs"
)

// Handler wires role, override and permission endpoints.
type Handler struct {
	logger     *slog.Logger
	manager    *access.Manager
	resolver   *access.Resolver
	guard      access.Middleware
	jobsClient *jobs.Client
	validator  *validator.Validate
}

// NewHandler builds a Handler instance. jobsClient may be nil; the cache
// admin endpoints then report unavailability.
func NewHandler(logger *slog.Logger, manager *access.Manager, resolver *access.Resolver, guard access.Middleware, jobsClient *jobs.Client) *Handler {
	return &Handler{
		logger:     logger,
		manager:    manager,
		resolver:   resolver,
		guard:      guard,
		jobsClient: jobsClient,
		validator:  validator.New(),
	}
}

// MountRoleRoutes registers role management routes.
func (h *Handler) MountRoleRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermRolesView, shared.PermRolesEdit))
		r.Get("/", h.listRoles)
		r.Get("/{roleID}", h.getRole)
		r.Get("/{roleID}/permissions", h.getRolePermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermRolesEdit))
		r.Post("/", h.createRole)
		r.Post("/system", h.ensureSystemRoles)
		r.Put("/{roleID}", h.updateRole)
		r.Put("/{roleID}/parent", h.setParentRole)
		r.Delete("/{roleID}", h.deleteRole)
	})
}

// MountCacheRoutes registers permission cache administration routes. Warmup
// and flush run on the worker, not on the request goroutine.
func (h *Handler) MountCacheRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermRolesEdit))
		r.Post("/warmup", h.enqueueCacheWarmup)
		r.Post("/flush", h.enqueueCacheFlush)
	})
}

// MountUserRoutes registers per-user permission and override routes.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermUsersView, shared.PermUsersEdit))
		r.Get("/{userID}/permissions", h.getUserPermissions)
		r.Get("/{userID}/permissions/{permission}", h.checkUserPermission)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermOverridesEdit))
		r.Put("/{userID}/overrides", h.setOverride)
		r.Delete("/{userID}/overrides/{permission}", h.removeOverride)
	})
}

type roleResponse struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenantId"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ParentID    string   `json:"parentId,omitempty"`
	Permissions []string `json:"permissions"`
	IsSystem    bool     `json:"isSystem"`
}

type roleDetailResponse struct {
	roleResponse
	Inherited []string `json:"inherited"`
}

func toRoleResponse(role access.Role) roleResponse {
	return roleResponse{
		ID:          role.ID,
		TenantID:    role.TenantID,
		Name:        role.Name,
		Description: role.Description,
		ParentID:    role.ParentID,
		Permissions: role.Permissions,
		IsSystem:    role.IsSystem,
	}
}

type createRoleRequest struct {
	Name        string   `json:"name" validate:"required,max=120"`
	Description string   `json:"description" validate:"max=500"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	if tenantID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant is required")
		return
	}
	var req createRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.manager.CreateRole(r.Context(), tenantID, req.Name, req.Description, req.Permissions)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toRoleResponse(*role))
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	roles, err := h.manager.ListRoles(r.Context(), tenantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	detail, err := h.manager.GetRoleWithDetails(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, roleDetailResponse{
		roleResponse: toRoleResponse(detail.Role),
		Inherited:    detail.Inherited,
	})
}

func (h *Handler) getRolePermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.manager.GetEffectivePermissions(r.Context(), chi.URLParam(r, "roleID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

type updateRoleRequest struct {
	Name        *string   `json:"name" validate:"omitempty,max=120"`
	Description *string   `json:"description" validate:"omitempty,max=500"`
	Permissions *[]string `json:"permissions"`
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	role, err := h.manager.UpdateRole(r.Context(), chi.URLParam(r, "roleID"), access.UpdateRoleParams{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRoleResponse(*role))
}

type setParentRequest struct {
	ParentID string `json:"parentId"`
}

func (h *Handler) setParentRole(w http.ResponseWriter, r *http.Request) {
	var req setParentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.manager.SetParentRole(r.Context(), chi.URLParam(r, "roleID"), req.ParentID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.DeleteRole(r.Context(), chi.URLParam(r, "roleID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getUserPermissions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	perms, err := h.resolver.GetEffectivePermissions(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"userId": userID, "permissions": perms})
}

func (h *Handler) checkUserPermission(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	permission := chi.URLParam(r, "permission")
	allowed, err := h.resolver.HasPermission(r.Context(), userID, permission)
	if err != nil {
		// Point checks fail closed; detail belongs in logs, not responses.
		h.logger.Error("permission check", slog.String("user", userID), slog.Any("error", err))
		allowed = false
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"userId": userID, "permission": permission, "allowed": allowed})
}

type setOverrideRequest struct {
	Permission string `json:"permission" validate:"required,max=200"`
	Type       string `json:"type" validate:"required,oneof=GRANT REVOKE"`
	Reason     string `json:"reason" validate:"max=500"`
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request) {
	var req setOverrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	ov := access.Override{
		UserID:     chi.URLParam(r, "userID"),
		Permission: req.Permission,
		Type:       access.OverrideType(req.Type),
		Reason:     req.Reason,
		GrantedBy:  shared.ActorFromContext(r.Context()),
	}
	if err := h.manager.SetOverride(r.Context(), ov); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ensureSystemRoles(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	if tenantID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant is required")
		return
	}
	if err := h.manager.EnsureSystemRoles(r.Context(), tenantID, shared.SystemRoleSeeds()); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) enqueueCacheWarmup(w http.ResponseWriter, r *http.Request) {
	if h.jobsClient == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "job queue not configured")
		return
	}
	tenantID := shared.TenantFromContext(r.Context())
	if tenantID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant is required")
		return
	}
	info, err := h.jobsClient.EnqueuePermissionsWarmup(r.Context(), jobs.PermissionsWarmupPayload{TenantID: tenantID})
	if err != nil {
		h.logger.Error("enqueue cache warmup", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"taskId": info.ID})
}

func (h *Handler) enqueueCacheFlush(w http.ResponseWriter, r *http.Request) {
	if h.jobsClient == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "job queue not configured")
		return
	}
	info, err := h.jobsClient.EnqueuePermissionsFlush(r.Context())
	if err != nil {
		h.logger.Error("enqueue cache flush", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusAccepted, map[string]any{"taskId": info.ID})
}

func (h *Handler) removeOverride(w http.ResponseWriter, r *http.Request) {
	err := h.manager.RemoveOverride(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "permission"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
