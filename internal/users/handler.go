package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/freightdesk/freightdesk/internal/access"
	"github.com/freightdesk/freightdesk/internal/platform/httpx"
	"github.com/freightdesk/freightdesk/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	guard   access.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, guard access.Middleware) *Handler {
	return &Handler{logger: logger, service: service, guard: guard}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.RequireAny(shared.PermUsersView, shared.PermUsersEdit))
		r.Get("/", h.listUsers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Require(shared.PermUsersEdit))
		r.Put("/{userID}/role", h.assignRole)
		r.Delete("/{userID}/role", h.unassignRole)
	})
}

type userResponse struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	RoleID   string `json:"roleId,omitempty"`
	IsActive bool   `json:"isActive"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	tenantID := shared.TenantFromContext(r.Context())
	list, err := h.service.ListUsers(r.Context(), tenantID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]userResponse, 0, len(list))
	for _, u := range list {
		out = append(out, userResponse{
			ID:       u.ID,
			TenantID: u.TenantID,
			Email:    u.Email,
			Name:     u.Name,
			RoleID:   u.RoleID,
			IsActive: u.IsActive,
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type assignRoleRequest struct {
	RoleID string `json:"roleId"`
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	var req assignRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil || req.RoleID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "roleId is required")
		return
	}
	if err := h.service.AssignRole(r.Context(), chi.URLParam(r, "userID"), req.RoleID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unassignRole(w http.ResponseWriter, r *http.Request) {
	if err := h.service.UnassignRole(r.Context(), chi.URLParam(r, "userID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
