package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/domain"
	"github.com/tidewater/gatehouse/internal/auth/service"
	"github.com/tidewater/gatehouse/pkg/apperr"
	"github.com/tidewater/gatehouse/pkg/httpx"
)

// RolesHandler serves the role admin surface.
type RolesHandler struct {
	RBAC *service.RBACService
}

type roleResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	PermissionIDs []string  `json:"permissionIds"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func toRoleResponse(r domain.Role) roleResponse {
	ids := r.PermissionIDs
	if ids == nil {
		ids = []string{}
	}
	return roleResponse{
		ID:            r.ID,
		Name:          r.Name,
		Description:   r.Description,
		PermissionIDs: ids,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// parsePage reads limit/offset query parameters with sane bounds.
func parsePage(r *http.Request) (limit, offset int) {
	limit = 100
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 1000 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

// HandleList responds to GET /v1/roles.
func (h *RolesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	roles, err := h.RBAC.ListRoles(r.Context(), limit, offset)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}

	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"roles": out})
}

// HandleGet responds to GET /v1/roles/{id}.
func (h *RolesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	role, err := h.RBAC.GetRole(r.Context(), r.PathValue("id"))
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRoleResponse(role))
}

type createRoleRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	PermissionIDs []string `json:"permissionIds"`
}

// HandleCreate responds to POST /v1/roles.
func (h *RolesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		apperr.WriteError(w, apperr.E(apperr.KindValidation, apperr.CodeValidation, "name is required"))
		return
	}

	role, err := h.RBAC.CreateRole(r.Context(), req.Name, req.Description, req.PermissionIDs)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toRoleResponse(role))
}

type updateRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HandleUpdate responds to PATCH /v1/roles/{id}. Only name and
// description are mutable here; the permission set has its own routes.
func (h *RolesHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	roleID := r.PathValue("id")

	var req updateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteError(w, apperr.E(apperr.KindValidation, apperr.CodeValidation, "invalid request body"))
		return
	}

	current, err := h.RBAC.GetRole(r.Context(), roleID)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	if req.Name == "" {
		req.Name = current.Name
	}
	if req.Description == "" {
		req.Description = current.Description
	}

	role, err := h.RBAC.UpdateRole(r.Context(), roleID, req.Name, req.Description)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRoleResponse(role))
}

// HandleDelete responds to DELETE /v1/roles/{id}.
func (h *RolesHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.RBAC.DeleteRole(r.Context(), r.PathValue("id")); err != nil {
		apperr.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type rolePermissionsRequest struct {
	PermissionIDs []string `json:"permissionIds"`
}

// HandleAddPermissions responds to POST /v1/roles/{id}/permissions.
func (h *RolesHandler) HandleAddPermissions(w http.ResponseWriter, r *http.Request) {
	var req rolePermissionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.PermissionIDs) == 0 {
		apperr.WriteError(w, apperr.E(apperr.KindValidation, apperr.CodeValidation, "permissionIds is required"))
		return
	}

	role, err := h.RBAC.AddPermissionsToRole(r.Context(), r.PathValue("id"), req.PermissionIDs)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRoleResponse(role))
}

// HandleRemovePermissions responds to DELETE /v1/roles/{id}/permissions.
func (h *RolesHandler) HandleRemovePermissions(w http.ResponseWriter, r *http.Request) {
	var req rolePermissionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.PermissionIDs) == 0 {
		apperr.WriteError(w, apperr.E(apperr.KindValidation, apperr.CodeValidation, "permissionIds is required"))
		return
	}

	role, err := h.RBAC.RemovePermissionsFromRole(r.Context(), r.PathValue("id"), req.PermissionIDs)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toRoleResponse(role))
}
