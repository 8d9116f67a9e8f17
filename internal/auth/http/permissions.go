package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/domain"
	"github.com/tidewater/gatehouse/internal/auth/service"
	"github.com/tidewater/gatehouse/pkg/apperr"
	"github.com/tidewater/gatehouse/pkg/httpx"
)

// PermissionsHandler serves the permission admin surface.
type PermissionsHandler struct {
	RBAC *service.RBACService
}

type permissionResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Resource    string    `json:"resource"`
	Action      string    `json:"action"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func toPermissionResponse(p domain.Permission) permissionResponse {
	return permissionResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Resource:    p.Resource,
		Action:      string(p.Action),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// HandleList responds to GET /v1/permissions.
func (h *PermissionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePage(r)
	perms, err := h.RBAC.ListPermissions(r.Context(), limit, offset)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}

	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, toPermissionResponse(p))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"permissions": out})
}

// HandleGet responds to GET /v1/permissions/{id}.
func (h *PermissionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.RBAC.GetPermission(r.Context(), r.PathValue("id"))
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPermissionResponse(p))
}

type createPermissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
}

// HandleCreate responds to POST /v1/permissions.
func (h *PermissionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Resource == "" {
		apperr.WriteError(w, apperr.E(apperr.KindValidation, apperr.CodeValidation, "name, resource, and action are required"))
		return
	}

	action, err := domain.ParseAction(req.Action)
	if err != nil {
		apperr.WriteError(w, apperr.E(apperr.KindValidation, apperr.CodeValidation, err.Error()))
		return
	}

	p, err := h.RBAC.CreatePermission(r.Context(), req.Name, req.Description, req.Resource, action)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toPermissionResponse(p))
}

type updatePermissionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HandleUpdate responds to PATCH /v1/permissions/{id}. Resource and
// action are immutable; create a new permission instead.
func (h *PermissionsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	permissionID := r.PathValue("id")

	var req updatePermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteError(w, apperr.E(apperr.KindValidation, apperr.CodeValidation, "invalid request body"))
		return
	}

	current, err := h.RBAC.GetPermission(r.Context(), permissionID)
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

	p, err := h.RBAC.UpdatePermission(r.Context(), permissionID, req.Name, req.Description)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toPermissionResponse(p))
}

// HandleDelete responds to DELETE /v1/permissions/{id}.
func (h *PermissionsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.RBAC.DeletePermission(r.Context(), r.PathValue("id")); err != nil {
		apperr.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
