package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/service"
	"github.com/tidewater/gatehouse/pkg/apperr"
	"github.com/tidewater/gatehouse/pkg/httpx"
)

// UsersHandler serves account admin plus the self-accessible profile
// view.
type UsersHandler struct {
	Users *service.UserService
	RBAC  *service.RBACService
}

type userProfileResponse struct {
	ID          string               `json:"id"`
	Email       string               `json:"email"`
	Disabled    bool                 `json:"disabled"`
	CreatedAt   time.Time            `json:"createdAt"`
	Roles       []roleResponse       `json:"roles"`
	Permissions []permissionResponse `json:"permissions"`
}

// HandleGet responds to GET /v1/users/{id}. Reachable by admins and by
// the user itself (see RequirePermissionOrSelf in the router).
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	profile, err := h.Users.GetProfile(r.Context(), r.PathValue("id"))
	if err != nil {
		apperr.WriteError(w, err)
		return
	}

	resp := userProfileResponse{
		ID:          profile.ID,
		Email:       profile.Email,
		Disabled:    profile.Disabled,
		CreatedAt:   profile.CreatedAt,
		Roles:       []roleResponse{},
		Permissions: []permissionResponse{},
	}
	for _, role := range profile.Roles {
		resp.Roles = append(resp.Roles, toRoleResponse(role))
	}
	for _, p := range profile.Permissions {
		resp.Permissions = append(resp.Permissions, toPermissionResponse(p))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

type createUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createUserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// HandleCreate responds to POST /v1/users (local provider accounts).
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteError(w, apperr.E(apperr.KindValidation, apperr.CodeValidation, "invalid request body"))
		return
	}

	u, err := h.Users.CreateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, createUserResponse{
		ID:        u.ID,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	})
}

type setDisabledRequest struct {
	Disabled *bool `json:"disabled"`
}

// HandleSetDisabled responds to PATCH /v1/users/{id}. Disabling an
// account blocks new logins and kills existing access tokens at their
// next verification.
func (h *UsersHandler) HandleSetDisabled(w http.ResponseWriter, r *http.Request) {
	var req setDisabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Disabled == nil {
		apperr.WriteError(w, apperr.E(apperr.KindValidation, apperr.CodeValidation, "disabled is required"))
		return
	}

	userID := r.PathValue("id")
	if err := h.Users.SetDisabled(r.Context(), userID, *req.Disabled); err != nil {
		apperr.WriteError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"userId":   userID,
		"disabled": *req.Disabled,
	})
}

type assignRolesRequest struct {
	RoleIDs []string `json:"roleIds"`
}

// HandleAssignRoles responds to PUT /v1/users/{id}/roles, replacing the
// user's role set wholesale.
func (h *UsersHandler) HandleAssignRoles(w http.ResponseWriter, r *http.Request) {
	var req assignRolesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteError(w, apperr.E(apperr.KindValidation, apperr.CodeValidation, "invalid request body"))
		return
	}

	assignment, err := h.RBAC.AssignRoles(r.Context(), r.PathValue("id"), req.RoleIDs)
	if err != nil {
		apperr.WriteError(w, err)
		return
	}

	roleIDs := assignment.RoleIDs
	if roleIDs == nil {
		roleIDs = []string{}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"userId":    assignment.UserID,
		"roleIds":   roleIDs,
		"updatedAt": assignment.UpdatedAt,
	})
}
