package http

import (
	"encoding/json"
	"net/http"

	"github.com/tidewater/gatehouse/internal/auth/service"
	"github.com/tidewater/gatehouse/internal/obs"
	"github.com/tidewater/gatehouse/pkg/apperr"
	"github.com/tidewater/gatehouse/pkg/httpx"
)

// AuthHandler serves the session lifecycle endpoints.
type AuthHandler struct {
	Sessions *service.SessionService
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	TokenType    string `json:"tokenType"`
	UserID       string `json:"userId"`
}

// HandleLogin authenticates primary credentials.
//
//	POST /v1/auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteError(w, apperr.E(apperr.KindValidation, apperr.CodeValidation, "invalid request body"))
		return
	}
	if req.Email == "" || req.Password == "" {
		apperr.WriteError(w, apperr.E(apperr.KindValidation, apperr.CodeValidation, "email and password are required"))
		return
	}

	sess, err := h.Sessions.Login(r.Context(), req.Email, req.Password,
		httpx.IPKeyExtractor(r), r.UserAgent())
	if err != nil {
		obs.RecordLogin(loginOutcome(err))
		if apperr.KindOf(err) == apperr.KindThrottled {
			obs.RecordThrottleImposition()
		}
		apperr.WriteError(w, err)
		return
	}
	obs.RecordLogin("success")

	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresIn:    int(sess.ExpiresIn.Seconds()),
		TokenType:    "Bearer",
		UserID:       sess.UserID,
	})
}

func loginOutcome(err error) string {
	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidCredentials:
		return "invalid_credentials"
	case apperr.CodeAccountDisabled:
		return "disabled"
	case apperr.CodeLoginThrottled:
		return "throttled"
	default:
		return "error"
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
	TokenType   string `json:"tokenType"`
	UserID      string `json:"userId"`
}

// HandleRefresh exchanges a refresh token for a fresh access token.
//
//	POST /v1/auth/refresh-token
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		apperr.WriteError(w, apperr.E(apperr.KindValidation, apperr.CodeValidation, "refreshToken is required"))
		return
	}

	refreshed, err := h.Sessions.Refresh(r.Context(), req.RefreshToken, httpx.IPKeyExtractor(r))
	if err != nil {
		apperr.WriteError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, refreshResponse{
		AccessToken: refreshed.AccessToken,
		ExpiresIn:   int(refreshed.ExpiresIn.Seconds()),
		TokenType:   "Bearer",
		UserID:      refreshed.UserID,
	})
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
	AllDevices   bool   `json:"allDevices"`
}

// HandleLogout tears down sessions for the authenticated caller.
//
//	POST /v1/auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	userID := httpx.UserIDFromContext(r.Context())
	if userID == "" {
		apperr.WriteError(w, apperr.ErrUnauthenticated)
		return
	}

	// Body is optional; an empty body means "log out the current session".
	var req logoutRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	err := h.Sessions.Logout(r.Context(), userID, service.LogoutOptions{
		RefreshToken: req.RefreshToken,
		AllDevices:   req.AllDevices,
	})
	if err != nil {
		apperr.WriteError(w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}
