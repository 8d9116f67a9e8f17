package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/tidewater/gatehouse/internal/auth/domain"
	"github.com/tidewater/gatehouse/internal/identity"
	"github.com/tidewater/gatehouse/internal/obs"
	"github.com/tidewater/gatehouse/pkg/apperr"
	"github.com/tidewater/gatehouse/pkg/httpx"
	"github.com/tidewater/gatehouse/pkg/slogx"
)

// PermissionLoader is what the pipeline needs from the RBAC service.
type PermissionLoader interface {
	LoadPermissions(ctx context.Context, userID string) (domain.Permissions, error)
}

// AuthnMiddleware extracts the bearer token, verifies it with the
// identity provider, and puts the claims into the request context. The
// three verification outcomes the spec distinguishes (missing, invalid,
// disabled) all terminate here.
func AuthnMiddleware(p identity.Provider) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				apperr.WriteError(w, apperr.ErrUnauthenticated)
				return
			}
			raw := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer"))

			claims, err := p.VerifyToken(ctx, raw)
			if err != nil {
				log.Warn("token verification failed", "err", err)
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				apperr.WriteError(w, apperr.ErrUnauthenticated)
				return
			}

			ctx = context.WithValue(ctx, httpx.CtxKeyUserID, claims.Subject)
			ctx = context.WithValue(ctx, httpx.CtxKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PermissionsMiddleware resolves the caller's effective permission set
// and stores it in the context for RequirePermission. An empty set
// proceeds (the authz stage will deny); a resolver failure is a hard 500,
// never silently "no permissions".
func PermissionsMiddleware(loader PermissionLoader) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			userID := httpx.UserIDFromContext(ctx)
			if userID == "" {
				apperr.WriteError(w, apperr.ErrUnauthenticated)
				return
			}

			perms, err := loader.LoadPermissions(ctx, userID)
			if err != nil {
				slogx.FromContext(ctx).Error("permission load failed", "err", err, "user_id", userID)
				apperr.WriteError(w, err)
				return
			}

			ctx = context.WithValue(ctx, httpx.CtxKeyPermissions, perms)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func permissionsFromContext(ctx context.Context) (domain.Permissions, bool) {
	perms, ok := ctx.Value(httpx.CtxKeyPermissions).(domain.Permissions)
	return perms, ok
}

// RequirePermission denies the request unless the loaded permission set
// allows the given action on the resource. A request that never went
// through PermissionsMiddleware is denied, not treated as empty.
func RequirePermission(resource string, action domain.Action) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			perms, ok := permissionsFromContext(r.Context())
			if !ok || !perms.Allows(resource, action) {
				obs.RecordAuthzDenial(resource, string(action))
				apperr.WriteError(w, apperr.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequirePermissionOrSelf is RequirePermission with an owner bypass: when
// the path parameter names the caller itself, the permission check is
// skipped entirely. The bypass is evaluated first so a user can always
// operate on itself even with zero roles.
func RequirePermissionOrSelf(resource string, action domain.Action, pathParam string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if target := r.PathValue(pathParam); target != "" && target == httpx.UserIDFromContext(ctx) {
				next.ServeHTTP(w, r)
				return
			}

			perms, ok := permissionsFromContext(ctx)
			if !ok || !perms.Allows(resource, action) {
				obs.RecordAuthzDenial(resource, string(action))
				apperr.WriteError(w, apperr.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
