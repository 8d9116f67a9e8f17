// Package http wires the HTTP surface: routing, the three-stage request
// pipeline (authn, permission load, authz), and the JSON handlers.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/tidewater/gatehouse/internal/auth/domain"
	"github.com/tidewater/gatehouse/internal/auth/service"
	"github.com/tidewater/gatehouse/internal/auth/store"
	"github.com/tidewater/gatehouse/internal/identity"
	"github.com/tidewater/gatehouse/internal/obs"
	"github.com/tidewater/gatehouse/pkg/httpx"
	"github.com/tidewater/gatehouse/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	provider     identity.Provider
	store        store.Store
	counters     httpx.CounterStore
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	Sessions *service.SessionService
	RBAC     *service.RBACService
	Users    *service.UserService
}

func NewRouter(
	provider identity.Provider,
	st store.Store,
	counters httpx.CounterStore,
	buildVersion string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		provider:     provider,
		store:        st,
		counters:     counters,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		obs.Instrument,
	}

	return r
}

// ServeHTTP implements http.Handler and applies the global middleware
// chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerRoles()
	r.registerPermissions()
	r.registerUsers()
	r.registerSystem()
}

// limit builds a limiter middleware over the shared counter store, with
// rejections feeding the metrics counter.
func (r *Router) limit(cfg httpx.RateLimitConfig, key httpx.KeyExtractor) httpx.Middleware {
	cfg.OnReject = func() { obs.RecordRateLimitRejection(cfg.Name) }
	return httpx.RateLimitMiddleware(cfg, r.counters, key)
}

// pipeline is the full three-stage chain for permission-guarded routes.
func (r *Router) pipeline(h http.Handler, authz httpx.Middleware, cfg httpx.RateLimitConfig) http.Handler {
	return httpx.Chain(h,
		r.limit(cfg, httpx.UserOrIPKeyExtractor),
		AuthnMiddleware(r.provider),
		PermissionsMiddleware(r.RBAC),
		authz,
	)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Sessions: r.Sessions}

	// Login and refresh are anonymous: limiter only, keyed by origin to
	// resist multi-account brute force from one source. Successful
	// requests are refunded (CountFailuresOnly on LoginLimit).
	loginLimited := r.limit(httpx.LoginLimit, httpx.PrefixedKeyExtractor("auth", httpx.IPKeyExtractor))

	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin), loginLimited))
	r.Mux.Handle("POST /v1/auth/refresh-token",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh), loginLimited))

	// Logout needs a verified caller but no permissions.
	r.Mux.Handle("POST /v1/auth/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			r.limit(httpx.StandardLimit, httpx.UserOrIPKeyExtractor),
			AuthnMiddleware(r.provider),
		))
}

func (r *Router) registerRoles() {
	h := &RolesHandler{RBAC: r.RBAC}

	r.Mux.Handle("GET /v1/roles",
		r.pipeline(http.HandlerFunc(h.HandleList),
			RequirePermission("roles", domain.ActionRead), httpx.StandardLimit))
	r.Mux.Handle("GET /v1/roles/{id}",
		r.pipeline(http.HandlerFunc(h.HandleGet),
			RequirePermission("roles", domain.ActionRead), httpx.StandardLimit))
	r.Mux.Handle("POST /v1/roles",
		r.pipeline(http.HandlerFunc(h.HandleCreate),
			RequirePermission("roles", domain.ActionCreate), httpx.SensitiveLimit))
	r.Mux.Handle("PATCH /v1/roles/{id}",
		r.pipeline(http.HandlerFunc(h.HandleUpdate),
			RequirePermission("roles", domain.ActionUpdate), httpx.SensitiveLimit))
	r.Mux.Handle("DELETE /v1/roles/{id}",
		r.pipeline(http.HandlerFunc(h.HandleDelete),
			RequirePermission("roles", domain.ActionDelete), httpx.SensitiveLimit))
	r.Mux.Handle("POST /v1/roles/{id}/permissions",
		r.pipeline(http.HandlerFunc(h.HandleAddPermissions),
			RequirePermission("roles", domain.ActionUpdate), httpx.SensitiveLimit))
	r.Mux.Handle("DELETE /v1/roles/{id}/permissions",
		r.pipeline(http.HandlerFunc(h.HandleRemovePermissions),
			RequirePermission("roles", domain.ActionUpdate), httpx.SensitiveLimit))
}

func (r *Router) registerPermissions() {
	h := &PermissionsHandler{RBAC: r.RBAC}

	r.Mux.Handle("GET /v1/permissions",
		r.pipeline(http.HandlerFunc(h.HandleList),
			RequirePermission("permissions", domain.ActionRead), httpx.StandardLimit))
	r.Mux.Handle("GET /v1/permissions/{id}",
		r.pipeline(http.HandlerFunc(h.HandleGet),
			RequirePermission("permissions", domain.ActionRead), httpx.StandardLimit))
	r.Mux.Handle("POST /v1/permissions",
		r.pipeline(http.HandlerFunc(h.HandleCreate),
			RequirePermission("permissions", domain.ActionCreate), httpx.SensitiveLimit))
	r.Mux.Handle("PATCH /v1/permissions/{id}",
		r.pipeline(http.HandlerFunc(h.HandleUpdate),
			RequirePermission("permissions", domain.ActionUpdate), httpx.SensitiveLimit))
	r.Mux.Handle("DELETE /v1/permissions/{id}",
		r.pipeline(http.HandlerFunc(h.HandleDelete),
			RequirePermission("permissions", domain.ActionDelete), httpx.SensitiveLimit))
}

func (r *Router) registerUsers() {
	h := &UsersHandler{Users: r.Users, RBAC: r.RBAC}

	// Self-access bypass: a user can always read its own profile.
	r.Mux.Handle("GET /v1/users/{id}",
		r.pipeline(http.HandlerFunc(h.HandleGet),
			RequirePermissionOrSelf("users", domain.ActionRead, "id"), httpx.StandardLimit))

	r.Mux.Handle("POST /v1/users",
		r.pipeline(http.HandlerFunc(h.HandleCreate),
			RequirePermission("users", domain.ActionCreate), httpx.SensitiveLimit))
	r.Mux.Handle("PATCH /v1/users/{id}",
		r.pipeline(http.HandlerFunc(h.HandleSetDisabled),
			RequirePermission("users", domain.ActionUpdate), httpx.SensitiveLimit))
	r.Mux.Handle("PUT /v1/users/{id}/roles",
		r.pipeline(http.HandlerFunc(h.HandleAssignRoles),
			RequirePermission("users", domain.ActionUpdate), httpx.SensitiveLimit))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
	r.Mux.Handle("GET /metrics", obs.Handler())
}
