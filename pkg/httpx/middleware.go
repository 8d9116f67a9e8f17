// Package httpx carries the generic HTTP plumbing: middleware chaining,
// JSON responses, and the volumetric rate limiter. Anything that knows
// about identities or permissions lives in internal/auth/http instead.
package httpx

import "net/http"

// Middleware wraps a handler with cross-cutting behavior.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares so the first listed runs outermost:
// Chain(h, a, b) serves a(b(h)).
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
