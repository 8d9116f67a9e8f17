package httpx

import "context"

type ctxKey string

const (
	// CtxKeyUserID holds the authenticated subject as a string.
	CtxKeyUserID ctxKey = "user_id"

	// CtxKeyPermissions holds the caller's effective permission set.
	CtxKeyPermissions ctxKey = "permissions"

	// CtxKeyClaims holds the full verified claims.
	CtxKeyClaims ctxKey = "claims"
)

// UserIDFromContext returns the authenticated user ID, or "" when the
// request is anonymous.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyUserID).(string); ok {
		return v
	}
	return ""
}
