package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
)

// DevMode controls whether internal error messages are passed through to
// callers. Set once at startup; outside dev mode internal details are
// replaced with a generic message.
var DevMode = false

// Response is the JSON error body written by WriteError.
type Response struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

// HTTPStatus maps an error kind to its HTTP status code. Throttled logins
// respond 401 to match the login surface; the volumetric limiter responds
// 429.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthenticated, KindThrottled:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteError translates err into the HTTP error surface: status from the
// kind, stable code and message in the body, Retry-After header when the
// error carries a retry hint. Internal causes are suppressed outside dev
// mode.
func WriteError(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = Internal("unexpected error", err)
	}

	resp := Response{Code: e.Code, Message: e.Message}

	if e.Kind == KindInternal && !DevMode {
		resp.Message = "internal server error"
	} else if e.Kind == KindInternal && e.Err != nil {
		resp.Message = e.Message + ": " + e.Err.Error()
	}

	if e.RetryAfter > 0 {
		secs := int(e.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		resp.RetryAfterSeconds = secs
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(e.Kind))
	_ = json.NewEncoder(w).Encode(resp)
}
