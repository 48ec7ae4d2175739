package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrEthical07/deviceauth"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int) {
	writeJSON(w, status, errorBody{Error: errorText(status)})
}

func errorText(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusTooManyRequests:
		return "too many requests"
	case http.StatusServiceUnavailable:
		return "service unavailable"
	case http.StatusBadRequest:
		return "bad request"
	case http.StatusNotFound:
		return "not found"
	case http.StatusForbidden:
		return "forbidden"
	default:
		return "internal error"
	}
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, deviceauth.ErrAuthFailed),
		errors.Is(err, deviceauth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, deviceauth.ErrLoginRateLimited),
		errors.Is(err, deviceauth.ErrRefreshRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, deviceauth.ErrStoreUnavailable),
		errors.Is(err, deviceauth.ErrEngineNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
