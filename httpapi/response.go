package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/leadforge/authcore"
)

type apiError struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, map[string]any{
		"status": "success",
		"data":   data,
	})
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{
		"status":  "success",
		"message": message,
	})
}

func writeError(w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, apiError{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		seconds := int(retryAfter.Round(time.Second).Seconds())
		if seconds < 1 {
			seconds = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
	}
	writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests")
}

// writeEngineError maps infrastructure errors from the engine onto status
// codes. Outcome values never reach here; they are mapped per-handler.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, authcore.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
	case errors.Is(err, authcore.ErrRateLimited):
		writeRateLimited(w, 0)
	case errors.Is(err, authcore.ErrMFANotPending):
		writeError(w, http.StatusConflict, "MFA_NOT_PENDING", "no pending mfa enrollment")
	case errors.Is(err, authcore.ErrMFACodeInvalid):
		writeError(w, http.StatusUnauthorized, "MFA_CODE_INVALID", "invalid mfa code")
	case errors.Is(err, authcore.ErrEngineClosed):
		writeError(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "service shutting down")
	default:
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "temporarily unavailable")
	}
}
