package handler

// RESPONSE HELPERS:
// Every JSON endpoint answers with the same envelope, so the browser code
// can handle success and failure the same way on every page:
//
//	{"success": true,  "data": {...}}
//	{"success": false, "error": "Please enter a valid 6-digit code", "kind": "validation_error"}
//	{"success": false, "error": "...", "kind": "rate_limited", "isRateLimit": true, "waitTimeSeconds": 42}

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/snuffspec/internal/apperror"
	"github.com/sakif/snuffspec/internal/gateway"
	"github.com/sakif/snuffspec/internal/otp"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// ActionResult is the response envelope.
type ActionResult struct {
	Success         bool   `json:"success"`
	Data            any    `json:"data,omitempty"`
	Error           string `json:"error,omitempty"`
	Kind            string `json:"kind,omitempty"`
	Field           string `json:"field,omitempty"`
	IsRateLimit     bool   `json:"isRateLimit,omitempty"`
	WaitTimeSeconds int    `json:"waitTimeSeconds,omitempty"`
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status must be set before the body: once Encode writes,
// later header changes are silently ignored.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, ActionResult{Success: true, Data: data})
}

// errorStatus maps a domain error to its HTTP status and kind.
//
// errors.Is walks the whole chain, so a service error wrapped as
// fmt.Errorf("...: %w", apperror.NotFound(...)) still maps to 404.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrRateLimited):
		return http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, apperror.ErrUpstream):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, apperror.ErrConfiguration):
		return http.StatusServiceUnavailable, "configuration_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError maps a domain error to a status code and failure envelope.
//
// Only *apperror.AppError messages reach the client. Anything else may
// carry SQL, file paths or upstream internals, so it is logged and
// replaced with a generic message.
func writeError(w http.ResponseWriter, err error) {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		writeGatewayError(w, gwErr)
		return
	}

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		slog.Error("unhandled error", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ActionResult{
			Error: "An internal error occurred",
			Kind:  "internal_error",
		})
		return
	}

	status, kind := errorStatus(err)
	res := ActionResult{
		Error: appErr.Message,
		Kind:  kind,
		Field: appErr.Field,
	}
	if status == http.StatusTooManyRequests {
		res.IsRateLimit = true
		res.WaitTimeSeconds = appErr.WaitSeconds
	}
	if status == http.StatusInternalServerError {
		res.Error = "An internal error occurred"
	}
	writeJSON(w, status, res)
}

// writeGatewayError passes the gateway's own wording through. The gateway
// is the upstream here, so anything but a rate limit is a 502.
func writeGatewayError(w http.ResponseWriter, gwErr *gateway.Error) {
	if limited, wait := otp.DetectRateLimit(gwErr); limited {
		writeJSON(w, http.StatusTooManyRequests, ActionResult{
			Error:           gwErr.Message,
			Kind:            "rate_limited",
			IsRateLimit:     true,
			WaitTimeSeconds: wait,
		})
		return
	}
	writeJSON(w, http.StatusBadGateway, ActionResult{
		Error: gwErr.Message,
		Kind:  "upstream_error",
	})
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "Invalid request body")
	}
	return nil
}
