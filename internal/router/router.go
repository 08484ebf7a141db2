// Package router holds the HTTP boundary: one router per concern, wired
// onto a net/http mux with method+path patterns in cmd/server.
package router

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
)

// statusFor maps the error taxonomy onto HTTP status codes. External
// service failures surface as 502 so callers can distinguish our fault
// from a provider's.
func statusFor(err error) int {
	switch {
	case apperr.IsValidation(err):
		return http.StatusBadRequest
	case apperr.IsNotFound(err):
		return http.StatusNotFound
	case apperr.IsConfiguration(err):
		return http.StatusInternalServerError
	default:
		var extErr *apperr.ExternalServiceError
		if errors.As(err, &extErr) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
