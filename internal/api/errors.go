package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dokzlo13/padd/internal/preset"
	"github.com/dokzlo13/padd/internal/session"
	"github.com/dokzlo13/padd/internal/wled"
)

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		// Best-effort; the client may be gone
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	var terr *wled.TransportError
	switch {
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrPoweredOff):
		return http.StatusConflict
	case errors.Is(err, session.ErrThrottled):
		return http.StatusTooManyRequests
	case errors.Is(err, session.ErrUnknownPad):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNoEffects):
		return http.StatusServiceUnavailable
	case errors.Is(err, preset.ErrInvalidPad):
		return http.StatusBadRequest
	case errors.As(err, &terr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeDomainError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
