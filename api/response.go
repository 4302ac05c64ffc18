package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"cyberia-pathway/pathfinding"
	"cyberia-pathway/server"
)

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

// statusFor maps navigation errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, server.ErrAgentNotFound), errors.Is(err, pathfinding.ErrUnknownMap):
		return http.StatusNotFound
	case errors.Is(err, server.ErrInvalidRequest),
		errors.Is(err, pathfinding.ErrOutOfBounds),
		errors.Is(err, pathfinding.ErrNoMap):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
