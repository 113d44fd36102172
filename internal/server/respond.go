package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/desertthunder/plexproxy/internal/services"
	"github.com/desertthunder/plexproxy/internal/shared"
)

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Del("Content-Length")
	writeJSON(w, status, errorBody{Error: msg})
}

// StatusFor maps an error to the HTTP status and client message for it.
//
// ok is false when the client is gone and nothing should be written.
// Messages never carry upstream paths or credentials.
func StatusFor(err error) (status int, msg string, ok bool) {
	var se *services.StatusError

	switch {
	case errors.Is(err, context.Canceled):
		return 0, "", false
	case errors.Is(err, shared.ErrTicketGone):
		return http.StatusGone, "ticket expired", true
	case errors.Is(err, shared.ErrLocatorNotFound):
		return http.StatusNotFound, "not found", true
	case errors.Is(err, shared.ErrInvalidInput):
		return http.StatusBadRequest, "bad request", true
	case errors.As(err, &se):
		return se.StatusCode, "upstream returned " + http.StatusText(se.StatusCode), true
	default:
		return http.StatusBadGateway, "upstream unavailable", true
	}
}
