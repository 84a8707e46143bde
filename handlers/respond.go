package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/NAHIAN-19/project-planner/logging"
	"github.com/NAHIAN-19/project-planner/middleware"
	"github.com/NAHIAN-19/project-planner/services"
	"github.com/NAHIAN-19/project-planner/validation"
)

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Logger.Errorf("Event ID: RESPONSE_ENCODE_FAILED, Description: Failed to encode response: %v", err)
	}
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Status: "error", Message: message})
}

// writeError maps a service error to its status code. Unexpected errors are logged and hidden.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, validation.ErrInvalid),
		errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrInvalidAction),
		errors.Is(err, services.ErrInvalidState),
		errors.Is(err, services.ErrLimitExceeded):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrPermission):
		writeMessage(w, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrConflict):
		writeMessage(w, http.StatusConflict, err.Error())
	default:
		logging.Logger.Errorf("Event ID: INTERNAL_ERROR, Description: %s %s failed: %v", r.Method, r.URL.Path, err)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

// actor is the authenticated user id. Routes are mounted behind JWTAuth, so it is always set.
func actor(r *http.Request) string {
	id, _ := middleware.IdentityFromContext(r.Context())
	return id.UserID
}
