package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ternarybob/scrutor/internal/models"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteServiceError maps service-layer errors onto HTTP status codes.
func WriteServiceError(w http.ResponseWriter, err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		return WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrUnauthorized):
		return WriteError(w, http.StatusForbidden, "unauthorized to do this action")
	case errors.Is(err, models.ErrJobNotFound):
		return WriteError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, models.ErrInvalidTransition):
		return WriteError(w, http.StatusConflict, err.Error())
	case models.IsProviderError(err):
		return WriteError(w, http.StatusInternalServerError, err.Error())
	case models.IsSchemaValidationError(err):
		return WriteError(w, http.StatusInternalServerError, err.Error())
	default:
		return WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
