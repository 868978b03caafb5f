package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jimmystore/catalog/internal/auth"
	"github.com/jimmystore/catalog/internal/catalog"
	"github.com/jimmystore/catalog/internal/images"
	"github.com/jimmystore/catalog/internal/model"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// writeServiceError maps catalog errors to HTTP statuses. Unexpected errors
// are logged and reported as 500 without detail.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		jsonError(w, http.StatusNotFound, "Item not found")
	case errors.Is(err, model.ErrInvalidID):
		jsonError(w, http.StatusBadRequest, "Invalid item ID")
	case errors.Is(err, model.ErrInvalidCategory):
		jsonError(w, http.StatusBadRequest, "category must be 'mice' or 'mousepads'")
	case errors.Is(err, images.ErrUnsupportedType):
		jsonError(w, http.StatusBadRequest, "File type not allowed")
	case errors.Is(err, images.ErrTooLarge):
		jsonError(w, http.StatusRequestEntityTooLarge, "Image exceeds 10 MiB")
	case errors.Is(err, catalog.ErrInvalidInput):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUnauthorized):
		jsonError(w, http.StatusUnauthorized, "Invalid token")
	default:
		slog.Error("failed to "+op, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to "+op)
	}
}
