package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	chaterrors "groupchat/errors"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the failure kind onto an HTTP status and returns the
// reason to the caller. Anything without a kind is an internal error and
// its detail stays in the log.
func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, chaterrors.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, chaterrors.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, chaterrors.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, chaterrors.ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Error("request failed", "error", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decode unmarshals the JSON body into req and runs struct validation.
func decode(r *http.Request, req any) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		return chaterrors.Validation("invalid request body: %v", err)
	}
	if err := validate.Struct(req); err != nil {
		return chaterrors.Validation("invalid request: %v", err)
	}
	return nil
}
