package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/questlore/questpub/pkg/questpub"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error  string                `json:"error"`
	Fields []questpub.FieldError `json:"errors,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string, fields []questpub.FieldError) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: message, Fields: fields})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, questpub.ErrValidation), errors.Is(err, questpub.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, questpub.ErrQuestNotFound):
		return http.StatusNotFound
	case errors.Is(err, questpub.ErrTombstoned):
		return http.StatusConflict
	case errors.Is(err, questpub.ErrOwnerMismatch):
		return http.StatusForbidden
	case errors.Is(err, questpub.ErrUploadFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders err with the matching status. Server-side
// failures are logged and their details withheld from the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)

	var verr *questpub.ValidationError
	if errors.As(err, &verr) {
		writeError(w, r, status, questpub.ErrValidation.Error(), verr.Fields)
		return
	}

	if questpub.IsClientError(err) {
		writeError(w, r, status, err.Error(), nil)
		return
	}

	slog.ErrorContext(r.Context(), "Request failed", "op", op, "err", err)
	writeError(w, r, status, http.StatusText(status), nil)
}
