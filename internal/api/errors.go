package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/mailqueue/pkg/dispatch"
	"github.com/dmitrymomot/mailqueue/pkg/logger"
	"github.com/dmitrymomot/mailqueue/pkg/queue"
	"github.com/dmitrymomot/mailqueue/pkg/sequence"
)

var (
	ErrInvalidBody  = errors.New("api: invalid request body")
	ErrMissingField = errors.New("api: missing required field")
	ErrUnauthorized = errors.New("api: unauthorized")
)

// httpError is the body of every error response.
type httpError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	status    int
}

func classify(err error) httpError {
	switch {
	case errors.Is(err, queue.ErrJobNotFound),
		errors.Is(err, queue.ErrTemplateNotFound),
		errors.Is(err, queue.ErrSequenceNotFound),
		errors.Is(err, queue.ErrRecipientNotFound):
		return httpError{status: http.StatusNotFound, Code: "not_found", Message: err.Error()}
	case errors.Is(err, queue.ErrNotCancellable):
		return httpError{status: http.StatusConflict, Code: "not_cancellable", Message: err.Error()}
	case errors.Is(err, ErrInvalidBody),
		errors.Is(err, ErrMissingField),
		errors.Is(err, queue.ErrInvalidVariable):
		return httpError{status: http.StatusBadRequest, Code: "bad_request", Message: err.Error()}
	case errors.Is(err, dispatch.ErrNoRecipient),
		errors.Is(err, dispatch.ErrInvalidRetention),
		errors.Is(err, sequence.ErrNoEmail),
		errors.Is(err, sequence.ErrNoSteps):
		return httpError{status: http.StatusUnprocessableEntity, Code: "unprocessable", Message: err.Error()}
	case errors.Is(err, ErrUnauthorized):
		return httpError{status: http.StatusUnauthorized, Code: "unauthorized", Message: err.Error()}
	default:
		return httpError{status: http.StatusInternalServerError, Code: "internal", Message: "internal server error"}
	}
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	he := classify(err)
	he.RequestID = logger.RequestID(r.Context())
	if he.status >= http.StatusInternalServerError {
		s.Logger.ErrorContext(r.Context(), "request failed", slog.String("error", err.Error()))
	}
	writeJSON(w, he.status, map[string]httpError{"error": he})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
