package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/h1v3-io/frontdesk/internal/desk"
	"github.com/h1v3-io/frontdesk/internal/voice"
)

// Stable error codes returned in the "code" field of error responses.
const (
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeBadRequest        = "bad_request"
	CodeRoomNotReady      = "room_not_ready"
	CodeVoiceUnavailable  = "voice_unavailable"
	CodeInternal          = "internal"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type requestError struct{ msg string }

func (e requestError) Error() string { return e.msg }

func badRequest(msg string) error { return requestError{msg} }

// classify maps an error to its HTTP status and stable code.
func classify(err error) (int, string) {
	var re requestError
	switch {
	case errors.As(err, &re), errors.Is(err, desk.ErrInvalidInput):
		return http.StatusBadRequest, CodeBadRequest
	case errors.Is(err, desk.ErrNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, desk.ErrInvalidTransition):
		return http.StatusConflict, CodeInvalidTransition
	case errors.Is(err, desk.ErrRoomNotReady):
		return http.StatusBadRequest, CodeRoomNotReady
	case errors.Is(err, voice.ErrUnavailable):
		return http.StatusServiceUnavailable, CodeVoiceUnavailable
	}
	return http.StatusInternalServerError, CodeInternal
}

func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}
