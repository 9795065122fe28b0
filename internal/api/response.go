package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

// CodeSuccess is the envelope code of every successful response.
const CodeSuccess = "Success"

// Envelope is the uniform response shape: a machine-readable code, an
// optional human message and the payload.
type Envelope struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Error is a wire-visible failure: its Kind becomes the envelope code. The
// feature packages declare their sentinels as *Error so handlers can map any
// wrapped error back to an envelope with errors.As.
type Error struct {
	Kind    string
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

func NewError(kind string, status int, message string) *Error {
	return &Error{Kind: kind, Status: status, Message: message}
}

// Success writes a success envelope.
func Success(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, &Envelope{Code: CodeSuccess, Data: data})
}

// Fail writes the envelope for err. Unknown errors become an opaque
// InternalError so nothing about the failure leaks to the caller.
func Fail(w http.ResponseWriter, err error) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		writeJSON(w, apiErr.Status, &Envelope{Code: apiErr.Kind, Message: apiErr.Message})
		return
	}
	log.Error().Err(err).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, &Envelope{
		Code:    "InternalError",
		Message: "something went wrong",
	})
}

// FailValidation writes a rejection for a malformed request body, carrying
// the per-field messages as data.
func FailValidation(w http.ResponseWriter, details any) {
	writeJSON(w, http.StatusBadRequest, &Envelope{
		Code:    "ValidationError",
		Message: "request validation failed",
		Data:    details,
	})
}

// Decode parses a JSON request body into dst.
func Decode(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, env *Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(env); err != nil {
		log.Error().Err(err).Msg("encoding response envelope")
	}
}
