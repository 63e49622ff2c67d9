// Package transport contains the HTTP router, middleware chain, and the
// request handlers for the administrative API.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pitabwire/karani/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:       http.StatusBadRequest,
	model.ErrUnauthorized:     http.StatusUnauthorized,
	model.ErrForbidden:        http.StatusForbidden,
	model.ErrNotFound:         http.StatusNotFound,
	model.ErrConflict:         http.StatusConflict,
	model.ErrInternalError:    http.StatusInternalServerError,
	model.ErrStoreUnavailable: http.StatusBadGateway,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteOutcome renders a pipeline Outcome through the normal response path.
// The status is 200 whether or not the Outcome carries validation errors;
// validation failure is data, not an HTTP-level error.
func WriteOutcome(w http.ResponseWriter, out *model.Outcome) {
	WriteJSON(w, http.StatusOK, out)
}

// WriteError writes an ErrorEnvelope as a JSON response with the correct
// HTTP status code. The envelope may be wrapped; errors carrying no envelope
// at all render as a generic 500; the underlying cause is for the logs,
// never the client.
func WriteError(w http.ResponseWriter, err error) {
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) {
		ee = model.NewInternalError()
	}

	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, status, errorResponse{Error: ee})
}
