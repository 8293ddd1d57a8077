// Package httputil provides JSON response helpers and the common middleware
// of the ops HTTP surface.
package httputil

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// WriteErrorMessage writes a JSON error response carrying the request id.
func WriteErrorMessage(w http.ResponseWriter, r *http.Request, status int, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message, RequestID: RequestID(r.Context())})
}

// WriteNotFoundError writes a not found error response (404 Not Found)
func WriteNotFoundError(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, http.StatusNotFound, message)
}

// WriteInternalError writes a 500 without leaking the underlying error.
func WriteInternalError(w http.ResponseWriter, r *http.Request, message string) {
	WriteErrorMessage(w, r, http.StatusInternalServerError, message)
}
