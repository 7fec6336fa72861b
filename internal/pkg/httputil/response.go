package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// ErrorResponse is the error envelope for the status API.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// JSON writes data as a JSON response with the given status code. Encode
// failures are logged; the status line has already been written by then.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[StatusAPI] JSON encode error: %v", err)
	}
}

// OK writes a 200 response with the given data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// Error writes a JSON error response for client errors (4xx).
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorResponse{Error: message})
}

// NotFound writes a 404 error.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}

// InternalError writes a 500 error. The real error is logged, never sent
// to the client.
func InternalError(w http.ResponseWriter, err error) {
	log.Printf("[StatusAPI] internal error: %v", err)
	Error(w, http.StatusInternalServerError, "internal server error")
}
