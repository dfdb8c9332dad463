// internal/app/features/errors/errors.go
package errors

import (
	"encoding/json"
	"net/http"
)

// Response is the body of every failed API call.
//
//	{ "success": false, "error": "not_found", "message": "…" }
type Response struct {
	Success           bool   `json:"success"`
	Error             string `json:"error"`
	Message           string `json:"message,omitempty"`
	LastCompletedStep string `json:"lastCompletedStep,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Write sends a failure body. Success is always false.
func Write(w http.ResponseWriter, status int, resp Response) {
	resp.Success = false
	WriteJSON(w, status, resp)
}

// BadRequest is shorthand for a 400 with a reason code and message.
func BadRequest(w http.ResponseWriter, reason, msg string) {
	Write(w, http.StatusBadRequest, Response{Error: reason, Message: msg})
}

// NotFound renders a JSON 404 for unknown API routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	Write(w, http.StatusNotFound, Response{Error: "not_found", Message: "No route for " + r.Method + " " + r.URL.Path})
}

// MethodNotAllowed renders a JSON 405.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Write(w, http.StatusMethodNotAllowed, Response{Error: "method_not_allowed"})
}
