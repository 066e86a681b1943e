package middleware

import (
	"encoding/json"
	"net/http"
)

// errorBody is the wire format for every denial and failure response.
// The shape is stable: clients match on error_type, not on message text.
type errorBody struct {
	Error     bool           `json:"error"`
	ErrorType string         `json:"error_type"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// WriteError writes a JSON error response in the standard envelope.
func WriteError(w http.ResponseWriter, status int, errorType, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error:     true,
		ErrorType: errorType,
		Message:   message,
		Details:   details,
	})
}
