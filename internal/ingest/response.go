package ingest

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response envelopes mirror the management API's shape so callers see one
// consistent contract across the whole surface.

type errorBody struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Code      int    `json:"code"`
	Details   any    `json:"details,omitempty"`
}

type envelope struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Message   string     `json:"message,omitempty"`
	Timestamp string     `json:"timestamp,omitempty"`
	Error     *errorBody `json:"error,omitempty"`
}

func sendError(w http.ResponseWriter, code int, message string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error: &errorBody{
			Message:   message,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Code:      code,
			Details:   details,
		},
	})
}

func sendSuccess(w http.ResponseWriter, code int, data any, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(envelope{
		Success:   true,
		Data:      data,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
