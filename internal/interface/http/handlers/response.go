package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// JSONResponse is the envelope for every JSON response.
type JSONResponse struct {
	Success bool          `json:"success"`
	Data    any           `json:"data,omitempty"`
	Error   *APIError     `json:"error,omitempty"`
	Meta    *ResponseMeta `json:"meta,omitempty"`
}

// APIError represents an API error.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ResponseMeta contains response metadata.
type ResponseMeta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// WriteJSON writes data in a success envelope.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	write(w, status, JSONResponse{
		Success: status >= 200 && status < 300,
		Data:    data,
		Meta:    &ResponseMeta{Timestamp: time.Now().UTC()},
	})
}

// WriteError writes an error envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteErrorWithDetails(w, status, code, message, nil)
}

// WriteErrorWithDetails writes an error envelope with details.
func WriteErrorWithDetails(w http.ResponseWriter, status int, code, message string, details any) {
	write(w, status, JSONResponse{
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
		Meta: &ResponseMeta{Timestamp: time.Now().UTC()},
	})
}

func write(w http.ResponseWriter, status int, body JSONResponse) {
	if id := w.Header().Get("X-Request-Id"); id != "" && body.Meta != nil {
		body.Meta.RequestID = id
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
