package middleware

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the JSON body of every failed API call.
type ErrorResponse struct {
	Success bool          `json:"success"`
	Error   string        `json:"error"`
	Code    string        `json:"code,omitempty"`
	Details *LimitDetails `json:"details,omitempty"`
}

// LimitDetails describes a rejected request's limit and when to retry.
type LimitDetails struct {
	Message           string `json:"message"`
	LimitType         string `json:"limitType"`
	RetryAfterSeconds int    `json:"retryAfterSeconds"`
	RefreshTime       string `json:"refreshTime"`
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
