package tokenauth

import (
	"encoding/json"
	"net/http"
)

// ErrorEnvelope is the JSON body of every failed request.
type ErrorEnvelope struct {
	StatusCode int    `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// NewErrorEnvelope builds the envelope for err using only its public message.
func NewErrorEnvelope(err error) ErrorEnvelope {
	status := StatusOf(err)
	return ErrorEnvelope{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    MessageOf(err),
	}
}

// WriteError writes the JSON error envelope for err.
func WriteError(w http.ResponseWriter, err error) {
	env := NewErrorEnvelope(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(env.StatusCode)
	_ = json.NewEncoder(w).Encode(env)
}
