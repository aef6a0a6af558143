// Package response implements the caller-facing JSON envelope shared by every
// endpoint: {code, message, data?, timestamp}.
package response

import (
	"encoding/json"
	"net/http"
	"time"
)

// Envelope is the uniform response body. Timestamp is epoch seconds.
type Envelope struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Success returns a 200 envelope with no data.
func Success() Envelope {
	return Envelope{
		Code:      http.StatusOK,
		Message:   "success",
		Timestamp: time.Now().Unix(),
	}
}

// Failed returns an envelope carrying an error code and message.
func Failed(code int, message string) Envelope {
	return Envelope{
		Code:      code,
		Message:   message,
		Timestamp: time.Now().Unix(),
	}
}

// Data returns a 200 envelope wrapping a payload.
func Data(data any) Envelope {
	return Envelope{
		Code:      http.StatusOK,
		Message:   "success",
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// WriteJSON writes the envelope with the given HTTP status. A zero status
// falls back to the envelope code.
func WriteJSON(w http.ResponseWriter, status int, resp Envelope) {
	if status == 0 {
		status = resp.Code
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteError writes a failed envelope, mirroring the code as HTTP status.
func WriteError(w http.ResponseWriter, code int, message string) {
	WriteJSON(w, code, Failed(code, message))
}
