// Package httpx holds the JSON and RFC 7807 response helpers shared by the API handlers.
package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeProblem = "application/problem+json"
)

// MaxBodyBytes caps JSON request bodies.
const MaxBodyBytes = 1 << 20

// ErrBadRequest reports a body that could not be decoded.
var ErrBadRequest = errors.New("malformed request body")

// ProblemDetail is the RFC 7807 error body.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON writes body as a JSON document with the given status.
func JSON(w http.ResponseWriter, status int, body any) {
	write(w, status, contentTypeJSON, body)
}

// Problem writes an RFC 7807 document. An empty detail is omitted.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	write(w, status, contentTypeProblem, ProblemDetail{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

func write(w http.ResponseWriter, status int, contentType string, body any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	// The status line is already sent; an encode failure means the client went away.
	_ = json.NewEncoder(w).Encode(body)
}

// DecodeJSON reads at most MaxBodyBytes of r's body into target. Unknown
// fields and trailing garbage are rejected with ErrBadRequest.
func DecodeJSON(w http.ResponseWriter, r *http.Request, target any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: unexpected data after JSON document", ErrBadRequest)
	}
	return nil
}
