// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// ErrorRule maps a sentinel error to a problem status.
type ErrorRule struct {
	Target error
	Status int
	Title  string
}

// RespondError maps err to an RFC7807 response using the first matching rule.
// Unmatched errors become a 500 without detail so internals do not leak.
func RespondError(w http.ResponseWriter, err error, rules []ErrorRule) {
	for _, rule := range rules {
		if errors.Is(err, rule.Target) {
			Problem(w, rule.Status, rule.Title, err.Error())
			return
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}
