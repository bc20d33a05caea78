package api

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx response from the Buddy API, rendered as a tagged
// value so callers can branch on the status code without string matching.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error (HTTP %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error (HTTP %d)", e.StatusCode)
}

// IsUnauthorized reports whether err is a 401 from the API. This is the
// boundary tag the session layer's refresh decision is made on.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}
