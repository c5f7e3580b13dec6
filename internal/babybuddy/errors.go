package babybuddy

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for Baby Buddy operations. Check with errors.Is.
var (
	// ErrAuthorization is returned by Connect when the server rejects the API key.
	ErrAuthorization = errors.New("babybuddy: authorization failed")

	// ErrConnect wraps timeouts and transport failures.
	ErrConnect = errors.New("babybuddy: cannot connect")

	// ErrUnknownEndpoint is returned when an endpoint is not in the map
	// discovered by Connect, including when Connect never succeeded.
	ErrUnknownEndpoint = errors.New("babybuddy: unknown endpoint")

	// ErrValidation is returned for service input the server would accept
	// but that makes no sense, such as a feeding that ends in the future.
	ErrValidation = errors.New("babybuddy: validation failed")
)

// StatusError is returned when the server answers with an unexpected status.
// Body holds the server-reported error (usually a JSON object of field errors).
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("babybuddy: %s %s: unexpected status %d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("babybuddy: %s %s: unexpected status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// IsAuthFailure reports whether err is a 401 or 403 from the server.
func IsAuthFailure(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden
}
