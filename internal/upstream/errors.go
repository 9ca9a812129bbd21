package upstream

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrAuthExpired marks a 401 that survived the single refresh attempt, or
	// a refresh failure itself. Tokens are cleared before it is returned.
	ErrAuthExpired = errors.New("upstream: authentication expired")

	// ErrNoRefreshToken means a refresh was needed but no refresh token is stored.
	ErrNoRefreshToken = errors.New("upstream: no refresh token")

	// ErrRefreshRejected means the refresh endpoint answered with a non-2xx status.
	ErrRefreshRejected = errors.New("upstream: refresh rejected")

	// ErrBackendUnavailable is the health-probe verdict for network failures
	// and 5xx responses alike.
	ErrBackendUnavailable = errors.New("upstream: backend unavailable")
)

// NetworkError wraps a transport-level failure (DNS, refused connection,
// timeout). Never retried automatically.
type NetworkError struct {
	Op  string
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("upstream: %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is any non-2xx backend reply that is not a field-level validation
// failure.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("upstream: backend returned %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream: backend returned %d: %s", e.StatusCode, e.Detail)
}

// ValidationError carries the structured field errors of a 4xx reply, to be
// surfaced inline next to the offending field.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	return "upstream: validation failed: " + e.Message()
}

// Message picks a single human-readable line using the backend's own
// precedence: detail, then non-field errors, then the first field error.
func (e *ValidationError) Message() string {
	for _, key := range []string{"detail", "non_field_errors", "userid", "password"} {
		if msgs := e.Fields[key]; len(msgs) > 0 {
			return msgs[0]
		}
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if msgs := e.Fields[k]; len(msgs) > 0 {
			return k + ": " + msgs[0]
		}
	}
	return "invalid input"
}

// First returns the first error message recorded for a field.
func (e *ValidationError) First(field string) string {
	if msgs := e.Fields[field]; len(msgs) > 0 {
		return msgs[0]
	}
	return ""
}

// UnexpectedResponseError flags a backend reply missing fields the contract
// promises (e.g. the token endpoint returning neither access nor refresh).
type UnexpectedResponseError struct {
	Endpoint string
	Reason   string
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("upstream: unexpected response from %s: %s", e.Endpoint, e.Reason)
}

// IsAuthExpired reports whether the given error should send the user back to
// the login entry point.
func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}

// joinDetail renders a raw error body into a short diagnostic string.
func joinDetail(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
