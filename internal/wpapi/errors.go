package wpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
)

var ErrUnavailable = errors.New("wordpress site unavailable")

// APIError is a non-2xx response. WordPress REST errors carry a code and a
// human readable message, which is what users get to see.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("wordpress returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("wordpress returned %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) ServerMessage() string { return e.Message }

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type wpErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}

func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var wpErr wpErrorBody
	if err := json.Unmarshal(body, &wpErr); err == nil && (wpErr.Code != "" || wpErr.Message != "") {
		apiErr.Code = wpErr.Code
		apiErr.Message = html.UnescapeString(wpErr.Message)
		return apiErr
	}

	// not a REST error body; plain text is kept, HTML error pages are not
	if msg := strings.TrimSpace(string(body)); !strings.HasPrefix(msg, "<") {
		apiErr.Message = msg
	}
	return apiErr
}

// transient reports whether err is worth retrying and counts against the
// circuit breaker: transport failures, 429 and 5xx. Client errors and
// undecodable bodies are neither.
func transient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var decodeErr *decodeError
	return !errors.As(err, &decodeErr)
}

type decodeError struct{ err error }

func (e *decodeError) Error() string { return "failed to decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }
