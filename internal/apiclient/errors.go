package apiclient

import (
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	// ErrRefreshFailed rejects requests that were waiting on a token refresh
	// that did not succeed. The session has been logged out.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrQueueOverflow rejects a request that hit a 401 while the refresh
	// queue was full. It is transient; the caller may retry.
	ErrQueueOverflow = errors.New("token refresh queue is full")

	// ErrNoRefreshToken means a 401 arrived but no refresh token is stored.
	ErrNoRefreshToken = errors.New("no refresh token stored")

	// ErrTransport wraps network level failures.
	ErrTransport = errors.New("transport error")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Detail     string
	Body       []byte
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("api error %d", e.StatusCode)
}

func newAPIError(status int, body []byte) *APIError {
	return &APIError{
		StatusCode: status,
		Detail:     errorDetail(body),
		Body:       body,
	}
}

// errorDetail pulls a readable message out of an error body. The backend
// sends {"detail": "..."}, or a list of validation errors under detail.
func errorDetail(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}

	detail := gjson.GetBytes(body, "detail")
	switch {
	case detail.Type == gjson.String:
		return detail.String()
	case detail.IsArray():
		return detail.Get("0.msg").String()
	case detail.Exists():
		return detail.Raw
	}

	if msg := gjson.GetBytes(body, "error"); msg.Type == gjson.String {
		return msg.String()
	}
	return ""
}

// StatusCode returns the HTTP status of an *APIError in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Message returns the text a UI should show for err: the backend's detail
// when there is one, otherwise fallback.
func Message(err error, fallback string) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}

// IsRetryable reports whether err is worth retrying as is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrQueueOverflow) || errors.Is(err, ErrTransport)
}
