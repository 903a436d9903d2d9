package podio

import (
	"errors"
	"fmt"
)

// ErrNoRefreshCredentials is returned when a refresh is needed but the
// client id, client secret or refresh token is missing.
var ErrNoRefreshCredentials = errors.New("no refresh credentials configured")

// AuthError means no usable access token could be obtained, or the API kept
// rejecting the token after one refresh.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("podio auth failed (%s): %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError wraps a failed read against the Podio API.
type FetchError struct {
	Path string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("podio fetch %s failed: %v", e.Path, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// CommentPostError wraps a failed comment write.
type CommentPostError struct {
	ItemID int64
	Err    error
}

func (e *CommentPostError) Error() string {
	return fmt.Sprintf("podio comment on item %d failed: %v", e.ItemID, e.Err)
}

func (e *CommentPostError) Unwrap() error { return e.Err }

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Podio API error: %s %s: %d - %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsAuthError reports whether err is (or wraps) an *AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
