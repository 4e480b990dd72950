package bili

import (
	"errors"
	"fmt"
)

// Remote status codes with loop-visible semantics.
const (
	CodeOK          = 0
	CodeRateLimited = -412
	CodeAuthInvalid = -101
)

// authCodes are the codes that indicate the session credentials are stale and
// the transport should be re-created immediately.
var authCodes = map[int]struct{}{
	-101: {},
	-111: {},
	-400: {},
	-403: {},
}

// APIError is a non-zero status returned by the remote API. Transport-level
// failures (timeouts, connection errors) are returned as plain errors instead.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bilibili api code %d: %s", e.Code, e.Message)
}

// AuthClass reports whether the code indicates invalid authentication.
func (e *APIError) AuthClass() bool {
	_, ok := authCodes[e.Code]
	return ok
}

// IsAuthError reports whether err is an APIError with an auth-class code.
func IsAuthError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.AuthClass()
}

// IsRateLimited reports whether err is the remote rate-limit rejection.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == CodeRateLimited
}
