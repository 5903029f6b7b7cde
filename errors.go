package tokenflow

import (
	"errors"
	"net/http"
	"strconv"
)

var (
	// ErrRefreshFailed wraps the refresh handler error returned to the request
	// that owned the refresh.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrAuthenticationUnavailable is returned once a request has been replayed
	// MaxReplays times and still reports an expired token.
	ErrAuthenticationUnavailable = errors.New("authentication could not be established")
	// ErrInvalidConfig wraps every Config validation failure.
	ErrInvalidConfig = errors.New("invalid tokenflow config")
	// ErrBuilderUsed is returned by a second Build call on the same Builder.
	ErrBuilderUsed = errors.New("builder already used")
	// ErrNilMethod is returned when a nil *Method is sent.
	ErrNilMethod = errors.New("nil method")
	// ErrNotBound is returned by Method.Send before the method went through a Client.
	ErrNotBound = errors.New("method not bound to a client")
	// ErrAssignToken wraps failures of AssignToken and of the login/logout handlers.
	ErrAssignToken = errors.New("token assignment failed")
)

// StatusError is the error a [Client] produces for responses at or above its
// error status floor. The body is fully read and the response closed.
type StatusError struct {
	Code   int
	Header http.Header
	Body   []byte
}

func (e *StatusError) Error() string {
	text := http.StatusText(e.Code)
	if text == "" {
		return "unexpected status " + strconv.Itoa(e.Code)
	}
	return "unexpected status " + strconv.Itoa(e.Code) + " " + text
}
