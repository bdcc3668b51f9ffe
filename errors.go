package smoke

import (
	"errors"
	"fmt"

	"github.com/st-keller/galacash-smoke/types"
)

var (
	// ErrAlreadyLoggedIn is returned by Login on 409: the account has an active session.
	ErrAlreadyLoggedIn = errors.New("already logged in")
	// ErrRateLimited is returned by Login when every attempt answered 429.
	ErrRateLimited = errors.New("login rate limited")
	// ErrNoToken is returned when an auth response carries no token in body or cookies.
	ErrNoToken = errors.New("no token in response")
)

// HTTPError is a response with a status outside 2xx.
type HTTPError struct {
	Method     string
	Path       string
	Params     types.Params
	StatusCode int
	Body       types.Body
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d %s %s", e.StatusCode, e.Method, e.Path)
}

// IsStatus reports whether err is an *HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var herr *HTTPError
	return errors.As(err, &herr) && herr.StatusCode == status
}
