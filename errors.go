package goAuthClient

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/goAuthClient/apiclient"
)

var (
	// ErrConfigInvalid is returned by Config.Validate and Builder.Build for unusable settings.
	ErrConfigInvalid = errors.New("invalid configuration")
	// ErrNotAuthenticated is returned by operations that need a current session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrNoRefreshCredential is matched by API errors that ended the session because no refresh credential was known.
	ErrNoRefreshCredential = apiclient.ErrNoRefreshCredential
	// ErrRefreshFailed wraps every refresh failure that ended the session.
	ErrRefreshFailed = errors.New("refresh failed")
	// ErrSessionSuperseded is returned when a login or logout replaced the session while a refresh was in flight.
	ErrSessionSuperseded = fmt.Errorf("session superseded: %w", apiclient.ErrCredentialChanged)
	// ErrSessionClosed is returned after Close.
	ErrSessionClosed = errors.New("session closed")
	// ErrTokenInvalid is returned when the identity endpoint answers with an unusable access credential.
	ErrTokenInvalid = errors.New("invalid token")
)

// DefaultLoginFailureMessage is reported when the identity endpoint gives no detail.
const DefaultLoginFailureMessage = "login failed"

// AuthError is a rejection by the identity endpoint. Message holds the
// endpoint's detail when present.
type AuthError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}
