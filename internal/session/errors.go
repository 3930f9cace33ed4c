package session

import (
	"errors"

	"github.com/nhle/uptask/internal/api"
)

// ErrAuthInProgress is returned when a login or restore is started while
// another one has not finished.
var ErrAuthInProgress = errors.New("authentication already in progress")

// Reason says why an authentication attempt failed.
type Reason int

const (
	InvalidCredentials Reason = iota + 1
	NetworkFailure
	ServerError
)

func (r Reason) String() string {
	switch r {
	case InvalidCredentials:
		return "invalid credentials"
	case NetworkFailure:
		return "network failure"
	case ServerError:
		return "server error"
	default:
		return "unknown"
	}
}

// AuthError is returned by Login and the other account operations.
type AuthError struct {
	Reason  Reason
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Reason.String()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Title is the text shown to the user.
func (e *AuthError) Title() string {
	return e.Error()
}

// IsAuthError reports whether err is an *AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// ReasonOf returns the Reason of the *AuthError in err's chain, or 0.
func ReasonOf(err error) Reason {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return 0
}

// authError maps a failed anonymous API call. On these endpoints 401, 403
// and 404 all mean the credentials or token were rejected.
func authError(err error) *AuthError {
	reason := ServerError
	switch api.KindOf(err) {
	case api.KindUnauthorized, api.KindForbidden, api.KindNotFound:
		reason = InvalidCredentials
	case api.KindNetwork:
		reason = NetworkFailure
	}
	return &AuthError{Reason: reason, Message: err.Error(), Err: err}
}
