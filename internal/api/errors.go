package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failed remote call.
type Kind int

const (
	// KindNetwork means the request never produced an HTTP response.
	KindNetwork Kind = iota + 1
	// KindUnauthorized is a 401: the session token is missing, expired or revoked.
	KindUnauthorized
	// KindForbidden is a 403: the user lacks rights on the resource.
	KindForbidden
	// KindNotFound is a 404.
	KindNotFound
	// KindServer is any other non-2xx response.
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network failure"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "authorization error"
	case KindNotFound:
		return "not found"
	case KindServer:
		return "server error"
	default:
		return "unknown"
	}
}

// Error is returned by every Client method that fails. Message holds the
// text to show the user: the server's own message when it sent one.
type Error struct {
	Kind    Kind
	Status  int
	Method  string
	Path    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

// Title is the text shown to the user.
func (e *Error) Title() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Detail returns a log-friendly description including the request line.
func (e *Error) Detail() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s on %s %s: %s", e.Kind, e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("%s (%d) on %s %s: %s", e.Kind, e.Status, e.Method, e.Path, e.Message)
}

// NewError builds an Error of the given kind. It is mostly useful to
// fakes standing in for the Client.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// IsNetwork reports whether err is a transport failure.
func IsNetwork(err error) bool { return KindOf(err) == KindNetwork }

// IsUnauthorized reports whether err is a 401.
func IsUnauthorized(err error) bool { return KindOf(err) == KindUnauthorized }

// IsForbidden reports whether err is a 403.
func IsForbidden(err error) bool { return KindOf(err) == KindForbidden }

// IsNotFound reports whether err is a 404.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// IsServer reports whether err is any other server-side failure.
func IsServer(err error) bool { return KindOf(err) == KindServer }

// ErrorResponse is the error body sent by the remote API.
type ErrorResponse struct {
	Msg     string `json:"msg"`
	Message string `json:"message"`
}

func (r ErrorResponse) text() string {
	if r.Msg != "" {
		return r.Msg
	}
	return r.Message
}

func kindForStatus(status int) Kind {
	switch status {
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	default:
		return KindServer
	}
}

func defaultMessage(kind Kind) string {
	switch kind {
	case KindNetwork:
		return "Could not reach the server, try again"
	case KindUnauthorized:
		return "Your session has expired, please log in again"
	case KindForbidden:
		return "You do not have access to this project"
	case KindNotFound:
		return "Not found"
	default:
		return "Unexpected server error"
	}
}
