package projects

import (
	"errors"
	"fmt"

	"github.com/nhle/uptask/internal/api"
)

var (
	// ErrSubmissionPending is returned when a task is submitted, or the
	// task modal reopened, while an earlier submission is still in flight.
	ErrSubmissionPending = errors.New("a submission is already in progress")

	// ErrStale is returned when a response arrived after the context it
	// belonged to (current project, modal, session) had changed. The
	// response is dropped without touching local state.
	ErrStale = errors.New("response arrived after its context changed")

	// ErrNoProject is returned by task operations when no project is selected.
	ErrNoProject = errors.New("no project selected")
)

// NotFoundError is returned when a project, task or collaborator does not
// exist or is not visible to the current user.
type NotFoundError struct {
	Resource string
	ID       string
	Err      error
}

func (e *NotFoundError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error { return e.Err }

// Title is the text shown to the user.
func (e *NotFoundError) Title() string { return e.Error() }

// IsNotFound reports whether err is a *NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// AuthorizationError is returned when the user lacks rights on a project.
type AuthorizationError struct {
	Err error
}

func (e *AuthorizationError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "You do not have permission to do that"
}

func (e *AuthorizationError) Unwrap() error { return e.Err }

// Title is the text shown to the user.
func (e *AuthorizationError) Title() string { return e.Error() }

// IsAuthorization reports whether err is an *AuthorizationError.
func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

// classify maps 403 and 404 responses onto the store's error types.
// Other failures keep their *api.Error.
func classify(resource, id string, err error) error {
	switch api.KindOf(err) {
	case api.KindNotFound:
		return &NotFoundError{Resource: resource, ID: id, Err: err}
	case api.KindForbidden:
		return &AuthorizationError{Err: err}
	}
	return err
}
