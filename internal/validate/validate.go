// Package validate holds the client-side checks applied to form input
// before anything is sent to the remote API.
//
// Calendar dates are compared in UTC: "today" is the UTC calendar day of
// the supplied clock, and a deadline is the UTC calendar day it names.
package validate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/nhle/uptask/internal/model"
)

// Messages shown to the user for each validation failure.
const (
	MsgRequired        = "All fields are required"
	MsgDateNotFuture   = "Date must be later than today"
	MsgInvalidDate     = "Invalid date, use YYYY-MM-DD"
	MsgInvalidPriority = "Priority must be low, medium or high"
	MsgInvalidEmail    = "Email is not valid"
	MsgPasswordShort   = "Password must be at least 6 characters"
	MsgPasswordMatch   = "Passwords do not match"
)

// MinPasswordLength is the shortest password accepted by sign-up and reset.
const MinPasswordLength = 6

// ValidationError is a client-detected input problem. It never involves
// a network round trip and is always recoverable by editing the input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Title is the text shown to the user.
func (e *ValidationError) Title() string {
	return e.Message
}

// IsValidationError reports whether err (or any error in its chain) is a
// ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// truncateDay returns the UTC midnight of t's UTC calendar day.
func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// IsPastOrPresentAt reports whether date falls on or before the calendar
// day of now.
func IsPastOrPresentAt(date, now time.Time) bool {
	return !truncateDay(date).After(truncateDay(now))
}

// IsPastOrPresent reports whether date falls on or before today.
func IsPastOrPresent(date time.Time) bool {
	return IsPastOrPresentAt(date, time.Now())
}

// ParseDeadline parses a YYYY-MM-DD date. A full RFC 3339 timestamp is
// also accepted and truncated to its date part.
func ParseDeadline(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[:i]
	}
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "deadline", Message: MsgInvalidDate}
	}
	return t, nil
}

// requiredFields runs the struct tags of v and maps any failure to the
// single "all fields are required" message.
func requiredFields(v interface{}) error {
	err := structValidator.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return &ValidationError{
			Field:   strings.ToLower(fieldErrs[0].Field()),
			Message: MsgRequired,
		}
	}
	return fmt.Errorf("validating input: %w", err)
}

// TaskInput normalizes in and checks it against now. Every required field
// must be non-blank, the priority must be known and the deadline must be
// strictly later than today.
func TaskInput(in *model.TaskInput, now time.Time) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Deadline = strings.TrimSpace(in.Deadline)
	in.Priority = model.Priority(strings.TrimSpace(string(in.Priority)))

	if err := requiredFields(in); err != nil {
		return err
	}
	if !in.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: MsgInvalidPriority}
	}

	deadline, err := ParseDeadline(in.Deadline)
	if err != nil {
		return err
	}
	if IsPastOrPresentAt(deadline, now) {
		return &ValidationError{Field: "deadline", Message: MsgDateNotFuture}
	}
	in.Deadline = deadline.Format(model.DateLayout)
	return nil
}

// ProjectInput normalizes in and checks that every field is present and
// the deadline is a valid date.
func ProjectInput(in *model.ProjectInput) error {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Deadline = strings.TrimSpace(in.Deadline)
	in.Client = strings.TrimSpace(in.Client)

	if err := requiredFields(in); err != nil {
		return err
	}
	deadline, err := ParseDeadline(in.Deadline)
	if err != nil {
		return err
	}
	in.Deadline = deadline.Format(model.DateLayout)
	return nil
}

// Email checks that s is a well-formed address.
func Email(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return &ValidationError{Field: "email", Message: MsgRequired}
	}
	if err := structValidator.Var(s, "email"); err != nil {
		return &ValidationError{Field: "email", Message: MsgInvalidEmail}
	}
	return nil
}

// Password checks length and, when confirm is non-nil, that both match.
func Password(password string, confirm *string) error {
	if len(password) < MinPasswordLength {
		return &ValidationError{Field: "password", Message: MsgPasswordShort}
	}
	if confirm != nil && *confirm != password {
		return &ValidationError{Field: "password", Message: MsgPasswordMatch}
	}
	return nil
}
