// Package alert carries success and error reports from the stores to
// whatever renders notifications.
package alert

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// Kind distinguishes success reports from error reports.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Alert is a single user-facing report.
type Alert struct {
	Title string
	Kind  Kind
}

// IsError reports whether a is an error report.
func (a Alert) IsError() bool { return a.Kind == KindError }

// Success builds a success alert.
func Success(title string) Alert { return Alert{Title: title, Kind: KindSuccess} }

// Error builds an error alert.
func Error(title string) Alert { return Alert{Title: title, Kind: KindError} }

// FromError builds an error alert whose title is the user-facing text of
// err. Wrapped errors are unwrapped to the innermost message-bearing
// error so that layer prefixes never reach the user.
func FromError(err error) Alert {
	var titled interface{ Title() string }
	if errors.As(err, &titled) {
		return Error(titled.Title())
	}
	return Error(err.Error())
}

// Sink receives alerts. Implementations must be safe for concurrent use.
type Sink interface {
	Report(a Alert)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Alert)

// Report calls f(a).
func (f SinkFunc) Report(a Alert) { f(a) }

// Discard drops every alert.
var Discard Sink = SinkFunc(func(Alert) {})

// Multi fans an alert out to several sinks in order.
type Multi []Sink

// Report forwards a to every sink.
func (m Multi) Report(a Alert) {
	for _, s := range m {
		s.Report(a)
	}
}

// LogSink writes alerts to a logger.
type LogSink struct {
	Log logrus.FieldLogger
}

// Report logs a at info level for successes and warn level for errors.
func (s LogSink) Report(a Alert) {
	entry := s.Log.WithField("alert_kind", string(a.Kind))
	if a.IsError() {
		entry.Warn(a.Title)
		return
	}
	entry.Info(a.Title)
}

// Recorder keeps every alert it receives.
type Recorder struct {
	mu     sync.Mutex
	alerts []Alert
}

// Report records a.
func (r *Recorder) Report(a Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

// All returns a copy of the recorded alerts in arrival order.
func (r *Recorder) All() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

// Latest returns the most recent alert, if any.
func (r *Recorder) Latest() (Alert, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.alerts) == 0 {
		return Alert{}, false
	}
	return r.alerts[len(r.alerts)-1], true
}

// Len returns the number of recorded alerts.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}

// Reset forgets every recorded alert.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = nil
}
