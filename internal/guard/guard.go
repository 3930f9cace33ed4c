// Package guard decides whether a screen may be shown given the state of
// the session.
package guard

import "github.com/nhle/uptask/internal/session"

// Route names a screen of the application.
type Route string

// Anonymous routes.
const (
	Login          Route = "login"
	SignUp         Route = "sign-up"
	ForgotPassword Route = "forgot-password"
	NewPassword    Route = "new-password"
	ConfirmAccount Route = "confirm-account"
)

// Protected routes.
const (
	Projects        Route = "projects"
	Project         Route = "project"
	CreateProject   Route = "create-project"
	EditProject     Route = "edit-project"
	NewCollaborator Route = "new-collaborator"
	Task            Route = "task"
)

var anonymousRoutes = map[Route]bool{
	Login:          true,
	SignUp:         true,
	ForgotPassword: true,
	NewPassword:    true,
	ConfirmAccount: true,
}

// IsProtected reports whether r requires an authenticated session.
// Unknown routes are treated as protected.
func (r Route) IsProtected() bool {
	return !anonymousRoutes[r]
}

// Decision is the outcome of guarding a route.
type Decision int

const (
	// Pending means the session is still being established; nothing
	// should be rendered yet.
	Pending Decision = iota
	// Render means the requested route may be shown.
	Render
	// Redirect means another route must be shown instead.
	Redirect
)

// RenderProtected is the decision that lets a protected route render.
const RenderProtected = Render

func (d Decision) String() string {
	switch d {
	case Pending:
		return "pending"
	case Render:
		return "render"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decide maps a session state to the decision for a protected route.
func Decide(state session.State) Decision {
	switch state {
	case session.Authenticating:
		return Pending
	case session.Authenticated:
		return RenderProtected
	default:
		return Redirect
	}
}

// Authenticator is the view of the session the guard needs.
type Authenticator interface {
	State() session.State
	IsAuthenticated() bool
}

// Guard resolves navigation requests against a session.
type Guard struct {
	auth Authenticator
}

// New returns a Guard reading from auth.
func New(auth Authenticator) *Guard {
	return &Guard{auth: auth}
}

// Resolve returns the decision for route and the route to show. On
// Redirect the returned route is the target; otherwise it is route.
func (g *Guard) Resolve(route Route) (Decision, Route) {
	state := g.auth.State()
	// A session whose token expired counts as anonymous.
	if state == session.Authenticated && !g.auth.IsAuthenticated() {
		state = session.Anonymous
	}

	if route.IsProtected() {
		d := Decide(state)
		if d == Redirect {
			return Redirect, Login
		}
		return d, route
	}

	switch state {
	case session.Authenticating:
		return Pending, route
	case session.Authenticated:
		return Redirect, Projects
	default:
		return Render, route
	}
}
