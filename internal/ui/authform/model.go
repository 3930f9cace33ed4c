// Package authform renders the anonymous screens: login, sign-up,
// password recovery and account confirmation.
package authform

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/uptask/internal/guard"
	"github.com/nhle/uptask/internal/session"
	"github.com/nhle/uptask/internal/theme"
	"github.com/nhle/uptask/internal/ui"
)

// LoginMsg is dispatched when the login form completes.
type LoginMsg struct {
	Credentials session.Credentials
}

// SignUpMsg is dispatched when the sign-up form completes.
type SignUpMsg struct {
	Input session.SignUpInput
}

// ForgotPasswordMsg is dispatched when the recovery form completes.
type ForgotPasswordMsg struct {
	Email string
}

// ResetPasswordMsg is dispatched when the new-password form completes.
type ResetPasswordMsg struct {
	Token    string
	Password string
	Confirm  string
}

// ConfirmAccountMsg is dispatched when the confirmation form completes.
type ConfirmAccountMsg struct {
	Token string
}

// NavigateMsg asks the parent to switch to another anonymous screen.
type NavigateMsg struct {
	Route guard.Route
}

type formBindings struct {
	name     string
	email    string
	password string
	confirm  string
	token    string
}

var navigation = []struct {
	binding key.Binding
	route   guard.Route
}{
	{key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "log in")), guard.Login},
	{key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "sign up")), guard.SignUp},
	{key.NewBinding(key.WithKeys("ctrl+f"), key.WithHelp("ctrl+f", "forgot password")), guard.ForgotPassword},
	{key.NewBinding(key.WithKeys("ctrl+t"), key.WithHelp("ctrl+t", "enter reset token")), guard.NewPassword},
	{key.NewBinding(key.WithKeys("ctrl+o"), key.WithHelp("ctrl+o", "confirm account")), guard.ConfirmAccount},
}

// Model is the Bubble Tea model for the anonymous screens.
type Model struct {
	route  guard.Route
	form   *huh.Form
	fb     *formBindings
	width  int
	height int
}

// New creates the auth form showing the login screen.
func New(width, height int) Model {
	m := Model{fb: &formBindings{}, width: width, height: height}
	m.route = guard.Login
	m.form = m.buildForm()
	return m
}

// Route returns the screen being shown.
func (m Model) Route() guard.Route {
	return m.route
}

// Show switches to route and clears any secrets typed so far. The email
// is kept so that moving between screens does not lose it.
func (m *Model) Show(route guard.Route) tea.Cmd {
	m.route = route
	email := m.fb.email
	*m.fb = formBindings{email: email}
	m.form = m.buildForm()
	return m.form.Init()
}

// Reopen rebuilds the current screen after a failed submission. Passwords
// are cleared; everything else is kept.
func (m *Model) Reopen() tea.Cmd {
	m.fb.password = ""
	m.fb.confirm = ""
	m.form = m.buildForm()
	return m.form.Init()
}

// Init starts the current form.
func (m Model) Init() tea.Cmd {
	if m.form == nil {
		return nil
	}
	return m.form.Init()
}

// Update handles messages for the active screen.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		for _, n := range navigation {
			if key.Matches(km, n.binding) && n.route != m.route {
				route := n.route
				return m, func() tea.Msg { return NavigateMsg{Route: route} }
			}
		}
	}
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		return m, m.submit()
	case huh.StateAborted:
		return m, m.Reopen()
	}
	return m, cmd
}

func (m Model) submit() tea.Cmd {
	fb := *m.fb
	var msg tea.Msg
	switch m.route {
	case guard.SignUp:
		msg = SignUpMsg{Input: session.SignUpInput{
			Name:            fb.name,
			Email:           fb.email,
			Password:        fb.password,
			ConfirmPassword: fb.confirm,
		}}
	case guard.ForgotPassword:
		msg = ForgotPasswordMsg{Email: fb.email}
	case guard.NewPassword:
		msg = ResetPasswordMsg{Token: fb.token, Password: fb.password, Confirm: fb.confirm}
	case guard.ConfirmAccount:
		msg = ConfirmAccountMsg{Token: fb.token}
	default:
		msg = LoginMsg{Credentials: session.Credentials{Email: fb.email, Password: fb.password}}
	}
	return func() tea.Msg { return msg }
}

// View renders the active screen with its navigation hints.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}
	var hints []string
	for _, n := range navigation {
		if n.route == m.route {
			continue
		}
		h := n.binding.Help()
		hints = append(hints, h.Key+" "+h.Desc)
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		m.form.View(),
		"",
		theme.HelpStyle.Render(strings.Join(hints, " | ")),
	)
	return ui.RenderForm(Title(m.route), body)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Title returns the heading of an anonymous screen.
func Title(route guard.Route) string {
	switch route {
	case guard.SignUp:
		return "Create an account"
	case guard.ForgotPassword:
		return "Recover your password"
	case guard.NewPassword:
		return "Choose a new password"
	case guard.ConfirmAccount:
		return "Confirm your account"
	default:
		return "Log in"
	}
}

func (m *Model) buildForm() *huh.Form {
	var fields []huh.Field
	switch m.route {
	case guard.SignUp:
		fields = []huh.Field{
			huh.NewInput().Title("Name").Value(&m.fb.name),
			emailField(&m.fb.email),
			passwordField("Password", &m.fb.password),
			passwordField("Repeat password", &m.fb.confirm),
		}
	case guard.ForgotPassword:
		fields = []huh.Field{emailField(&m.fb.email)}
	case guard.NewPassword:
		fields = []huh.Field{
			huh.NewInput().Title("Reset token").Description("From the recovery email").Value(&m.fb.token),
			passwordField("New password", &m.fb.password),
			passwordField("Repeat password", &m.fb.confirm),
		}
	case guard.ConfirmAccount:
		fields = []huh.Field{
			huh.NewInput().Title("Confirmation token").Description("From the welcome email").Value(&m.fb.token),
		}
	default:
		fields = []huh.Field{
			emailField(&m.fb.email),
			passwordField("Password", &m.fb.password),
		}
	}
	return huh.NewForm(huh.NewGroup(fields...)).
		WithWidth(ui.FormWidth(m.width)).
		WithHeight(ui.FormHeight(m.height))
}

func emailField(v *string) huh.Field {
	return huh.NewInput().
		Title("Email").
		Placeholder("you@example.com").
		Value(v)
}

func passwordField(title string, v *string) huh.Field {
	return huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(v)
}
