// Package projectform holds the project, collaborator and delete
// confirmation forms.
package projectform

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/internal/ui"
)

// ProjectSubmitMsg is dispatched when the project form completes.
// An empty Input.ID means create.
type ProjectSubmitMsg struct {
	Input model.ProjectInput
}

// CollaboratorSubmitMsg is dispatched when the collaborator form completes.
type CollaboratorSubmitMsg struct {
	ProjectID string
	Email     string
}

// ConfirmedMsg is dispatched when the user accepts a confirmation.
// Action is whatever was handed to StartConfirm.
type ConfirmedMsg struct {
	Action any
}

// CancelMsg is dispatched when any of the forms is aborted or a
// confirmation is declined.
type CancelMsg struct{}

type formMode int

const (
	modeNone formMode = iota
	modeProject
	modeCollaborator
	modeConfirm
)

type formBindings struct {
	name        string
	client      string
	deadline    string
	description string
	email       string
	confirm     bool
}

// Model is the Bubble Tea model for the project forms.
type Model struct {
	mode      formMode
	form      *huh.Form
	fb        *formBindings
	editingID string
	projectID string
	action    any
	title     string
	width     int
	height    int
}

// New creates an idle project form.
func New(width, height int) Model {
	return Model{fb: &formBindings{}, width: width, height: height}
}

// StartCreate opens an empty project form.
func (m *Model) StartCreate() tea.Cmd {
	m.editingID = ""
	*m.fb = formBindings{}
	m.title = "New Project"
	return m.open(modeProject, m.buildProjectForm())
}

// StartEdit opens the project form prefilled from p.
func (m *Model) StartEdit(p model.Project) tea.Cmd {
	m.editingID = p.ID
	*m.fb = formBindings{
		name:        p.Name,
		client:      p.Client,
		description: p.Description,
	}
	if !p.Deadline.IsZero() {
		m.fb.deadline = p.Deadline.UTC().Format(model.DateLayout)
	}
	m.title = "Edit Project"
	return m.open(modeProject, m.buildProjectForm())
}

// StartCollaborator opens the form that adds a collaborator to projectID.
func (m *Model) StartCollaborator(projectID string) tea.Cmd {
	m.projectID = projectID
	m.fb.email = ""
	m.title = "Add Collaborator"
	return m.open(modeCollaborator, m.buildCollaboratorForm())
}

// StartConfirm asks a yes/no question. On yes, ConfirmedMsg carries action.
func (m *Model) StartConfirm(question, detail string, action any) tea.Cmd {
	m.action = action
	m.fb.confirm = false
	m.title = "Confirm"
	return m.open(modeConfirm, huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(question).
				Description(detail).
				Affirmative("Yes").
				Negative("Cancel").
				Value(&m.fb.confirm),
		),
	).WithWidth(ui.FormWidth(m.width)).WithHeight(ui.FormHeight(m.height)))
}

// Reopen rebuilds the active form with the values entered so far.
func (m *Model) Reopen() tea.Cmd {
	switch m.mode {
	case modeProject:
		return m.open(modeProject, m.buildProjectForm())
	case modeCollaborator:
		return m.open(modeCollaborator, m.buildCollaboratorForm())
	}
	return nil
}

// Active reports whether a form is being shown.
func (m Model) Active() bool {
	return m.mode != modeNone
}

// Close hides the form.
func (m *Model) Close() {
	m.mode = modeNone
	m.form = nil
}

func (m *Model) open(mode formMode, f *huh.Form) tea.Cmd {
	m.mode = mode
	m.form = f
	return f.Init()
}

// Update handles messages for the active form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
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
		return m, func() tea.Msg { return CancelMsg{} }
	}
	return m, cmd
}

func (m Model) submit() tea.Cmd {
	switch m.mode {
	case modeProject:
		in := model.ProjectInput{
			ID:          m.editingID,
			Name:        m.fb.name,
			Client:      m.fb.client,
			Deadline:    m.fb.deadline,
			Description: m.fb.description,
		}
		return func() tea.Msg { return ProjectSubmitMsg{Input: in} }
	case modeCollaborator:
		msg := CollaboratorSubmitMsg{ProjectID: m.projectID, Email: strings.TrimSpace(m.fb.email)}
		return func() tea.Msg { return msg }
	case modeConfirm:
		if !m.fb.confirm {
			return func() tea.Msg { return CancelMsg{} }
		}
		action := m.action
		return func() tea.Msg { return ConfirmedMsg{Action: action} }
	}
	return nil
}

// View renders the active form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}
	return ui.RenderForm(m.title, m.form.View())
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildProjectForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Placeholder("Project name").
				Value(&m.fb.name),
			huh.NewInput().
				Title("Client").
				Placeholder("Who is it for?").
				Value(&m.fb.client),
			huh.NewInput().
				Title("Deadline").
				Placeholder("YYYY-MM-DD").
				Value(&m.fb.deadline).
				Validate(ui.ValidateDateFormat),
			huh.NewText().
				Title("Description").
				Placeholder("What is the project about?").
				Value(&m.fb.description),
		),
	).WithWidth(ui.FormWidth(m.width)).WithHeight(ui.FormHeight(m.height))
}

func (m *Model) buildCollaboratorForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Email").
				Placeholder("teammate@example.com").
				Value(&m.fb.email).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("email is required")
					}
					return nil
				}),
		),
	).WithWidth(ui.FormWidth(m.width)).WithHeight(ui.FormHeight(m.height))
}
