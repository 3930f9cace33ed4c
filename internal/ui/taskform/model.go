// Package taskform is the shared create/edit task form.
package taskform

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/internal/projects"
	"github.com/nhle/uptask/internal/ui"
)

// SubmitMsg is dispatched when the user completes the form.
type SubmitMsg struct {
	Input model.TaskInput
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	name        string
	description string
	deadline    string
	priority    model.Priority
}

// Model is the Bubble Tea model for the task form.
type Model struct {
	form    *huh.Form
	fb      *formBindings
	id      string
	project string
	width   int
	height  int
}

// New creates an empty task form.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{priority: model.PriorityMedium},
		width:  width,
		height: height,
	}
}

// Start prefills the form from the modal state of the projects store.
// A closed modal yields an empty create form.
func (m *Model) Start(modal projects.Modal) tea.Cmd {
	in := projects.Input(modal)
	m.id = in.ID
	m.project = in.Project
	m.fb.name = in.Name
	m.fb.description = in.Description
	m.fb.deadline = in.Deadline
	m.fb.priority = in.Priority
	if !m.fb.priority.Valid() {
		m.fb.priority = model.PriorityMedium
	}
	return m.Reopen()
}

// Reopen rebuilds the form keeping the values entered so far. It is used
// when a submission is rejected and the modal stays open.
func (m *Model) Reopen() tea.Cmd {
	m.form = m.buildForm()
	return m.form.Init()
}

// Editing reports whether the form edits an existing task.
func (m Model) Editing() bool {
	return m.id != ""
}

// Input returns the current form values.
func (m Model) Input() model.TaskInput {
	return model.TaskInput{
		ID:          m.id,
		Name:        m.fb.name,
		Description: m.fb.description,
		Deadline:    m.fb.deadline,
		Priority:    m.fb.priority,
		Project:     m.project,
	}
}

// Update handles messages for the task form.
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
		in := m.Input()
		return m, func() tea.Msg { return SubmitMsg{Input: in} }
	case huh.StateAborted:
		return m, func() tea.Msg { return CancelMsg{} }
	}
	return m, cmd
}

// View renders the task form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}
	title := "New Task"
	if m.Editing() {
		title = "Edit Task"
	}
	return ui.RenderForm(title, m.form.View())
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	opts := make([]huh.Option[model.Priority], 0, len(model.Priorities))
	for _, p := range model.Priorities {
		opts = append(opts, huh.NewOption(p.Label(), p))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Placeholder("What needs to be done?").
				Value(&m.fb.name),
			huh.NewText().
				Title("Description").
				Placeholder("Details...").
				Value(&m.fb.description),
			huh.NewInput().
				Title("Deadline").
				Placeholder("YYYY-MM-DD").
				Value(&m.fb.deadline).
				Validate(ui.ValidateDateFormat),
			huh.NewSelect[model.Priority]().
				Title("Priority").
				Options(opts...).
				Value(&m.fb.priority),
		),
	).WithWidth(ui.FormWidth(m.width)).WithHeight(ui.FormHeight(m.height))
}
