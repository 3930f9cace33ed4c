// Package projectdetail renders the selected project: its summary, its
// tasks and its collaborators.
package projectdetail

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/uptask/internal/keys"
	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/internal/theme"
	"github.com/nhle/uptask/internal/ui/tasklist"
)

// Source exposes the selected project and its tasks.
type Source interface {
	Current() *model.Project
	Tasks() []model.Task
}

// BackMsg asks the parent to return to the project list.
type BackMsg struct{}

// RefreshMsg asks the parent to reload the project from the server.
type RefreshMsg struct{ ProjectID string }

// OpenTaskMsg is sent when a task is opened.
type OpenTaskMsg struct{ Task model.Task }

// NewTaskMsg asks for the create task form.
type NewTaskMsg struct{}

// EditTaskMsg asks for the edit task form.
type EditTaskMsg struct{ Task model.Task }

// DeleteTaskMsg asks to delete a task.
type DeleteTaskMsg struct{ Task model.Task }

// ToggleTaskMsg asks to flip a task's completion.
type ToggleTaskMsg struct{ TaskID string }

// EditProjectMsg asks for the edit project form.
type EditProjectMsg struct{ Project model.Project }

// DeleteProjectMsg asks to delete the project.
type DeleteProjectMsg struct{ Project model.Project }

// AddCollaboratorMsg asks for the collaborator form.
type AddCollaboratorMsg struct{ ProjectID string }

// RemoveCollaboratorMsg asks to remove a collaborator.
type RemoveCollaboratorMsg struct {
	ProjectID string
	User      model.User
}

type panel int

const (
	tasksPanel panel = iota
	collaboratorsPanel
)

// Model is the project detail view.
type Model struct {
	source        Source
	keys          *keys.KeyMap
	project       *model.Project
	tasks         tasklist.Model
	collaborators []model.User
	collabIdx     int
	focus         panel
	width         int
	height        int
}

// New creates a project detail view backed by s.
func New(s Source, k *keys.KeyMap, width, height int) Model {
	m := Model{source: s, keys: k, width: width, height: height}
	m.tasks = tasklist.New(m.tasksWidth()-2, m.bodyHeight())
	return m
}

// Refresh re-reads the current project and its tasks from the source.
func (m *Model) Refresh() tea.Cmd {
	m.project = m.source.Current()
	m.collaborators = nil
	if m.project != nil {
		m.collaborators = m.project.Collaborators
	}
	if m.collabIdx >= len(m.collaborators) {
		m.collabIdx = max(len(m.collaborators)-1, 0)
	}
	return m.tasks.SetTasks(m.source.Tasks())
}

// Project returns the project being shown.
func (m Model) Project() *model.Project {
	return m.project
}

// SelectedTask returns the task under the cursor.
func (m Model) SelectedTask() (model.Task, bool) {
	return m.tasks.Selected()
}

// Update handles messages for the project detail view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok || m.project == nil {
		var cmd tea.Cmd
		m.tasks, cmd = m.tasks.Update(msg)
		return m, cmd
	}

	p := *m.project
	switch {
	case key.Matches(km, m.keys.Back):
		return m, emit(BackMsg{})
	case key.Matches(km, m.keys.Refresh):
		return m, emit(RefreshMsg{ProjectID: p.ID})
	case key.Matches(km, m.keys.Tab):
		if m.focus == tasksPanel {
			m.focus = collaboratorsPanel
		} else {
			m.focus = tasksPanel
		}
		return m, nil
	case key.Matches(km, m.keys.New):
		return m, emit(NewTaskMsg{})
	case key.Matches(km, m.keys.EditProject):
		return m, emit(EditProjectMsg{Project: p})
	case key.Matches(km, m.keys.DeleteProject):
		return m, emit(DeleteProjectMsg{Project: p})
	case key.Matches(km, m.keys.AddCollaborator):
		return m, emit(AddCollaboratorMsg{ProjectID: p.ID})
	}

	if m.focus == collaboratorsPanel {
		return m.updateCollaborators(km, p)
	}
	return m.updateTasks(km)
}

func (m Model) updateTasks(km tea.KeyMsg) (Model, tea.Cmd) {
	t, ok := m.tasks.Selected()
	switch {
	case key.Matches(km, m.keys.Select):
		if ok {
			return m, emit(OpenTaskMsg{Task: t})
		}
		return m, nil
	case key.Matches(km, m.keys.Edit):
		if ok {
			return m, emit(EditTaskMsg{Task: t})
		}
		return m, nil
	case key.Matches(km, m.keys.Delete):
		if ok {
			return m, emit(DeleteTaskMsg{Task: t})
		}
		return m, nil
	case key.Matches(km, m.keys.Toggle):
		if ok {
			return m, emit(ToggleTaskMsg{TaskID: t.ID})
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.tasks, cmd = m.tasks.Update(km)
	return m, cmd
}

func (m Model) updateCollaborators(km tea.KeyMsg, p model.Project) (Model, tea.Cmd) {
	switch {
	case key.Matches(km, m.keys.Down):
		if len(m.collaborators) > 0 {
			m.collabIdx = (m.collabIdx + 1) % len(m.collaborators)
		}
	case key.Matches(km, m.keys.Up):
		if len(m.collaborators) > 0 {
			m.collabIdx--
			if m.collabIdx < 0 {
				m.collabIdx = len(m.collaborators) - 1
			}
		}
	case key.Matches(km, m.keys.RemoveCollaborator), key.Matches(km, m.keys.Delete):
		if m.collabIdx < len(m.collaborators) {
			return m, emit(RemoveCollaboratorMsg{ProjectID: p.ID, User: m.collaborators[m.collabIdx]})
		}
	}
	return m, nil
}

// View renders the summary above the tasks and collaborators panels.
func (m Model) View() string {
	if m.project == nil {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No project selected")
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		m.panelStyle(tasksPanel, m.tasksWidth()).Render(m.tasks.View()),
		m.panelStyle(collaboratorsPanel, m.collaboratorsWidth()).Render(m.renderCollaborators()),
	)
	return lipgloss.JoinVertical(lipgloss.Left, m.renderSummary(), body)
}

func (m Model) renderSummary() string {
	p := m.project
	title := theme.TitleStyle.Render(p.Name)
	meta := []string{"client " + p.Client}
	if !p.Deadline.IsZero() {
		meta = append(meta, "due "+p.Deadline.UTC().Format(model.DateLayout))
	}
	meta = append(meta, fmt.Sprintf("%d tasks", m.tasks.Len()))
	desc := p.Description
	if len(desc) > m.width-4 && m.width > 8 {
		desc = desc[:m.width-7] + "..."
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(lipgloss.JoinVertical(lipgloss.Left,
		title,
		theme.MutedStyle.Render(strings.Join(meta, " | ")),
		desc,
	))
}

func (m Model) renderCollaborators() string {
	lines := []string{theme.TitleStyle.Render("Collaborators")}
	if len(m.collaborators) == 0 {
		lines = append(lines, "", theme.MutedStyle.Italic(true).Render("Nobody yet. Press c to invite."))
	}
	for i, u := range m.collaborators {
		label := u.Name
		if u.Email != "" {
			label += theme.MutedStyle.Render(" <" + u.Email + ">")
		}
		if m.focus == collaboratorsPanel && i == m.collabIdx {
			lines = append(lines, theme.SelectedItemStyle.Render(label))
		} else {
			lines = append(lines, theme.ListItemStyle.Render(label))
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) panelStyle(p panel, width int) lipgloss.Style {
	style := theme.BorderStyle.Width(width - 2).Height(m.bodyHeight())
	if m.focus == p {
		style = style.BorderForeground(theme.ColorBlue)
	}
	return style
}

const summaryHeight = 3

func (m Model) bodyHeight() int {
	return max(m.height-summaryHeight-2, 3)
}

func (m Model) tasksWidth() int {
	return m.width - m.collaboratorsWidth()
}

func (m Model) collaboratorsWidth() int {
	return max(m.width/3, 24)
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.tasks.SetSize(m.tasksWidth()-2, m.bodyHeight())
}

func emit(msg tea.Msg) tea.Cmd {
	return func() tea.Msg { return msg }
}
