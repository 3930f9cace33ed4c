// Package tasklist renders the tasks of the selected project.
package tasklist

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/internal/theme"
)

// Model is the task list component.
type Model struct {
	list   list.Model
	width  int
	height int
}

// New creates an empty task list.
func New(width, height int) Model {
	l := list.New([]list.Item{}, TaskDelegate{}, width, height)
	l.Title = "Tasks"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.TitleStyle

	return Model{list: l, width: width, height: height}
}

// SetTasks replaces the listed tasks, keeping the cursor on the same task
// when it is still present.
func (m *Model) SetTasks(tasks []model.Task) tea.Cmd {
	selected, hadSelection := m.Selected()

	items := make([]list.Item, len(tasks))
	cursor := 0
	for i, t := range tasks {
		items[i] = TaskItem{Task: t}
		if hadSelection && t.ID == selected.ID {
			cursor = i
		}
	}
	cmd := m.list.SetItems(items)
	m.list.Select(cursor)
	return cmd
}

// Selected returns the task under the cursor.
func (m Model) Selected() (model.Task, bool) {
	item, ok := m.list.SelectedItem().(TaskItem)
	if !ok {
		return model.Task{}, false
	}
	return item.Task, true
}

// Len returns the number of listed tasks.
func (m Model) Len() int {
	return len(m.list.Items())
}

// Update forwards navigation to the list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the task list.
func (m Model) View() string {
	if len(m.list.Items()) == 0 {
		return lipgloss.NewStyle().
			Width(m.width).
			Height(m.height).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render("No tasks yet.\n\nPress n to add one.")
	}
	return m.list.View()
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height)
}
