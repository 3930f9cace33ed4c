// Package projectlist renders the signed-in user's projects with a search
// bar.
package projectlist

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/uptask/internal/keys"
	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/internal/theme"
)

// Searcher filters the loaded projects by a free-text query.
type Searcher interface {
	SearchProjects(query string) []model.Project
}

// SelectedMsg is sent when the user opens a project.
type SelectedMsg struct {
	ProjectID string
}

// NewMsg is sent when the user asks for a new project.
type NewMsg struct{}

// EditMsg is sent when the user asks to edit the project under the cursor.
type EditMsg struct {
	Project model.Project
}

// DeleteMsg is sent when the user asks to delete the project under the
// cursor.
type DeleteMsg struct {
	Project model.Project
}

// RefreshMsg asks the parent to reload projects from the server.
type RefreshMsg struct{}

// Model is the project list view.
type Model struct {
	list        list.Model
	source      Searcher
	keys        *keys.KeyMap
	userID      string
	query       string
	searchMode  bool
	searchInput textinput.Model
	width       int
	height      int
}

// New creates a project list backed by s.
func New(s Searcher, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, projectDelegate{}, width, height-1)
	l.Title = "Projects"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.TitleStyle

	si := textinput.New()
	si.Placeholder = "search by name or client..."
	si.Prompt = "/ "
	si.Width = width - 4

	return Model{
		list:        l,
		source:      s,
		keys:        k,
		searchInput: si,
		width:       width,
		height:      height,
	}
}

// SetUserID records who is signed in so shared projects can be marked.
func (m *Model) SetUserID(id string) {
	m.userID = id
}

// Query returns the active search query.
func (m Model) Query() string {
	return m.query
}

// SetQuery filters the list by q as if it had been typed in the search bar.
func (m *Model) SetQuery(q string) tea.Cmd {
	m.query = q
	m.searchInput.SetValue(q)
	return m.Refresh()
}

// Searching reports whether the search bar has focus.
func (m Model) Searching() bool {
	return m.searchMode
}

// Refresh re-reads projects from the source applying the current query.
func (m *Model) Refresh() tea.Cmd {
	projects := m.source.SearchProjects(m.query)
	items := make([]list.Item, len(projects))
	for i, p := range projects {
		items[i] = ProjectItem{
			Project: p,
			Shared:  m.userID != "" && p.Owner != "" && p.Owner != m.userID,
		}
	}
	return m.list.SetItems(items)
}

// Selected returns the project under the cursor.
func (m Model) Selected() (model.Project, bool) {
	item, ok := m.list.SelectedItem().(ProjectItem)
	if !ok {
		return model.Project{}, false
	}
	return item.Project, true
}

// Update handles messages for the project list.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		if m.searchMode {
			return m.handleSearchKeys(km)
		}
		return m.handleNormalKeys(km)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) handleSearchKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searchMode = false
		m.searchInput.Blur()
		return m, nil

	case "esc":
		m.searchMode = false
		m.searchInput.Blur()
		m.searchInput.Reset()
		m.query = ""
		return m, m.Refresh()
	}

	var cmd tea.Cmd
	m.searchInput, cmd = m.searchInput.Update(msg)
	if q := m.searchInput.Value(); q != m.query {
		m.query = q
		return m, tea.Batch(cmd, m.Refresh())
	}
	return m, cmd
}

func (m Model) handleNormalKeys(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Select):
		p, ok := m.Selected()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return SelectedMsg{ProjectID: p.ID} }

	case key.Matches(msg, m.keys.Search):
		m.searchMode = true
		m.searchInput.SetValue(m.query)
		return m, m.searchInput.Focus()

	case key.Matches(msg, m.keys.New):
		return m, func() tea.Msg { return NewMsg{} }

	case key.Matches(msg, m.keys.Edit), key.Matches(msg, m.keys.EditProject):
		p, ok := m.Selected()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return EditMsg{Project: p} }

	case key.Matches(msg, m.keys.Delete), key.Matches(msg, m.keys.DeleteProject):
		p, ok := m.Selected()
		if !ok {
			return m, nil
		}
		return m, func() tea.Msg { return DeleteMsg{Project: p} }

	case key.Matches(msg, m.keys.Refresh):
		return m, func() tea.Msg { return RefreshMsg{} }
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the list, with the search bar when a query is active.
func (m Model) View() string {
	var body string
	if len(m.list.Items()) == 0 {
		body = m.renderEmptyState()
	} else {
		body = m.list.View()
	}

	if m.searchMode || m.query != "" {
		searchBar := lipgloss.NewStyle().
			Foreground(theme.ColorWhite).
			Padding(0, 1).
			Render(m.searchInput.View())
		return lipgloss.JoinVertical(lipgloss.Left, searchBar, body)
	}
	return body
}

func (m Model) renderEmptyState() string {
	style := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height - 1).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if m.query != "" {
		return style.Render("No matching projects.")
	}
	return style.Render("No projects yet.\n\nPress n to create one.")
}

// SetSize updates the list dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, height-1)
	m.searchInput.Width = width - 4
}
