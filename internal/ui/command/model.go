// Package command is the ":" command palette.
package command

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/uptask/internal/theme"
)

// Names of the palette commands.
const (
	Projects   = "projects"
	NewProject = "new project"
	NewTask    = "new task"
	Search     = "search"
	Refresh    = "refresh"
	Logout     = "logout"
	Quit       = "quit"
)

// Commands lists every command the palette completes.
var Commands = []string{Projects, NewProject, NewTask, Search, Refresh, Logout, Quit}

// CommandMsg is emitted when the user executes a command. Arg is whatever
// followed the command name.
type CommandMsg struct {
	Name string
	Arg  string
}

// CloseMsg is emitted when the palette is dismissed.
type CloseMsg struct{}

// Parse splits a palette line into a known command and its argument.
// ok is false when no command matches.
func Parse(line string) (msg CommandMsg, ok bool) {
	line = strings.Join(strings.Fields(line), " ")
	lower := strings.ToLower(line)
	for _, name := range Commands {
		switch {
		case lower == name:
			return CommandMsg{Name: name}, true
		case strings.HasPrefix(lower, name+" "):
			return CommandMsg{Name: name, Arg: strings.TrimSpace(line[len(name):])}, true
		}
	}
	if lower == "q" {
		return CommandMsg{Name: Quit}, true
	}
	return CommandMsg{}, false
}

// Model is the command palette view.
type Model struct {
	input   textinput.Model
	unknown string
	width   int
	height  int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "type a command..."
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.SetSuggestions(Commands)
	ti.Width = width - 6

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if line == "" {
				return m, func() tea.Msg { return CloseMsg{} }
			}
			parsed, ok := Parse(line)
			if !ok {
				m.unknown = line
				return m, nil
			}
			m.unknown = ""
			return m, func() tea.Msg { return parsed }
		case "esc":
			m.input.Reset()
			m.unknown = ""
			return m, func() tea.Msg { return CloseMsg{} }
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	title := theme.TitleStyle.MarginBottom(1).Render("Command Palette")
	lines := []string{title, m.input.View()}
	if m.unknown != "" {
		lines = append(lines, "", lipgloss.NewStyle().
			Foreground(theme.ColorRed).
			Render("unknown command: "+m.unknown))
	}
	lines = append(lines, "", theme.HelpStyle.Render(strings.Join(Commands, " · ")))

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	m.unknown = ""
	return m.input.Focus()
}
