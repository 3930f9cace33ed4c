// Package help renders the keyboard shortcut overlay.
package help

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/uptask/internal/keys"
	"github.com/nhle/uptask/internal/theme"
)

// screenKeys narrows the global key map to the bindings of one screen.
type screenKeys struct {
	groups [][]key.Binding
}

func (s screenKeys) ShortHelp() []key.Binding {
	if len(s.groups) == 0 {
		return nil
	}
	return s.groups[0]
}

func (s screenKeys) FullHelp() [][]key.Binding { return s.groups }

// Model is the help overlay view.
type Model struct {
	keys   *keys.KeyMap
	help   help.Model
	screen string
	groups [][]key.Binding
	width  int
	height int
}

// New creates a help overlay showing every binding.
func New(k *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:   k,
		help:   h,
		width:  width,
		height: height,
	}
}

// SetScreen limits the overlay to the bindings of one screen. Passing no
// groups falls back to the full key map.
func (m *Model) SetScreen(name string, groups ...[]key.Binding) {
	m.screen = name
	m.groups = groups
}

// ShortView renders the one-line hint for the current screen.
func (m Model) ShortView() string {
	m.help.ShowAll = false
	if len(m.groups) > 0 {
		return m.help.View(screenKeys{groups: m.groups})
	}
	return m.help.View(m.keys)
}

// View renders the help overlay.
func (m Model) View() string {
	title := "Keyboard Shortcuts"
	if m.screen != "" {
		title += " · " + m.screen
	}
	titleRendered := theme.TitleStyle.MarginBottom(1).Render(title)

	m.help.Width = m.width - 4
	m.help.ShowAll = true
	var helpText string
	if len(m.groups) > 0 {
		helpText = m.help.View(screenKeys{groups: m.groups})
	} else {
		helpText = m.help.View(m.keys)
	}

	content := lipgloss.JoinVertical(lipgloss.Left, titleRendered, helpText)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
