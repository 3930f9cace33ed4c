package projectlist

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/internal/theme"
)

// ProjectItem wraps a model.Project so it can be used in a bubbles/list.
type ProjectItem struct {
	Project model.Project
	// Shared is set when the signed-in user collaborates on the project
	// without owning it.
	Shared bool
}

// FilterValue returns the string used for filtering.
func (i ProjectItem) FilterValue() string { return i.Project.Name }

// Title returns the project name.
func (i ProjectItem) Title() string { return i.Project.Name }

// Description returns the client and deadline.
func (i ProjectItem) Description() string {
	parts := []string{i.Project.Client}
	if !i.Project.Deadline.IsZero() {
		parts = append(parts, "due "+i.Project.Deadline.UTC().Format(model.DateLayout))
	}
	if i.Shared {
		parts = append(parts, "shared")
	}
	return strings.Join(parts, " | ")
}

type projectDelegate struct{}

func (projectDelegate) Height() int { return 2 }

func (projectDelegate) Spacing() int { return 1 }

func (projectDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (projectDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	pi, ok := item.(ProjectItem)
	if !ok {
		return
	}
	title := pi.Title()
	if pi.Shared {
		title += theme.MutedStyle.Render("  (shared)")
	}
	desc := theme.MutedStyle.Render(pi.Description())

	style := theme.ListItemStyle
	if index == m.Index() {
		style = theme.SelectedItemStyle
	}
	fmt.Fprint(w, style.Render(title+"\n"+desc))
}
