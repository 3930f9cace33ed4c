package tasklist

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/internal/theme"
)

// TaskItem wraps a model.Task so it can be used in a bubbles/list.
type TaskItem struct {
	Task model.Task
}

// FilterValue returns the string used for fuzzy filtering.
func (i TaskItem) FilterValue() string { return i.Task.Name }

// Title returns the task name for the list.
func (i TaskItem) Title() string { return i.Task.Name }

// Description returns a short summary line for the list.
func (i TaskItem) Description() string {
	parts := []string{i.Task.Priority.Label()}
	if !i.Task.Deadline.IsZero() {
		parts = append(parts, "due "+i.Task.Deadline.UTC().Format(model.DateLayout))
	}
	if i.Task.Completed {
		parts = append(parts, "done")
	}
	return strings.Join(parts, " | ")
}

// TaskDelegate implements list.ItemDelegate for rendering tasks.
type TaskDelegate struct {
	// Now is used to flag overdue tasks. Defaults to time.Now.
	Now func() time.Time
}

// Height returns the number of lines each item takes.
func (d TaskDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d TaskDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d TaskDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single task line.
func (d TaskDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	ti, ok := item.(TaskItem)
	if !ok {
		return
	}
	fmt.Fprint(w, d.line(ti.Task, index == m.Index()))
}

func (d TaskDelegate) line(t model.Task, selected bool) string {
	prefix := "○"
	if t.Completed {
		prefix = "✓"
	}

	priBadge := theme.PriorityStyle(t.Priority).Render(fmt.Sprintf("%-6s", t.Priority.Label()))

	name := t.Name
	if t.Completed {
		name = theme.CompletedStyle.Render(name)
	}

	due := ""
	if !t.Deadline.IsZero() {
		due = theme.MutedStyle.Render("  " + t.Deadline.UTC().Format("Jan 02"))
	}

	overdue := ""
	if d.overdue(t) {
		overdue = lipgloss.NewStyle().Foreground(theme.ColorRed).Bold(true).Render(" OVERDUE")
	}

	by := ""
	if t.Completed && t.CompletedBy != nil && t.CompletedBy.Name != "" {
		by = theme.MutedStyle.Render(" by " + t.CompletedBy.Name)
	}

	line := fmt.Sprintf("%s %s %s%s%s%s", prefix, priBadge, name, due, overdue, by)
	if selected {
		return theme.SelectedItemStyle.Render(line)
	}
	return theme.ListItemStyle.Render(line)
}

// overdue reports whether an open task's deadline is before today (UTC).
func (d TaskDelegate) overdue(t model.Task) bool {
	if t.Completed || t.Deadline.IsZero() {
		return false
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	today := now().UTC().Truncate(24 * time.Hour)
	return t.Deadline.UTC().Before(today)
}
