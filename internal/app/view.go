package app

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"

	"github.com/nhle/uptask/internal/guard"
	"github.com/nhle/uptask/internal/ui/authform"
)

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader(m.headerTitle(), m.headerUser())
	content := m.renderContent()

	var statusBar string
	if a, ok := m.svc.Recorder.Latest(); ok && m.alertVisible {
		statusBar = m.layout.RenderAlert(a.Title, a.IsError())
	} else {
		statusBar = m.layout.RenderStatusBar(m.keyHints())
	}

	return m.layout.RenderWithFrame(header, content, statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	if m.decision == guard.Pending {
		return m.layout.RenderCentered(m.spinner.View() + " Checking your session...")
	}

	switch m.overlay {
	case overlayHelp:
		return m.helpView.View()
	case overlayCommand:
		return m.commandView.View()
	case overlayConfirm:
		return m.confirm.View()
	case overlayTaskForm:
		if m.submitting {
			return m.layout.RenderCentered(m.spinner.View() + " Saving task...")
		}
		return m.taskForm.View()
	}

	switch m.shown {
	case guard.Login, guard.SignUp, guard.ForgotPassword, guard.NewPassword, guard.ConfirmAccount:
		return m.authForm.View()
	case guard.Projects:
		return m.projectList.View()
	case guard.Project:
		return m.projectDetail.View()
	case guard.Task:
		return m.taskDetail.View()
	case guard.CreateProject, guard.EditProject, guard.NewCollaborator:
		return m.projectForm.View()
	default:
		return ""
	}
}

func (m Model) headerTitle() string {
	title := "uptask"
	switch m.shown {
	case guard.Projects:
		title += " · Projects"
	case guard.Project, guard.Task, guard.EditProject, guard.NewCollaborator:
		if name := m.currentProjectName(); name != "" {
			title += " · " + name
		}
	}
	if m.offline {
		title += " [offline]"
	}
	if m.inflight > 0 {
		title += " " + m.spinner.View()
	}
	return title
}

func (m Model) headerUser() string {
	u := m.svc.Session.CurrentUser()
	if u == nil {
		return "signed out"
	}
	if u.Email != "" {
		return fmt.Sprintf("%s <%s>", u.Name, u.Email)
	}
	return u.Name
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.overlay {
	case overlayHelp:
		return "? close help | esc back"
	case overlayCommand:
		return "enter execute | tab complete | esc close"
	case overlayTaskForm, overlayConfirm:
		return "enter submit | esc cancel"
	}

	if m.decision == guard.Pending {
		return "ctrl+c quit"
	}
	if !m.shown.IsProtected() {
		return authform.Title(m.shown) + " | enter submit | ctrl+c quit"
	}
	switch m.shown {
	case guard.CreateProject, guard.EditProject, guard.NewCollaborator:
		return "enter submit | esc cancel"
	}
	return m.helpView.ShortView()
}

// setHelpScreen narrows the help overlay to the bindings of route.
func (m *Model) setHelpScreen(route guard.Route) {
	k := m.keys
	global := []key.Binding{k.Help, k.Logout, k.Quit}
	switch route {
	case guard.Projects:
		m.helpView.SetScreen("Projects",
			[]key.Binding{k.Up, k.Down, k.Select, k.New, k.Search, k.Refresh},
			[]key.Binding{k.Edit, k.Delete},
			global)
	case guard.Project:
		m.helpView.SetScreen("Project",
			[]key.Binding{k.Up, k.Down, k.Select, k.New, k.Toggle, k.Back},
			[]key.Binding{k.Edit, k.Delete, k.Tab, k.Refresh},
			[]key.Binding{k.EditProject, k.DeleteProject, k.AddCollaborator, k.RemoveCollaborator},
			global)
	case guard.Task:
		m.helpView.SetScreen("Task",
			[]key.Binding{k.Edit, k.Toggle, k.Delete, k.Back},
			global)
	default:
		m.helpView.SetScreen("")
	}
}
