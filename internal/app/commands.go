package app

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/uptask/internal/api"
	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/internal/projects"
	"github.com/nhle/uptask/internal/session"
)

// settled is embedded in every message that completes a background
// request, so the root model can keep count of requests in flight.
type settled struct{}

func (settled) settle() {}

type settler interface{ settle() }

type restoredMsg struct {
	settled
}

type authResultMsg struct {
	settled
	op      string
	message string
	err     error
}

type projectsLoadedMsg struct {
	settled
	offline bool
	err     error
}

type projectSelectedMsg struct {
	settled
	id  string
	err error
}

type projectSavedMsg struct {
	settled
	project *model.Project
	created bool
	err     error
}

type projectDeletedMsg struct {
	settled
	id  string
	err error
}

type taskSubmittedMsg struct {
	settled
	task *model.Task
	err  error
}

type taskDeletedMsg struct {
	settled
	id  string
	err error
}

type taskToggledMsg struct {
	settled
	task *model.Task
	err  error
}

type collaboratorChangedMsg struct {
	settled
	added bool
	err   error
}

// auth operations reported in authResultMsg.op.
const (
	opLogin   = "login"
	opSignUp  = "sign-up"
	opForgot  = "forgot-password"
	opReset   = "reset-password"
	opConfirm = "confirm-account"
)

func (m *Model) dispatch(fn func(ctx context.Context) tea.Msg) tea.Cmd {
	m.inflight++
	return func() tea.Msg {
		return fn(context.Background())
	}
}

func (m *Model) restoreSession() tea.Cmd {
	s := m.svc.Session
	return m.dispatch(func(ctx context.Context) tea.Msg {
		s.RestoreSession(ctx)
		return restoredMsg{}
	})
}

func (m *Model) login(creds session.Credentials) tea.Cmd {
	s := m.svc.Session
	return m.dispatch(func(ctx context.Context) tea.Msg {
		sess, err := s.Login(ctx, creds)
		msg := authResultMsg{op: opLogin, err: err}
		if err == nil && sess.User != nil {
			msg.message = fmt.Sprintf("Welcome back, %s", sess.User.Name)
		}
		return msg
	})
}

func (m *Model) signUp(in session.SignUpInput) tea.Cmd {
	s := m.svc.Session
	return m.dispatch(func(ctx context.Context) tea.Msg {
		text, err := s.SignUp(ctx, in)
		return authResultMsg{op: opSignUp, message: text, err: err}
	})
}

func (m *Model) forgotPassword(email string) tea.Cmd {
	s := m.svc.Session
	return m.dispatch(func(ctx context.Context) tea.Msg {
		text, err := s.RequestPasswordReset(ctx, email)
		return authResultMsg{op: opForgot, message: text, err: err}
	})
}

func (m *Model) resetPassword(token, password, confirm string) tea.Cmd {
	s := m.svc.Session
	return m.dispatch(func(ctx context.Context) tea.Msg {
		text, err := s.ResetPassword(ctx, token, password, confirm)
		return authResultMsg{op: opReset, message: text, err: err}
	})
}

func (m *Model) confirmAccount(token string) tea.Cmd {
	s := m.svc.Session
	return m.dispatch(func(ctx context.Context) tea.Msg {
		text, err := s.ConfirmAccount(ctx, token)
		return authResultMsg{op: opConfirm, message: text, err: err}
	})
}

// loadProjects fetches projects, falling back to the offline cache when
// the server cannot be reached.
func (m *Model) loadProjects() tea.Cmd {
	s := m.svc.Projects
	return m.dispatch(func(ctx context.Context) tea.Msg {
		_, err := s.LoadProjects(ctx)
		if err != nil && api.IsNetwork(err) {
			if _, cacheErr := s.LoadCachedProjects(ctx); cacheErr == nil {
				return projectsLoadedMsg{offline: true, err: err}
			}
		}
		return projectsLoadedMsg{err: err}
	})
}

func (m *Model) selectProject(id string) tea.Cmd {
	s := m.svc.Projects
	return m.dispatch(func(ctx context.Context) tea.Msg {
		_, err := s.SelectProject(ctx, id)
		return projectSelectedMsg{id: id, err: err}
	})
}

func (m *Model) saveProject(in model.ProjectInput) tea.Cmd {
	s := m.svc.Projects
	return m.dispatch(func(ctx context.Context) tea.Msg {
		if in.ID == "" {
			p, err := s.CreateProject(ctx, in)
			return projectSavedMsg{project: p, created: true, err: err}
		}
		p, err := s.UpdateProject(ctx, in)
		return projectSavedMsg{project: p, err: err}
	})
}

func (m *Model) deleteProject(id string) tea.Cmd {
	s := m.svc.Projects
	return m.dispatch(func(ctx context.Context) tea.Msg {
		return projectDeletedMsg{id: id, err: s.DeleteProject(ctx, id)}
	})
}

func (m *Model) submitTask(in model.TaskInput) tea.Cmd {
	s := m.svc.Projects
	return m.dispatch(func(ctx context.Context) tea.Msg {
		t, err := s.SubmitTask(ctx, in)
		return taskSubmittedMsg{task: t, err: err}
	})
}

func (m *Model) deleteTask(id string) tea.Cmd {
	s := m.svc.Projects
	return m.dispatch(func(ctx context.Context) tea.Msg {
		return taskDeletedMsg{id: id, err: s.DeleteTask(ctx, id)}
	})
}

func (m *Model) toggleTask(id string) tea.Cmd {
	s := m.svc.Projects
	return m.dispatch(func(ctx context.Context) tea.Msg {
		t, err := s.ToggleTaskStatus(ctx, id)
		return taskToggledMsg{task: t, err: err}
	})
}

func (m *Model) addCollaborator(projectID, email string) tea.Cmd {
	s := m.svc.Projects
	return m.dispatch(func(ctx context.Context) tea.Msg {
		_, err := s.AddCollaborator(ctx, projectID, email)
		return collaboratorChangedMsg{added: true, err: err}
	})
}

func (m *Model) removeCollaborator(projectID, userID string) tea.Cmd {
	s := m.svc.Projects
	return m.dispatch(func(ctx context.Context) tea.Msg {
		return collaboratorChangedMsg{err: s.RemoveCollaborator(ctx, projectID, userID)}
	})
}

// superseded reports whether err means a newer request or a session
// change made the response irrelevant. Such results are dropped silently.
func superseded(err error) bool {
	return errors.Is(err, projects.ErrStale) || errors.Is(err, session.ErrAuthInProgress)
}
