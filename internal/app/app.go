// Package app is the root Bubble Tea model. It routes between screens
// through the session guard and turns user intents into store calls.
package app

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/nhle/uptask/internal/alert"
	"github.com/nhle/uptask/internal/guard"
	"github.com/nhle/uptask/internal/keys"
	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/internal/projects"
	"github.com/nhle/uptask/internal/session"
	appsync "github.com/nhle/uptask/internal/sync"
	"github.com/nhle/uptask/internal/theme"
	"github.com/nhle/uptask/internal/ui"
	"github.com/nhle/uptask/internal/ui/authform"
	"github.com/nhle/uptask/internal/ui/command"
	"github.com/nhle/uptask/internal/ui/detail"
	helpview "github.com/nhle/uptask/internal/ui/help"
	"github.com/nhle/uptask/internal/ui/projectdetail"
	"github.com/nhle/uptask/internal/ui/projectform"
	"github.com/nhle/uptask/internal/ui/projectlist"
	"github.com/nhle/uptask/internal/ui/taskform"
)

// alertTTL is how long an alert replaces the key hints in the status bar.
const alertTTL = 4 * time.Second

// Services are the stores the UI drives.
type Services struct {
	Session  *session.Store
	Projects *projects.Store
	Guard    *guard.Guard
	// Alerts receives alerts raised by the UI itself. The project store
	// should report to the same sink.
	Alerts alert.Sink
	// Recorder is read to show the latest alert.
	Recorder *alert.Recorder
	// Poller, when set, periodically reloads the screen's data.
	Poller *appsync.Poller
	Log    logrus.FieldLogger
}

// overlay is drawn instead of the routed screen.
type overlay int

const (
	overlayNone overlay = iota
	overlayHelp
	overlayCommand
	overlayTaskForm
	overlayConfirm
)

// confirmation actions carried through projectform.ConfirmedMsg.
type (
	deleteProjectAction      struct{ project model.Project }
	deleteTaskAction         struct{ task model.Task }
	removeCollaboratorAction struct {
		projectID string
		user      model.User
	}
)

type alertExpiredMsg struct{ seq int }

// Model is the root Bubble Tea model.
type Model struct {
	svc    Services
	keys   *keys.KeyMap
	layout ui.Layout
	ready  bool

	states      <-chan session.State
	unsubscribe func()
	state       session.State
	restoring   bool

	requested  guard.Route
	shown      guard.Route
	decision   guard.Decision
	formReturn guard.Route
	overlay    overlay

	projectsLoaded bool
	offline        bool
	submitting     bool
	inflight       int
	alertSeq       int
	alertVisible   bool

	spinner       spinner.Model
	authForm      authform.Model
	projectList   projectlist.Model
	projectDetail projectdetail.Model
	taskDetail    detail.Model
	taskForm      taskform.Model
	projectForm   projectform.Model
	confirm       projectform.Model
	helpView      helpview.Model
	commandView   command.Model
}

// New creates the root model. Close must be called once the program exits.
func New(svc Services) Model {
	if svc.Alerts == nil {
		svc.Alerts = alert.Discard
	}
	if svc.Recorder == nil {
		svc.Recorder = &alert.Recorder{}
	}
	if svc.Log == nil {
		svc.Log = logrus.StandardLogger()
	}

	k := keys.DefaultKeyMap()
	states, unsubscribe := watchSession(svc.Session)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = sp.Style.Foreground(theme.ColorBlue)

	return Model{
		svc:           svc,
		keys:          k,
		states:        states,
		unsubscribe:   unsubscribe,
		state:         svc.Session.State(),
		restoring:     true,
		requested:     guard.Projects,
		decision:      guard.Pending,
		alertSeq:      svc.Recorder.Len(),
		spinner:       sp,
		authForm:      authform.New(80, 24),
		projectList:   projectlist.New(svc.Projects, k, 80, 24),
		projectDetail: projectdetail.New(svc.Projects, k, 80, 24),
		taskDetail:    detail.New(k, 80, 24),
		taskForm:      taskform.New(80, 24),
		projectForm:   projectform.New(80, 24),
		confirm:       projectform.New(80, 24),
		helpView:      helpview.New(k, 80, 24),
		commandView:   command.New(80, 24),
	}
}

// Close stops listening to the session store and stops the poller.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	if m.svc.Poller != nil {
		m.svc.Poller.Stop()
	}
}

// Route returns the screen currently shown.
func (m Model) Route() guard.Route {
	return m.shown
}

// Decision returns the outcome of the last routing decision.
func (m Model) Decision() guard.Decision {
	return m.decision
}

// Init restores the persisted session and starts watching for session
// changes.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		waitForState(m.states),
		m.spinner.Tick,
		m.restoreSession(),
	}
	if m.svc.Poller != nil {
		m.svc.Poller.Pause()
		cmds = append(cmds, m.svc.Poller.Start())
	}
	return tea.Batch(cmds...)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(settler); ok && m.inflight > 0 {
		m.inflight--
	}
	cmd := m.update(msg)
	return m, tea.Batch(cmd, m.trackAlerts())
}

func (m *Model) update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		// Forward to the active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return cmd

	case alertExpiredMsg:
		if msg.seq == m.alertSeq {
			m.alertVisible = false
		}
		return nil

	case sessionStateMsg:
		return tea.Batch(waitForState(m.states), m.sessionChanged())

	case appsync.TickMsg:
		return tea.Batch(m.svc.Poller.Wait(), m.poll())

	case restoredMsg:
		m.restoring = false
		return m.resolve()

	case authResultMsg:
		return m.authResult(msg)

	case projectsLoadedMsg:
		m.offline = msg.offline
		if msg.offline {
			m.svc.Alerts.Report(alert.Error("Offline: showing cached projects"))
		}
		return m.projectList.Refresh()

	case projectSelectedMsg:
		if msg.err != nil {
			return nil
		}
		cmd := m.projectDetail.Refresh()
		return tea.Batch(cmd, m.navigate(guard.Project))

	case projectSavedMsg:
		return m.projectSaved(msg)

	case projectDeletedMsg:
		if msg.err != nil {
			return nil
		}
		cmd := m.projectList.Refresh()
		if m.shown != guard.Projects {
			return tea.Batch(cmd, m.navigate(guard.Projects))
		}
		return cmd

	case taskSubmittedMsg:
		return m.taskSubmitted(msg)

	case taskDeletedMsg:
		if msg.err != nil {
			return nil
		}
		cmd := m.projectDetail.Refresh()
		if t, ok := m.taskDetail.Task(); ok && t.ID == msg.id {
			m.taskDetail.Clear()
			if m.shown == guard.Task {
				return tea.Batch(cmd, m.navigate(guard.Project))
			}
		}
		return cmd

	case taskToggledMsg:
		if msg.err != nil {
			return nil
		}
		if t, ok := m.taskDetail.Task(); ok && msg.task != nil && t.ID == msg.task.ID {
			m.taskDetail.SetTask(*msg.task, m.currentProjectName())
		}
		return m.projectDetail.Refresh()

	case collaboratorChangedMsg:
		return m.collaboratorChanged(msg)

	case authform.NavigateMsg:
		return m.navigate(msg.Route)
	case authform.LoginMsg:
		return m.login(msg.Credentials)
	case authform.SignUpMsg:
		return m.signUp(msg.Input)
	case authform.ForgotPasswordMsg:
		return m.forgotPassword(msg.Email)
	case authform.ResetPasswordMsg:
		return m.resetPassword(msg.Token, msg.Password, msg.Confirm)
	case authform.ConfirmAccountMsg:
		return m.confirmAccount(msg.Token)

	case projectlist.SelectedMsg:
		return m.selectProject(msg.ProjectID)
	case projectlist.NewMsg:
		return m.startCreateProject()
	case projectlist.EditMsg:
		return m.startEditProject(msg.Project)
	case projectlist.DeleteMsg:
		return m.askConfirm("Delete project \""+msg.Project.Name+"\"?",
			"Its tasks are deleted with it.", deleteProjectAction{project: msg.Project})
	case projectlist.RefreshMsg:
		return m.loadProjects()

	case projectdetail.BackMsg:
		return m.navigate(guard.Projects)
	case projectdetail.RefreshMsg:
		return m.selectProject(msg.ProjectID)
	case projectdetail.OpenTaskMsg:
		m.taskDetail.SetTask(msg.Task, m.currentProjectName())
		return m.navigate(guard.Task)
	case projectdetail.NewTaskMsg:
		return m.openTaskForm(m.svc.Projects.OpenModalForCreate())
	case projectdetail.EditTaskMsg:
		return m.openTaskForm(m.svc.Projects.OpenModalForEdit(msg.Task))
	case projectdetail.DeleteTaskMsg:
		return m.askConfirm("Delete task \""+msg.Task.Name+"\"?", "", deleteTaskAction{task: msg.Task})
	case projectdetail.ToggleTaskMsg:
		return m.toggleTask(msg.TaskID)
	case projectdetail.EditProjectMsg:
		return m.startEditProject(msg.Project)
	case projectdetail.DeleteProjectMsg:
		return m.askConfirm("Delete project \""+msg.Project.Name+"\"?",
			"Its tasks are deleted with it.", deleteProjectAction{project: msg.Project})
	case projectdetail.AddCollaboratorMsg:
		m.formReturn = guard.Project
		cmd := m.projectForm.StartCollaborator(msg.ProjectID)
		return tea.Batch(cmd, m.navigate(guard.NewCollaborator))
	case projectdetail.RemoveCollaboratorMsg:
		return m.askConfirm("Remove "+msg.User.Name+" from the project?", "",
			removeCollaboratorAction{projectID: msg.ProjectID, user: msg.User})

	case detail.BackMsg:
		return m.navigate(guard.Project)
	case detail.ActionMsg:
		switch msg.Action {
		case detail.ActionEdit:
			return m.openTaskForm(m.svc.Projects.OpenModalForEdit(msg.Task))
		case detail.ActionToggle:
			return m.toggleTask(msg.Task.ID)
		case detail.ActionDelete:
			return m.askConfirm("Delete task \""+msg.Task.Name+"\"?", "", deleteTaskAction{task: msg.Task})
		}
		return nil

	case taskform.SubmitMsg:
		if m.svc.Projects.Submitting() {
			m.svc.Alerts.Report(alert.FromError(projects.ErrSubmissionPending))
			return nil
		}
		m.submitting = true
		return m.submitTask(msg.Input)
	case taskform.CancelMsg:
		m.svc.Projects.CloseModal()
		m.overlay = overlayNone
		return nil

	case projectform.ProjectSubmitMsg:
		return m.saveProject(msg.Input)
	case projectform.CollaboratorSubmitMsg:
		return m.addCollaborator(msg.ProjectID, msg.Email)
	case projectform.ConfirmedMsg:
		m.overlay = overlayNone
		m.confirm.Close()
		return m.confirmed(msg.Action)
	case projectform.CancelMsg:
		if m.overlay == overlayConfirm {
			m.overlay = overlayNone
			m.confirm.Close()
			return nil
		}
		m.projectForm.Close()
		return m.navigate(m.formReturn)

	case command.CommandMsg:
		m.overlay = overlayNone
		return m.executeCommand(msg)
	case command.CloseMsg:
		m.overlay = overlayNone
		return nil

	case tea.KeyMsg:
		if cmd, handled := m.handleGlobalKey(msg); handled {
			return cmd
		}
	}

	return m.updateActiveView(msg)
}

// handleGlobalKey processes keys that work regardless of the active view.
// It reports false when the key belongs to the active view.
func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return tea.Quit, true
	}

	switch m.overlay {
	case overlayHelp:
		if key.Matches(msg, m.keys.Help) || key.Matches(msg, m.keys.Back) {
			m.overlay = overlayNone
		}
		return nil, true
	case overlayTaskForm:
		// A submitted form ignores input until the store answers.
		return nil, m.submitting
	case overlayNone:
	default:
		return nil, false
	}

	if m.typing() {
		return nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit, true
	case key.Matches(msg, m.keys.Help):
		m.overlay = overlayHelp
		return nil, true
	case msg.String() == ":" && m.state == session.Authenticated:
		m.overlay = overlayCommand
		return m.commandView.Focus(), true
	case key.Matches(msg, m.keys.Logout) && m.state == session.Authenticated:
		m.svc.Session.Logout()
		return nil, true
	}
	return nil, false
}

// typing reports whether the active view has a text input focused.
func (m Model) typing() bool {
	if m.decision == guard.Pending {
		return false
	}
	if !m.shown.IsProtected() {
		return true
	}
	switch m.shown {
	case guard.CreateProject, guard.EditProject, guard.NewCollaborator:
		return true
	case guard.Projects:
		return m.projectList.Searching()
	}
	return false
}

// updateActiveView dispatches the message to the currently active view.
func (m *Model) updateActiveView(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd

	switch m.overlay {
	case overlayCommand:
		m.commandView, cmd = m.commandView.Update(msg)
		return cmd
	case overlayTaskForm:
		m.taskForm, cmd = m.taskForm.Update(msg)
		return cmd
	case overlayConfirm:
		m.confirm, cmd = m.confirm.Update(msg)
		return cmd
	case overlayHelp:
		return nil
	}

	if m.decision == guard.Pending {
		return nil
	}

	switch m.shown {
	case guard.Login, guard.SignUp, guard.ForgotPassword, guard.NewPassword, guard.ConfirmAccount:
		m.authForm, cmd = m.authForm.Update(msg)
	case guard.Projects:
		m.projectList, cmd = m.projectList.Update(msg)
	case guard.Project:
		m.projectDetail, cmd = m.projectDetail.Update(msg)
	case guard.Task:
		m.taskDetail, cmd = m.taskDetail.Update(msg)
	case guard.CreateProject, guard.EditProject, guard.NewCollaborator:
		m.projectForm, cmd = m.projectForm.Update(msg)
	}
	return cmd
}

// navigate requests route and shows whatever the guard allows.
func (m *Model) navigate(route guard.Route) tea.Cmd {
	m.requested = route
	return m.resolve()
}

// resolve re-runs the guard for the requested route.
func (m *Model) resolve() tea.Cmd {
	if m.restoring {
		m.decision = guard.Pending
		return nil
	}

	decision, redirect := m.svc.Guard.Resolve(m.requested)
	m.decision = decision
	if decision == guard.Pending {
		return nil
	}

	target := m.requested
	if decision == guard.Redirect {
		target = redirect
	}
	if target == m.shown {
		return nil
	}
	m.svc.Log.WithFields(logrus.Fields{
		"from":     m.shown,
		"to":       target,
		"decision": decision,
	}).Debug("route")
	m.shown = target
	return m.enter(target)
}

// enter prepares the view behind route.
func (m *Model) enter(route guard.Route) tea.Cmd {
	if m.overlay == overlayHelp || m.overlay == overlayCommand {
		m.overlay = overlayNone
	}
	m.setHelpScreen(route)

	switch route {
	case guard.Login, guard.SignUp, guard.ForgotPassword, guard.NewPassword, guard.ConfirmAccount:
		return m.authForm.Show(route)
	case guard.Projects:
		cmd := m.projectList.Refresh()
		if !m.projectsLoaded {
			m.projectsLoaded = true
			return tea.Batch(cmd, m.loadProjects())
		}
		return cmd
	case guard.Project:
		return m.projectDetail.Refresh()
	}
	return nil
}

// sessionChanged reacts to a session transition. Ending a session wipes
// everything the project store holds.
func (m *Model) sessionChanged() tea.Cmd {
	prev := m.state
	m.state = m.svc.Session.State()

	if prev == session.Authenticated && m.state != session.Authenticated {
		m.svc.Projects.Reset(context.Background())
		m.projectsLoaded = false
		m.offline = false
		m.submitting = false
		m.overlay = overlayNone
		m.projectForm.Close()
		m.confirm.Close()
		m.taskDetail.Clear()
		m.projectList.SetUserID("")
		if m.requested.IsProtected() {
			m.requested = guard.Projects
		}
	}
	if m.state == session.Authenticated {
		if u := m.svc.Session.CurrentUser(); u != nil {
			m.projectList.SetUserID(u.ID)
		}
	}
	if m.svc.Poller != nil {
		if m.state == session.Authenticated {
			m.svc.Poller.Resume()
		} else {
			m.svc.Poller.Pause()
		}
	}
	return m.resolve()
}

// poll reloads the data behind the shown screen. It skips the reload while
// the user is busy with a form or a request is outstanding.
func (m *Model) poll() tea.Cmd {
	if m.state != session.Authenticated || m.overlay != overlayNone || m.inflight > 0 {
		return nil
	}
	// An expired token ends the session here; the watcher then reroutes.
	if !m.svc.Session.IsAuthenticated() {
		return nil
	}
	switch m.shown {
	case guard.Projects:
		return m.loadProjects()
	case guard.Project:
		if p := m.svc.Projects.Current(); p != nil {
			return m.selectProject(p.ID)
		}
	}
	return nil
}

func (m *Model) authResult(msg authResultMsg) tea.Cmd {
	if superseded(msg.err) {
		return nil
	}
	if msg.err != nil {
		m.svc.Alerts.Report(alert.FromError(msg.err))
		return m.authForm.Reopen()
	}
	if msg.message != "" {
		m.svc.Alerts.Report(alert.Success(msg.message))
	}

	switch msg.op {
	case opSignUp:
		if m.state == session.Authenticated {
			return nil
		}
		return m.navigate(guard.ConfirmAccount)
	case opForgot:
		return m.navigate(guard.NewPassword)
	case opReset, opConfirm:
		return m.navigate(guard.Login)
	}
	return nil
}

func (m *Model) projectSaved(msg projectSavedMsg) tea.Cmd {
	if msg.err != nil {
		if superseded(msg.err) {
			return nil
		}
		return m.projectForm.Reopen()
	}
	m.projectForm.Close()
	cmds := []tea.Cmd{m.projectList.Refresh()}
	if m.formReturn == guard.Project {
		cmds = append(cmds, m.projectDetail.Refresh())
	}
	cmds = append(cmds, m.navigate(m.formReturn))
	return tea.Batch(cmds...)
}

func (m *Model) taskSubmitted(msg taskSubmittedMsg) tea.Cmd {
	m.submitting = false
	if msg.err != nil && !superseded(msg.err) && projects.IsOpen(m.svc.Projects.Modal()) {
		return m.taskForm.Reopen()
	}
	if !projects.IsOpen(m.svc.Projects.Modal()) {
		m.overlay = overlayNone
	}
	if msg.err != nil {
		return nil
	}
	if t, ok := m.taskDetail.Task(); ok && msg.task != nil && t.ID == msg.task.ID {
		m.taskDetail.SetTask(*msg.task, m.currentProjectName())
	}
	return m.projectDetail.Refresh()
}

func (m *Model) collaboratorChanged(msg collaboratorChangedMsg) tea.Cmd {
	if msg.err != nil {
		if msg.added && !superseded(msg.err) && m.shown == guard.NewCollaborator {
			return m.projectForm.Reopen()
		}
		return nil
	}
	cmd := m.projectDetail.Refresh()
	if msg.added {
		m.projectForm.Close()
		return tea.Batch(cmd, m.navigate(guard.Project))
	}
	return cmd
}

func (m *Model) openTaskForm(err error) tea.Cmd {
	if err != nil {
		m.svc.Alerts.Report(alert.FromError(err))
		return nil
	}
	m.overlay = overlayTaskForm
	return m.taskForm.Start(m.svc.Projects.Modal())
}

func (m *Model) startCreateProject() tea.Cmd {
	m.formReturn = guard.Projects
	cmd := m.projectForm.StartCreate()
	return tea.Batch(cmd, m.navigate(guard.CreateProject))
}

func (m *Model) startEditProject(p model.Project) tea.Cmd {
	m.formReturn = m.shown
	if m.formReturn != guard.Project {
		m.formReturn = guard.Projects
	}
	cmd := m.projectForm.StartEdit(p)
	return tea.Batch(cmd, m.navigate(guard.EditProject))
}

func (m *Model) askConfirm(question, detail string, action any) tea.Cmd {
	m.overlay = overlayConfirm
	return m.confirm.StartConfirm(question, detail, action)
}

func (m *Model) confirmed(action any) tea.Cmd {
	switch a := action.(type) {
	case deleteProjectAction:
		return m.deleteProject(a.project.ID)
	case deleteTaskAction:
		return m.deleteTask(a.task.ID)
	case removeCollaboratorAction:
		return m.removeCollaborator(a.projectID, a.user.ID)
	}
	return nil
}

// executeCommand handles a command from the command palette.
func (m *Model) executeCommand(msg command.CommandMsg) tea.Cmd {
	switch msg.Name {
	case command.Projects:
		return m.navigate(guard.Projects)
	case command.NewProject:
		return m.startCreateProject()
	case command.NewTask:
		return m.openTaskForm(m.svc.Projects.OpenModalForCreate())
	case command.Search:
		cmd := m.projectList.SetQuery(msg.Arg)
		return tea.Batch(cmd, m.navigate(guard.Projects))
	case command.Refresh:
		if p := m.svc.Projects.Current(); p != nil && (m.shown == guard.Project || m.shown == guard.Task) {
			return m.selectProject(p.ID)
		}
		return m.loadProjects()
	case command.Logout:
		m.svc.Session.Logout()
		return nil
	case command.Quit:
		return tea.Quit
	}
	return nil
}

// trackAlerts shows a newly recorded alert and schedules its expiry.
func (m *Model) trackAlerts() tea.Cmd {
	n := m.svc.Recorder.Len()
	if n == m.alertSeq {
		return nil
	}
	m.alertSeq = n
	m.alertVisible = true
	seq := n
	return tea.Tick(alertTTL, func(time.Time) tea.Msg { return alertExpiredMsg{seq: seq} })
}

func (m *Model) resize(width, height int) {
	m.layout = ui.NewLayout(width, height)
	m.ready = true
	w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
	m.authForm.SetSize(w, h)
	m.projectList.SetSize(w, h)
	m.projectDetail.SetSize(w, h)
	m.taskDetail.SetSize(w, h)
	m.taskForm.SetSize(w, h)
	m.projectForm.SetSize(w, h)
	m.confirm.SetSize(w, h)
	m.helpView.SetSize(w, h)
	m.commandView.SetSize(w, h)
}

func (m Model) currentProjectName() string {
	if p := m.svc.Projects.Current(); p != nil {
		return p.Name
	}
	return ""
}
