package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nhle/uptask/internal/model"
)

// Route identifies a fake endpoint as "METHOD /path/:param", matching the
// echo route template.
type Route string

const (
	RouteLogin              Route = "POST /auth/login"
	RouteProfile            Route = "GET /auth/profile"
	RouteSignUp             Route = "POST /users"
	RouteForgotPassword     Route = "POST /users/forgot-password"
	RouteResetPassword      Route = "POST /users/forgot-password/:token"
	RouteConfirmAccount     Route = "GET /users/confirm/:token"
	RouteListProjects       Route = "GET /projects"
	RouteGetProject         Route = "GET /projects/:id"
	RouteCreateProject      Route = "POST /projects"
	RouteUpdateProject      Route = "PUT /projects/:id"
	RouteDeleteProject      Route = "DELETE /projects/:id"
	RouteCreateTask         Route = "POST /tasks"
	RouteUpdateTask         Route = "PUT /tasks/:id"
	RouteDeleteTask         Route = "DELETE /tasks/:id"
	RouteToggleTask         Route = "POST /tasks/:id/status"
	RouteAddCollaborator    Route = "POST /projects/:id/collaborators"
	RouteRemoveCollaborator Route = "DELETE /projects/:id/collaborators/:userId"
)

type fakeUser struct {
	user      model.User
	password  string
	confirmed bool
}

type injectedFailure struct {
	status int
	msg    string
}

// Gate holds requests to one route until released.
type Gate struct {
	// Arrived receives once per request that reaches the gate.
	Arrived  chan struct{}
	released chan struct{}
	once     sync.Once
}

// Release lets every held and future request through.
func (g *Gate) Release() {
	g.once.Do(func() { close(g.released) })
}

// FakeAPI is an in-memory implementation of the remote API served over
// httptest. It is safe for concurrent use.
type FakeAPI struct {
	Server *httptest.Server

	mu           sync.Mutex
	users        map[string]*fakeUser // by email
	tokens       map[string]string    // token -> user ID
	confirmTkns  map[string]string    // confirm token -> email
	projects     map[string]*model.Project
	projectOrder []string
	tasks        map[string]*model.Task
	taskOrder    []string
	calls        map[Route]int
	failures     map[Route]injectedFailure
	gates        map[Route]*Gate
	nextID       int
}

// NewFakeAPI starts a fake API server that is shut down when the test ends.
func NewFakeAPI(t *testing.T) *FakeAPI {
	t.Helper()

	f := &FakeAPI{
		users:       make(map[string]*fakeUser),
		tokens:      make(map[string]string),
		confirmTkns: make(map[string]string),
		projects:    make(map[string]*model.Project),
		tasks:       make(map[string]*model.Task),
		calls:       make(map[Route]int),
		failures:    make(map[Route]injectedFailure),
		gates:       make(map[Route]*Gate),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(f.intercept)

	e.POST("/auth/login", f.login)
	e.GET("/auth/profile", f.profile)
	e.POST("/users", f.signUp)
	e.POST("/users/forgot-password", f.forgotPassword)
	e.POST("/users/forgot-password/:token", f.resetPassword)
	e.GET("/users/confirm/:token", f.confirmAccount)

	e.GET("/projects", f.listProjects)
	e.GET("/projects/:id", f.getProject)
	e.POST("/projects", f.createProject)
	e.PUT("/projects/:id", f.updateProject)
	e.DELETE("/projects/:id", f.deleteProject)
	e.POST("/projects/:id/collaborators", f.addCollaborator)
	e.DELETE("/projects/:id/collaborators/:userId", f.removeCollaborator)

	e.POST("/tasks", f.createTask)
	e.PUT("/tasks/:id", f.updateTask)
	e.DELETE("/tasks/:id", f.deleteTask)
	e.POST("/tasks/:id/status", f.toggleTask)

	f.Server = httptest.NewServer(e)
	t.Cleanup(func() {
		f.mu.Lock()
		for _, g := range f.gates {
			g.Release()
		}
		f.mu.Unlock()
		f.Server.Close()
	})

	return f
}

// URL returns the base URL of the fake API.
func (f *FakeAPI) URL() string {
	return f.Server.URL
}

// intercept counts calls and applies injected failures and gates.
func (f *FakeAPI) intercept(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		route := Route(c.Request().Method + " " + c.Path())

		f.mu.Lock()
		f.calls[route]++
		failure, failing := f.failures[route]
		if failing {
			delete(f.failures, route)
		}
		gate := f.gates[route]
		f.mu.Unlock()

		if gate != nil {
			select {
			case gate.Arrived <- struct{}{}:
			default:
			}
			<-gate.released
		}

		if failing {
			return c.JSON(failure.status, map[string]string{"msg": failure.msg})
		}
		return next(c)
	}
}

// Calls returns how many requests reached route.
func (f *FakeAPI) Calls(route Route) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

// TotalCalls returns how many requests reached the server.
func (f *FakeAPI) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

// FailNext makes the next request to route answer status with msg.
func (f *FakeAPI) FailNext(route Route, status int, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[route] = injectedFailure{status: status, msg: msg}
}

// Hold makes requests to route wait until the returned gate is released.
func (f *FakeAPI) Hold(route Route) *Gate {
	f.mu.Lock()
	defer f.mu.Unlock()
	g := &Gate{Arrived: make(chan struct{}, 8), released: make(chan struct{})}
	f.gates[route] = g
	return g
}

func (f *FakeAPI) newID(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s%d", prefix, f.nextID)
}

// SeedUser registers a confirmed account.
func (f *FakeAPI) SeedUser(name, email, password string) model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := model.User{ID: f.newID("u"), Name: name, Email: email}
	f.users[email] = &fakeUser{user: u, password: password, confirmed: true}
	return u
}

// IssueToken returns a valid bearer token for userID.
func (f *FakeAPI) IssueToken(userID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := "tok-" + f.newID("") + "-" + userID
	f.tokens[token] = userID
	return token
}

// RevokeTokens invalidates every issued token.
func (f *FakeAPI) RevokeTokens() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = make(map[string]string)
}

// ConfirmToken returns the pending confirmation token for email.
func (f *FakeAPI) ConfirmToken(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for tok, e := range f.confirmTkns {
		if e == email {
			return tok
		}
	}
	return ""
}

// SeedProject creates a project owned by ownerID.
func (f *FakeAPI) SeedProject(ownerID, name string) model.Project {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &model.Project{
		ID:          f.newID("p"),
		Name:        name,
		Description: name + " description",
		Client:      "ACME",
		Owner:       ownerID,
		Deadline:    time.Now().UTC().AddDate(0, 1, 0).Truncate(24 * time.Hour),
		CreatedAt:   time.Now().UTC(),
	}
	f.projects[p.ID] = p
	f.projectOrder = append(f.projectOrder, p.ID)
	return *p
}

// SeedTask creates a task in projectID.
func (f *FakeAPI) SeedTask(projectID, name string) model.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &model.Task{
		ID:          f.newID("t"),
		Project:     projectID,
		Name:        name,
		Description: name + " description",
		Deadline:    time.Now().UTC().AddDate(0, 0, 7).Truncate(24 * time.Hour),
		Priority:    model.PriorityMedium,
		CreatedAt:   time.Now().UTC(),
	}
	f.tasks[t.ID] = t
	f.taskOrder = append(f.taskOrder, t.ID)
	return *t
}

// ShareProject adds userID as a collaborator of projectID.
func (f *FakeAPI) ShareProject(projectID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.projects[projectID]
	if p == nil {
		return
	}
	if u := f.userByIDLocked(userID); u != nil {
		p.Collaborators = append(p.Collaborators, u.user)
	}
}

// Task returns the server-side copy of a task.
func (f *FakeAPI) Task(id string) (model.Task, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return model.Task{}, false
	}
	return *t, true
}

func (f *FakeAPI) userByIDLocked(id string) *fakeUser {
	for _, u := range f.users {
		if u.user.ID == id {
			return u
		}
	}
	return nil
}

func msg(c echo.Context, status int, text string) error {
	return c.JSON(status, map[string]string{"msg": text})
}

// authUser resolves the bearer token. Callers must hold f.mu.
func (f *FakeAPI) authUserLocked(c echo.Context) *fakeUser {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	token := strings.TrimPrefix(header, "Bearer ")
	if token == "" || token == header {
		return nil
	}
	id, ok := f.tokens[token]
	if !ok {
		return nil
	}
	return f.userByIDLocked(id)
}

func canAccess(p *model.Project, userID string) bool {
	return p.Owner == userID || p.HasCollaborator(userID)
}

func (f *FakeAPI) login(c echo.Context) error {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&in); err != nil {
		return msg(c, http.StatusBadRequest, "Invalid body")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[in.Email]
	if !ok {
		return msg(c, http.StatusNotFound, "User does not exist")
	}
	if !u.confirmed {
		return msg(c, http.StatusForbidden, "Your account has not been confirmed")
	}
	if u.password != in.Password {
		return msg(c, http.StatusForbidden, "Incorrect password")
	}
	token := "tok-" + f.newID("") + "-" + u.user.ID
	f.tokens[token] = u.user.ID
	return c.JSON(http.StatusOK, map[string]interface{}{"token": token, "user": u.user})
}

func (f *FakeAPI) profile(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.authUserLocked(c)
	if u == nil {
		return msg(c, http.StatusUnauthorized, "Invalid token")
	}
	return c.JSON(http.StatusOK, u.user)
}

func (f *FakeAPI) signUp(c echo.Context) error {
	var in struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.Bind(&in); err != nil {
		return msg(c, http.StatusBadRequest, "Invalid body")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.users[in.Email]; exists {
		return msg(c, http.StatusBadRequest, "User already registered")
	}
	u := &fakeUser{
		user:     model.User{ID: f.newID("u"), Name: in.Name, Email: in.Email},
		password: in.Password,
	}
	f.users[in.Email] = u
	f.confirmTkns["confirm-"+u.user.ID] = in.Email
	return msg(c, http.StatusOK, "User created, check your email to confirm your account")
}

func (f *FakeAPI) forgotPassword(c echo.Context) error {
	var in struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&in); err != nil {
		return msg(c, http.StatusBadRequest, "Invalid body")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[in.Email]; !ok {
		return msg(c, http.StatusNotFound, "User does not exist")
	}
	return msg(c, http.StatusOK, "We have sent an email with the instructions")
}

func (f *FakeAPI) resetPassword(c echo.Context) error {
	var in struct {
		Password string `json:"password"`
	}
	if err := c.Bind(&in); err != nil {
		return msg(c, http.StatusBadRequest, "Invalid body")
	}
	if c.Param("token") == "" || c.Param("token") == "expired" {
		return msg(c, http.StatusNotFound, "Invalid token")
	}
	return msg(c, http.StatusOK, "Password changed")
}

func (f *FakeAPI) confirmAccount(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	email, ok := f.confirmTkns[c.Param("token")]
	if !ok {
		return msg(c, http.StatusForbidden, "Invalid token")
	}
	delete(f.confirmTkns, c.Param("token"))
	f.users[email].confirmed = true
	return msg(c, http.StatusOK, "Account confirmed")
}

func (f *FakeAPI) listProjects(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.authUserLocked(c)
	if u == nil {
		return msg(c, http.StatusUnauthorized, "Invalid token")
	}
	projects := []model.Project{}
	for _, id := range f.projectOrder {
		p := f.projects[id]
		if p != nil && canAccess(p, u.user.ID) {
			projects = append(projects, *p)
		}
	}
	return c.JSON(http.StatusOK, projects)
}

func (f *FakeAPI) getProject(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.authUserLocked(c)
	if u == nil {
		return msg(c, http.StatusUnauthorized, "Invalid token")
	}
	p, ok := f.projects[c.Param("id")]
	if !ok {
		return msg(c, http.StatusNotFound, "Project not found")
	}
	if !canAccess(p, u.user.ID) {
		return msg(c, http.StatusForbidden, "Action not valid")
	}
	tasks := []model.Task{}
	for _, id := range f.taskOrder {
		if t := f.tasks[id]; t != nil && t.Project == p.ID {
			tasks = append(tasks, *t)
		}
	}
	collaborators := append([]model.User{}, p.Collaborators...)
	return c.JSON(http.StatusOK, model.ProjectDetail{
		Project:       *p,
		Tasks:         tasks,
		Collaborators: collaborators,
	})
}

func parseDate(s string) (time.Time, error) {
	if i := strings.IndexByte(s, 'T'); i >= 0 {
		s = s[:i]
	}
	return time.Parse(model.DateLayout, s)
}

func (f *FakeAPI) createProject(c echo.Context) error {
	var in model.ProjectInput
	if err := c.Bind(&in); err != nil {
		return msg(c, http.StatusBadRequest, "Invalid body")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.authUserLocked(c)
	if u == nil {
		return msg(c, http.StatusUnauthorized, "Invalid token")
	}
	deadline, err := parseDate(in.Deadline)
	if err != nil {
		return msg(c, http.StatusBadRequest, "Invalid deadline")
	}
	p := &model.Project{
		ID:          f.newID("p"),
		Name:        in.Name,
		Description: in.Description,
		Client:      in.Client,
		Deadline:    deadline,
		Owner:       u.user.ID,
		CreatedAt:   time.Now().UTC(),
	}
	f.projects[p.ID] = p
	f.projectOrder = append(f.projectOrder, p.ID)
	return c.JSON(http.StatusOK, p)
}

func (f *FakeAPI) updateProject(c echo.Context) error {
	var in model.ProjectInput
	if err := c.Bind(&in); err != nil {
		return msg(c, http.StatusBadRequest, "Invalid body")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.authUserLocked(c)
	if u == nil {
		return msg(c, http.StatusUnauthorized, "Invalid token")
	}
	p, ok := f.projects[c.Param("id")]
	if !ok {
		return msg(c, http.StatusNotFound, "Project not found")
	}
	if p.Owner != u.user.ID {
		return msg(c, http.StatusForbidden, "Action not valid")
	}
	deadline, err := parseDate(in.Deadline)
	if err != nil {
		return msg(c, http.StatusBadRequest, "Invalid deadline")
	}
	p.Name = in.Name
	p.Description = in.Description
	p.Client = in.Client
	p.Deadline = deadline
	return c.JSON(http.StatusOK, p)
}

func (f *FakeAPI) deleteProject(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.authUserLocked(c)
	if u == nil {
		return msg(c, http.StatusUnauthorized, "Invalid token")
	}
	p, ok := f.projects[c.Param("id")]
	if !ok {
		return msg(c, http.StatusNotFound, "Project not found")
	}
	if p.Owner != u.user.ID {
		return msg(c, http.StatusForbidden, "Action not valid")
	}
	delete(f.projects, p.ID)
	for id, t := range f.tasks {
		if t.Project == p.ID {
			delete(f.tasks, id)
		}
	}
	return msg(c, http.StatusOK, "Project deleted")
}

func (f *FakeAPI) addCollaborator(c echo.Context) error {
	var in struct {
		Email string `json:"email"`
		ID    string `json:"id"`
	}
	if err := c.Bind(&in); err != nil {
		return msg(c, http.StatusBadRequest, "Invalid body")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.authUserLocked(c)
	if u == nil {
		return msg(c, http.StatusUnauthorized, "Invalid token")
	}
	p, ok := f.projects[c.Param("id")]
	if !ok {
		return msg(c, http.StatusNotFound, "Project not found")
	}
	if p.Owner != u.user.ID {
		return msg(c, http.StatusForbidden, "Action not valid")
	}
	var target *fakeUser
	if in.Email != "" {
		target = f.users[in.Email]
	} else {
		target = f.userByIDLocked(in.ID)
	}
	if target == nil {
		return msg(c, http.StatusNotFound, "User not found")
	}
	if target.user.ID == p.Owner {
		return msg(c, http.StatusForbidden, "The project owner cannot be a collaborator")
	}
	if p.HasCollaborator(target.user.ID) {
		return msg(c, http.StatusForbidden, "User already belongs to the project")
	}
	p.Collaborators = append(p.Collaborators, target.user)
	return c.JSON(http.StatusOK, target.user)
}

func (f *FakeAPI) removeCollaborator(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.authUserLocked(c)
	if u == nil {
		return msg(c, http.StatusUnauthorized, "Invalid token")
	}
	p, ok := f.projects[c.Param("id")]
	if !ok {
		return msg(c, http.StatusNotFound, "Project not found")
	}
	if p.Owner != u.user.ID {
		return msg(c, http.StatusForbidden, "Action not valid")
	}
	userID := c.Param("userId")
	kept := p.Collaborators[:0]
	found := false
	for _, collab := range p.Collaborators {
		if collab.ID == userID {
			found = true
			continue
		}
		kept = append(kept, collab)
	}
	if !found {
		return msg(c, http.StatusNotFound, "Collaborator not found")
	}
	p.Collaborators = kept
	return msg(c, http.StatusOK, "Collaborator removed")
}

func (f *FakeAPI) createTask(c echo.Context) error {
	var in model.TaskInput
	if err := c.Bind(&in); err != nil {
		return msg(c, http.StatusBadRequest, "Invalid body")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.authUserLocked(c)
	if u == nil {
		return msg(c, http.StatusUnauthorized, "Invalid token")
	}
	p, ok := f.projects[in.Project]
	if !ok {
		return msg(c, http.StatusNotFound, "Project not found")
	}
	if p.Owner != u.user.ID {
		return msg(c, http.StatusForbidden, "You do not have permission to add tasks")
	}
	deadline, err := parseDate(in.Deadline)
	if err != nil {
		return msg(c, http.StatusBadRequest, "Invalid deadline")
	}
	t := &model.Task{
		ID:          f.newID("t"),
		Project:     p.ID,
		Name:        in.Name,
		Description: in.Description,
		Deadline:    deadline,
		Priority:    in.Priority,
		CreatedAt:   time.Now().UTC(),
	}
	f.tasks[t.ID] = t
	f.taskOrder = append(f.taskOrder, t.ID)
	return c.JSON(http.StatusOK, t)
}

// taskForUserLocked loads a task and checks that the caller may touch it.
// On failure the response has already been written.
func (f *FakeAPI) taskForUserLocked(c echo.Context, ownerOnly bool) (*model.Task, error) {
	u := f.authUserLocked(c)
	if u == nil {
		return nil, msg(c, http.StatusUnauthorized, "Invalid token")
	}
	t, ok := f.tasks[c.Param("id")]
	if !ok {
		return nil, msg(c, http.StatusNotFound, "Task not found")
	}
	p := f.projects[t.Project]
	if p == nil || (ownerOnly && p.Owner != u.user.ID) || !canAccess(p, u.user.ID) {
		return nil, msg(c, http.StatusForbidden, "Action not valid")
	}
	return t, nil
}

func (f *FakeAPI) updateTask(c echo.Context) error {
	var in model.TaskInput
	if err := c.Bind(&in); err != nil {
		return msg(c, http.StatusBadRequest, "Invalid body")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.taskForUserLocked(c, true)
	if t == nil {
		return err
	}
	deadline, perr := parseDate(in.Deadline)
	if perr != nil {
		return msg(c, http.StatusBadRequest, "Invalid deadline")
	}
	t.Name = in.Name
	t.Description = in.Description
	t.Deadline = deadline
	t.Priority = in.Priority
	return c.JSON(http.StatusOK, t)
}

func (f *FakeAPI) deleteTask(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.taskForUserLocked(c, true)
	if t == nil {
		return err
	}
	delete(f.tasks, t.ID)
	return msg(c, http.StatusOK, "Task deleted")
}

func (f *FakeAPI) toggleTask(c echo.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.taskForUserLocked(c, false)
	if t == nil {
		return err
	}
	t.Completed = !t.Completed
	if t.Completed {
		u := f.authUserLocked(c).user
		t.CompletedBy = &u
	} else {
		t.CompletedBy = nil
	}
	return c.JSON(http.StatusOK, t)
}
