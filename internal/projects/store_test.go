package projects

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/nhle/uptask/internal/alert"
	"github.com/nhle/uptask/internal/api"
	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/internal/validate"
	"github.com/nhle/uptask/tests/testutil"
)

var fixedNow = time.Date(2026, 3, 14, 22, 30, 0, 0, time.UTC)

const (
	today    = "2026-03-14"
	tomorrow = "2026-03-15"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

type identity struct{ user model.User }

func (i identity) CurrentUser() *model.User {
	u := i.user
	return &u
}

type fixture struct {
	fake    *testutil.FakeAPI
	store   *Store
	alerts  *alert.Recorder
	user    model.User
	project model.Project
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	fake := testutil.NewFakeAPI(t)
	user := fake.SeedUser("Ana", "ana@example.com", "secret1")
	project := fake.SeedProject(user.ID, "Website")
	return &fixture{
		fake:    fake,
		store:   newStoreFor(fake, user, &alert.Recorder{}, opts...),
		user:    user,
		project: project,
	}
}

func newStoreFor(fake *testutil.FakeAPI, user model.User, rec *alert.Recorder, opts ...Option) *Store {
	client := api.NewClient(fake.URL(), api.WithMaxRetries(0))
	client.SetTokenSource(staticToken(fake.IssueToken(user.ID)))
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return New(client, rec, identity{user: user}, opts...)
}

func (f *fixture) recorder() *alert.Recorder {
	return f.store.alerts.(*alert.Recorder)
}

func (f *fixture) selectProject(t *testing.T) {
	t.Helper()
	if _, err := f.store.SelectProject(context.Background(), f.project.ID); err != nil {
		t.Fatalf("selecting project: %v", err)
	}
}

func (f *fixture) writeCalls() int {
	return f.fake.Calls(testutil.RouteCreateTask) + f.fake.Calls(testutil.RouteUpdateTask)
}

func validInput(projectID string) model.TaskInput {
	return model.TaskInput{
		Name:        "Draft brief",
		Description: "write it",
		Deadline:    tomorrow,
		Priority:    model.PriorityMedium,
		Project:     projectID,
	}
}

func TestSubmitTaskRequiresFields(t *testing.T) {
	tests := []struct {
		name  string
		clear func(*model.TaskInput)
	}{
		{"name", func(in *model.TaskInput) { in.Name = "" }},
		{"description", func(in *model.TaskInput) { in.Description = "  " }},
		{"deadline", func(in *model.TaskInput) { in.Deadline = "" }},
		{"priority", func(in *model.TaskInput) { in.Priority = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.selectProject(t)
			in := validInput(f.project.ID)
			tt.clear(&in)

			_, err := f.store.SubmitTask(context.Background(), in)
			if !validate.IsValidationError(err) {
				t.Fatalf("expected a validation error, got %v", err)
			}
			if err.Error() != validate.MsgRequired {
				t.Fatalf("unexpected message %q", err.Error())
			}
			if f.writeCalls() != 0 {
				t.Fatalf("expected no request, got %d", f.writeCalls())
			}
			if a, _ := f.recorder().Latest(); !a.IsError() || a.Title != validate.MsgRequired {
				t.Fatalf("unexpected alert %+v", a)
			}
		})
	}
}

func TestCreateTaskDueTomorrow(t *testing.T) {
	f := newFixture(t)
	existing := f.fake.SeedTask(f.project.ID, "Existing")
	f.selectProject(t)
	if err := f.store.OpenModalForCreate(); err != nil {
		t.Fatal(err)
	}

	task, err := f.store.SubmitTask(context.Background(), validInput(f.project.ID))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if task.ID == "" || task.ID == existing.ID {
		t.Fatalf("expected a fresh id, got %q", task.ID)
	}

	tasks := f.store.Tasks()
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].ID != existing.ID || tasks[0].Name != existing.Name {
		t.Fatalf("existing task changed: %+v", tasks[0])
	}
	if tasks[1].ID != task.ID || tasks[1].Name != "Draft brief" {
		t.Fatalf("unexpected appended task %+v", tasks[1])
	}
	if IsOpen(f.store.Modal()) {
		t.Fatalf("expected the modal to close, got %#v", f.store.Modal())
	}
	if a, _ := f.recorder().Latest(); a.Kind != alert.KindSuccess {
		t.Fatalf("expected a success alert, got %+v", a)
	}
}

func TestCreateTaskDueTodayRejected(t *testing.T) {
	f := newFixture(t)
	f.selectProject(t)
	if err := f.store.OpenModalForCreate(); err != nil {
		t.Fatal(err)
	}
	in := validInput(f.project.ID)
	in.Deadline = today

	_, err := f.store.SubmitTask(context.Background(), in)
	var ve *validate.ValidationError
	if !errors.As(err, &ve) || ve.Message != "Date must be later than today" {
		t.Fatalf("expected the future-date error, got %v", err)
	}
	if len(f.store.Tasks()) != 0 {
		t.Fatalf("expected no task, got %d", len(f.store.Tasks()))
	}
	if _, ok := f.store.Modal().(CreatingFor); !ok {
		t.Fatalf("expected the modal to stay open, got %#v", f.store.Modal())
	}
	if f.writeCalls() != 0 {
		t.Fatal("expected no request")
	}
}

func TestUpdateTaskReplacesInPlace(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"One", "Two", "Three"} {
		f.fake.SeedTask(f.project.ID, name)
	}
	f.selectProject(t)
	before := f.store.Tasks()
	target := before[1]

	if err := f.store.OpenModalForEdit(target); err != nil {
		t.Fatal(err)
	}
	in := Input(f.store.Modal())
	in.Name = "Two, revised"
	in.Deadline = tomorrow

	updated, err := f.store.SubmitTask(context.Background(), in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.ID != target.ID {
		t.Fatalf("expected id %s, got %s", target.ID, updated.ID)
	}

	after := f.store.Tasks()
	if len(after) != len(before) {
		t.Fatalf("expected %d tasks, got %d", len(before), len(after))
	}
	for i := range before {
		if after[i].ID != before[i].ID {
			t.Fatalf("order changed at %d: %s != %s", i, after[i].ID, before[i].ID)
		}
	}
	if after[1].Name != "Two, revised" {
		t.Fatalf("task not replaced: %+v", after[1])
	}
	if f.fake.Calls(testutil.RouteUpdateTask) != 1 || f.fake.Calls(testutil.RouteCreateTask) != 0 {
		t.Fatal("expected a single update call")
	}
}

func TestSubmitTaskServerFailure(t *testing.T) {
	f := newFixture(t)
	f.selectProject(t)
	if err := f.store.OpenModalForCreate(); err != nil {
		t.Fatal(err)
	}
	f.fake.FailNext(testutil.RouteCreateTask, http.StatusInternalServerError, "Storage is full")

	_, err := f.store.SubmitTask(context.Background(), validInput(f.project.ID))
	if !api.IsServer(err) {
		t.Fatalf("expected a server error, got %v", err)
	}
	if len(f.store.Tasks()) != 0 {
		t.Fatal("collection must be unchanged")
	}
	if !IsOpen(f.store.Modal()) {
		t.Fatal("modal must stay open")
	}
	if a, _ := f.recorder().Latest(); a.Title != "Storage is full" {
		t.Fatalf("expected the server message verbatim, got %q", a.Title)
	}
	if f.store.Submitting() {
		t.Fatal("submission must not stay pending")
	}
}

func TestDeleteTaskTwice(t *testing.T) {
	f := newFixture(t)
	task := f.fake.SeedTask(f.project.ID, "Obsolete")
	keep := f.fake.SeedTask(f.project.ID, "Keep")
	f.selectProject(t)

	if err := f.store.DeleteTask(context.Background(), task.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := f.store.DeleteTask(context.Background(), task.ID)
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	tasks := f.store.Tasks()
	if len(tasks) != 1 || tasks[0].ID != keep.ID {
		t.Fatalf("unexpected tasks %+v", tasks)
	}
	if f.fake.Calls(testutil.RouteDeleteTask) != 1 {
		t.Fatalf("expected one delete call, got %d", f.fake.Calls(testutil.RouteDeleteTask))
	}
}

func TestToggleTaskStatus(t *testing.T) {
	f := newFixture(t)
	task := f.fake.SeedTask(f.project.ID, "Ship")
	f.selectProject(t)
	ctx := context.Background()

	done, err := f.store.ToggleTaskStatus(ctx, task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !done.Completed || done.CompletedBy == nil || done.CompletedBy.ID != f.user.ID {
		t.Fatalf("expected completion by %s, got %+v", f.user.ID, done)
	}

	reopened, err := f.store.ToggleTaskStatus(ctx, task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reopened.Completed || reopened.CompletedBy != nil {
		t.Fatalf("expected a reopened task, got %+v", reopened)
	}
	if local, _ := f.store.Task(task.ID); local.Completed {
		t.Fatal("local copy not updated")
	}
}

func TestCollaboratorMayToggleButNotEdit(t *testing.T) {
	f := newFixture(t)
	task := f.fake.SeedTask(f.project.ID, "Shared")
	bob := f.fake.SeedUser("Bob", "bob@example.com", "secret2")
	f.fake.ShareProject(f.project.ID, bob.ID)

	store := newStoreFor(f.fake, bob, &alert.Recorder{})
	ctx := context.Background()
	if _, err := store.SelectProject(ctx, f.project.ID); err != nil {
		t.Fatal(err)
	}

	done, err := store.ToggleTaskStatus(ctx, task.ID)
	if err != nil || done.CompletedBy == nil || done.CompletedBy.ID != bob.ID {
		t.Fatalf("expected bob to complete the task, got %+v (%v)", done, err)
	}

	in := model.InputFromTask(task)
	in.Deadline = tomorrow
	if _, err := store.SubmitTask(ctx, in); !IsAuthorization(err) {
		t.Fatalf("expected an authorization error, got %v", err)
	}
}

func TestSelectProjectNotFound(t *testing.T) {
	f := newFixture(t)
	other := f.fake.SeedUser("Eve", "eve@example.com", "secret3")
	hidden := f.fake.SeedProject(other.ID, "Private")

	for _, id := range []string{"missing", hidden.ID} {
		_, err := f.store.SelectProject(context.Background(), id)
		if !IsNotFound(err) {
			t.Fatalf("SelectProject(%s): expected not found, got %v", id, err)
		}
	}
	if f.store.Current() != nil {
		t.Fatal("current project must stay unset")
	}
}

func TestSelectProjectLoadsDetail(t *testing.T) {
	f := newFixture(t)
	f.fake.SeedTask(f.project.ID, "One")
	bob := f.fake.SeedUser("Bob", "bob@example.com", "secret2")
	f.fake.ShareProject(f.project.ID, bob.ID)

	p, err := f.store.SelectProject(context.Background(), f.project.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != f.project.ID || len(p.Collaborators) != 1 || p.Collaborators[0].ID != bob.ID {
		t.Fatalf("unexpected project %+v", p)
	}
	if len(f.store.Tasks()) != 1 {
		t.Fatalf("expected 1 task, got %d", len(f.store.Tasks()))
	}
}

func TestLoadProjectsFailureKeepsCollection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.LoadProjects(ctx); err != nil {
		t.Fatal(err)
	}

	f.fake.FailNext(testutil.RouteListProjects, http.StatusInternalServerError, "Try later")
	if _, err := f.store.LoadProjects(ctx); err == nil {
		t.Fatal("expected an error")
	}
	projects := f.store.Projects()
	if len(projects) != 1 || projects[0].ID != f.project.ID {
		t.Fatalf("previous collection lost: %+v", projects)
	}
	if a, _ := f.recorder().Latest(); a.Title != "Try later" {
		t.Fatalf("unexpected alert %+v", a)
	}
}

func TestSubmitWhilePending(t *testing.T) {
	f := newFixture(t)
	f.selectProject(t)
	if err := f.store.OpenModalForCreate(); err != nil {
		t.Fatal(err)
	}
	gate := f.fake.Hold(testutil.RouteCreateTask)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = f.store.SubmitTask(context.Background(), validInput(f.project.ID))
	}()
	<-gate.Arrived

	if !f.store.Submitting() {
		t.Fatal("expected a pending submission")
	}
	if _, err := f.store.SubmitTask(context.Background(), validInput(f.project.ID)); !errors.Is(err, ErrSubmissionPending) {
		t.Fatalf("expected ErrSubmissionPending, got %v", err)
	}
	if err := f.store.OpenModalForCreate(); !errors.Is(err, ErrSubmissionPending) {
		t.Fatalf("expected the modal to stay locked, got %v", err)
	}

	gate.Release()
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first submission failed: %v", firstErr)
	}
	if len(f.store.Tasks()) != 1 || f.fake.Calls(testutil.RouteCreateTask) != 1 {
		t.Fatal("expected exactly one created task")
	}
}

func TestStaleSubmissionIsDropped(t *testing.T) {
	f := newFixture(t)
	other := f.fake.SeedProject(f.user.ID, "Other")
	f.selectProject(t)
	if err := f.store.OpenModalForCreate(); err != nil {
		t.Fatal(err)
	}
	gate := f.fake.Hold(testutil.RouteCreateTask)

	result := make(chan error, 1)
	go func() {
		_, err := f.store.SubmitTask(context.Background(), validInput(f.project.ID))
		result <- err
	}()
	<-gate.Arrived

	if _, err := f.store.SelectProject(context.Background(), other.ID); err != nil {
		t.Fatal(err)
	}
	alertsBefore := f.recorder().Len()
	gate.Release()

	if err := <-result; !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if len(f.store.Tasks()) != 0 {
		t.Fatal("stale task must not be merged into another project")
	}
	if f.recorder().Len() != alertsBefore {
		t.Fatal("stale responses must not be reported")
	}
	if f.store.Submitting() {
		t.Fatal("submission must not stay pending")
	}
}

func TestModalTransitions(t *testing.T) {
	f := newFixture(t)
	if err := f.store.OpenModalForCreate(); !errors.Is(err, ErrNoProject) {
		t.Fatalf("expected ErrNoProject, got %v", err)
	}
	f.selectProject(t)

	if err := f.store.OpenModalForCreate(); err != nil {
		t.Fatal(err)
	}
	if m, ok := f.store.Modal().(CreatingFor); !ok || m.ProjectID != f.project.ID {
		t.Fatalf("unexpected modal %#v", f.store.Modal())
	}
	f.store.CloseModal()

	task := model.Task{ID: "t-x", Project: f.project.ID, Name: "x"}
	if err := f.store.OpenModalForEdit(task); err != nil {
		t.Fatal(err)
	}
	if m, ok := f.store.Modal().(Editing); !ok || m.Task.ID != "t-x" {
		t.Fatalf("unexpected modal %#v", f.store.Modal())
	}
	f.store.CloseModal()
	if _, ok := f.store.Modal().(Closed); !ok {
		t.Fatalf("expected closed, got %#v", f.store.Modal())
	}
	if in := Input(f.store.Modal()); in.ID != "" {
		t.Fatalf("closed modal must not carry a task, got %+v", in)
	}
}

func TestCollaborators(t *testing.T) {
	f := newFixture(t)
	bob := f.fake.SeedUser("Bob", "bob@example.com", "secret2")
	f.selectProject(t)
	ctx := context.Background()

	added, err := f.store.AddCollaborator(ctx, f.project.ID, "bob@example.com")
	if err != nil || added.ID != bob.ID {
		t.Fatalf("unexpected result %+v (%v)", added, err)
	}
	if !f.store.Current().HasCollaborator(bob.ID) {
		t.Fatal("collaborator not added locally")
	}

	if _, err := f.store.AddCollaborator(ctx, f.project.ID, bob.ID); !IsAuthorization(err) {
		t.Fatalf("expected duplicate to be rejected, got %v", err)
	}
	if n := len(f.store.Current().Collaborators); n != 1 {
		t.Fatalf("expected one collaborator, got %d", n)
	}

	if _, err := f.store.AddCollaborator(ctx, f.project.ID, "nobody@example.com"); !IsNotFound(err) {
		t.Fatalf("expected unknown user to be not found, got %v", err)
	}
	if _, err := f.store.AddCollaborator(ctx, f.project.ID, "not-an-email@"); !validate.IsValidationError(err) {
		t.Fatalf("expected invalid email to be rejected, got %v", err)
	}

	if err := f.store.RemoveCollaborator(ctx, f.project.ID, bob.ID); err != nil {
		t.Fatal(err)
	}
	if f.store.Current().HasCollaborator(bob.ID) {
		t.Fatal("collaborator not removed locally")
	}
	if err := f.store.RemoveCollaborator(ctx, f.project.ID, bob.ID); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if f.fake.Calls(testutil.RouteRemoveCollaborator) != 1 {
		t.Fatalf("expected one remove call, got %d", f.fake.Calls(testutil.RouteRemoveCollaborator))
	}
}

func TestProjectLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.LoadProjects(ctx); err != nil {
		t.Fatal(err)
	}

	created, err := f.store.CreateProject(ctx, model.ProjectInput{
		Name: "Mobile app", Description: "iOS first", Deadline: "2026-06-01", Client: "Globex",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if len(f.store.Projects()) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(f.store.Projects()))
	}

	if _, err := f.store.SelectProject(ctx, created.ID); err != nil {
		t.Fatal(err)
	}
	updated, err := f.store.UpdateProject(ctx, model.ProjectInput{
		ID: created.ID, Name: "Mobile app v2", Description: "both", Deadline: "2026-07-01", Client: "Globex",
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Owner != f.user.ID || f.store.Current().Name != "Mobile app v2" {
		t.Fatalf("unexpected update result %+v", updated)
	}

	if err := f.store.DeleteProject(ctx, created.ID); err != nil {
		t.Fatal(err)
	}
	if f.store.Current() != nil || len(f.store.Projects()) != 1 {
		t.Fatal("deleting the current project must clear the context")
	}

	if _, err := f.store.CreateProject(ctx, model.ProjectInput{Name: "x"}); !validate.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSearchProjects(t *testing.T) {
	f := newFixture(t)
	f.fake.SeedProject(f.user.ID, "Billing")
	if _, err := f.store.LoadProjects(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := f.store.SearchProjects("bill"); len(got) != 1 || got[0].Name != "Billing" {
		t.Fatalf("unexpected result %+v", got)
	}
	if got := f.store.SearchProjects("acme"); len(got) != 2 {
		t.Fatalf("expected client match on both, got %d", len(got))
	}
	if got := f.store.SearchProjects(""); len(got) != 2 {
		t.Fatalf("expected everything, got %d", len(got))
	}
}

type memCache struct {
	mu       sync.Mutex
	projects []model.Project
	details  map[string]model.ProjectDetail
}

func (c *memCache) SaveProjects(_ context.Context, projects []model.Project) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects = append([]model.Project(nil), projects...)
	return nil
}

func (c *memCache) GetProjects(context.Context) ([]model.Project, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Project(nil), c.projects...), nil
}

func (c *memCache) SaveProjectDetail(_ context.Context, d model.ProjectDetail) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.details == nil {
		c.details = make(map[string]model.ProjectDetail)
	}
	c.details[d.Project.ID] = d
	return nil
}

func (c *memCache) GetProjectDetail(_ context.Context, id string) (*model.ProjectDetail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.details[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (c *memCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projects = nil
	c.details = nil
	return nil
}

func TestCacheSnapshots(t *testing.T) {
	cache := &memCache{}
	f := newFixture(t, WithCache(cache))
	ctx := context.Background()

	if _, err := f.store.LoadProjects(ctx); err != nil {
		t.Fatal(err)
	}
	f.selectProject(t)
	if _, err := f.store.SubmitTask(ctx, validInput(f.project.ID)); err != nil {
		t.Fatal(err)
	}
	if d, _ := cache.GetProjectDetail(ctx, f.project.ID); d == nil || len(d.Tasks) != 1 {
		t.Fatalf("expected the detail snapshot to hold the new task, got %+v", d)
	}

	offline := newStoreFor(f.fake, f.user, &alert.Recorder{}, WithCache(cache))
	cached, err := offline.LoadCachedProjects(ctx)
	if err != nil || len(cached) != 1 || cached[0].ID != f.project.ID {
		t.Fatalf("unexpected cached projects %+v (%v)", cached, err)
	}

	f.store.Reset(ctx)
	if got, _ := cache.GetProjects(ctx); len(got) != 0 {
		t.Fatal("reset must clear the cache")
	}
	if f.store.Current() != nil || f.store.Projects() != nil {
		t.Fatal("reset must clear the store")
	}
}

func errorAlertsSince(rec *alert.Recorder, from int) []alert.Alert {
	var out []alert.Alert
	for _, a := range rec.All()[from:] {
		if a.IsError() {
			out = append(out, a)
		}
	}
	return out
}

func TestUpdateUnknownTaskIsNotFound(t *testing.T) {
	f := newFixture(t)
	f.fake.SeedTask(f.project.ID, "Local")
	f.selectProject(t)
	remoteOnly := f.fake.SeedTask(f.project.ID, "Remote only")
	before := f.store.Tasks()

	in := model.InputFromTask(remoteOnly)
	in.Deadline = tomorrow
	_, err := f.store.SubmitTask(context.Background(), in)
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if after := f.store.Tasks(); len(after) != len(before) {
		t.Fatalf("expected %d tasks, got %d", len(before), len(after))
	}
	if f.writeCalls() != 0 {
		t.Fatalf("expected no request, got %d", f.writeCalls())
	}
}

func TestDeleteTaskServerFailure(t *testing.T) {
	f := newFixture(t)
	task := f.fake.SeedTask(f.project.ID, "Keep me")
	f.selectProject(t)
	before := f.store.Tasks()
	mark := f.recorder().Len()

	f.fake.FailNext(testutil.RouteDeleteTask, http.StatusInternalServerError, "Cannot delete now")
	err := f.store.DeleteTask(context.Background(), task.ID)
	if !api.IsServer(err) {
		t.Fatalf("expected a server error, got %v", err)
	}

	after := f.store.Tasks()
	if len(after) != len(before) || after[0].ID != task.ID {
		t.Fatalf("collection must be unchanged, got %+v", after)
	}
	errs := errorAlertsSince(f.recorder(), mark)
	if len(errs) != 1 || errs[0].Title != "Cannot delete now" {
		t.Fatalf("expected one alert with the server message, got %+v", errs)
	}
}

func TestToggleTaskServerFailure(t *testing.T) {
	f := newFixture(t)
	task := f.fake.SeedTask(f.project.ID, "Ship")
	f.selectProject(t)
	ctx := context.Background()
	if _, err := f.store.ToggleTaskStatus(ctx, task.ID); err != nil {
		t.Fatal(err)
	}
	mark := f.recorder().Len()

	f.fake.FailNext(testutil.RouteToggleTask, http.StatusInternalServerError, "Status service down")
	if _, err := f.store.ToggleTaskStatus(ctx, task.ID); !api.IsServer(err) {
		t.Fatalf("expected a server error, got %v", err)
	}

	local, ok := f.store.Task(task.ID)
	if !ok || !local.Completed || local.CompletedBy == nil || local.CompletedBy.ID != f.user.ID {
		t.Fatalf("completion must be untouched, got %+v", local)
	}
	if n := len(f.store.Tasks()); n != 1 {
		t.Fatalf("expected 1 task, got %d", n)
	}
	errs := errorAlertsSince(f.recorder(), mark)
	if len(errs) != 1 || errs[0].Title != "Status service down" {
		t.Fatalf("expected one alert with the server message, got %+v", errs)
	}
}

func TestLateFailuresAfterContextChangeAreDropped(t *testing.T) {
	tests := []struct {
		name  string
		route testutil.Route
		// supersede changes the context while the request is held.
		supersede func(t *testing.T, f *fixture, other model.Project)
		run       func(f *fixture, task model.Task, bob model.User) error
	}{
		{
			name:      "delete task after reset",
			route:     testutil.RouteDeleteTask,
			supersede: func(_ *testing.T, f *fixture, _ model.Project) { f.store.Reset(context.Background()) },
			run: func(f *fixture, task model.Task, _ model.User) error {
				return f.store.DeleteTask(context.Background(), task.ID)
			},
		},
		{
			name:  "toggle task after switching project",
			route: testutil.RouteToggleTask,
			supersede: func(t *testing.T, f *fixture, other model.Project) {
				if _, err := f.store.SelectProject(context.Background(), other.ID); err != nil {
					t.Fatal(err)
				}
			},
			run: func(f *fixture, task model.Task, _ model.User) error {
				_, err := f.store.ToggleTaskStatus(context.Background(), task.ID)
				return err
			},
		},
		{
			name:      "load projects after reset",
			route:     testutil.RouteListProjects,
			supersede: func(_ *testing.T, f *fixture, _ model.Project) { f.store.Reset(context.Background()) },
			run: func(f *fixture, _ model.Task, _ model.User) error {
				_, err := f.store.LoadProjects(context.Background())
				return err
			},
		},
		{
			name:      "select project after reset",
			route:     testutil.RouteGetProject,
			supersede: func(_ *testing.T, f *fixture, _ model.Project) { f.store.Reset(context.Background()) },
			run: func(f *fixture, _ model.Task, _ model.User) error {
				_, err := f.store.SelectProject(context.Background(), f.project.ID)
				return err
			},
		},
		{
			name:      "delete project after reset",
			route:     testutil.RouteDeleteProject,
			supersede: func(_ *testing.T, f *fixture, _ model.Project) { f.store.Reset(context.Background()) },
			run: func(f *fixture, _ model.Task, _ model.User) error {
				return f.store.DeleteProject(context.Background(), f.project.ID)
			},
		},
		{
			name:      "remove collaborator after reset",
			route:     testutil.RouteRemoveCollaborator,
			supersede: func(_ *testing.T, f *fixture, _ model.Project) { f.store.Reset(context.Background()) },
			run: func(f *fixture, _ model.Task, bob model.User) error {
				return f.store.RemoveCollaborator(context.Background(), f.project.ID, bob.ID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			task := f.fake.SeedTask(f.project.ID, "Held")
			bob := f.fake.SeedUser("Bob", "bob@example.com", "secret2")
			f.fake.ShareProject(f.project.ID, bob.ID)
			other := f.fake.SeedProject(f.user.ID, "Other")
			f.selectProject(t)

			gate := f.fake.Hold(tt.route)
			f.fake.FailNext(tt.route, http.StatusInternalServerError, "boom")

			result := make(chan error, 1)
			go func() { result <- tt.run(f, task, bob) }()
			<-gate.Arrived

			tt.supersede(t, f, other)
			mark := f.recorder().Len()
			gate.Release()

			if err := <-result; !errors.Is(err, ErrStale) {
				t.Fatalf("expected ErrStale, got %v", err)
			}
			if n := f.recorder().Len(); n != mark {
				t.Fatalf("late failure was reported: %+v", f.recorder().All()[mark:])
			}
		})
	}
}
