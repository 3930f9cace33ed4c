// Package projects holds the in-memory project collection, the selected
// project with its tasks and collaborators, and the state of the task
// form. Every mutation is applied locally only after the remote API has
// confirmed it.
package projects

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nhle/uptask/internal/alert"
	"github.com/nhle/uptask/internal/model"
)

// API is the part of the remote API the store needs.
type API interface {
	ListProjects(ctx context.Context) ([]model.Project, error)
	GetProject(ctx context.Context, id string) (*model.ProjectDetail, error)
	SaveProject(ctx context.Context, in model.ProjectInput) (*model.Project, error)
	DeleteProject(ctx context.Context, id string) error
	SaveTask(ctx context.Context, in model.TaskInput) (*model.Task, error)
	DeleteTask(ctx context.Context, id string) error
	ToggleTaskStatus(ctx context.Context, id string) (*model.Task, error)
	AddCollaborator(ctx context.Context, projectID, emailOrID string) (*model.User, error)
	RemoveCollaborator(ctx context.Context, projectID, userID string) error
}

// Identity supplies the signed in user.
type Identity interface {
	CurrentUser() *model.User
}

// Cache keeps a snapshot of the last data seen from the server.
type Cache interface {
	SaveProjects(ctx context.Context, projects []model.Project) error
	GetProjects(ctx context.Context) ([]model.Project, error)
	SaveProjectDetail(ctx context.Context, detail model.ProjectDetail) error
	GetProjectDetail(ctx context.Context, id string) (*model.ProjectDetail, error)
	Clear(ctx context.Context) error
}

// Option customizes a Store.
type Option func(*Store)

// WithCache makes the store write snapshots to c.
func WithCache(c Cache) Option {
	return func(s *Store) { s.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock replaces time.Now for deadline validation.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store owns the project collection and the selected project context.
// Methods are safe to call from concurrent goroutines. The mutex is never
// held across a call to the API or the cache.
type Store struct {
	api    API
	alerts alert.Sink
	who    Identity
	cache  Cache
	log    logrus.FieldLogger
	now    func() time.Time

	mu       sync.Mutex
	projects []model.Project
	loaded   bool
	current  *model.Project
	tasks    []model.Task
	modal    Modal

	submitting bool

	// epoch changes on Reset. projectGen changes whenever the current
	// project changes, modalGen whenever the form is opened. loadSeq and
	// selectSeq order overlapping loads so that only the latest applies.
	epoch      uint64
	projectGen uint64
	modalGen   uint64
	loadSeq    uint64
	selectSeq  uint64
}

// New creates an empty Store.
func New(client API, alerts alert.Sink, who Identity, opts ...Option) *Store {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	if alerts == nil {
		alerts = alert.Discard
	}
	s := &Store{
		api:    client,
		alerts: alerts,
		who:    who,
		log:    discard,
		now:    time.Now,
		modal:  Closed{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// fail reports err to the alert sink and logs it.
func (s *Store) fail(op string, err error, fields logrus.Fields) {
	s.log.WithError(err).WithFields(fields).Warn(op + " failed")
	s.alerts.Report(alert.FromError(err))
}

// superseded reports whether the store was reset since epoch was read. A
// superseded request's outcome, success or failure, is dropped.
func (s *Store) superseded(epoch uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch != epoch
}

func (s *Store) selectSuperseded(epoch, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch != epoch || s.selectSeq != seq
}

// Projects returns a copy of the project collection.
func (s *Store) Projects() []model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneProjects(s.projects)
}

// Current returns a copy of the selected project, or nil.
func (s *Store) Current() *model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	p := cloneProject(*s.current)
	return &p
}

// Tasks returns a copy of the selected project's tasks.
func (s *Store) Tasks() []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Task(nil), s.tasks...)
}

// Task returns the task with id from the selected project.
func (s *Store) Task(id string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := indexTask(s.tasks, id); i >= 0 {
		return s.tasks[i], true
	}
	return model.Task{}, false
}

// Modal returns the state of the task form.
func (s *Store) Modal() Modal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.modal
}

// Submitting reports whether a task submission is in flight.
func (s *Store) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

// Reset forgets everything. It is called when the session ends.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	s.epoch++
	s.projectGen++
	s.modalGen++
	s.projects = nil
	s.loaded = false
	s.current = nil
	s.tasks = nil
	s.modal = Closed{}
	s.submitting = false
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Clear(ctx); err != nil {
			s.log.WithError(err).Warn("clearing cache")
		}
	}
}

// OpenModalForCreate opens the task form to create a task in the
// selected project.
func (s *Store) OpenModalForCreate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrSubmissionPending
	}
	if s.current == nil {
		return ErrNoProject
	}
	s.modalGen++
	s.modal = CreatingFor{ProjectID: s.current.ID}
	return nil
}

// OpenModalForEdit opens the task form prefilled with task.
func (s *Store) OpenModalForEdit(task model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitting {
		return ErrSubmissionPending
	}
	if s.current == nil {
		return ErrNoProject
	}
	s.modalGen++
	s.modal = Editing{Task: task}
	return nil
}

// CloseModal closes the task form whatever mode it was in.
func (s *Store) CloseModal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modal = Closed{}
}

// setCurrentLocked makes p the selected project, closing the form.
func (s *Store) setCurrentLocked(p *model.Project, tasks []model.Task) {
	s.current = p
	s.tasks = tasks
	s.projectGen++
	s.modal = Closed{}
}

func (s *Store) snapshotProjects(ctx context.Context, projects []model.Project) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SaveProjects(ctx, projects); err != nil {
		s.log.WithError(err).Warn("caching projects")
	}
}

func (s *Store) snapshotDetail(ctx context.Context, detail *model.ProjectDetail) {
	if s.cache == nil || detail == nil {
		return
	}
	if err := s.cache.SaveProjectDetail(ctx, *detail); err != nil {
		s.log.WithError(err).WithField("project_id", detail.Project.ID).Warn("caching project")
	}
}

// detailLocked builds the cache snapshot of the selected project.
func (s *Store) detailLocked() *model.ProjectDetail {
	if s.current == nil {
		return nil
	}
	p := cloneProject(*s.current)
	return &model.ProjectDetail{
		Project:       p,
		Tasks:         append([]model.Task(nil), s.tasks...),
		Collaborators: p.Collaborators,
	}
}

func cloneProject(p model.Project) model.Project {
	p.Collaborators = append([]model.User(nil), p.Collaborators...)
	return p
}

func cloneProjects(in []model.Project) []model.Project {
	if in == nil {
		return nil
	}
	out := make([]model.Project, len(in))
	for i, p := range in {
		out[i] = cloneProject(p)
	}
	return out
}

func indexProject(projects []model.Project, id string) int {
	for i, p := range projects {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func indexTask(tasks []model.Task, id string) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
