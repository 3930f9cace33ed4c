package projects

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/nhle/uptask/internal/alert"
	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/internal/validate"
)

// LoadProjects fetches every project visible to the user and replaces the
// local collection. On failure the previous collection is kept.
func (s *Store) LoadProjects(ctx context.Context) ([]model.Project, error) {
	s.mu.Lock()
	s.loadSeq++
	seq, epoch := s.loadSeq, s.epoch
	s.mu.Unlock()

	projects, err := s.api.ListProjects(ctx)

	s.mu.Lock()
	if s.epoch != epoch || s.loadSeq != seq {
		s.mu.Unlock()
		return nil, ErrStale
	}
	if err != nil {
		s.mu.Unlock()
		s.fail("loading projects", err, nil)
		return nil, fmt.Errorf("loading projects: %w", err)
	}
	if projects == nil {
		projects = []model.Project{}
	}
	s.projects = cloneProjects(projects)
	s.loaded = true
	s.mu.Unlock()

	s.snapshotProjects(ctx, projects)
	return projects, nil
}

// LoadCachedProjects fills an empty collection from the offline cache. A
// collection already loaded from the server is never replaced.
func (s *Store) LoadCachedProjects(ctx context.Context) ([]model.Project, error) {
	if s.cache == nil {
		return s.Projects(), nil
	}

	s.mu.Lock()
	if s.loaded {
		projects := cloneProjects(s.projects)
		s.mu.Unlock()
		return projects, nil
	}
	epoch := s.epoch
	s.mu.Unlock()

	projects, err := s.cache.GetProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading cached projects: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return nil, ErrStale
	}
	if !s.loaded {
		s.projects = cloneProjects(projects)
	}
	return cloneProjects(s.projects), nil
}

// SelectProject loads a project with its tasks and collaborators and makes
// it the current project.
func (s *Store) SelectProject(ctx context.Context, id string) (*model.Project, error) {
	s.mu.Lock()
	s.selectSeq++
	seq, epoch := s.selectSeq, s.epoch
	s.mu.Unlock()

	detail, err := s.api.GetProject(ctx, id)
	if s.selectSuperseded(epoch, seq) {
		return nil, ErrStale
	}
	if err != nil {
		err = classify("project", id, err)
		if IsAuthorization(err) {
			// Projects the user cannot see are reported as missing.
			err = &NotFoundError{Resource: "project", ID: id, Err: err}
		}
		s.fail("selecting project", err, logrus.Fields{"project_id": id})
		return nil, fmt.Errorf("selecting project %s: %w", id, err)
	}

	project := cloneProject(detail.Project)
	if len(detail.Collaborators) > 0 || project.Collaborators == nil {
		project.Collaborators = append([]model.User{}, detail.Collaborators...)
	}
	tasks := append([]model.Task{}, detail.Tasks...)

	s.mu.Lock()
	if s.epoch != epoch || s.selectSeq != seq {
		s.mu.Unlock()
		return nil, ErrStale
	}
	s.setCurrentLocked(&project, tasks)
	if i := indexProject(s.projects, project.ID); i >= 0 {
		s.projects[i] = cloneProject(project)
	}
	snapshot := s.detailLocked()
	s.mu.Unlock()

	s.snapshotDetail(ctx, snapshot)
	out := cloneProject(project)
	return &out, nil
}

// CreateProject validates in and creates a project owned by the user.
func (s *Store) CreateProject(ctx context.Context, in model.ProjectInput) (*model.Project, error) {
	in.ID = ""
	if err := validate.ProjectInput(&in); err != nil {
		s.alerts.Report(alert.FromError(err))
		return nil, err
	}

	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	project, err := s.api.SaveProject(ctx, in)
	if s.superseded(epoch) {
		return nil, ErrStale
	}
	if err != nil {
		err = classify("project", "", err)
		s.fail("creating project", err, nil)
		return nil, fmt.Errorf("creating project: %w", err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil, ErrStale
	}
	if indexProject(s.projects, project.ID) < 0 {
		s.projects = append(s.projects, cloneProject(*project))
	}
	projects := cloneProjects(s.projects)
	s.mu.Unlock()

	s.snapshotProjects(ctx, projects)
	s.alerts.Report(alert.Success("Project created"))
	return project, nil
}

// UpdateProject validates in and updates the project with in.ID. The
// owner of a project never changes locally.
func (s *Store) UpdateProject(ctx context.Context, in model.ProjectInput) (*model.Project, error) {
	if in.ID == "" {
		err := &NotFoundError{Resource: "project"}
		s.alerts.Report(alert.FromError(err))
		return nil, err
	}
	if err := validate.ProjectInput(&in); err != nil {
		s.alerts.Report(alert.FromError(err))
		return nil, err
	}

	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	updated, err := s.api.SaveProject(ctx, in)
	if s.superseded(epoch) {
		return nil, ErrStale
	}
	if err != nil {
		err = classify("project", in.ID, err)
		s.fail("updating project", err, logrus.Fields{"project_id": in.ID})
		return nil, fmt.Errorf("updating project %s: %w", in.ID, err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil, ErrStale
	}
	merged := cloneProject(*updated)
	if i := indexProject(s.projects, in.ID); i >= 0 {
		merged.Owner = s.projects[i].Owner
		merged.Collaborators = append([]model.User(nil), s.projects[i].Collaborators...)
		s.projects[i] = cloneProject(merged)
	}
	var snapshot *model.ProjectDetail
	if s.current != nil && s.current.ID == in.ID {
		merged.Owner = s.current.Owner
		merged.Collaborators = append([]model.User(nil), s.current.Collaborators...)
		cur := cloneProject(merged)
		s.current = &cur
		snapshot = s.detailLocked()
	}
	projects := cloneProjects(s.projects)
	s.mu.Unlock()

	s.snapshotProjects(ctx, projects)
	s.snapshotDetail(ctx, snapshot)
	s.alerts.Report(alert.Success("Project updated"))
	return &merged, nil
}

// DeleteProject deletes a project. Deleting the selected project clears
// the current context.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	err := s.api.DeleteProject(ctx, id)
	if s.superseded(epoch) {
		return ErrStale
	}
	if err != nil {
		err = classify("project", id, err)
		s.fail("deleting project", err, logrus.Fields{"project_id": id})
		return fmt.Errorf("deleting project %s: %w", id, err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrStale
	}
	if i := indexProject(s.projects, id); i >= 0 {
		s.projects = append(s.projects[:i:i], s.projects[i+1:]...)
	}
	if s.current != nil && s.current.ID == id {
		s.setCurrentLocked(nil, nil)
	}
	projects := cloneProjects(s.projects)
	s.mu.Unlock()

	s.snapshotProjects(ctx, projects)
	s.alerts.Report(alert.Success("Project deleted"))
	return nil
}

// SearchProjects returns the projects whose name or client contains query,
// ignoring case. An empty query matches everything.
func (s *Store) SearchProjects(query string) []model.Project {
	query = strings.ToLower(strings.TrimSpace(query))

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Project
	for _, p := range s.projects {
		if query == "" ||
			strings.Contains(strings.ToLower(p.Name), query) ||
			strings.Contains(strings.ToLower(p.Client), query) {
			out = append(out, cloneProject(p))
		}
	}
	return out
}
