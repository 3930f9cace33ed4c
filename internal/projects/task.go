package projects

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/nhle/uptask/internal/alert"
	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/internal/validate"
)

// SubmitTask creates the task when in.ID is empty and updates it
// otherwise. The input is validated locally first; nothing is sent when
// validation fails. On success the task is merged into the selected
// project and the form closes. On failure the collection is untouched and
// the form stays open.
func (s *Store) SubmitTask(ctx context.Context, in model.TaskInput) (*model.Task, error) {
	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return nil, ErrSubmissionPending
	}
	if s.current == nil {
		s.mu.Unlock()
		s.alerts.Report(alert.Error("Select a project first"))
		return nil, ErrNoProject
	}
	if in.Project == "" {
		in.Project = s.current.ID
	}
	if in.Project != s.current.ID {
		s.mu.Unlock()
		err := &NotFoundError{Resource: "project", ID: in.Project}
		s.alerts.Report(alert.FromError(err))
		return nil, err
	}

	if in.ID != "" && indexTask(s.tasks, in.ID) < 0 {
		s.mu.Unlock()
		err := &NotFoundError{Resource: "task", ID: in.ID}
		s.alerts.Report(alert.Error("Task not found"))
		return nil, err
	}

	if err := validate.TaskInput(&in, s.now()); err != nil {
		s.mu.Unlock()
		s.alerts.Report(alert.FromError(err))
		return nil, err
	}

	s.submitting = true
	epoch, projectGen, modalGen := s.epoch, s.projectGen, s.modalGen
	s.mu.Unlock()

	task, err := s.api.SaveTask(ctx, in)

	s.mu.Lock()
	s.submitting = false
	if s.epoch != epoch || s.projectGen != projectGen || s.modalGen != modalGen {
		s.mu.Unlock()
		s.log.WithField("project_id", in.Project).Debug("dropping stale task submission")
		return nil, ErrStale
	}
	if err != nil {
		s.mu.Unlock()
		err = classify("task", in.ID, err)
		s.fail("submitting task", err, logrus.Fields{"project_id": in.Project, "task_id": in.ID})
		return nil, fmt.Errorf("submitting task: %w", err)
	}

	created := in.ID == ""
	i := indexTask(s.tasks, task.ID)
	switch {
	case created && i < 0:
		s.tasks = append(s.tasks, *task)
	case i >= 0:
		s.tasks[i] = *task
	default:
		// The edited task left the collection while the request was out.
		s.mu.Unlock()
		return nil, ErrStale
	}
	s.modal = Closed{}
	snapshot := s.detailLocked()
	s.mu.Unlock()

	s.snapshotDetail(ctx, snapshot)
	if created {
		s.alerts.Report(alert.Success("Task created"))
	} else {
		s.alerts.Report(alert.Success("Task updated"))
	}
	return task, nil
}

// DeleteTask deletes a task of the selected project. An id that is not in
// the local collection yields a NotFoundError without a remote call.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	if indexTask(s.tasks, id) < 0 {
		s.mu.Unlock()
		err := &NotFoundError{Resource: "task", ID: id}
		s.alerts.Report(alert.Error("Task not found"))
		return err
	}
	epoch, projectGen := s.epoch, s.projectGen
	s.mu.Unlock()

	err := s.api.DeleteTask(ctx, id)

	s.mu.Lock()
	if s.epoch != epoch || s.projectGen != projectGen {
		s.mu.Unlock()
		s.log.WithField("task_id", id).Debug("dropping stale task deletion")
		return ErrStale
	}
	if err != nil {
		s.mu.Unlock()
		err = classify("task", id, err)
		s.fail("deleting task", err, logrus.Fields{"task_id": id})
		return fmt.Errorf("deleting task %s: %w", id, err)
	}
	if i := indexTask(s.tasks, id); i >= 0 {
		s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
	}
	if e, ok := s.modal.(Editing); ok && e.Task.ID == id {
		s.modal = Closed{}
	}
	snapshot := s.detailLocked()
	s.mu.Unlock()

	s.snapshotDetail(ctx, snapshot)
	s.alerts.Report(alert.Success("Task deleted"))
	return nil
}

// ToggleTaskStatus flips the completed flag of a task. A completed task is
// attributed to the signed in user; reopening it clears the attribution.
func (s *Store) ToggleTaskStatus(ctx context.Context, id string) (*model.Task, error) {
	s.mu.Lock()
	i := indexTask(s.tasks, id)
	if i < 0 {
		s.mu.Unlock()
		err := &NotFoundError{Resource: "task", ID: id}
		s.alerts.Report(alert.Error("Task not found"))
		return nil, err
	}
	completed := !s.tasks[i].Completed
	epoch, projectGen := s.epoch, s.projectGen
	s.mu.Unlock()

	remote, err := s.api.ToggleTaskStatus(ctx, id)

	s.mu.Lock()
	if s.epoch != epoch || s.projectGen != projectGen {
		s.mu.Unlock()
		s.log.WithField("task_id", id).Debug("dropping stale status change")
		return nil, ErrStale
	}
	s.mu.Unlock()
	if err != nil {
		err = classify("task", id, err)
		s.fail("updating task status", err, logrus.Fields{"task_id": id})
		return nil, fmt.Errorf("toggling task %s: %w", id, err)
	}
	if remote != nil && remote.ID == id {
		completed = remote.Completed
	}

	var actor *model.User
	if completed && s.who != nil {
		actor = s.who.CurrentUser()
	}

	s.mu.Lock()
	if s.epoch != epoch || s.projectGen != projectGen {
		s.mu.Unlock()
		return nil, ErrStale
	}
	i = indexTask(s.tasks, id)
	if i < 0 {
		s.mu.Unlock()
		return nil, ErrStale
	}
	s.tasks[i].Completed = completed
	s.tasks[i].CompletedBy = actor
	task := s.tasks[i]
	snapshot := s.detailLocked()
	s.mu.Unlock()

	s.snapshotDetail(ctx, snapshot)
	s.alerts.Report(alert.Success("Task status updated"))
	return &task, nil
}
