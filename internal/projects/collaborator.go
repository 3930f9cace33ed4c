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

// AddCollaborator shares a project with the user identified by an email
// address or a user ID.
func (s *Store) AddCollaborator(ctx context.Context, projectID, emailOrID string) (*model.User, error) {
	emailOrID = strings.TrimSpace(emailOrID)
	if emailOrID == "" {
		err := &validate.ValidationError{Field: "email", Message: validate.MsgRequired}
		s.alerts.Report(alert.FromError(err))
		return nil, err
	}
	if strings.Contains(emailOrID, "@") {
		if err := validate.Email(emailOrID); err != nil {
			s.alerts.Report(alert.FromError(err))
			return nil, err
		}
	}

	s.mu.Lock()
	epoch := s.epoch
	s.mu.Unlock()

	user, err := s.api.AddCollaborator(ctx, projectID, emailOrID)
	if s.superseded(epoch) {
		return nil, ErrStale
	}
	if err != nil {
		err = classify("user", emailOrID, err)
		s.fail("adding collaborator", err, logrus.Fields{"project_id": projectID})
		return nil, fmt.Errorf("adding collaborator to %s: %w", projectID, err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil, ErrStale
	}
	s.updateCollaboratorsLocked(projectID, func(p *model.Project) {
		if !p.HasCollaborator(user.ID) {
			p.Collaborators = append(p.Collaborators, *user)
		}
	})
	snapshot := s.detailForLocked(projectID)
	s.mu.Unlock()

	s.snapshotDetail(ctx, snapshot)
	s.alerts.Report(alert.Success("Collaborator added"))
	return user, nil
}

// RemoveCollaborator revokes a user's access to a project. When the
// project is selected and the user is not one of its collaborators a
// NotFoundError is returned without a remote call.
func (s *Store) RemoveCollaborator(ctx context.Context, projectID, userID string) error {
	s.mu.Lock()
	if s.current != nil && s.current.ID == projectID && !s.current.HasCollaborator(userID) {
		s.mu.Unlock()
		err := &NotFoundError{Resource: "collaborator", ID: userID}
		s.alerts.Report(alert.Error("Collaborator not found"))
		return err
	}
	epoch := s.epoch
	s.mu.Unlock()

	err := s.api.RemoveCollaborator(ctx, projectID, userID)
	if s.superseded(epoch) {
		return ErrStale
	}
	if err != nil {
		err = classify("collaborator", userID, err)
		s.fail("removing collaborator", err, logrus.Fields{"project_id": projectID, "user_id": userID})
		return fmt.Errorf("removing collaborator %s from %s: %w", userID, projectID, err)
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return ErrStale
	}
	s.updateCollaboratorsLocked(projectID, func(p *model.Project) {
		kept := make([]model.User, 0, len(p.Collaborators))
		for _, c := range p.Collaborators {
			if c.ID != userID {
				kept = append(kept, c)
			}
		}
		p.Collaborators = kept
	})
	snapshot := s.detailForLocked(projectID)
	s.mu.Unlock()

	s.snapshotDetail(ctx, snapshot)
	s.alerts.Report(alert.Success("Collaborator removed"))
	return nil
}

// updateCollaboratorsLocked applies fn to every local copy of the project.
func (s *Store) updateCollaboratorsLocked(projectID string, fn func(*model.Project)) {
	if s.current != nil && s.current.ID == projectID {
		fn(s.current)
	}
	if i := indexProject(s.projects, projectID); i >= 0 {
		fn(&s.projects[i])
	}
}

func (s *Store) detailForLocked(projectID string) *model.ProjectDetail {
	if s.current == nil || s.current.ID != projectID {
		return nil
	}
	return s.detailLocked()
}
