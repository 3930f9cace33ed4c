package projects

import "github.com/nhle/uptask/internal/model"

// Modal is the state of the shared create/edit task form. It is one of
// Closed, CreatingFor or Editing.
type Modal interface {
	isModal()
}

// Closed means the form is not shown.
type Closed struct{}

// CreatingFor means the form is creating a task in ProjectID.
type CreatingFor struct {
	ProjectID string
}

// Editing means the form is editing Task.
type Editing struct {
	Task model.Task
}

func (Closed) isModal()      {}
func (CreatingFor) isModal() {}
func (Editing) isModal()     {}

// IsOpen reports whether m shows the form.
func IsOpen(m Modal) bool {
	_, closed := m.(Closed)
	return m != nil && !closed
}

// Input returns the form values m starts from.
func Input(m Modal) model.TaskInput {
	switch m := m.(type) {
	case CreatingFor:
		return model.TaskInput{Project: m.ProjectID, Priority: model.PriorityMedium}
	case Editing:
		return model.InputFromTask(m.Task)
	default:
		return model.TaskInput{}
	}
}
