package model

import "time"

// Priority is the urgency level of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists the accepted priorities in display order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Label returns the human-readable name of the priority.
func (p Priority) Label() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	default:
		return string(p)
	}
}

// Task is a unit of work attached to exactly one project.
type Task struct {
	ID          string    `json:"_id" db:"id"`
	Project     string    `json:"project" db:"project_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Deadline    time.Time `json:"deadline" db:"deadline"`
	Priority    Priority  `json:"priority" db:"priority"`
	Completed   bool      `json:"completed" db:"completed"`
	CompletedBy *User     `json:"completedBy,omitempty" db:"-"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// TaskInput carries the values of the shared create/edit task form.
// An empty ID means create. Deadline is a YYYY-MM-DD calendar date.
type TaskInput struct {
	ID          string   `json:"-" validate:"-"`
	Name        string   `json:"name" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Deadline    string   `json:"deadline" validate:"required"`
	Priority    Priority `json:"priority" validate:"required"`
	Project     string   `json:"project" validate:"-"`
}

// InputFromTask prefills a form from an existing task.
func InputFromTask(t Task) TaskInput {
	in := TaskInput{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Priority:    t.Priority,
		Project:     t.Project,
	}
	if !t.Deadline.IsZero() {
		in.Deadline = t.Deadline.UTC().Format(DateLayout)
	}
	return in
}

// DateLayout is the calendar-date format used by forms and the API.
const DateLayout = "2006-01-02"
