package model

import "time"

// Project is a container of tasks owned by one user and optionally
// shared with collaborators.
type Project struct {
	ID          string    `json:"_id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Deadline    time.Time `json:"deadline" db:"deadline"`
	Client      string    `json:"client" db:"client"`
	Owner       string    `json:"owner" db:"owner"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`

	// Collaborators holds at most one entry per user ID.
	Collaborators []User `json:"collaborators" db:"-"`
}

// HasCollaborator reports whether userID is already a collaborator.
func (p Project) HasCollaborator(userID string) bool {
	for _, c := range p.Collaborators {
		if c.ID == userID {
			return true
		}
	}
	return false
}

// ProjectInput carries the values of the create/edit project form.
// An empty ID means create.
type ProjectInput struct {
	ID          string `json:"-" validate:"-"`
	Name        string `json:"name" validate:"required"`
	Description string `json:"description" validate:"required"`
	Deadline    string `json:"deadline" validate:"required"`
	Client      string `json:"client" validate:"required"`
}

// ProjectDetail is the response of GET /projects/:id.
type ProjectDetail struct {
	Project       Project `json:"project"`
	Tasks         []Task  `json:"tasks"`
	Collaborators []User  `json:"collaborators"`
}
