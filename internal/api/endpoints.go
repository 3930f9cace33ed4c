package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/nhle/uptask/internal/model"
)

// LoginResponse is the response from POST /auth/login.
type LoginResponse struct {
	Token string     `json:"token"`
	User  model.User `json:"user"`
}

// MessageResponse is returned by the account endpoints. Token and User
// are only set when the server signs the user in straight away.
type MessageResponse struct {
	Msg   string      `json:"msg"`
	Token string      `json:"token,omitempty"`
	User  *model.User `json:"user,omitempty"`
}

// SignUpRequest is the body of POST /users.
type SignUpRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type collaboratorRequest struct {
	Email string `json:"email,omitempty"`
	ID    string `json:"id,omitempty"`
}

func escape(id string) string {
	return url.PathEscape(id)
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/auth/login",
		body:      credentials{Email: email, Password: password},
		result:    &resp,
		anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Profile returns the user owning token. It is used to validate a
// persisted token before the session adopts it.
func (c *Client) Profile(ctx context.Context, token string) (*model.User, error) {
	var user model.User
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/auth/profile",
		result: &user,
		token:  token,
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SignUp registers a new account.
func (c *Client) SignUp(ctx context.Context, in SignUpRequest) (*MessageResponse, error) {
	var resp MessageResponse
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/users",
		body:      in,
		result:    &resp,
		anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForgotPassword asks the server to mail a password reset link.
func (c *Client) ForgotPassword(ctx context.Context, email string) (*MessageResponse, error) {
	var resp MessageResponse
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/users/forgot-password",
		body:      map[string]string{"email": email},
		result:    &resp,
		anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ResetPassword sets a new password using the token from the reset mail.
func (c *Client) ResetPassword(ctx context.Context, token, password string) (*MessageResponse, error) {
	var resp MessageResponse
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/users/forgot-password/" + escape(token),
		body:      map[string]string{"password": password},
		result:    &resp,
		anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ConfirmAccount activates an account using the token from the sign-up mail.
func (c *Client) ConfirmAccount(ctx context.Context, token string) (*MessageResponse, error) {
	var resp MessageResponse
	err := c.do(ctx, request{
		method:    http.MethodGet,
		path:      "/users/confirm/" + escape(token),
		result:    &resp,
		anonymous: true,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListProjects returns every project the current user owns or
// collaborates on.
func (c *Client) ListProjects(ctx context.Context) ([]model.Project, error) {
	var projects []model.Project
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/projects",
		result: &projects,
	})
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// GetProject returns one project with its tasks and collaborators.
func (c *Client) GetProject(ctx context.Context, id string) (*model.ProjectDetail, error) {
	var detail model.ProjectDetail
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/projects/" + escape(id),
		result: &detail,
	})
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// SaveProject creates the project when in.ID is empty and updates it otherwise.
func (c *Client) SaveProject(ctx context.Context, in model.ProjectInput) (*model.Project, error) {
	r := request{method: http.MethodPost, path: "/projects", body: in}
	if in.ID != "" {
		r.method = http.MethodPut
		r.path = "/projects/" + escape(in.ID)
	}
	var project model.Project
	r.result = &project
	if err := c.do(ctx, r); err != nil {
		return nil, err
	}
	return &project, nil
}

// DeleteProject removes a project and its tasks.
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/projects/" + escape(id),
	})
}

// SaveTask creates the task when in.ID is empty and updates it otherwise.
// Both go through the same call shape; only the method and path differ.
func (c *Client) SaveTask(ctx context.Context, in model.TaskInput) (*model.Task, error) {
	r := request{method: http.MethodPost, path: "/tasks", body: in}
	if in.ID != "" {
		r.method = http.MethodPut
		r.path = "/tasks/" + escape(in.ID)
	}
	var task model.Task
	r.result = &task
	if err := c.do(ctx, r); err != nil {
		return nil, err
	}
	return &task, nil
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/tasks/" + escape(id),
	})
}

// ToggleTaskStatus flips the completed flag of a task and returns it.
func (c *Client) ToggleTaskStatus(ctx context.Context, id string) (*model.Task, error) {
	var task model.Task
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/tasks/" + escape(id) + "/status",
		result: &task,
	})
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// AddCollaborator shares a project with a user given by email or ID.
func (c *Client) AddCollaborator(ctx context.Context, projectID, emailOrID string) (*model.User, error) {
	body := collaboratorRequest{ID: emailOrID}
	if strings.Contains(emailOrID, "@") {
		body = collaboratorRequest{Email: emailOrID}
	}
	var user model.User
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/projects/" + escape(projectID) + "/collaborators",
		body:   body,
		result: &user,
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// RemoveCollaborator revokes a user's access to a project.
func (c *Client) RemoveCollaborator(ctx context.Context, projectID, userID string) error {
	return c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/projects/" + escape(projectID) + "/collaborators/" + escape(userID),
	})
}
