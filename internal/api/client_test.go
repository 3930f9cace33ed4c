package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/tests/testutil"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newTestClient(t *testing.T) (*Client, *testutil.FakeAPI, model.User) {
	t.Helper()
	fake := testutil.NewFakeAPI(t)
	user := fake.SeedUser("Ana", "ana@example.com", "secret1")
	c := NewClient(fake.URL(), WithMaxRetries(1))
	c.SetTokenSource(staticToken(fake.IssueToken(user.ID)))
	return c, fake, user
}

func TestLoginSuccess(t *testing.T) {
	c, fake, user := newTestClient(t)

	resp, err := c.Login(context.Background(), "ana@example.com", "secret1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected a token")
	}
	if resp.User.ID != user.ID || resp.User.Email != user.Email {
		t.Fatalf("unexpected user %+v", resp.User)
	}
	if fake.Calls(testutil.RouteLogin) != 1 {
		t.Fatalf("expected one login call, got %d", fake.Calls(testutil.RouteLogin))
	}
}

func TestLoginFailureDoesNotFireUnauthorizedHook(t *testing.T) {
	c, fake, _ := newTestClient(t)
	var fired int32
	c.OnUnauthorized(func() { atomic.AddInt32(&fired, 1) })

	fake.FailNext(testutil.RouteLogin, http.StatusUnauthorized, "Bad credentials")
	_, err := c.Login(context.Background(), "ana@example.com", "nope")
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if err.Error() != "Bad credentials" {
		t.Fatalf("server message not passed through: %q", err.Error())
	}
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("login failure must not invalidate the session")
	}
}

func TestUnauthorizedFiresHook(t *testing.T) {
	c, fake, _ := newTestClient(t)
	var fired int32
	c.OnUnauthorized(func() { atomic.AddInt32(&fired, 1) })

	fake.RevokeTokens()
	_, err := c.ListProjects(context.Background())
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if atomic.LoadInt32(&fired) != 1 {
		t.Fatalf("expected hook to fire once, fired %d times", fired)
	}
}

func TestMissingTokenSkipsNetwork(t *testing.T) {
	fake := testutil.NewFakeAPI(t)
	c := NewClient(fake.URL())

	_, err := c.ListProjects(context.Background())
	if !IsUnauthorized(err) {
		t.Fatalf("expected unauthorized error, got %v", err)
	}
	if fake.TotalCalls() != 0 {
		t.Fatalf("expected no request, got %d", fake.TotalCalls())
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   Kind
	}{
		{"forbidden", http.StatusForbidden, KindForbidden},
		{"not found", http.StatusNotFound, KindNotFound},
		{"bad request", http.StatusBadRequest, KindServer},
		{"internal", http.StatusInternalServerError, KindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, fake, _ := newTestClient(t)
			fake.FailNext(testutil.RouteListProjects, tt.status, "boom: "+tt.name)

			_, err := c.ListProjects(context.Background())
			if KindOf(err) != tt.want {
				t.Fatalf("expected kind %s, got %v", tt.want, err)
			}
			if err.Error() != "boom: "+tt.name {
				t.Errorf("unexpected message %q", err.Error())
			}
		})
	}
}

func TestNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(url, WithTimeout(time.Second))
	c.SetTokenSource(staticToken("t"))
	_, err := c.ListProjects(context.Background())
	if !IsNetwork(err) {
		t.Fatalf("expected network failure, got %v", err)
	}
}

func TestRetryOn429(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetTokenSource(staticToken("t"))
	projects, err := c.ListProjects(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(projects) != 0 {
		t.Fatalf("expected no projects, got %d", len(projects))
	}
	if atomic.LoadInt32(&hits) != 2 {
		t.Fatalf("expected 2 attempts, got %d", hits)
	}
}

func TestRequestHeaders(t *testing.T) {
	var auth, requestID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		requestID = r.Header.Get("X-Request-ID")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRateLimit(100))
	c.SetTokenSource(staticToken("abc"))
	if err := c.DeleteTask(context.Background(), "t1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if auth != "Bearer abc" {
		t.Errorf("unexpected Authorization header %q", auth)
	}
	if requestID == "" {
		t.Error("expected an X-Request-ID header")
	}
}

func TestSaveTaskCreateThenUpdate(t *testing.T) {
	c, fake, user := newTestClient(t)
	project := fake.SeedProject(user.ID, "Site")
	ctx := context.Background()

	created, err := c.SaveTask(ctx, model.TaskInput{
		Name:        "Draft",
		Description: "write it",
		Deadline:    "2030-01-02",
		Priority:    model.PriorityHigh,
		Project:     project.ID,
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == "" || created.Project != project.ID {
		t.Fatalf("unexpected task %+v", created)
	}

	updated, err := c.SaveTask(ctx, model.TaskInput{
		ID:          created.ID,
		Name:        "Draft v2",
		Description: "write it again",
		Deadline:    "2030-01-03",
		Priority:    model.PriorityLow,
		Project:     project.ID,
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.ID != created.ID || updated.Name != "Draft v2" {
		t.Fatalf("unexpected task %+v", updated)
	}
	if fake.Calls(testutil.RouteCreateTask) != 1 || fake.Calls(testutil.RouteUpdateTask) != 1 {
		t.Fatalf("expected one create and one update call")
	}
}

func TestGetProjectDetail(t *testing.T) {
	c, fake, user := newTestClient(t)
	project := fake.SeedProject(user.ID, "Site")
	fake.SeedTask(project.ID, "One")
	fake.SeedTask(project.ID, "Two")
	bob := fake.SeedUser("Bob", "bob@example.com", "secret2")
	fake.ShareProject(project.ID, bob.ID)

	detail, err := c.GetProject(context.Background(), project.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if detail.Project.ID != project.ID {
		t.Fatalf("unexpected project %+v", detail.Project)
	}
	if len(detail.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(detail.Tasks))
	}
	if len(detail.Collaborators) != 1 || detail.Collaborators[0].ID != bob.ID {
		t.Fatalf("unexpected collaborators %+v", detail.Collaborators)
	}
}

func TestAddCollaboratorByEmail(t *testing.T) {
	c, fake, user := newTestClient(t)
	project := fake.SeedProject(user.ID, "Site")
	bob := fake.SeedUser("Bob", "bob@example.com", "secret2")

	added, err := c.AddCollaborator(context.Background(), project.ID, "bob@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added.ID != bob.ID {
		t.Fatalf("unexpected user %+v", added)
	}

	_, err = c.AddCollaborator(context.Background(), project.ID, bob.ID)
	if !IsForbidden(err) {
		t.Fatalf("expected duplicate collaborator to be rejected, got %v", err)
	}
}
