package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/golang-jwt/jwt/v5"

	"github.com/nhle/uptask/internal/api"
	"github.com/nhle/uptask/internal/credential"
	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/internal/validate"
	"github.com/nhle/uptask/tests/testutil"
)

type fixture struct {
	fake    *testutil.FakeAPI
	client  *api.Client
	storage *credential.Keyring
	store   *Store
	user    model.User
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	fake := testutil.NewFakeAPI(t)
	user := fake.SeedUser("Ana", "ana@example.com", "secret1")
	client := api.NewClient(fake.URL(), api.WithMaxRetries(0))
	storage := credential.NewKeyring(keyring.NewArrayKeyring(nil))
	store := New(client, storage, opts...)
	client.SetTokenSource(store)
	client.OnUnauthorized(store.Invalidate)
	return &fixture{fake: fake, client: client, storage: storage, store: store, user: user}
}

func persisted(t *testing.T, s credential.TokenStorage) string {
	t.Helper()
	token, err := s.Get()
	if err != nil {
		t.Fatalf("reading storage: %v", err)
	}
	return token
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":  "u1",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)

	sess, err := f.store.Login(context.Background(), Credentials{Email: "ana@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sess.Valid() || sess.User.ID != f.user.ID {
		t.Fatalf("unexpected session %+v", sess)
	}
	if f.store.State() != Authenticated || !f.store.IsAuthenticated() {
		t.Fatalf("expected authenticated, got %s", f.store.State())
	}
	if got := persisted(t, f.storage); got != sess.Token {
		t.Fatalf("expected token %q to be persisted, got %q", sess.Token, got)
	}
	if f.fake.Calls(testutil.RouteLogin) != 1 {
		t.Fatalf("expected exactly one login call, got %d", f.fake.Calls(testutil.RouteLogin))
	}
}

func TestLoginFailures(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		fail     int
		want     Reason
	}{
		{"wrong password", "ana@example.com", "nope", 0, InvalidCredentials},
		{"unknown user", "bob@example.com", "secret1", 0, InvalidCredentials},
		{"server error", "ana@example.com", "secret1", http.StatusInternalServerError, ServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.fail != 0 {
				f.fake.FailNext(testutil.RouteLogin, tt.fail, "database down")
			}

			sess, err := f.store.Login(context.Background(), Credentials{Email: tt.email, Password: tt.password})
			if sess != nil {
				t.Fatalf("expected no session, got %+v", sess)
			}
			if ReasonOf(err) != tt.want {
				t.Fatalf("expected reason %s, got %v", tt.want, err)
			}
			if f.store.State() != Anonymous {
				t.Fatalf("expected anonymous, got %s", f.store.State())
			}
			if persisted(t, f.storage) != "" {
				t.Fatal("nothing should be persisted after a failed login")
			}
		})
	}
}

func TestLoginNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := api.NewClient(url, api.WithTimeout(time.Second))
	store := New(client, credential.NewKeyring(keyring.NewArrayKeyring(nil)))

	_, err := store.Login(context.Background(), Credentials{Email: "ana@example.com", Password: "secret1"})
	if ReasonOf(err) != NetworkFailure {
		t.Fatalf("expected network failure, got %v", err)
	}
	if store.State() != Anonymous {
		t.Fatalf("expected anonymous, got %s", store.State())
	}
}

func TestLoginRequiresFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.Login(context.Background(), Credentials{Email: " ", Password: "x"})
	if !validate.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.fake.TotalCalls() != 0 {
		t.Fatalf("expected no request, got %d", f.fake.TotalCalls())
	}
}

func TestLoginWhileInProgress(t *testing.T) {
	f := newFixture(t)
	gate := f.fake.Hold(testutil.RouteLogin)

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = f.store.Login(context.Background(), Credentials{Email: "ana@example.com", Password: "secret1"})
	}()
	<-gate.Arrived

	if f.store.State() != Authenticating {
		t.Fatalf("expected authenticating, got %s", f.store.State())
	}
	_, err := f.store.Login(context.Background(), Credentials{Email: "ana@example.com", Password: "secret1"})
	if !errors.Is(err, ErrAuthInProgress) {
		t.Fatalf("expected ErrAuthInProgress, got %v", err)
	}

	gate.Release()
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first login failed: %v", firstErr)
	}
	if f.fake.Calls(testutil.RouteLogin) != 1 {
		t.Fatalf("expected one login call, got %d", f.fake.Calls(testutil.RouteLogin))
	}
}

func TestLogoutDuringLoginWins(t *testing.T) {
	f := newFixture(t)
	gate := f.fake.Hold(testutil.RouteLogin)

	done := make(chan error, 1)
	go func() {
		_, err := f.store.Login(context.Background(), Credentials{Email: "ana@example.com", Password: "secret1"})
		done <- err
	}()
	<-gate.Arrived
	f.store.Logout()
	gate.Release()

	if err := <-done; err == nil {
		t.Fatal("expected the superseded login to fail")
	}
	if f.store.State() != Anonymous || persisted(t, f.storage) != "" {
		t.Fatal("logout must win over a login that finished after it")
	}
}

func TestRestoreWithoutToken(t *testing.T) {
	f := newFixture(t)

	if sess := f.store.RestoreSession(context.Background()); sess != nil {
		t.Fatalf("expected nil session, got %+v", sess)
	}
	if f.fake.TotalCalls() != 0 {
		t.Fatalf("expected no request, got %d", f.fake.TotalCalls())
	}
	if f.store.State() != Anonymous {
		t.Fatalf("expected anonymous, got %s", f.store.State())
	}
}

func TestRestoreValidToken(t *testing.T) {
	f := newFixture(t)
	token := f.fake.IssueToken(f.user.ID)
	if err := f.storage.Set(token); err != nil {
		t.Fatal(err)
	}

	sess := f.store.RestoreSession(context.Background())
	if sess == nil || sess.Token != token || sess.User.ID != f.user.ID {
		t.Fatalf("unexpected session %+v", sess)
	}
	if !f.store.IsAuthenticated() {
		t.Fatal("expected authenticated")
	}
	if f.fake.Calls(testutil.RouteProfile) != 1 {
		t.Fatalf("expected one profile call, got %d", f.fake.Calls(testutil.RouteProfile))
	}
}

func TestRestoreRejectedToken(t *testing.T) {
	f := newFixture(t)
	if err := f.storage.Set("tok-revoked"); err != nil {
		t.Fatal(err)
	}

	if sess := f.store.RestoreSession(context.Background()); sess != nil {
		t.Fatalf("expected nil session, got %+v", sess)
	}
	if persisted(t, f.storage) != "" {
		t.Fatal("a rejected token must be cleared")
	}
	if f.store.State() != Anonymous {
		t.Fatalf("expected anonymous, got %s", f.store.State())
	}
}

func TestRestoreExpiredTokenSkipsNetwork(t *testing.T) {
	f := newFixture(t)
	if err := f.storage.Set(signedToken(t, time.Now().Add(-time.Hour))); err != nil {
		t.Fatal(err)
	}

	if sess := f.store.RestoreSession(context.Background()); sess != nil {
		t.Fatalf("expected nil session, got %+v", sess)
	}
	if f.fake.TotalCalls() != 0 {
		t.Fatalf("expected no request, got %d", f.fake.TotalCalls())
	}
	if persisted(t, f.storage) != "" {
		t.Fatal("an expired token must be cleared")
	}
}

func TestRestoreNetworkFailure(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want string
	}{
		{"clears token by default", nil, ""},
		{"keeps token when asked", []Option{WithKeepTokenOnNetworkError()}, "tok-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.NotFoundHandler())
			url := srv.URL
			srv.Close()

			storage := credential.NewKeyring(keyring.NewArrayKeyring(nil))
			if err := storage.Set("tok-1"); err != nil {
				t.Fatal(err)
			}
			store := New(api.NewClient(url, api.WithTimeout(time.Second)), storage, tt.opts...)

			if sess := store.RestoreSession(context.Background()); sess != nil {
				t.Fatalf("expected nil session, got %+v", sess)
			}
			if store.State() != Anonymous {
				t.Fatalf("expected anonymous, got %s", store.State())
			}
			if got := persisted(t, storage); got != tt.want {
				t.Fatalf("expected persisted token %q, got %q", tt.want, got)
			}
		})
	}
}

func TestFailedLoginClearsPreviousToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.store.Login(ctx, Credentials{Email: "ana@example.com", Password: "secret1"}); err != nil {
		t.Fatal(err)
	}

	if _, err := f.store.Login(ctx, Credentials{Email: "ana@example.com", Password: "wrong"}); ReasonOf(err) != InvalidCredentials {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if f.store.State() != Anonymous {
		t.Fatalf("expected anonymous, got %s", f.store.State())
	}
	if persisted(t, f.storage) != "" {
		t.Fatal("the previous token must not survive a failed login")
	}
	if sess := f.store.RestoreSession(ctx); sess != nil {
		t.Fatalf("expected no session to restore, got %+v", sess)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newFixture(t)
	if _, err := f.store.Login(context.Background(), Credentials{Email: "ana@example.com", Password: "secret1"}); err != nil {
		t.Fatal(err)
	}

	f.store.Logout()
	f.store.Logout()

	if f.store.State() != Anonymous || f.store.Token() != "" || f.store.CurrentUser() != nil {
		t.Fatal("expected a cleared session")
	}
	if persisted(t, f.storage) != "" {
		t.Fatal("expected the persisted token to be removed")
	}
}

func TestUnauthorizedResponseInvalidatesSession(t *testing.T) {
	f := newFixture(t)
	if _, err := f.store.Login(context.Background(), Credentials{Email: "ana@example.com", Password: "secret1"}); err != nil {
		t.Fatal(err)
	}

	f.fake.RevokeTokens()
	if _, err := f.client.ListProjects(context.Background()); !api.IsUnauthorized(err) {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	if f.store.State() != Anonymous {
		t.Fatalf("expected anonymous after 401, got %s", f.store.State())
	}
	if persisted(t, f.storage) != "" {
		t.Fatal("expected the persisted token to be removed")
	}
}

func TestSubscribeSeesTransitions(t *testing.T) {
	f := newFixture(t)
	var mu sync.Mutex
	var seen []State
	unsubscribe := f.store.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})

	if _, err := f.store.Login(context.Background(), Credentials{Email: "ana@example.com", Password: "secret1"}); err != nil {
		t.Fatal(err)
	}
	f.store.Logout()
	unsubscribe()
	f.store.Logout()

	mu.Lock()
	defer mu.Unlock()
	want := []State{Authenticating, Authenticated, Anonymous}
	if len(seen) != len(want) {
		t.Fatalf("expected %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, seen)
		}
	}
}

type jwtAPI struct {
	API
	token string
}

func (a jwtAPI) Login(context.Context, string, string) (*api.LoginResponse, error) {
	return &api.LoginResponse{Token: a.token, User: model.User{ID: "u1", Name: "Ana"}}, nil
}

func TestIsAuthenticatedHonoursExpiry(t *testing.T) {
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	clock := now
	token := signedToken(t, now.Add(time.Hour))
	storage := credential.NewKeyring(keyring.NewArrayKeyring(nil))
	store := New(jwtAPI{token: token}, storage, WithClock(func() time.Time { return clock }))

	if _, err := store.Login(context.Background(), Credentials{Email: "ana@example.com", Password: "x"}); err != nil {
		t.Fatal(err)
	}
	if !store.IsAuthenticated() {
		t.Fatal("expected authenticated before expiry")
	}

	clock = now.Add(2 * time.Hour)
	if store.IsAuthenticated() {
		t.Fatal("expected an expired token to stop counting as authenticated")
	}
	if store.State() != Anonymous || store.CurrentUser() != nil {
		t.Fatalf("expected the expired session to end, got %s", store.State())
	}
	if persisted(t, storage) != "" {
		t.Fatal("expected the expired token to be cleared")
	}
}

func TestSignUpConfirmThenLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg, err := f.store.SignUp(ctx, SignUpInput{
		Name:            "Bob",
		Email:           "bob@example.com",
		Password:        "secret2",
		ConfirmPassword: "secret2",
	})
	if err != nil || msg == "" {
		t.Fatalf("sign up failed: %q %v", msg, err)
	}
	if f.store.State() != Anonymous {
		t.Fatal("sign up without a token must not sign in")
	}

	_, err = f.store.Login(ctx, Credentials{Email: "bob@example.com", Password: "secret2"})
	if ReasonOf(err) != InvalidCredentials {
		t.Fatalf("expected an unconfirmed account to be rejected, got %v", err)
	}

	if _, err := f.store.ConfirmAccount(ctx, f.fake.ConfirmToken("bob@example.com")); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if _, err := f.store.Login(ctx, Credentials{Email: "bob@example.com", Password: "secret2"}); err != nil {
		t.Fatalf("login after confirm failed: %v", err)
	}
}

func TestSignUpValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.store.SignUp(context.Background(), SignUpInput{
		Name: "Bob", Email: "bob@example.com", Password: "secret2", ConfirmPassword: "other",
	})
	if !validate.IsValidationError(err) || err.Error() != validate.MsgPasswordMatch {
		t.Fatalf("expected password mismatch, got %v", err)
	}
	if f.fake.TotalCalls() != 0 {
		t.Fatalf("expected no request, got %d", f.fake.TotalCalls())
	}
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.store.RequestPasswordReset(ctx, "ana@example.com"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := f.store.RequestPasswordReset(ctx, "nobody@example.com"); ReasonOf(err) != InvalidCredentials {
		t.Fatalf("expected unknown email to be rejected, got %v", err)
	}
	if _, err := f.store.ResetPassword(ctx, "expired", "secret9", "secret9"); ReasonOf(err) != InvalidCredentials {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
	if _, err := f.store.ResetPassword(ctx, "abc", "secret9", "secret9"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
