// Package session owns the single authenticated session of the client:
// logging in, restoring a persisted token, logging out and reacting to
// the server revoking the token.
package session

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/nhle/uptask/internal/api"
	"github.com/nhle/uptask/internal/credential"
	"github.com/nhle/uptask/internal/model"
	"github.com/nhle/uptask/internal/validate"
)

// State is the position of the session in its lifecycle.
type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// API is the part of the remote API the session needs.
type API interface {
	Login(ctx context.Context, email, password string) (*api.LoginResponse, error)
	Profile(ctx context.Context, token string) (*model.User, error)
	SignUp(ctx context.Context, in api.SignUpRequest) (*api.MessageResponse, error)
	ForgotPassword(ctx context.Context, email string) (*api.MessageResponse, error)
	ResetPassword(ctx context.Context, token, password string) (*api.MessageResponse, error)
	ConfirmAccount(ctx context.Context, token string) (*api.MessageResponse, error)
}

// Credentials are the values of the login form.
type Credentials struct {
	Email    string
	Password string
}

// SignUpInput are the values of the sign-up form.
type SignUpInput struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock replaces time.Now, used to evaluate token expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithKeepTokenOnNetworkError keeps the persisted token when a restore
// cannot reach the server, so the next start can try it again. By default
// every failed restore clears it.
func WithKeepTokenOnNetworkError() Option {
	return func(s *Store) { s.keepOnNetworkErr = true }
}

// Store is the session state machine. It is safe for concurrent use; the
// mutex is never held while talking to the API or the token storage.
type Store struct {
	api     API
	storage credential.TokenStorage
	log     logrus.FieldLogger
	now     func() time.Time

	keepOnNetworkErr bool

	mu      sync.Mutex
	state   State
	session *model.Session
	// epoch changes on every logout or invalidation so that an attempt
	// started before it cannot establish a session afterwards.
	epoch       uint64
	subscribers map[int]func(State)
	nextSub     int
}

// New creates an anonymous Store.
func New(client API, storage credential.TokenStorage, opts ...Option) *Store {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := &Store{
		api:         client,
		storage:     storage,
		log:         discard,
		now:         time.Now,
		subscribers: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn to be called after every state change. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// setLocked changes the state and returns the callbacks to notify once
// the lock is released.
func (s *Store) setLocked(state State, sess *model.Session) []func(State) {
	changed := s.state != state
	s.state = state
	s.session = sess
	if !changed {
		return nil
	}
	fns := make([]func(State), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	return fns
}

func notify(fns []func(State), state State) {
	for _, fn := range fns {
		fn(state)
	}
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Token returns the bearer token of the active session, or "".
// It makes Store an api.TokenSource.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Authenticated || s.session == nil {
		return ""
	}
	return s.session.Token
}

// CurrentUser returns a copy of the signed in user, or nil.
func (s *Store) CurrentUser() *model.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Authenticated || s.session == nil || s.session.User == nil {
		return nil
	}
	u := *s.session.User
	return &u
}

// IsAuthenticated reports whether there is a session whose token has not
// expired at the time of the call. A session found expired is ended and
// its persisted token cleared.
func (s *Store) IsAuthenticated() bool {
	s.mu.Lock()
	if s.state != Authenticated || !s.session.Valid() {
		s.mu.Unlock()
		return false
	}
	if !expired(s.session.Token, s.now()) {
		s.mu.Unlock()
		return true
	}
	s.epoch++
	fns := s.setLocked(Anonymous, nil)
	s.mu.Unlock()

	notify(fns, Anonymous)
	s.forget()
	s.log.Info("session expired")
	return false
}

// begin moves to Authenticating and returns the epoch the attempt belongs
// to and the state to fall back to.
func (s *Store) begin() (uint64, error) {
	s.mu.Lock()
	if s.state == Authenticating {
		s.mu.Unlock()
		return 0, ErrAuthInProgress
	}
	epoch := s.epoch
	fns := s.setLocked(Authenticating, nil)
	s.mu.Unlock()
	notify(fns, Authenticating)
	return epoch, nil
}

// finish records the outcome of an attempt. A nil sess means the attempt
// failed. It reports false when the attempt was superseded by a logout.
func (s *Store) finish(epoch uint64, sess *model.Session) bool {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return false
	}
	state := Anonymous
	if sess != nil {
		state = Authenticated
	}
	fns := s.setLocked(state, sess)
	s.mu.Unlock()
	notify(fns, state)
	return true
}

// Login exchanges credentials for a session and persists its token.
func (s *Store) Login(ctx context.Context, creds Credentials) (*model.Session, error) {
	creds.Email = strings.TrimSpace(creds.Email)
	if creds.Email == "" || creds.Password == "" {
		return nil, &validate.ValidationError{Field: "email", Message: validate.MsgRequired}
	}

	epoch, err := s.begin()
	if err != nil {
		return nil, err
	}

	resp, err := s.api.Login(ctx, creds.Email, creds.Password)
	if err != nil {
		if s.finish(epoch, nil) {
			// A token persisted by an earlier session must not outlive
			// a failed attempt to replace it.
			s.forget()
		}
		s.log.WithError(err).WithField("email", creds.Email).Info("login failed")
		return nil, authError(err)
	}

	user := resp.User
	sess := &model.Session{Token: resp.Token, User: &user}
	if !s.finish(epoch, sess) {
		return nil, &AuthError{Reason: InvalidCredentials, Message: "Login was cancelled"}
	}
	s.persist(sess.Token)
	s.log.WithField("user_id", user.ID).Info("logged in")
	return sess, nil
}

// RestoreSession re-establishes the session from the persisted token.
// It returns nil when there is no usable token. An expired JWT is
// discarded without contacting the server.
func (s *Store) RestoreSession(ctx context.Context) *model.Session {
	token, err := s.storage.Get()
	if err != nil {
		s.log.WithError(err).Warn("reading persisted token")
		return nil
	}
	if token == "" {
		return nil
	}
	if expired(token, s.now()) {
		s.log.Info("persisted token expired")
		s.forget()
		return nil
	}

	epoch, err := s.begin()
	if err != nil {
		s.log.WithError(err).Debug("restore skipped")
		return nil
	}

	user, err := s.api.Profile(ctx, token)
	if err != nil {
		s.finish(epoch, nil)
		if api.IsNetwork(err) && s.keepOnNetworkErr {
			s.log.WithError(err).Warn("restoring session; keeping token")
			return nil
		}
		s.log.WithError(err).Info("persisted token rejected")
		s.forget()
		return nil
	}

	sess := &model.Session{Token: token, User: user}
	if !s.finish(epoch, sess) {
		return nil
	}
	s.log.WithField("user_id", user.ID).Info("session restored")
	return sess
}

// Logout clears the session in memory and in storage. It is idempotent.
func (s *Store) Logout() {
	s.mu.Lock()
	s.epoch++
	fns := s.setLocked(Anonymous, nil)
	s.mu.Unlock()
	notify(fns, Anonymous)
	s.forget()
	s.log.Info("logged out")
}

// Invalidate ends the session after the server rejected its token. It
// only acts on an authenticated session and is idempotent.
func (s *Store) Invalidate() {
	s.mu.Lock()
	if s.state != Authenticated {
		s.mu.Unlock()
		return
	}
	s.epoch++
	fns := s.setLocked(Anonymous, nil)
	s.mu.Unlock()
	notify(fns, Anonymous)
	s.forget()
	s.log.Warn("session invalidated by server")
}

// SignUp registers an account and returns the server message. If the
// server signs the user in straight away the session is established.
func (s *Store) SignUp(ctx context.Context, in SignUpInput) (string, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Password == "" {
		return "", &validate.ValidationError{Field: "name", Message: validate.MsgRequired}
	}
	if err := validate.Email(in.Email); err != nil {
		return "", err
	}
	if err := validate.Password(in.Password, &in.ConfirmPassword); err != nil {
		return "", err
	}

	resp, err := s.api.SignUp(ctx, api.SignUpRequest{
		Name:     in.Name,
		Email:    strings.TrimSpace(in.Email),
		Password: in.Password,
	})
	if err != nil {
		return "", authError(err)
	}

	if resp.Token != "" && resp.User != nil {
		s.mu.Lock()
		busy := s.state == Authenticating
		var fns []func(State)
		if !busy {
			fns = s.setLocked(Authenticated, &model.Session{Token: resp.Token, User: resp.User})
		}
		s.mu.Unlock()
		if !busy {
			notify(fns, Authenticated)
			s.persist(resp.Token)
		}
	}
	return resp.Msg, nil
}

// RequestPasswordReset asks the server to mail reset instructions.
func (s *Store) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	if err := validate.Email(email); err != nil {
		return "", err
	}
	resp, err := s.api.ForgotPassword(ctx, strings.TrimSpace(email))
	if err != nil {
		return "", authError(err)
	}
	return resp.Msg, nil
}

// ResetPassword sets a new password using a reset token.
func (s *Store) ResetPassword(ctx context.Context, token, password, confirm string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", &validate.ValidationError{Field: "token", Message: validate.MsgRequired}
	}
	if err := validate.Password(password, &confirm); err != nil {
		return "", err
	}
	resp, err := s.api.ResetPassword(ctx, strings.TrimSpace(token), password)
	if err != nil {
		return "", authError(err)
	}
	return resp.Msg, nil
}

// ConfirmAccount activates a freshly registered account.
func (s *Store) ConfirmAccount(ctx context.Context, token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", &validate.ValidationError{Field: "token", Message: validate.MsgRequired}
	}
	resp, err := s.api.ConfirmAccount(ctx, strings.TrimSpace(token))
	if err != nil {
		return "", authError(err)
	}
	return resp.Msg, nil
}

func (s *Store) persist(token string) {
	if err := s.storage.Set(token); err != nil {
		s.log.WithError(err).Warn("persisting session token")
	}
}

func (s *Store) forget() {
	if err := s.storage.Delete(); err != nil {
		s.log.WithError(err).Warn("deleting session token")
	}
}

// expired reports whether token is a JWT whose exp claim is at or before
// now. Tokens that are not JWTs, or carry no exp, never expire here.
func expired(token string, now time.Time) bool {
	exp, ok := expiry(token)
	return ok && !now.Before(exp)
}

func expiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
