package client

import (
	"context"
	"sync"
)

// Decision is what a route gate tells the caller to do.
type Decision int

const (
	// Loading means the initial session check has not finished.
	Loading Decision = iota
	Redirect
	Render
	Unauthorized
)

func (d Decision) String() string {
	switch d {
	case Loading:
		return "loading"
	case Redirect:
		return "redirect"
	case Render:
		return "render"
	case Unauthorized:
		return "unauthorized"
	}
	return "unknown"
}

type Gate struct {
	Decision Decision
	// Location is set for Redirect.
	Location string
}

// State is a snapshot of the session. User is nil when nobody is signed in.
type State struct {
	User      *User
	IsLoading bool
}

// Session holds the signed-in identity for an application. Create one per
// application with NewSession, call Initialize on start and Dispose on
// teardown.
type Session struct {
	api        *API
	signInPath string
	homePath   string

	mu        sync.RWMutex
	user      *User
	loading   bool
	redirect  string
	disposed  bool
	listeners map[int]func(State)
	nextID    int
}

type SessionOption func(*Session)

// WithSignInPath sets where unauthenticated users are sent. Default "/signin".
func WithSignInPath(path string) SessionOption {
	return func(s *Session) { s.signInPath = path }
}

// WithHomePath sets the fallback destination after login. Default "/".
func WithHomePath(path string) SessionOption {
	return func(s *Session) { s.homePath = path }
}

func NewSession(api *API, opts ...SessionOption) *Session {
	s := &Session{
		api:        api,
		signInPath: "/signin",
		homePath:   "/",
		loading:    true,
		listeners:  map[int]func(State){},
	}
	for _, opt := range opts {
		opt(s)
	}

	api.Transport().OnRefreshFailure(s.forceLogout)
	return s
}

// Initialize asks the server who is signed in. Any failure leaves the session
// anonymous; loading is cleared either way.
func (s *Session) Initialize(ctx context.Context) error {
	user, err := s.api.Me(ctx)

	s.mu.Lock()
	if err == nil {
		s.user = &user
	} else {
		s.user = nil
	}
	s.loading = false
	s.mu.Unlock()

	s.notify()
	return err
}

// Dispose detaches the session from the transport and drops listeners. The
// session must not be used afterwards.
func (s *Session) Dispose() {
	s.api.Transport().OnRefreshFailure(nil)

	s.mu.Lock()
	s.disposed = true
	s.listeners = map[int]func(State){}
	s.mu.Unlock()
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Session) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// Subscribe calls fn with every state change until the returned func is
// called.
func (s *Session) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = fn

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Login signs in. Failures come back as ErrInvalidCredentials,
// *ValidationError or transport errors and are not retried.
func (s *Session) Login(ctx context.Context, email string, password string) (User, error) {
	result, err := s.api.Signin(ctx, email, password)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	user := result.User
	s.user = &user
	s.loading = false
	s.mu.Unlock()

	s.notify()
	return result.User, nil
}

// Signup registers an account without signing in.
func (s *Session) Signup(ctx context.Context, name string, email string, password string) (User, error) {
	result, err := s.api.Signup(ctx, name, email, password)
	if err != nil {
		return User{}, err
	}
	return result.User, nil
}

// Logout clears local state whatever the server says and reports whether
// the server confirmed.
func (s *Session) Logout(ctx context.Context) bool {
	err := s.api.Logout(ctx)

	s.mu.Lock()
	s.user = nil
	s.redirect = ""
	s.mu.Unlock()

	s.notify()
	return err == nil
}

func (s *Session) SetRedirect(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirect = path
}

// TakeRedirect returns and forgets the remembered destination, or the home
// path when none is set.
func (s *Session) TakeRedirect() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.redirect
	s.redirect = ""
	if path == "" {
		return s.homePath
	}
	return path
}

// Guard gates a page that needs a signed-in user. Anonymous visitors are
// redirected to sign in and path is remembered for afterwards.
func (s *Session) Guard(path string) Gate {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.loading:
		return Gate{Decision: Loading}
	case s.user == nil:
		s.redirect = path
		return Gate{Decision: Redirect, Location: s.signInPath}
	default:
		return Gate{Decision: Render}
	}
}

// GuardRole is Guard plus a role check.
func (s *Session) GuardRole(path string, role string) Gate {
	gate := s.Guard(path)
	if gate.Decision != Render {
		return gate
	}

	user, ok := s.User()
	if !ok || user.Role != role {
		return Gate{Decision: Unauthorized}
	}
	return gate
}

// GuardGuest gates pages meant for anonymous visitors such as sign in. A
// signed-in user is sent to the remembered destination.
func (s *Session) GuardGuest() Gate {
	s.mu.RLock()
	loading, signedIn := s.loading, s.user != nil
	s.mu.RUnlock()

	switch {
	case loading:
		return Gate{Decision: Loading}
	case signedIn:
		return Gate{Decision: Redirect, Location: s.TakeRedirect()}
	default:
		return Gate{Decision: Render}
	}
}

// forceLogout runs when a refresh fails; the transport has already dropped
// its tokens.
func (s *Session) forceLogout(error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.user = nil
	s.loading = false
	s.mu.Unlock()

	s.notify()
}

func (s *Session) stateLocked() State {
	state := State{IsLoading: s.loading}
	if s.user != nil {
		u := *s.user
		state.User = &u
	}
	return state
}

func (s *Session) notify() {
	s.mu.RLock()
	if s.disposed {
		s.mu.RUnlock()
		return
	}
	state := s.stateLocked()
	listeners := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.RUnlock()

	for _, fn := range listeners {
		fn(state)
	}
}
