package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// DefaultRefreshTimeout bounds a refresh call when Transport.RefreshTimeout
// is zero.
const DefaultRefreshTimeout = 10 * time.Second

// Tokens is the credential pair held by the client.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// RefreshFunc exchanges a refresh token for new tokens. An empty
// RefreshToken in the result keeps the current one.
type RefreshFunc func(ctx context.Context, refreshToken string) (Tokens, error)

type refreshState int

const (
	stateIdle refreshState = iota
	stateRefreshing
	stateSettling
)

func (s refreshState) String() string {
	switch s {
	case stateIdle:
		return "idle"
	case stateRefreshing:
		return "refreshing"
	case stateSettling:
		return "settling"
	}
	return "unknown"
}

type refreshResult struct {
	accessToken string
	err         error
}

type retryKey struct{}

// Transport attaches the access token to every request and recovers from
// 401 responses by refreshing once and replaying.
//
// State machine:
//
//	Idle --401--> Refreshing(waiters) --refresh settles--> Settling --> Idle
//
// Every 401 observed while Refreshing joins the waiter list; exactly one
// refresh call runs per episode. Settling happens under the lock: the tokens
// are swapped and the waiter list is detached before any new arrival can
// look at the state, so a late 401 either joined the list or sees the new
// token generation and is replayed with it directly. Detached waiters are
// released after the failure hook has returned.
//
// A replay is sent once. If it fails with 401 again the response is
// returned to the caller unchanged.
type Transport struct {
	// Base performs the actual requests. nil means http.DefaultTransport.
	Base http.RoundTripper

	// Refresh must not go through this Transport.
	Refresh RefreshFunc

	RefreshTimeout time.Duration

	mu           sync.Mutex
	state        refreshState
	generation   uint64
	accessToken  string
	refreshToken string
	waiters      []chan refreshResult
	onFailure    func(error)
}

func NewTransport(base http.RoundTripper, refresh RefreshFunc) *Transport {
	return &Transport{Base: base, Refresh: refresh}
}

// SetTokens installs a new credential pair and starts a new generation.
func (t *Transport) SetTokens(tokens Tokens) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setLocked(tokens)
}

// ClearTokens drops both tokens. In-flight requests that later fail with 401
// are not replayed.
func (t *Transport) ClearTokens() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setLocked(Tokens{})
}

func (t *Transport) Tokens() Tokens {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Tokens{AccessToken: t.accessToken, RefreshToken: t.refreshToken}
}

// OnRefreshFailure registers fn to run when a refresh episode fails. It is
// called outside the transport's lock, once per failed episode, before the
// waiting requests see their errors.
func (t *Transport) OnRefreshFailure(fn func(error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onFailure = fn
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	body, getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	accessToken, generation := t.current()
	resp, err := t.send(req.Context(), req, body, accessToken)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if req.Context().Value(retryKey{}) != nil {
		return resp, nil
	}

	nextToken, err := t.awaitToken(req.Context(), generation)
	if errors.Is(err, ErrNoSession) {
		return resp, nil
	}
	discard(resp)
	if err != nil {
		return nil, err
	}

	if getBody != nil {
		if body, err = getBody(); err != nil {
			return nil, err
		}
	}

	replayCtx := context.WithValue(req.Context(), retryKey{}, true)
	return t.send(replayCtx, req, body, nextToken)
}

func (t *Transport) current() (string, uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accessToken, t.generation
}

// awaitToken returns the access token a request sent with generation should
// be replayed with, refreshing if that generation is still current.
func (t *Transport) awaitToken(ctx context.Context, generation uint64) (string, error) {
	t.mu.Lock()

	if t.generation != generation {
		accessToken := t.accessToken
		t.mu.Unlock()
		if accessToken == "" {
			return "", ErrNoSession
		}
		return accessToken, nil
	}

	if t.refreshToken == "" {
		t.mu.Unlock()
		return "", ErrNoSession
	}

	ch := make(chan refreshResult, 1)
	t.waiters = append(t.waiters, ch)

	switch t.state {
	case stateIdle:
		t.state = stateRefreshing
		go t.runRefresh(t.refreshToken, t.generation)
	case stateRefreshing:
	default:
		t.mu.Unlock()
		panic(fmt.Sprintf("client: 401 observed in state %s", t.state))
	}
	t.mu.Unlock()

	select {
	case res := <-ch:
		return res.accessToken, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (t *Transport) runRefresh(refreshToken string, generation uint64) {
	timeout := t.RefreshTimeout
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	tokens, err := t.Refresh(ctx, refreshToken)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	t.mu.Lock()
	t.state = stateSettling

	superseded := t.generation != generation
	switch {
	case superseded:
		// SetTokens or ClearTokens ran during the refresh; the newer
		// credentials win over the refresh outcome.
		err = nil
		if t.accessToken == "" {
			err = ErrNoSession
		}
	case err == nil:
		if tokens.RefreshToken == "" {
			tokens.RefreshToken = refreshToken
		}
		t.setLocked(tokens)
	default:
		t.setLocked(Tokens{})
	}

	result := refreshResult{accessToken: t.accessToken, err: err}
	waiters := t.waiters
	t.waiters = nil
	t.state = stateIdle

	onFailure := t.onFailure
	t.mu.Unlock()

	if err != nil && !superseded && onFailure != nil {
		onFailure(err)
	}
	for _, ch := range waiters {
		ch <- result
	}
}

func (t *Transport) setLocked(tokens Tokens) {
	t.accessToken = tokens.AccessToken
	t.refreshToken = tokens.RefreshToken
	t.generation++
}

func (t *Transport) send(ctx context.Context, req *http.Request, body io.ReadCloser, accessToken string) (*http.Response, error) {
	out := req.Clone(ctx)
	out.Body = body
	if body == nil {
		out.Body = http.NoBody
	}
	if accessToken != "" {
		out.Header.Set("Authorization", "Bearer "+accessToken)
	}
	return t.base().RoundTrip(out)
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// replayableBody returns the body for the first send and a factory for the
// replay. Bodies the request cannot recreate are buffered.
func replayableBody(req *http.Request) (io.ReadCloser, func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil, nil
	}
	if req.GetBody != nil {
		return req.Body, req.GetBody, nil
	}

	raw, err := io.ReadAll(req.Body)
	closeErr := req.Body.Close()
	if err != nil {
		return nil, nil, fmt.Errorf("buffer request body: %w", err)
	}
	if closeErr != nil {
		return nil, nil, fmt.Errorf("buffer request body: %w", closeErr)
	}

	getBody := func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
	body, _ := getBody()
	return body, getBody, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
