// Package client is a Go client for the realestate API. It keeps the
// session's tokens, refreshes the access token transparently on 401 and
// exposes a session controller for front ends built on top of it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

type AuthResult struct {
	User   User      `json:"user"`
	Tokens TokenPair `json:"tokens"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

// API makes typed calls against the HTTP surface. Authentication calls go
// out on a plain client; everything else goes through the refreshing
// Transport.
type API struct {
	baseURL   string
	raw       *http.Client
	authed    *http.Client
	transport *Transport
}

type Option func(*options)

type options struct {
	base           http.RoundTripper
	timeout        time.Duration
	refreshTimeout time.Duration
}

// WithBaseTransport sets the RoundTripper underneath both clients.
func WithBaseTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.base = rt }
}

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func WithRefreshTimeout(d time.Duration) Option {
	return func(o *options) { o.refreshTimeout = d }
}

// NewAPI targets baseURL, the API root including /api/v1.
func NewAPI(baseURL string, opts ...Option) *API {
	o := options{base: http.DefaultTransport, timeout: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	a := &API{
		baseURL: strings.TrimRight(baseURL, "/"),
		raw:     &http.Client{Transport: o.base, Timeout: o.timeout},
	}
	a.transport = NewTransport(o.base, a.RefreshToken)
	a.transport.RefreshTimeout = o.refreshTimeout
	a.authed = &http.Client{Transport: a.transport, Timeout: o.timeout}
	return a
}

func (a *API) Transport() *Transport {
	return a.transport
}

// HTTPClient returns the refreshing client for calls this package does not
// wrap.
func (a *API) HTTPClient() *http.Client {
	return a.authed
}

// Signup registers an account. The returned tokens are not installed.
func (a *API) Signup(ctx context.Context, name string, email string, password string) (AuthResult, error) {
	var out AuthResult
	err := a.do(ctx, a.raw, http.MethodPost, "/auth/signup", "", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, &out)
	return out, err
}

// Signin authenticates and installs the returned tokens on the Transport.
func (a *API) Signin(ctx context.Context, email string, password string) (AuthResult, error) {
	var out AuthResult
	err := a.do(ctx, a.raw, http.MethodPost, "/auth/signin", "", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return AuthResult{}, err
	}

	a.transport.SetTokens(Tokens{AccessToken: out.Tokens.AccessToken, RefreshToken: out.Tokens.RefreshToken})
	return out, nil
}

// RefreshToken exchanges refreshToken for a new access token. It is the
// Transport's RefreshFunc and does not modify stored tokens itself.
func (a *API) RefreshToken(ctx context.Context, refreshToken string) (Tokens, error) {
	var out struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
	err := a.do(ctx, a.raw, http.MethodPost, "/auth/refresh-token", "", map[string]string{
		"refreshToken": refreshToken,
	}, &out)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}, nil
}

func (a *API) Me(ctx context.Context) (User, error) {
	var out User
	err := a.do(ctx, a.authed, http.MethodGet, "/auth/me", "", nil, &out)
	return out, err
}

// Logout ends the session on the server and always drops local tokens. The
// refresh token is sent along so the server can clear the session even when
// the access token has expired.
func (a *API) Logout(ctx context.Context) error {
	tokens := a.transport.Tokens()
	a.transport.ClearTokens()

	var body any
	if tokens.RefreshToken != "" {
		body = map[string]string{"refreshToken": tokens.RefreshToken}
	}
	return a.do(ctx, a.raw, http.MethodPost, "/auth/logout", tokens.AccessToken, body, nil)
}

func (a *API) Favorites(ctx context.Context, userID string) ([]string, error) {
	var out struct {
		PropertyIDs []string `json:"propertyIds"`
	}
	err := a.do(ctx, a.authed, http.MethodGet, favoritesPath(userID), "", nil, &out)
	return out.PropertyIDs, err
}

func (a *API) AddFavorite(ctx context.Context, userID string, propertyID string) error {
	return a.do(ctx, a.authed, http.MethodPost, favoritesPath(userID), "", map[string]string{
		"propertyId": propertyID,
	}, nil)
}

func (a *API) RemoveFavorite(ctx context.Context, userID string, propertyID string) error {
	return a.do(ctx, a.authed, http.MethodDelete, favoritesPath(userID)+"/"+url.PathEscape(propertyID), "", nil, nil)
}

func favoritesPath(userID string) string {
	return "/users/" + url.PathEscape(userID) + "/favorites"
}

func (a *API) do(ctx context.Context, hc *http.Client, method string, path string, bearer string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if !env.Success || resp.StatusCode >= 400 {
		if env.Error == nil {
			return &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		if env.Error.Code == "VALIDATION_ERROR" {
			return &ValidationError{Message: env.Error.Message, Fields: env.Error.Fields}
		}
		return &Error{StatusCode: resp.StatusCode, Code: env.Error.Code, Message: env.Error.Message}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
