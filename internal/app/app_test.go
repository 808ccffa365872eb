package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-realestate/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		ServerPort:     "0",
		RequestTimeout: 5 * time.Second,
		StoreDriver:    config.StoreDriverMemory,
		JWTSecret:      "app-test-secret",
		JWTAccessTTL:   15 * time.Minute,
		JWTRefreshTTL:  7 * 24 * time.Hour,
		CORSOrigins:    []string{"*"},
		LogLevel:       "error",
		LogFormat:      "text",
	}
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

type apiClient struct {
	t   *testing.T
	srv *httptest.Server
}

func newAPIClient(t *testing.T, cfg *config.Config) *apiClient {
	t.Helper()

	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)
	return &apiClient{t: t, srv: srv}
}

func (c *apiClient) do(method string, path string, token string, body any) (*http.Response, envelope) {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, c.srv.URL+path, reader)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.srv.Client().Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

type session struct {
	User struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
	Tokens struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		TokenType    string `json:"tokenType"`
		ExpiresIn    int64  `json:"expiresIn"`
	} `json:"tokens"`
}

func (c *apiClient) signup(name string, email string) session {
	c.t.Helper()

	resp, env := c.do(http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"name": name, "email": email, "password": "password123",
	})
	require.Equal(c.t, http.StatusCreated, resp.StatusCode)

	var s session
	require.NoError(c.t, json.Unmarshal(env.Data, &s))
	return s
}

func TestAuthScenario(t *testing.T) {
	c := newAPIClient(t, testConfig())

	created := c.signup("Ana", "ana@x.com")
	require.Equal(t, "user", created.User.Role)
	require.Equal(t, "Bearer", created.Tokens.TokenType)
	require.EqualValues(t, 900, created.Tokens.ExpiresIn)

	resp, env := c.do(http.MethodPost, "/api/v1/auth/signin", "", map[string]string{
		"email": "ana@x.com", "password": "password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var signedIn session
	require.NoError(t, json.Unmarshal(env.Data, &signedIn))

	resp, env = c.do(http.MethodPost, "/api/v1/auth/signin", "", map[string]string{
		"email": "ana@x.com", "password": "wrong",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "INVALID_CREDENTIALS", env.Error.Code)

	resp, env = c.do(http.MethodGet, "/api/v1/auth/me", signedIn.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "private, max-age=300", resp.Header.Get("Cache-Control"))

	var me map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &me))
	require.Equal(t, map[string]any{
		"id":    created.User.ID,
		"name":  "Ana",
		"email": "ana@x.com",
		"role":  "user",
	}, me)
	assert.NotContains(t, me, "passwordHash")
	assert.NotContains(t, me, "refreshToken")
}

func TestDuplicateSignup(t *testing.T) {
	c := newAPIClient(t, testConfig())

	c.signup("Ana", "ana@x.com")

	resp, env := c.do(http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"name": "Other", "email": "ana@x.com", "password": "password456",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "DUPLICATE_EMAIL", env.Error.Code)

	resp, _ = c.do(http.MethodPost, "/api/v1/auth/signin", "", map[string]string{
		"email": "ana@x.com", "password": "password123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSignupValidationReportsFields(t *testing.T) {
	c := newAPIClient(t, testConfig())

	resp, env := c.do(http.MethodPost, "/api/v1/auth/signup", "", map[string]string{"email": "nope"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "VALIDATION_ERROR", env.Error.Code)
	require.Contains(t, env.Error.Fields, "name")
	require.Contains(t, env.Error.Fields, "email")
	require.Contains(t, env.Error.Fields, "password")
}

func TestRefreshAndLogout(t *testing.T) {
	c := newAPIClient(t, testConfig())
	s := c.signup("Ana", "ana@x.com")

	resp, env := c.do(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "UNAUTHORIZED", env.Error.Code)

	resp, env = c.do(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{
		"refreshToken": s.Tokens.AccessToken,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, env = c.do(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{
		"refreshToken": s.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var refreshed map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &refreshed))
	require.NotEmpty(t, refreshed["accessToken"])
	require.NotContains(t, refreshed, "refreshToken")

	resp, env = c.do(http.MethodPost, "/api/v1/auth/logout", s.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"success":true}`, string(env.Data))

	resp, _ = c.do(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{
		"refreshToken": s.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, env = c.do(http.MethodPost, "/api/v1/auth/logout", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"success":true}`, string(env.Data))
}

func TestLogoutWithRefreshTokenBody(t *testing.T) {
	c := newAPIClient(t, testConfig())
	s := c.signup("Ana", "ana@x.com")

	resp, _ := c.do(http.MethodPost, "/api/v1/auth/logout", "expired-or-garbage", map[string]string{
		"refreshToken": s.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{
		"refreshToken": s.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRotatingRefresh(t *testing.T) {
	cfg := testConfig()
	cfg.RotateRefreshTokens = true
	c := newAPIClient(t, cfg)
	s := c.signup("Ana", "ana@x.com")

	resp, env := c.do(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{
		"refreshToken": s.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var refreshed struct {
		RefreshToken string `json:"refreshToken"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &refreshed))
	require.NotEmpty(t, refreshed.RefreshToken)

	resp, _ = c.do(http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{
		"refreshToken": s.Tokens.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFavoritesOwnership(t *testing.T) {
	c := newAPIClient(t, testConfig())
	ana := c.signup("Ana", "ana@x.com")
	bob := c.signup("Bob", "bob@x.com")

	base := "/api/v1/users/" + ana.User.ID + "/favorites"

	resp, _ := c.do(http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, env := c.do(http.MethodPost, base, ana.Tokens.AccessToken, map[string]string{"propertyId": "p-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.JSONEq(t, `{"propertyId":"p-1"}`, string(env.Data))

	resp, env = c.do(http.MethodGet, base, bob.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "FORBIDDEN", env.Error.Code)

	resp, env = c.do(http.MethodGet, base, ana.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"propertyIds":["p-1"]}`, string(env.Data))

	resp, _ = c.do(http.MethodDelete, base+"/p-1", ana.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, env = c.do(http.MethodGet, base, ana.Tokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"propertyIds":[]}`, string(env.Data))
}

func TestHealth(t *testing.T) {
	a, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	defer a.Close()

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
