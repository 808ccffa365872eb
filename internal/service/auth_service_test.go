package service

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"go-realestate/internal/event"
	"go-realestate/internal/model"
	"go-realestate/internal/repository"
	"go-realestate/internal/token"
	"go-realestate/pkg/apierror"
)

type authFixture struct {
	service *AuthService
	users   *repository.MemoryUserRepository
	tokens  *token.Service
}

func newAuthFixture(t *testing.T, rotate bool) authFixture {
	t.Helper()

	tokens, err := token.NewService("test-secret", 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)

	users := repository.NewMemoryUserRepository()
	return authFixture{
		service: NewAuthService(NewCredentialStore(users), tokens, rotate),
		users:   users,
		tokens:  tokens,
	}
}

func requireAPIError(t *testing.T, err error, code string, status int) *apierror.APIError {
	t.Helper()

	var apiErr *apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, code, apiErr.Code)
	require.Equal(t, status, apiErr.HTTPStatus)
	return apiErr
}

var ana = model.SignupRequest{Name: "Ana", Email: "ana@x.com", Password: "password123"}

func TestSignupSigninMeScenario(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)
	ctx := context.Background()

	signup, err := f.service.Signup(ctx, ana)
	require.NoError(t, err)
	require.Equal(t, "Ana", signup.User.Name)
	require.Equal(t, "ana@x.com", signup.User.Email)
	require.Equal(t, model.RoleUser, signup.User.Role)
	require.NotEmpty(t, signup.Tokens.AccessToken)
	require.NotEmpty(t, signup.Tokens.RefreshToken)
	require.Equal(t, "Bearer", signup.Tokens.TokenType)
	require.Equal(t, int64(900), signup.Tokens.ExpiresIn)

	stored, err := f.users.FindByID(ctx, signup.User.ID, true)
	require.NoError(t, err)
	require.Equal(t, signup.Tokens.RefreshToken, stored.RefreshToken)

	signin, err := f.service.Signin(ctx, model.SigninRequest{Email: "ana@x.com", Password: "password123"})
	require.NoError(t, err)
	require.Equal(t, signup.User, signin.User)

	_, err = f.service.Signin(ctx, model.SigninRequest{Email: "ana@x.com", Password: "wrong"})
	requireAPIError(t, err, apierror.CodeInvalidCredentials, http.StatusUnauthorized)
	require.ErrorIs(t, err, model.ErrInvalidCredentials)

	me, err := f.service.Authenticate(ctx, signin.Tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, model.PublicUser{ID: signup.User.ID, Name: "Ana", Email: "ana@x.com", Role: model.RoleUser}, me)
}

func TestSignupDuplicateEmail(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)
	ctx := context.Background()

	first, err := f.service.Signup(ctx, ana)
	require.NoError(t, err)

	_, err = f.service.Signup(ctx, model.SignupRequest{Name: "Other", Email: "ana@x.com", Password: "different1"})
	requireAPIError(t, err, apierror.CodeDuplicateEmail, http.StatusBadRequest)
	require.ErrorIs(t, err, model.ErrDuplicateEmail)

	stored, err := f.users.FindByEmail(ctx, "ana@x.com", true)
	require.NoError(t, err)
	require.Equal(t, first.User.ID, stored.ID)
	require.Equal(t, "Ana", stored.Name)
	require.Equal(t, first.Tokens.RefreshToken, stored.RefreshToken)
}

func TestSignupValidation(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)

	cases := []struct {
		name   string
		req    model.SignupRequest
		fields []string
	}{
		{name: "all missing", req: model.SignupRequest{}, fields: []string{"name", "email", "password"}},
		{name: "bad email", req: model.SignupRequest{Name: "Ana", Email: "ana-at-x", Password: "password123"}, fields: []string{"email"}},
		{name: "short password", req: model.SignupRequest{Name: "Ana", Email: "ana@x.com", Password: "abc"}, fields: []string{"password"}},
		{name: "blank name", req: model.SignupRequest{Name: "   ", Email: "ana@x.com", Password: "password123"}, fields: []string{"name"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.Signup(context.Background(), tc.req)
			apiErr := requireAPIError(t, err, apierror.CodeValidation, http.StatusBadRequest)
			require.ErrorIs(t, err, model.ErrValidation)
			require.Len(t, apiErr.Fields, len(tc.fields))
			for _, field := range tc.fields {
				assert.Contains(t, apiErr.Fields, field)
			}
		})
	}
}

func TestSigninFailureIsUniform(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)
	ctx := context.Background()

	_, err := f.service.Signup(ctx, ana)
	require.NoError(t, err)

	_, unknownErr := f.service.Signin(ctx, model.SigninRequest{Email: "nobody@x.com", Password: "password123"})
	_, wrongErr := f.service.Signin(ctx, model.SigninRequest{Email: "ana@x.com", Password: "wrong-password"})

	unknown := requireAPIError(t, unknownErr, apierror.CodeInvalidCredentials, http.StatusUnauthorized)
	wrong := requireAPIError(t, wrongErr, apierror.CodeInvalidCredentials, http.StatusUnauthorized)
	require.Equal(t, unknown.Message, wrong.Message)
	require.Equal(t, unknown.Error(), wrong.Error())
}

func TestSigninRequiresFields(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)

	_, err := f.service.Signin(context.Background(), model.SigninRequest{Email: " "})
	apiErr := requireAPIError(t, err, apierror.CodeValidation, http.StatusBadRequest)
	require.Contains(t, apiErr.Fields, "email")
	require.Contains(t, apiErr.Fields, "password")
}

func TestRefreshTokenSingleValidity(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)
	ctx := context.Background()

	_, err := f.service.Signup(ctx, ana)
	require.NoError(t, err)

	first, err := f.service.Signin(ctx, model.SigninRequest{Email: ana.Email, Password: ana.Password})
	require.NoError(t, err)
	second, err := f.service.Signin(ctx, model.SigninRequest{Email: ana.Email, Password: ana.Password})
	require.NoError(t, err)
	require.NotEqual(t, first.Tokens.RefreshToken, second.Tokens.RefreshToken)

	_, err = f.service.Refresh(ctx, first.Tokens.RefreshToken)
	requireAPIError(t, err, apierror.CodeUnauthorized, http.StatusUnauthorized)
	require.ErrorIs(t, err, model.ErrInvalidToken)

	refreshed, err := f.service.Refresh(ctx, second.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, refreshed.AccessToken)
	require.Empty(t, refreshed.RefreshToken)

	me, err := f.service.Authenticate(ctx, refreshed.AccessToken)
	require.NoError(t, err)
	require.Equal(t, second.User.ID, me.ID)
}

func TestRefreshRejections(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)
	ctx := context.Background()

	session, err := f.service.Signup(ctx, ana)
	require.NoError(t, err)

	t.Run("missing token", func(t *testing.T) {
		_, err := f.service.Refresh(ctx, "  ")
		requireAPIError(t, err, apierror.CodeUnauthorized, http.StatusUnauthorized)
		require.ErrorIs(t, err, model.ErrMissingToken)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := f.service.Refresh(ctx, "garbage")
		requireAPIError(t, err, apierror.CodeUnauthorized, http.StatusUnauthorized)
		require.ErrorIs(t, err, model.ErrInvalidToken)
	})

	t.Run("access token presented as refresh token", func(t *testing.T) {
		_, err := f.service.Refresh(ctx, session.Tokens.AccessToken)
		requireAPIError(t, err, apierror.CodeUnauthorized, http.StatusUnauthorized)
		require.ErrorIs(t, err, model.ErrInvalidToken)
	})

	t.Run("missing and invalid share one message", func(t *testing.T) {
		_, missingErr := f.service.Refresh(ctx, "")
		_, invalidErr := f.service.Refresh(ctx, "garbage")
		require.Equal(t, missingErr.Error(), invalidErr.Error())
	})
}

func TestRefreshWithoutRotationKeepsToken(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)
	ctx := context.Background()

	session, err := f.service.Signup(ctx, ana)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.service.Refresh(ctx, session.Tokens.RefreshToken)
		require.NoError(t, err)
	}

	stored, err := f.users.FindByID(ctx, session.User.ID, true)
	require.NoError(t, err)
	require.Equal(t, session.Tokens.RefreshToken, stored.RefreshToken)
}

func TestRefreshWithRotation(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, true)
	ctx := context.Background()

	session, err := f.service.Signup(ctx, ana)
	require.NoError(t, err)

	rotated, err := f.service.Refresh(ctx, session.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NotEmpty(t, rotated.RefreshToken)
	require.NotEqual(t, session.Tokens.RefreshToken, rotated.RefreshToken)

	_, err = f.service.Refresh(ctx, session.Tokens.RefreshToken)
	requireAPIError(t, err, apierror.CodeUnauthorized, http.StatusUnauthorized)

	again, err := f.service.Refresh(ctx, rotated.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, rotated.RefreshToken, again.RefreshToken)
}

func TestLogout(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)
	ctx := context.Background()

	session, err := f.service.Signup(ctx, ana)
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, session.User.ID))
	require.NoError(t, f.service.Logout(ctx, session.User.ID))
	require.NoError(t, f.service.Logout(ctx, "unknown-user"))

	_, err = f.service.Refresh(ctx, session.Tokens.RefreshToken)
	requireAPIError(t, err, apierror.CodeUnauthorized, http.StatusUnauthorized)

	// Access tokens are not revoked; they run out on their own.
	_, err = f.service.Authenticate(ctx, session.Tokens.AccessToken)
	require.NoError(t, err)
}

func TestLogoutWithRefreshToken(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)
	ctx := context.Background()

	session, err := f.service.Signup(ctx, ana)
	require.NoError(t, err)

	require.NoError(t, f.service.LogoutWithRefreshToken(ctx, "garbage"))
	require.NoError(t, f.service.LogoutWithRefreshToken(ctx, session.Tokens.AccessToken))

	stored, err := f.users.FindByID(ctx, session.User.ID, true)
	require.NoError(t, err)
	require.Equal(t, session.Tokens.RefreshToken, stored.RefreshToken)

	require.NoError(t, f.service.LogoutWithRefreshToken(ctx, session.Tokens.RefreshToken))

	stored, err = f.users.FindByID(ctx, session.User.ID, true)
	require.NoError(t, err)
	require.Empty(t, stored.RefreshToken)
}

func TestAuthenticateRejections(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)
	ctx := context.Background()

	session, err := f.service.Signup(ctx, ana)
	require.NoError(t, err)

	_, err = f.service.Authenticate(ctx, session.Tokens.RefreshToken)
	requireAPIError(t, err, apierror.CodeUnauthorized, http.StatusUnauthorized)

	f.users.Delete(ctx, session.User.ID)
	_, err = f.service.Authenticate(ctx, session.Tokens.AccessToken)
	requireAPIError(t, err, apierror.CodeUnauthorized, http.StatusUnauthorized)
}

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) Create(ctx context.Context, u model.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockUserStore) FindByEmail(ctx context.Context, email string, includeSecrets bool) (model.User, error) {
	args := m.Called(ctx, email, includeSecrets)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *mockUserStore) FindByID(ctx context.Context, id string, includeSecrets bool) (model.User, error) {
	args := m.Called(ctx, id, includeSecrets)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *mockUserStore) SetRefreshToken(ctx context.Context, userID string, token string) error {
	args := m.Called(ctx, userID, token)
	return args.Error(0)
}

func (m *mockUserStore) SwapRefreshToken(ctx context.Context, userID string, current string, next string) (bool, error) {
	args := m.Called(ctx, userID, current, next)
	return args.Bool(0), args.Error(1)
}

func TestStoreFailuresAreNotClassifiedAsAuthErrors(t *testing.T) {
	t.Parallel()

	tokens, err := token.NewService("test-secret", 15*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)

	dbErr := errors.New("connection reset by peer")
	store := &mockUserStore{}
	store.On("FindByEmail", mock.Anything, "ana@x.com", true).Return(model.User{}, dbErr)
	store.On("SetRefreshToken", mock.Anything, "u1", "").Return(dbErr)

	svc := NewAuthService(NewCredentialStore(store), tokens, false)

	_, err = svc.Signin(context.Background(), model.SigninRequest{Email: "ana@x.com", Password: "password123"})
	require.ErrorIs(t, err, dbErr)
	var apiErr *apierror.APIError
	require.False(t, errors.As(err, &apiErr))

	err = svc.Logout(context.Background(), "u1")
	require.ErrorIs(t, err, dbErr)

	store.AssertExpectations(t)
}

func TestSessionEventsArePublished(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)
	ctx := context.Background()

	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	f.service.SetEvents(bus)

	session, err := f.service.Signup(ctx, ana)
	require.NoError(t, err)
	_, err = f.service.Signin(ctx, model.SigninRequest{Email: ana.Email, Password: "wrong"})
	require.Error(t, err)
	_, err = f.service.Refresh(ctx, session.Tokens.RefreshToken)
	require.NoError(t, err)
	require.NoError(t, f.service.Logout(ctx, session.User.ID))

	want := []event.Type{
		event.TypeUserSignedUp,
		event.TypeSigninRejected,
		event.TypeTokenRefreshed,
		event.TypeUserLoggedOut,
	}
	for _, typ := range want {
		e := <-events
		require.Equal(t, typ, e.Type)
		require.Equal(t, session.User.ID, e.UserID)
	}
}
