package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"go-realestate/internal/event"
	"go-realestate/internal/model"
	"go-realestate/internal/token"
	"go-realestate/pkg/apierror"
)

const (
	minPasswordLength = 6
	maxPasswordLength = 72
)

var emailPattern = regexp.MustCompile(`^\w+([\.-]?\w+)*@\w+([\.-]?\w+)*(\.\w{2,3})+$`)

// dummyHash is compared against when the email is unknown so that a missing
// account costs the same bcrypt work as a wrong password.
var dummyHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("placeholder-password"), PasswordCost)
	if err != nil {
		panic(fmt.Sprintf("generate placeholder hash: %v", err))
	}
	return hash
})

func invalidCredentials() error {
	return apierror.Wrap(model.ErrInvalidCredentials, apierror.CodeInvalidCredentials, "invalid email or password", http.StatusUnauthorized)
}

// AuthService runs the session lifecycle: signup, signin, refresh, me and
// logout. Each user holds at most one refresh token; a new signin overwrites
// the previous one.
type AuthService struct {
	credentials   *CredentialStore
	tokens        *token.Service
	rotateRefresh bool
	events        event.Publisher
}

func NewAuthService(credentials *CredentialStore, tokens *token.Service, rotateRefresh bool) *AuthService {
	return &AuthService{
		credentials:   credentials,
		tokens:        tokens,
		rotateRefresh: rotateRefresh,
	}
}

// SetEvents makes the service publish session events to p.
func (s *AuthService) SetEvents(p event.Publisher) {
	s.events = p
}

func (s *AuthService) publish(t event.Type, userID string) {
	if s.events != nil {
		s.events.Publish(event.Event{Type: t, UserID: userID})
	}
}

func (s *AuthService) Signup(ctx context.Context, req model.SignupRequest) (model.AuthResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)

	if err := validateSignup(req); err != nil {
		return model.AuthResult{}, err
	}

	user, err := s.credentials.Create(ctx, req.Name, req.Email, req.Password)
	if errors.Is(err, model.ErrDuplicateEmail) {
		return model.AuthResult{}, apierror.Wrap(err, apierror.CodeDuplicateEmail, "email already registered", http.StatusBadRequest)
	}
	if err != nil {
		return model.AuthResult{}, err
	}

	result, err := s.startSession(ctx, user)
	if err != nil {
		return model.AuthResult{}, err
	}

	s.publish(event.TypeUserSignedUp, user.ID)
	return result, nil
}

func (s *AuthService) Signin(ctx context.Context, req model.SigninRequest) (model.AuthResult, error) {
	req.Email = strings.TrimSpace(req.Email)

	fields := map[string]string{}
	if req.Email == "" {
		fields["email"] = "email is required"
	}
	if req.Password == "" {
		fields["password"] = "password is required"
	}
	if len(fields) > 0 {
		return model.AuthResult{}, apierror.Validation(model.ErrValidation, fields)
	}

	user, err := s.credentials.FindByEmail(ctx, req.Email, true)
	if isNotFound(err) {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(req.Password))
		s.publish(event.TypeSigninRejected, "")
		return model.AuthResult{}, invalidCredentials()
	}
	if err != nil {
		return model.AuthResult{}, err
	}

	if !s.credentials.VerifyPassword(user, req.Password) {
		s.publish(event.TypeSigninRejected, user.ID)
		return model.AuthResult{}, invalidCredentials()
	}

	result, err := s.startSession(ctx, user)
	if err != nil {
		return model.AuthResult{}, err
	}

	s.publish(event.TypeUserSignedIn, user.ID)
	return result, nil
}

// Refresh exchanges a refresh token for a new access token. The presented
// token must be the one currently stored for its subject; anything else was
// rotated out, superseded by a later signin, or never issued here.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (model.RefreshResult, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return model.RefreshResult{}, apierror.Unauthorized(model.ErrMissingToken)
	}

	claims, err := s.tokens.VerifyKind(refreshToken, model.TokenKindRefresh)
	if err != nil {
		return model.RefreshResult{}, apierror.Unauthorized(err)
	}

	user, err := s.credentials.FindByID(ctx, claims.UserID, true)
	if isNotFound(err) {
		return model.RefreshResult{}, apierror.Unauthorized(model.ErrInvalidToken)
	}
	if err != nil {
		return model.RefreshResult{}, err
	}

	if subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(refreshToken)) != 1 {
		s.publish(event.TypeRefreshRejected, user.ID)
		return model.RefreshResult{}, apierror.Unauthorized(model.ErrInvalidToken)
	}

	access, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return model.RefreshResult{}, err
	}

	result := model.RefreshResult{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.tokens.AccessTTL().Seconds()),
	}

	if s.rotateRefresh {
		next, err := s.tokens.IssueRefreshToken(user.ID)
		if err != nil {
			return model.RefreshResult{}, err
		}
		err = s.credentials.RotateRefreshToken(ctx, user.ID, refreshToken, next)
		if errors.Is(err, model.ErrInvalidToken) {
			s.publish(event.TypeRefreshRejected, user.ID)
			return model.RefreshResult{}, apierror.Unauthorized(err)
		}
		if err != nil {
			return model.RefreshResult{}, err
		}
		result.RefreshToken = next
		s.publish(event.TypeRefreshRotated, user.ID)
		return result, nil
	}

	s.publish(event.TypeTokenRefreshed, user.ID)
	return result, nil
}

// Authenticate resolves an access token to the user it names. Every failure
// is reported as the same Unauthorized error.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (model.PublicUser, error) {
	claims, err := s.tokens.VerifyKind(accessToken, model.TokenKindAccess)
	if err != nil {
		return model.PublicUser{}, apierror.Unauthorized(err)
	}

	return s.Me(ctx, claims.UserID)
}

func (s *AuthService) Me(ctx context.Context, userID string) (model.PublicUser, error) {
	user, err := s.credentials.FindByID(ctx, userID, false)
	if isNotFound(err) {
		return model.PublicUser{}, apierror.Unauthorized(model.ErrUnauthorized)
	}
	if err != nil {
		return model.PublicUser{}, err
	}

	return user.Public(), nil
}

// Logout clears the stored refresh token. It is idempotent and succeeds for
// users without a session.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	if err := s.credentials.SetRefreshToken(ctx, userID, ""); err != nil && !isNotFound(err) {
		return err
	}

	s.publish(event.TypeUserLoggedOut, userID)
	return nil
}

// LogoutWithRefreshToken is the fallback when no valid access token came
// with the logout call. Unknown or stale tokens are ignored.
func (s *AuthService) LogoutWithRefreshToken(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.VerifyKind(strings.TrimSpace(refreshToken), model.TokenKindRefresh)
	if err != nil {
		return nil
	}

	user, err := s.credentials.FindByID(ctx, claims.UserID, true)
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(user.RefreshToken), []byte(refreshToken)) != 1 {
		return nil
	}

	return s.Logout(ctx, user.ID)
}

func (s *AuthService) startSession(ctx context.Context, user model.User) (model.AuthResult, error) {
	access, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return model.AuthResult{}, err
	}

	refresh, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return model.AuthResult{}, err
	}

	if err := s.credentials.SetRefreshToken(ctx, user.ID, refresh); err != nil {
		return model.AuthResult{}, err
	}

	return model.AuthResult{
		User: user.Public(),
		Tokens: model.TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    "Bearer",
			ExpiresIn:    int64(s.tokens.AccessTTL().Seconds()),
		},
	}, nil
}

func validateSignup(req model.SignupRequest) error {
	fields := map[string]string{}

	if req.Name == "" {
		fields["name"] = "name is required"
	}

	switch {
	case req.Email == "":
		fields["email"] = "email is required"
	case !emailPattern.MatchString(req.Email):
		fields["email"] = "email is not valid"
	}

	switch {
	case req.Password == "":
		fields["password"] = "password is required"
	case len(req.Password) < minPasswordLength:
		fields["password"] = fmt.Sprintf("password must be at least %d characters", minPasswordLength)
	case len(req.Password) > maxPasswordLength:
		fields["password"] = fmt.Sprintf("password must be at most %d bytes", maxPasswordLength)
	}

	if len(fields) > 0 {
		return apierror.Validation(model.ErrValidation, fields)
	}
	return nil
}
