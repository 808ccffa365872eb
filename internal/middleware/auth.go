package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"go-realestate/internal/model"
)

type authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (model.PublicUser, error)
}

type contextKey string

const userContextKey contextKey = "auth_user"

type AuthMiddleware struct {
	auth authenticator
}

func NewAuthMiddleware(auth authenticator) *AuthMiddleware {
	return &AuthMiddleware{auth: auth}
}

// RequireAuth rejects the request unless it carries a valid bearer access
// token for an existing user. Missing header, malformed header, bad
// signature, expiry and deleted users all produce the same 401. Any other
// failure is logged and reported as a 500.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "not authorized")
			return
		}

		user, err := m.auth.Authenticate(r.Context(), token)
		if err != nil {
			if isAuthFailure(err) {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "not authorized")
				return
			}
			slog.ErrorContext(r.Context(), "authenticate request", "path", r.URL.Path, "error", err.Error())
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "unexpected server error")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// OptionalAuth attaches the identity when a valid token is present and
// otherwise passes the request through untouched.
func (m *AuthMiddleware) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token, ok := BearerToken(r); ok {
			user, err := m.auth.Authenticate(r.Context(), token)
			switch {
			case err == nil:
				r = r.WithContext(WithUser(r.Context(), user))
			case !isAuthFailure(err):
				slog.WarnContext(r.Context(), "optional authentication failed", "path", r.URL.Path, "error", err.Error())
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (m *AuthMiddleware) RequireRoles(allowedRoles ...model.Role) func(http.Handler) http.Handler {
	roleSet := make(map[model.Role]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		roleSet[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "not authorized")
				return
			}

			if _, allowed := roleSet[user.Role]; !allowed {
				writeError(w, http.StatusForbidden, "FORBIDDEN", "access denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func isAuthFailure(err error) bool {
	return errors.Is(err, model.ErrUnauthorized) ||
		errors.Is(err, model.ErrInvalidToken) ||
		errors.Is(err, model.ErrMissingToken)
}

// BearerToken extracts the token from "Authorization: Bearer <token>". The
// scheme is matched case-insensitively.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	return token, token != ""
}

func WithUser(ctx context.Context, user model.PublicUser) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func UserFromContext(ctx context.Context) (model.PublicUser, bool) {
	user, ok := ctx.Value(userContextKey).(model.PublicUser)
	return user, ok
}
