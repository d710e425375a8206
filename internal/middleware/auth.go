package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/finboard/server/internal/apperr"
	"github.com/finboard/server/internal/auth"
	"github.com/finboard/server/internal/metrics"
	"github.com/finboard/server/internal/model"
	"github.com/finboard/server/internal/respond"
)

type contextKey string

const userKey contextKey = "user"

// Authenticator resolves an access token to its active account
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (model.User, error)
}

// Authenticate requires a valid Bearer access token and attaches the user to the context
func Authenticate(authenticator Authenticator, translator *respond.Translator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r)
			if !ok {
				translator.Error(w, r, apperr.Authentication("Access token required"))
				return
			}

			user, err := authenticator.Authenticate(r.Context(), tokenString)
			if err != nil {
				if errors.Is(err, auth.ErrExpiredToken) {
					w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="token expired"`)
				}
				translator.Error(w, r, err)
				return
			}

			ctx := withUser(r.Context(), &user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects users below min in the user < manager < admin hierarchy
func RequireRole(min model.Role, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := GetUser(r.Context())
			if !ok {
				respond.Fail(w, http.StatusUnauthorized, "Authentication required")
				return
			}
			if user.Role.Level() < min.Level() {
				m.Reject(metrics.StageRole)
				logger.WarnContext(r.Context(), "insufficient role",
					"user_id", user.ID, "role", user.Role, "required", min, "path", r.URL.Path, "ip", ClientIP(r))
				respond.Fail(w, http.StatusForbidden, "Insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetUser returns the user attached to the request context (set by Authenticate)
func GetUser(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

func withUser(ctx context.Context, user *model.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
