package middleware

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/finboard/server/internal/auth"
	"github.com/finboard/server/internal/metrics"
	"github.com/finboard/server/internal/model"
)

var suspiciousAgent = regexp.MustCompile(`(?i)bot|crawler|spider|scan|attack|hack|exploit|nikto|sqlmap|nmap`)

// AccessVerifier validates access tokens without touching storage
type AccessVerifier interface {
	VerifyAccessToken(tokenString string) (*auth.Claims, error)
}

// SecurityLogger flags scanner user agents and admin path probes. It never blocks.
func SecurityLogger(verifier AccessVerifier, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua := r.UserAgent()
			if suspiciousAgent.MatchString(ua) {
				m.Suspicious()
				logger.WarnContext(r.Context(), "suspicious user agent",
					"ip", ClientIP(r), "method", r.Method, "path", r.URL.Path, "user_agent", ua)
			}

			if strings.Contains(r.URL.Path, "/admin") && !hasAdminToken(verifier, r) {
				logger.WarnContext(r.Context(), "admin path access without admin token",
					"ip", ClientIP(r), "method", r.Method, "path", r.URL.Path, "user_agent", ua)
			}

			next.ServeHTTP(w, r)
		})
	}
}

func hasAdminToken(verifier AccessVerifier, r *http.Request) bool {
	token, ok := bearerToken(r)
	if !ok {
		return false
	}
	claims, err := verifier.VerifyAccessToken(token)
	if err != nil {
		return false
	}
	return claims.Role == model.RoleAdmin
}
