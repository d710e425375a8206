package middleware

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/finboard/server/internal/metrics"
	"github.com/finboard/server/internal/respond"
)

const (
	minUserAgentLength = 10
	msgInvalidRequest  = "Invalid request"
	msgPayloadTooLarge = "Payload too large"
)

// ClientIP returns the client address without port. chi's RealIP runs first, so
// X-Forwarded-For / X-Real-IP are already reflected in RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// BodyLimit rejects requests whose declared length exceeds max and caps undeclared bodies
func BodyLimit(max int64, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > max {
				m.Reject(metrics.StagePayloadSize)
				logger.WarnContext(r.Context(), "payload too large",
					"ip", ClientIP(r), "path", r.URL.Path, "content_length", r.ContentLength)
				respond.Fail(w, http.StatusRequestEntityTooLarge, msgPayloadTooLarge)
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, max)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ValidateUserAgent rejects requests without a plausible User-Agent
func ValidateUserAgent(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua := strings.TrimSpace(r.UserAgent())
			if len(ua) < minUserAgentLength {
				m.Reject(metrics.StageUserAgent)
				logger.WarnContext(r.Context(), "invalid user agent",
					"ip", ClientIP(r), "path", r.URL.Path, "user_agent", ua)
				respond.Fail(w, http.StatusBadRequest, msgInvalidRequest)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isMaxBytesError(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
