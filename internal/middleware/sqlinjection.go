package middleware

import (
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"

	"github.com/finboard/server/internal/metrics"
	"github.com/finboard/server/internal/respond"
)

// sqlInjectionPatterns is a heuristic screen. Parameterized queries are the real defence.
var sqlInjectionPatterns = compileAll(
	`(%27)|(')|(--)|(%23)|(#)`,
	`((%3D)|(=))[^\n]*((%27)|(')|(--)|(%3B)|(;))`,
	`\w*((%27)|('))((%6F)|o|(%4F))((%72)|r|(%52))`,
	`((%27)|('))union`,
	`exec(\s|\+)+(s|x)p\w+`,
	`UNION(?:\s+ALL)?\s+SELECT`,
	`SELECT.*FROM.*WHERE`,
	`INSERT\s+INTO`,
	`DELETE\s+FROM`,
	`UPDATE.*SET`,
	`CREATE\s+(TABLE|DATABASE)`,
	`DROP\s+(TABLE|DATABASE)`,
	`ALTER\s+TABLE`,
	`TRUNCATE\s+TABLE`,
)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// LooksLikeSQLInjection reports whether s matches any injection pattern
func LooksLikeSQLInjection(s string) bool {
	for _, re := range sqlInjectionPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// SQLGuard rejects requests carrying SQL injection patterns
type SQLGuard struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewSQLGuard creates a new SQLGuard
func NewSQLGuard(logger *slog.Logger, m *metrics.Metrics) *SQLGuard {
	return &SQLGuard{logger: logger, metrics: m}
}

// Inspect checks every string in the JSON body and the query. Credential fields are skipped.
func (g *SQLGuard) Inspect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := payloadFrom(r.Context())
		if !ok {
			var err error
			if p, err = readPayload(r); err != nil {
				failPayload(w, r, err, g.logger, g.metrics)
				return
			}
		}

		clean := walkStrings(p.body, "", func(key, value string) bool {
			return credentialFields[key] || !LooksLikeSQLInjection(value)
		})
		if clean {
			for k, vs := range p.query {
				if credentialFields[k] {
					continue
				}
				for _, v := range vs {
					if LooksLikeSQLInjection(v) {
						clean = false
					}
				}
			}
		}

		if !clean {
			g.reject(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// InspectParams checks chi URL parameters; it runs inline on parameterized routes.
func (g *SQLGuard) InspectParams(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for _, v := range rctx.URLParams.Values {
				if LooksLikeSQLInjection(v) {
					g.reject(w, r)
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (g *SQLGuard) reject(w http.ResponseWriter, r *http.Request) {
	g.metrics.Reject(metrics.StageSQLInjection)
	g.logger.WarnContext(r.Context(), "possible SQL injection attempt",
		"ip", ClientIP(r), "method", r.Method, "url", r.URL.String(), "user_agent", r.UserAgent())
	respond.Fail(w, http.StatusBadRequest, msgInvalidRequest)
}
