package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finboard/server/internal/metrics"
)

func TestLooksLikeSQLInjection(t *testing.T) {
	suspicious := []string{
		"Robert'); DROP TABLE users;--",
		"admin'--",
		"1 OR 1=1; --",
		"x' or '1'='1",
		"' UNION SELECT password FROM users",
		"union all select 1",
		"select * from accounts where id = 1",
		"insert into users values (1)",
		"DELETE FROM users",
		"update users set role",
		"create database evil",
		"alter table users",
		"truncate table users",
		"exec xp_cmdshell",
		"%27%20or%201",
		"#comment",
	}
	for _, s := range suspicious {
		assert.True(t, LooksLikeSQLInjection(s), s)
	}

	clean := []string{
		"Ana Souza",
		"ana.souza@example.com",
		"Quarterly revenue 2026",
		"550e8400-e29b-41d4-a716-446655440000",
	}
	for _, s := range clean {
		assert.False(t, LooksLikeSQLInjection(s), s)
	}
}

func TestSQLGuard_Inspect(t *testing.T) {
	m := metrics.New()
	g := NewSQLGuard(discardLogger, m)
	s := NewSanitizer(discardLogger, m)

	tests := []struct {
		name       string
		target     string
		body       string
		wantStatus int
	}{
		{name: "clean body", target: "/auth/register", body: `{"name":"Ana","email":"ana@example.com"}`, wantStatus: http.StatusOK},
		{name: "injected body", target: "/auth/register", body: `{"name":"Robert'); DROP TABLE users;--"}`, wantStatus: http.StatusBadRequest},
		{name: "injected nested", target: "/auth/register", body: `{"profile":{"bio":["ok","1 UNION SELECT 2"]}}`, wantStatus: http.StatusBadRequest},
		{name: "injected query", target: "/api/info?sort=name%27--", wantStatus: http.StatusBadRequest},
		{name: "credential fields skipped", target: "/auth/login", body: `{"email":"ana@example.com","password":"P4ss'--word#"}`, wantStatus: http.StatusOK},
		{name: "refresh token skipped", target: "/auth/refresh", body: `{"refreshToken":"eyJ--abc#x"}`, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &okHandler{}
			for _, handler := range []http.Handler{g.Inspect(next), s.Sanitize(g.Inspect(next))} {
				method := http.MethodPost
				if tt.body == "" {
					method = http.MethodGet
				}
				rec := httptest.NewRecorder()
				handler.ServeHTTP(rec, newRequest(method, tt.target, tt.body))

				require.Equal(t, tt.wantStatus, rec.Code)
				if tt.wantStatus == http.StatusBadRequest {
					assert.Equal(t, "Invalid request", decodeEnvelope(t, rec).Message)
				}
			}
		})
	}
	assert.Equal(t, 6.0, testutil.ToFloat64(m.Rejections.WithLabelValues(metrics.StageSQLInjection)))
}

func TestSQLGuard_InspectRefusesNonJSONBody(t *testing.T) {
	m := metrics.New()
	next := &okHandler{}
	req := newRequest(http.MethodPost, "/auth/register", `{"name":"Robert'); DROP TABLE users;--"}`)
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()

	NewSQLGuard(discardLogger, m).Inspect(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Zero(t, next.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejections.WithLabelValues(metrics.StageMediaType)))
}

func TestSQLGuard_InspectParams(t *testing.T) {
	g := NewSQLGuard(discardLogger, nil)
	r := chi.NewRouter()
	r.With(g.InspectParams).Delete("/admin/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, newRequest(http.MethodDelete, "/admin/users/550e8400-e29b-41d4-a716-446655440000", ""))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, newRequest(http.MethodDelete, "/admin/users/1%27%20OR%201=1", ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
