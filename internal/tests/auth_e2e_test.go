package tests

import (
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finboard/server/internal/auth"
)

// TestPasswordResetRevokesSessions covers forgot-password through reset: the reset token is
// single use and every refresh token issued before the reset stops working.
func TestPasswordResetRevokesSessions(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "Bruno Costa", "bruno@example.com", "")

	status, session := ts.login(t, "bruno@example.com", testPassword)
	require.Equal(t, http.StatusOK, status)

	status, known := ts.call(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "bruno@example.com"})
	require.Equal(t, http.StatusOK, status)
	status, unknown := ts.call(t, http.MethodPost, "/auth/forgot-password", "", map[string]string{"email": "ghost@example.com"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, known, unknown)
	assert.Equal(t, auth.ForgotPasswordMessage, known.Message)

	ts.Service.Drain()
	resetToken := ts.Notifier.token("bruno@example.com")
	require.NotEmpty(t, resetToken)
	assert.Empty(t, ts.Notifier.token("ghost@example.com"))

	var stored int
	require.NoError(t, ts.DB.QueryRowContext(t.Context(),
		`SELECT count(*) FROM password_resets WHERE token_hash = $1`, auth.HashToken(resetToken)).Scan(&stored))
	assert.Equal(t, 1, stored, "only the hash of the reset token is stored")

	status, env := ts.call(t, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"token": resetToken, "newPassword": "weak",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.False(t, env.Success)

	status, _ = ts.call(t, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"token": resetToken, "newPassword": "R3set!Password",
	})
	require.Equal(t, http.StatusOK, status)

	status, _ = ts.call(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": session.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = ts.call(t, http.MethodPost, "/auth/reset-password", "", map[string]string{
		"token": resetToken, "newPassword": "An0ther!Password",
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "Invalid or expired reset token", env.Message)

	status, _ = ts.login(t, "bruno@example.com", testPassword)
	assert.Equal(t, http.StatusUnauthorized, status)
	status, _ = ts.login(t, "bruno@example.com", "R3set!Password")
	assert.Equal(t, http.StatusOK, status)
}

// TestConcurrentLogins checks that parallel logins of one user all succeed and leave
// exactly one usable refresh token behind.
func TestConcurrentLogins(t *testing.T) {
	ts := newTestServer(t)
	ts.register(t, "Carla Dias", "carla@example.com", "")

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sessions []sessionBody
		statuses []int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, session := ts.login(t, "carla@example.com", testPassword)
			mu.Lock()
			defer mu.Unlock()
			statuses = append(statuses, status)
			sessions = append(sessions, session)
		}()
	}
	wg.Wait()

	for _, status := range statuses {
		require.Equal(t, http.StatusOK, status)
	}

	var rows int
	require.NoError(t, ts.DB.QueryRowContext(t.Context(), `SELECT count(*) FROM refresh_tokens`).Scan(&rows))
	assert.Equal(t, 1, rows)

	valid := 0
	for _, s := range sessions {
		status, _ := ts.call(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": s.RefreshToken})
		if status == http.StatusOK {
			valid++
		}
	}
	assert.Equal(t, 1, valid, "only the last stored refresh token stays valid")
}

func TestAdminUserManagement(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.register(t, "Root Admin", "admin@example.com", "admin")
	member := ts.register(t, "Dora Eva", "dora@example.com", "")

	_, adminSession := ts.login(t, "admin@example.com", testPassword)
	status, memberSession := ts.login(t, "dora@example.com", testPassword)
	require.Equal(t, http.StatusOK, status)

	t.Run("non admin is refused", func(t *testing.T) {
		status, env := ts.call(t, http.MethodPatch, "/admin/users/"+admin.ID+"/role", memberSession.AccessToken, map[string]string{"role": "user"})
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Insufficient permissions", env.Message)
	})

	t.Run("suspend revokes sessions", func(t *testing.T) {
		status, _ := ts.call(t, http.MethodPatch, "/admin/users/"+member.ID+"/status", adminSession.AccessToken, map[string]string{"status": "suspended"})
		require.Equal(t, http.StatusOK, status)

		status, _ = ts.call(t, http.MethodPost, "/auth/refresh", "", map[string]string{"refreshToken": memberSession.RefreshToken})
		assert.Equal(t, http.StatusUnauthorized, status)

		status, env := ts.call(t, http.MethodGet, "/auth/profile", memberSession.AccessToken, nil)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, "Account is disabled", env.Message)

		status, _ = ts.login(t, "dora@example.com", testPassword)
		assert.Equal(t, http.StatusForbidden, status)

		status, _ = ts.call(t, http.MethodPatch, "/admin/users/"+member.ID+"/status", adminSession.AccessToken, map[string]string{"status": "active"})
		require.Equal(t, http.StatusOK, status)
		status, _ = ts.login(t, "dora@example.com", testPassword)
		assert.Equal(t, http.StatusOK, status)
	})

	t.Run("role change", func(t *testing.T) {
		status, _ := ts.call(t, http.MethodPatch, "/admin/users/"+member.ID+"/role", adminSession.AccessToken, map[string]string{"role": "manager"})
		require.Equal(t, http.StatusOK, status)

		_, session := ts.login(t, "dora@example.com", testPassword)
		status, env := ts.call(t, http.MethodGet, "/auth/profile", session.AccessToken, nil)
		require.Equal(t, http.StatusOK, status)
		var data struct {
			User userBody `json:"user"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &data))
		assert.Equal(t, "manager", data.User.Role)

		status, _ = ts.call(t, http.MethodPatch, "/admin/users/"+member.ID+"/role", adminSession.AccessToken, map[string]string{"role": "owner"})
		assert.Equal(t, http.StatusBadRequest, status)
	})

	t.Run("delete", func(t *testing.T) {
		status, _ := ts.call(t, http.MethodDelete, "/admin/users/"+admin.ID, adminSession.AccessToken, nil)
		assert.Equal(t, http.StatusBadRequest, status, "admins cannot delete themselves")

		status, _ = ts.call(t, http.MethodDelete, "/admin/users/"+member.ID, adminSession.AccessToken, nil)
		require.Equal(t, http.StatusOK, status)

		status, _ = ts.login(t, "dora@example.com", testPassword)
		assert.Equal(t, http.StatusUnauthorized, status)

		status, _ = ts.call(t, http.MethodDelete, "/admin/users/"+member.ID, adminSession.AccessToken, nil)
		assert.Equal(t, http.StatusNotFound, status)

		// the email can be registered again once the account is deleted
		ts.register(t, "Dora Eva", "dora@example.com", "")
	})
}
