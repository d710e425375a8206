package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finboard/server/internal/model"
)

const (
	testAccessSecret  = "test-access-secret-at-least-32-characters"
	testRefreshSecret = "test-refresh-secret-at-least-32-characters"
)

func newTestTokenService(now func() time.Time) *TokenService {
	s := NewTokenService(TokenConfig{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
	})
	if now != nil {
		s.now = now
	}
	return s
}

func testIdentity() Identity {
	return Identity{UserID: uuid.New(), Email: "ana@example.com", Role: model.RoleManager}
}

func TestTokenService_AccessRoundTrip(t *testing.T) {
	s := newTestTokenService(nil)
	id := testIdentity()

	token, exp, err := s.IssueAccessToken(id)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), exp, 5*time.Second)

	claims, err := s.VerifyAccessToken(token)
	require.NoError(t, err)
	got, err := claims.Identity()
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestTokenService_RefreshRoundTrip(t *testing.T) {
	s := newTestTokenService(nil)
	id := testIdentity()

	token, exp, err := s.IssueRefreshToken(id)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), exp, 5*time.Second)

	claims, err := s.VerifyRefreshToken(token)
	require.NoError(t, err)
	assert.Equal(t, id.UserID.String(), claims.Subject)
}

func TestTokenService_Expiry(t *testing.T) {
	current := time.Now()
	s := newTestTokenService(func() time.Time { return current })

	token, _, err := s.IssueAccessToken(testIdentity())
	require.NoError(t, err)

	current = current.Add(15*time.Minute + time.Second)
	_, err = s.VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.NotErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_SecretsAreSeparate(t *testing.T) {
	s := newTestTokenService(nil)
	id := testIdentity()

	access, _, err := s.IssueAccessToken(id)
	require.NoError(t, err)
	refresh, _, err := s.IssueRefreshToken(id)
	require.NoError(t, err)

	_, err = s.VerifyRefreshToken(access)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = s.VerifyAccessToken(refresh)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_DistinctTokens(t *testing.T) {
	s := newTestTokenService(nil)
	id := testIdentity()

	a, _, err := s.IssueAccessToken(id)
	require.NoError(t, err)
	b, _, err := s.IssueAccessToken(id)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestTokenService_RejectsForgedTokens(t *testing.T) {
	s := newTestTokenService(nil)
	id := testIdentity()
	claims := &Claims{
		Email: id.Email,
		Role:  model.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			Issuer:    tokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	t.Run("alg none", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = s.VerifyAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other hmac alg", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testAccessSecret))
		require.NoError(t, err)
		_, err = s.VerifyAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("not-the-secret"))
		require.NoError(t, err)
		_, err = s.VerifyAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("tampered payload", func(t *testing.T) {
		token, _, err := s.IssueAccessToken(id)
		require.NoError(t, err)
		other, _, err := s.IssueAccessToken(Identity{UserID: uuid.New(), Email: "eve@example.com", Role: model.RoleAdmin})
		require.NoError(t, err)

		parts := strings.Split(token, ".")
		parts[1] = strings.Split(other, ".")[1]
		_, err = s.VerifyAccessToken(strings.Join(parts, "."))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.VerifyAccessToken("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing expiry", func(t *testing.T) {
		noExp := *claims
		noExp.ExpiresAt = nil
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &noExp).SignedString([]byte(testAccessSecret))
		require.NoError(t, err)
		_, err = s.VerifyAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
