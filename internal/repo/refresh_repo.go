package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/finboard/server/internal/model"
)

// RefreshRepo defines the interface for refresh token repository operations.
// A user owns at most one refresh token row.
type RefreshRepo interface {
	Upsert(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	FindActive(ctx context.Context, tokenHash string) (model.RefreshToken, model.User, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) error
}

type refreshRepo struct {
	db *sql.DB
}

// NewRefreshRepo creates a new RefreshRepo instance
func NewRefreshRepo(db *sql.DB) RefreshRepo {
	return &refreshRepo{db: db}
}

// Upsert stores the token for the user, replacing any previous one
func (r *refreshRepo) Upsert(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at, created_at = now()
	`, userID, tokenHash, expiresAt)
	return classify("upsert refresh token", err)
}

// FindActive returns the unexpired token row and its non-deleted owner
func (r *refreshRepo) FindActive(ctx context.Context, tokenHash string) (model.RefreshToken, model.User, error) {
	var t model.RefreshToken
	var u model.User
	var lastLogin sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT rt.user_id, rt.token_hash, rt.expires_at, rt.created_at, `+prefixed("u", userColumns)+`
		FROM refresh_tokens rt
		JOIN users u ON u.id = rt.user_id
		WHERE rt.token_hash = $1 AND rt.expires_at > now() AND u.status <> 'deleted'
	`, tokenHash).Scan(
		&t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt,
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Status, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return model.RefreshToken{}, model.User{}, classify("find refresh token", err)
	}
	if lastLogin.Valid {
		at := lastLogin.Time
		u.LastLoginAt = &at
	}
	return t, u, nil
}

// DeleteByTokenHash removes the row holding the token. A missing row is not an error.
func (r *refreshRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	return classify("delete refresh token", err)
}
