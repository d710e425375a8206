package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/finboard/server/internal/model"
)

// ResetRepo defines the interface for password reset token operations.
// Consumption happens in UserRepo.ResetPassword so the password change and token removal share a transaction.
type ResetRepo interface {
	Upsert(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	FindActive(ctx context.Context, tokenHash string) (model.PasswordResetToken, model.User, error)
}

type resetRepo struct {
	db *sql.DB
}

// NewResetRepo creates a new ResetRepo instance
func NewResetRepo(db *sql.DB) ResetRepo {
	return &resetRepo{db: db}
}

// Upsert stores the reset token for the user, replacing any previous one
func (r *resetRepo) Upsert(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO password_resets (user_id, token_hash, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at, created_at = now()
	`, userID, tokenHash, expiresAt)
	return classify("upsert reset token", err)
}

// FindActive returns the unexpired reset token and its non-deleted owner
func (r *resetRepo) FindActive(ctx context.Context, tokenHash string) (model.PasswordResetToken, model.User, error) {
	var t model.PasswordResetToken
	row := r.db.QueryRowContext(ctx, `
		SELECT pr.user_id, pr.token_hash, pr.expires_at, pr.created_at, `+prefixed("u", userColumns)+`
		FROM password_resets pr
		JOIN users u ON u.id = pr.user_id
		WHERE pr.token_hash = $1 AND pr.expires_at > now() AND u.status <> 'deleted'
	`, tokenHash)

	var u model.User
	var lastLogin sql.NullTime
	err := row.Scan(
		&t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt,
		&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.Status, &lastLogin, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return model.PasswordResetToken{}, model.User{}, classify("find reset token", err)
	}
	if lastLogin.Valid {
		at := lastLogin.Time
		u.LastLoginAt = &at
	}
	return t, u, nil
}
