package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/finboard/server/internal/model"
)

// UserRepo defines the interface for user repository operations.
// Soft-deleted users are invisible to every lookup.
type UserRepo interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	SetStatus(ctx context.Context, id uuid.UUID, status model.Status) error
	SetRole(ctx context.Context, id uuid.UUID, role model.Role) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type userRepo struct {
	db *sql.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sql.DB) UserRepo {
	return &userRepo{db: db}
}

const userColumns = `id, name, email, password_hash, role, status, last_login_at, created_at, updated_at`

// prefixed qualifies each column in cols with a table alias.
func prefixed(alias, cols string) string {
	parts := strings.Split(cols, ", ")
	for i, c := range parts {
		parts[i] = alias + "." + c
	}
	return strings.Join(parts, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (model.User, error) {
	var u model.User
	var lastLogin sql.NullTime
	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.Email,
		&u.PasswordHash,
		&u.Role,
		&u.Status,
		&lastLogin,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return model.User{}, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return u, nil
}

// NormalizeEmail lowercases and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create inserts a new user and fills in the generated ID and timestamps
func (r *userRepo) Create(ctx context.Context, user *model.User) error {
	user.Email = NormalizeEmail(user.Email)
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password_hash, role, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, user.Name, user.Email, user.PasswordHash, user.Role, user.Status).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return classify("insert user", err)
	}
	return nil
}

// GetByID retrieves a non-deleted user by ID
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE id = $1 AND status <> 'deleted'
	`, id)
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, classify("get user by id", err)
	}
	return u, nil
}

// GetByEmail retrieves a non-deleted user by email (case-insensitive)
func (r *userRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE lower(email) = $1 AND status <> 'deleted'
	`, NormalizeEmail(email))
	u, err := scanUser(row)
	if err != nil {
		return model.User{}, classify("get user by email", err)
	}
	return u, nil
}

// EmailExists reports whether a non-deleted user owns the email
func (r *userRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = $1 AND status <> 'deleted')
	`, NormalizeEmail(email)).Scan(&exists)
	if err != nil {
		return false, classify("check email", err)
	}
	return exists, nil
}

// UpdateLastLogin records a successful login
func (r *userRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET last_login_at = $2, updated_at = now() WHERE id = $1
	`, id, at)
	return classify("update last login", err)
}

// UpdatePassword replaces the password hash and revokes every refresh token of the user
func (r *userRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return withTx(ctx, r.db, "update password", func(tx *sql.Tx) error {
		if err := updateUser(ctx, tx, "update password", `
			UPDATE users SET password_hash = $2, updated_at = now()
			WHERE id = $1 AND status <> 'deleted'
		`, id, passwordHash); err != nil {
			return err
		}
		return deleteRefreshTokens(ctx, tx, id)
	})
}

// ResetPassword replaces the password hash, consumes the reset token and revokes every refresh token
func (r *userRepo) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return withTx(ctx, r.db, "reset password", func(tx *sql.Tx) error {
		if err := updateUser(ctx, tx, "reset password", `
			UPDATE users SET password_hash = $2, updated_at = now()
			WHERE id = $1 AND status <> 'deleted'
		`, id, passwordHash); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM password_resets WHERE user_id = $1`, id); err != nil {
			return classify("delete reset token", err)
		}
		return deleteRefreshTokens(ctx, tx, id)
	})
}

// SetStatus changes the account status. Leaving the active state revokes every refresh token.
func (r *userRepo) SetStatus(ctx context.Context, id uuid.UUID, status model.Status) error {
	if !status.Assignable() {
		return fmt.Errorf("set status: invalid status %q", status)
	}
	return withTx(ctx, r.db, "set status", func(tx *sql.Tx) error {
		if err := updateUser(ctx, tx, "set status", `
			UPDATE users SET status = $2, updated_at = now()
			WHERE id = $1 AND status <> 'deleted'
		`, id, status); err != nil {
			return err
		}
		if status != model.StatusActive {
			return deleteRefreshTokens(ctx, tx, id)
		}
		return nil
	})
}

// SetRole changes the role of the user
func (r *userRepo) SetRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	if !role.Valid() {
		return fmt.Errorf("set role: invalid role %q", role)
	}
	result, err := r.db.ExecContext(ctx, `
		UPDATE users SET role = $2, updated_at = now()
		WHERE id = $1 AND status <> 'deleted'
	`, id, role)
	if err != nil {
		return classify("set role", err)
	}
	return requireAffected("set role", result)
}

// SoftDelete marks the user deleted and removes all of its tokens
func (r *userRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return withTx(ctx, r.db, "soft delete user", func(tx *sql.Tx) error {
		if err := updateUser(ctx, tx, "soft delete user", `
			UPDATE users SET status = 'deleted', updated_at = now()
			WHERE id = $1 AND status <> 'deleted'
		`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM password_resets WHERE user_id = $1`, id); err != nil {
			return classify("delete reset token", err)
		}
		return deleteRefreshTokens(ctx, tx, id)
	})
}

func updateUser(ctx context.Context, tx *sql.Tx, op, query string, args ...any) error {
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return classify(op, err)
	}
	return requireAffected(op, result)
}

func requireAffected(op string, result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return classify(op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func deleteRefreshTokens(ctx context.Context, tx *sql.Tx, userID uuid.UUID) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID); err != nil {
		return classify("delete refresh tokens", err)
	}
	return nil
}
