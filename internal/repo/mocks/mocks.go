// Package mocks provides testify mocks of the repository interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/finboard/server/internal/model"
	"github.com/finboard/server/internal/repo"
)

var (
	_ repo.UserRepo    = (*UserRepo)(nil)
	_ repo.RefreshRepo = (*RefreshRepo)(nil)
	_ repo.ResetRepo   = (*ResetRepo)(nil)
)

// UserRepo is a mock of repo.UserRepo
type UserRepo struct {
	mock.Mock
}

func (m *UserRepo) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserRepo) EmailExists(ctx context.Context, email string) (bool, error) {
	args := m.Called(ctx, email)
	return args.Bool(0), args.Error(1)
}

func (m *UserRepo) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

func (m *UserRepo) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *UserRepo) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	args := m.Called(ctx, id, passwordHash)
	return args.Error(0)
}

func (m *UserRepo) SetStatus(ctx context.Context, id uuid.UUID, status model.Status) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *UserRepo) SetRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	args := m.Called(ctx, id, role)
	return args.Error(0)
}

func (m *UserRepo) SoftDelete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// RefreshRepo is a mock of repo.RefreshRepo
type RefreshRepo struct {
	mock.Mock
}

func (m *RefreshRepo) Upsert(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, tokenHash, expiresAt)
	return args.Error(0)
}

func (m *RefreshRepo) FindActive(ctx context.Context, tokenHash string) (model.RefreshToken, model.User, error) {
	args := m.Called(ctx, tokenHash)
	return args.Get(0).(model.RefreshToken), args.Get(1).(model.User), args.Error(2)
}

func (m *RefreshRepo) DeleteByTokenHash(ctx context.Context, tokenHash string) error {
	args := m.Called(ctx, tokenHash)
	return args.Error(0)
}

// ResetRepo is a mock of repo.ResetRepo
type ResetRepo struct {
	mock.Mock
}

func (m *ResetRepo) Upsert(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, tokenHash, expiresAt)
	return args.Error(0)
}

func (m *ResetRepo) FindActive(ctx context.Context, tokenHash string) (model.PasswordResetToken, model.User, error) {
	args := m.Called(ctx, tokenHash)
	return args.Get(0).(model.PasswordResetToken), args.Get(1).(model.User), args.Error(2)
}
