package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"
	"github.com/google/uuid"

	"github.com/finboard/server/internal/apperr"
	"github.com/finboard/server/internal/metrics"
	"github.com/finboard/server/internal/model"
	"github.com/finboard/server/internal/repo"
)

const defaultResetTTL = time.Hour

// Client-facing messages shared by several flows.
const (
	msgInvalidCredentials = "Invalid credentials"
	msgAccountDisabled    = "Account is disabled"
	msgTooManyAttempts    = "Too many login attempts, please try again later"
	msgInvalidRefresh     = "Invalid refresh token"
	msgInvalidReset       = "Invalid or expired reset token"
	msgUserNotFound       = "User not found"

	// ForgotPasswordMessage is returned for every forgot-password request.
	ForgotPasswordMessage = "If an account with that email exists, a password reset link has been sent"
)

// ServiceDeps groups the collaborators of Service.
type ServiceDeps struct {
	Users    repo.UserRepo
	Refresh  repo.RefreshRepo
	Resets   repo.ResetRepo
	Tokens   *TokenService
	Hasher   *PasswordHasher
	Throttle *LoginThrottle
	Notifier ResetNotifier
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	ResetTTL time.Duration
}

// Service orchestrates authentication operations
type Service struct {
	users    repo.UserRepo
	refresh  repo.RefreshRepo
	resets   repo.ResetRepo
	tokens   *TokenService
	hasher   *PasswordHasher
	throttle *LoginThrottle
	notifier ResetNotifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	resetTTL time.Duration
	now      func() time.Time

	// dummyHash is compared against when the email is unknown so both paths pay for bcrypt.
	dummyHash string
	pending   sync.WaitGroup
}

// NewService creates a new auth service
func NewService(deps ServiceDeps) (*Service, error) {
	s := &Service{
		users:    deps.Users,
		refresh:  deps.Refresh,
		resets:   deps.Resets,
		tokens:   deps.Tokens,
		hasher:   deps.Hasher,
		throttle: deps.Throttle,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		resetTTL: deps.ResetTTL,
		now:      time.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.notifier == nil {
		s.notifier = NewLogNotifier(s.logger, false)
	}
	if s.resetTTL <= 0 {
		s.resetTTL = defaultResetTTL
	}
	dummy, err := s.hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}
	s.dummyHash = dummy
	return s, nil
}

// RegisterInput is the data required to create an account
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     model.Role
}

// LoginInput carries credentials and the client key the throttle is keyed by
type LoginInput struct {
	Email     string
	Password  string
	ClientKey string
}

// LoginResult is returned by a successful login
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         model.User
}

// RefreshResult is returned by a successful token refresh
type RefreshResult struct {
	AccessToken string
	User        model.User
}

// Register validates the input and creates an active account. No session is issued.
func (s *Service) Register(ctx context.Context, in RegisterInput) (model.User, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = repo.NormalizeEmail(in.Email)

	var fields []apperr.FieldError
	if in.Name == "" {
		fields = append(fields, apperr.FieldError{Field: "name", Message: "Name is required"})
	} else if n := utf8.RuneCountInString(in.Name); n < 2 || n > 100 {
		fields = append(fields, apperr.FieldError{Field: "name", Message: "Name must be between 2 and 100 characters"})
	}
	if in.Email == "" {
		fields = append(fields, apperr.FieldError{Field: "email", Message: "Email is required"})
	} else if !govalidator.IsEmail(in.Email) {
		fields = append(fields, apperr.FieldError{Field: "email", Message: "Please provide a valid email"})
	}
	if in.Password == "" {
		fields = append(fields, apperr.FieldError{Field: "password", Message: "Password is required"})
	}
	if in.Role == "" {
		in.Role = model.RoleUser
	} else if !in.Role.Valid() {
		fields = append(fields, apperr.FieldError{Field: "role", Message: "Role must be user, manager or admin"})
	}
	if len(fields) > 0 {
		return model.User{}, apperr.Validation("Validation failed", fields...)
	}
	if err := passwordPolicy("password", in.Password); err != nil {
		return model.User{}, err
	}

	exists, err := s.users.EmailExists(ctx, in.Email)
	if err != nil {
		return model.User{}, fmt.Errorf("register: %w", err)
	}
	if exists {
		return model.User{}, apperr.Conflict("User with this email already exists")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return model.User{}, err
	}

	user := model.User{
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         in.Role,
		Status:       model.StatusActive,
	}
	if err := s.users.Create(ctx, &user); err != nil {
		if errors.Is(err, repo.ErrDuplicateEmail) {
			return model.User{}, apperr.Conflict("User with this email already exists")
		}
		return model.User{}, fmt.Errorf("register: %w", err)
	}

	s.logger.InfoContext(ctx, "user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Login checks the throttle, verifies credentials and issues an access/refresh token pair.
// The new refresh token replaces any previous one for the user.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := repo.NormalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, apperr.Validation("Email and password are required")
	}

	if s.throttle.IsBlocked(in.ClientKey) {
		s.metrics.Login("locked")
		s.metrics.Reject(metrics.StageThrottle)
		s.logger.WarnContext(ctx, "login blocked by throttle", "ip", in.ClientKey, "email", maskEmail(email))
		return nil, apperr.RateLimit(msgTooManyAttempts)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("login: %w", err)
		}
		_, _ = s.hasher.Verify(in.Password, s.dummyHash)
		return nil, s.loginFailed(ctx, in.ClientKey, email)
	}

	if !user.IsActive() {
		s.metrics.Login("disabled")
		return nil, apperr.Authorization(msgAccountDisabled)
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	if !ok {
		return nil, s.loginFailed(ctx, in.ClientKey, email)
	}

	s.throttle.Reset(in.ClientKey)

	now := s.now()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	user.LastLoginAt = &now

	id := Identity{UserID: user.ID, Email: user.Email, Role: user.Role}
	accessToken, _, err := s.tokens.IssueAccessToken(id)
	if err != nil {
		return nil, err
	}
	refreshToken, refreshExp, err := s.tokens.IssueRefreshToken(id)
	if err != nil {
		return nil, err
	}
	if err := s.refresh.Upsert(ctx, user.ID, HashToken(refreshToken), refreshExp); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}

	s.metrics.Login("success")
	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID, "ip", in.ClientKey)
	return &LoginResult{AccessToken: accessToken, RefreshToken: refreshToken, User: user}, nil
}

func (s *Service) loginFailed(ctx context.Context, clientKey, email string) error {
	count := s.throttle.RecordFailure(clientKey)
	s.metrics.Login("invalid_credentials")
	s.logger.WarnContext(ctx, "failed login attempt", "ip", clientKey, "email", maskEmail(email), "attempts", count)
	return apperr.Authentication(msgInvalidCredentials)
}

// Refresh exchanges a stored, unexpired refresh token for a new access token.
// The refresh token itself is not rotated.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, apperr.Validation("Refresh token is required")
	}

	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return nil, apperr.Wrap(apperr.KindAuthentication, "Refresh token expired", err)
		}
		return nil, apperr.Wrap(apperr.KindAuthentication, msgInvalidRefresh, err)
	}

	_, user, err := s.refresh.FindActive(ctx, HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apperr.Authentication(msgInvalidRefresh)
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if claims.Subject != user.ID.String() {
		return nil, apperr.Authentication(msgInvalidRefresh)
	}
	if !user.IsActive() {
		return nil, apperr.Authorization(msgAccountDisabled)
	}

	accessToken, _, err := s.tokens.IssueAccessToken(Identity{UserID: user.ID, Email: user.Email, Role: user.Role})
	if err != nil {
		return nil, err
	}
	return &RefreshResult{AccessToken: accessToken, User: user}, nil
}

// Logout deletes the stored refresh token when one is supplied. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	if err := s.refresh.DeleteByTokenHash(ctx, HashToken(refreshToken)); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// ForgotPassword issues a reset token for an existing active account. The outcome is not
// observable by the caller: unknown and inactive emails return nil just like known ones.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = repo.NormalizeEmail(email)
	if email == "" || !govalidator.IsEmail(email) {
		return apperr.Validation("Please provide a valid email",
			apperr.FieldError{Field: "email", Message: "Please provide a valid email"})
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.logger.DebugContext(ctx, "password reset for unknown email", "email", maskEmail(email))
			return nil
		}
		return fmt.Errorf("forgot password: %w", err)
	}
	if !user.IsActive() {
		return nil
	}

	token, err := GenerateOpaqueToken()
	if err != nil {
		return err
	}
	if err := s.resets.Upsert(ctx, user.ID, HashToken(token), s.now().Add(s.resetTTL)); err != nil {
		return fmt.Errorf("forgot password: %w", err)
	}

	s.notifyReset(ctx, user.Email, token)
	return nil
}

// notifyReset hands the token to the notifier without waiting for delivery.
func (s *Service) notifyReset(ctx context.Context, email, token string) {
	ctx = context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		if err := s.notifier.SendResetNotification(ctx, email, token); err != nil {
			s.logger.ErrorContext(ctx, "failed to send reset notification", "email", maskEmail(email), "error", err)
		}
	}()
}

// Drain waits for in-flight reset notifications.
func (s *Service) Drain() {
	s.pending.Wait()
}

// ResetPassword sets a new password using a reset token. The token is consumed and every
// refresh token of the user is revoked.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" || newPassword == "" {
		return apperr.Validation("Token and new password are required")
	}
	if err := passwordPolicy("newPassword", newPassword); err != nil {
		return err
	}

	_, user, err := s.resets.FindActive(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.Validation(msgInvalidReset)
		}
		return fmt.Errorf("reset password: %w", err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.ResetPassword(ctx, user.ID, hash); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.Validation(msgInvalidReset)
		}
		return fmt.Errorf("reset password: %w", err)
	}

	s.logger.InfoContext(ctx, "password reset", "user_id", user.ID)
	return nil
}

// Authenticate verifies an access token and loads its active owner
func (s *Service) Authenticate(ctx context.Context, accessToken string) (model.User, error) {
	claims, err := s.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		if errors.Is(err, ErrExpiredToken) {
			return model.User{}, apperr.Wrap(apperr.KindAuthentication, "Token expired", err)
		}
		return model.User{}, apperr.Wrap(apperr.KindAuthentication, "Invalid token", err)
	}
	id, err := claims.Identity()
	if err != nil {
		return model.User{}, apperr.Wrap(apperr.KindAuthentication, "Invalid token", err)
	}

	user, err := s.users.GetByID(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return model.User{}, apperr.Authentication("Invalid token")
		}
		return model.User{}, fmt.Errorf("authenticate: %w", err)
	}
	if !user.IsActive() {
		return model.User{}, apperr.Authorization(msgAccountDisabled)
	}
	return user, nil
}

// Profile returns the account of userID
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (model.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, notFound(err, msgUserNotFound)
	}
	return user, nil
}

// ChangePassword replaces the password after checking the current one. All sessions are revoked.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return apperr.Validation("Current password and new password are required")
	}
	if err := passwordPolicy("newPassword", newPassword); err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return notFound(err, msgUserNotFound)
	}
	ok, err := s.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	if !ok {
		return apperr.Authentication("Current password is incorrect")
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return notFound(err, msgUserNotFound)
	}
	s.logger.InfoContext(ctx, "password changed", "user_id", user.ID)
	return nil
}

// ChangeStatus sets the status of another account. Leaving active revokes its sessions.
func (s *Service) ChangeStatus(ctx context.Context, actorID, userID uuid.UUID, status model.Status) error {
	if !status.Assignable() {
		return apperr.Validation("Status must be active, inactive or suspended")
	}
	if actorID == userID {
		return apperr.Validation("You cannot change your own status")
	}
	if err := s.users.SetStatus(ctx, userID, status); err != nil {
		return notFound(err, msgUserNotFound)
	}
	s.logger.InfoContext(ctx, "user status changed", "actor_id", actorID, "user_id", userID, "status", status)
	return nil
}

// ChangeRole sets the role of another account
func (s *Service) ChangeRole(ctx context.Context, actorID, userID uuid.UUID, role model.Role) error {
	if !role.Valid() {
		return apperr.Validation("Role must be user, manager or admin")
	}
	if actorID == userID {
		return apperr.Validation("You cannot change your own role")
	}
	if err := s.users.SetRole(ctx, userID, role); err != nil {
		return notFound(err, msgUserNotFound)
	}
	s.logger.InfoContext(ctx, "user role changed", "actor_id", actorID, "user_id", userID, "role", role)
	return nil
}

// DeleteUser soft-deletes another account and removes its tokens
func (s *Service) DeleteUser(ctx context.Context, actorID, userID uuid.UUID) error {
	if actorID == userID {
		return apperr.Validation("You cannot delete your own account")
	}
	if err := s.users.SoftDelete(ctx, userID); err != nil {
		return notFound(err, msgUserNotFound)
	}
	s.logger.InfoContext(ctx, "user deleted", "actor_id", actorID, "user_id", userID)
	return nil
}

func passwordPolicy(field, password string) error {
	if err := ValidatePasswordStrength(password); err != nil {
		return apperr.Validation(err.Error(), apperr.FieldError{Field: field, Message: err.Error()})
	}
	return nil
}

func notFound(err error, message string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return apperr.NotFound(message)
	}
	return err
}
