package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"

	"github.com/learnhub/iam-service/internal/core/domain"
	"github.com/learnhub/iam-service/internal/core/port"
	"github.com/learnhub/iam-service/internal/infra/security"
	"github.com/learnhub/iam-service/internal/repository"
)

var (
	// ErrPasswordMismatch indicates the supplied current password is wrong.
	ErrPasswordMismatch = errors.New("current password is incorrect")
	// ErrNoLocalPassword indicates the account authenticates through OAuth
	// only and holds no local credential to change.
	ErrNoLocalPassword = errors.New("account has no local password")
)

// UpdateProfileInput carries the mutable profile fields. Nil means unchanged.
type UpdateProfileInput struct {
	FullName *string
	Phone    *string
	PhotoURL *string
}

// UserPage is a paginated user listing.
type UserPage struct {
	Users []domain.User
	Total int
}

// UserService covers profile management, account moderation, and password change.
type UserService struct {
	users     port.UserRepository
	auth      *AuthService
	hasher    *security.Hasher
	passwords *security.PasswordValidator
	publisher port.EventPublisher
}

// NewUserService constructs a UserService.
func NewUserService(
	users port.UserRepository,
	auth *AuthService,
	hasher *security.Hasher,
	passwords *security.PasswordValidator,
	publisher port.EventPublisher,
) *UserService {
	return &UserService{
		users:     users,
		auth:      auth,
		hasher:    hasher,
		passwords: passwords,
		publisher: publisher,
	}
}

// GetUser loads a user by id.
func (s *UserService) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	sanitized := user.Sanitized()
	return &sanitized, nil
}

// UpdateProfile patches the mutable profile fields.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if in.FullName != nil {
		user.FullName = *in.FullName
	}
	if in.Phone != nil {
		user.Phone = in.Phone
	}
	if in.PhotoURL != nil {
		user.PhotoURL = in.PhotoURL
	}
	user.UpdatedAt = time.Now().UTC()

	if err := s.users.Update(ctx, *user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	sanitized := user.Sanitized()
	return &sanitized, nil
}

// SetActive activates or deactivates an account. Deactivation also revokes
// every live session so the account cannot refresh back in.
func (s *UserService) SetActive(ctx context.Context, userID string, active bool) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	var changed bool
	if active {
		changed = user.Activate()
	} else {
		changed = user.Deactivate()
	}
	if !changed {
		return nil
	}

	user.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, *user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	if !active {
		if _, err := s.auth.RevokeAllSessions(ctx, userID, "account_deactivated"); err != nil {
			return err
		}
	}
	return nil
}

// ListUsers returns a filtered, paginated user listing.
func (s *UserService) ListUsers(ctx context.Context, filter port.UserFilter) (*UserPage, error) {
	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	total, err := s.users.Count(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count users: %w", err)
	}

	for i := range users {
		users[i] = users[i].Sanitized()
	}
	return &UserPage{Users: users, Total: total}, nil
}

// ChangePassword verifies the current credential, stores the new hash, and
// revokes every live session so stolen refresh tokens die with the old password.
func (s *UserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if !user.HasPassword() {
		return ErrNoLocalPassword
	}
	if !s.hasher.VerifyPassword(currentPassword, *user.PasswordHash) {
		return ErrPasswordMismatch
	}

	validator := security.NewPasswordValidator(
		security.RequireDifferentFrom(currentPassword),
	)
	if err := validator.Validate(newPassword); err != nil {
		return err
	}
	if err := s.passwords.Validate(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	revoked, err := s.auth.RevokeAllSessions(ctx, userID, "password_changed")
	if err != nil {
		return err
	}

	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, domain.PasswordChangedEvent{
			EventID:         uuid.NewString(),
			UserID:          userID,
			SessionsRevoked: revoked,
			ChangedAt:       time.Now().UTC(),
		})
	}
	return nil
}
