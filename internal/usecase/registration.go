package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/learnhub/iam-service/internal/core/domain"
	"github.com/learnhub/iam-service/internal/core/port"
	"github.com/learnhub/iam-service/internal/infra/logger"
	"github.com/learnhub/iam-service/internal/infra/security"
	"github.com/learnhub/iam-service/internal/repository"
)

var (
	// ErrEmailTaken indicates an account with the normalized email already exists.
	ErrEmailTaken = errors.New("email already registered")
	// ErrInvalidEmail indicates the email failed format validation.
	ErrInvalidEmail = errors.New("invalid email address")
)

// RegisterInput carries the fields accepted by self-service registration.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Phone    *string
}

// RegistrationService creates accounts with a local credential and signs the
// new account in immediately.
type RegistrationService struct {
	users     port.UserRepository
	auth      *AuthService
	hasher    *security.Hasher
	passwords *security.PasswordValidator
	emails    port.EmailValidator
	publisher port.EventPublisher
	logger    *zap.Logger
}

// WithLogger attaches a logger for registration audit output.
func (s *RegistrationService) WithLogger(logger *zap.Logger) *RegistrationService {
	s.logger = logger
	return s
}

// NewRegistrationService constructs a RegistrationService.
func NewRegistrationService(
	users port.UserRepository,
	auth *AuthService,
	hasher *security.Hasher,
	passwords *security.PasswordValidator,
	emails port.EmailValidator,
	publisher port.EventPublisher,
) *RegistrationService {
	return &RegistrationService{
		users:     users,
		auth:      auth,
		hasher:    hasher,
		passwords: passwords,
		emails:    emails,
		publisher: publisher,
	}
}

// Register validates the input, creates the account, and issues its first session.
func (s *RegistrationService) Register(ctx context.Context, in RegisterInput, meta SessionMetadata) (*AuthSession, error) {
	email := domain.NormalizeEmail(in.Email)
	if err := s.emails.Validate(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if err := s.passwords.Validate(in.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	user := domain.User{
		ID:           NewUserID(),
		Email:        email,
		PasswordHash: &hash,
		FullName:     in.FullName,
		Phone:        in.Phone,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	session, err := s.auth.IssueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("user registered",
			zap.String("user_id", user.ID),
			zap.String("email", logger.MaskEmail(user.Email)),
		)
	}

	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, domain.UserRegisteredEvent{
			EventID:      uuid.NewString(),
			UserID:       user.ID,
			Email:        user.Email,
			FullName:     user.FullName,
			Method:       "password",
			RegisteredAt: now,
		})
	}

	return session, nil
}
