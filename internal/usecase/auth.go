package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/learnhub/iam-service/internal/core/domain"
	"github.com/learnhub/iam-service/internal/core/port"
	"github.com/learnhub/iam-service/internal/infra/config"
	"github.com/learnhub/iam-service/internal/infra/security"
	"github.com/learnhub/iam-service/internal/repository"
)

const refreshTokenBytes = 32

var (
	// ErrInvalidCredentials indicates the provided email or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInactiveAccount indicates the account has been deactivated.
	ErrInactiveAccount = errors.New("account is not active")
	// ErrInvalidRefreshToken indicates the presented refresh token does not
	// exist, expired, or was already consumed by rotation.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	// ErrInvalidAccessToken indicates the access token is malformed or its signature failed.
	ErrInvalidAccessToken = errors.New("invalid access token")
	// ErrExpiredAccessToken indicates the access token has expired.
	ErrExpiredAccessToken = errors.New("access token expired")
)

// SessionMetadata captures audit-only request attributes stored with a
// refresh token. Never consulted for authorization decisions.
type SessionMetadata struct {
	IP        *string
	UserAgent *string
}

// AuthSession is the credential pair handed back by login, registration,
// refresh, and the OAuth callback.
type AuthSession struct {
	AccessToken      string
	RefreshToken     string
	ExpiresIn        int
	RefreshExpiresIn int
	User             domain.User
}

// AccessTokenClaims augments registered JWT claims with the role snapshot.
type AccessTokenClaims struct {
	Roles  []string `json:"roles,omitempty"`
	UserID string   `json:"uid"`
	jwt.RegisteredClaims
}

// AuthService coordinates credential authentication and the session/token
// lifecycle, including rotation and reuse detection.
type AuthService struct {
	cfg           *config.AppConfig
	users         port.UserRepository
	tokens        port.TokenRepository
	hasher        *security.Hasher
	publisher     port.EventPublisher
	reuseObserver func()
}

// NewAuthService constructs an AuthService.
func NewAuthService(
	cfg *config.AppConfig,
	users port.UserRepository,
	tokens port.TokenRepository,
	hasher *security.Hasher,
	publisher port.EventPublisher,
) (*AuthService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	return &AuthService{
		cfg:       cfg,
		users:     users,
		tokens:    tokens,
		hasher:    hasher,
		publisher: publisher,
	}, nil
}

// WithReuseObserver registers a callback invoked whenever a rotated refresh
// token is replayed.
func (s *AuthService) WithReuseObserver(fn func()) *AuthService {
	s.reuseObserver = fn
	return s
}

// Login validates credentials and issues a fresh session.
func (s *AuthService) Login(ctx context.Context, email, password string, meta SessionMetadata) (*AuthSession, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrInactiveAccount
	}
	// OAuth-only accounts have no local credential and cannot password-login.
	if !user.HasPassword() {
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.VerifyPassword(password, *user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	session, err := s.IssueSession(ctx, *user, meta)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.UserLoggedInEvent{
		EventID:  uuid.NewString(),
		UserID:   user.ID,
		Method:   "password",
		IP:       meta.IP,
		LoggedAt: time.Now().UTC(),
	})

	return session, nil
}

// IssueSession mints an access token reflecting the user's current roles and
// persists a new refresh token for the session.
func (s *AuthService) IssueSession(ctx context.Context, user domain.User, meta SessionMetadata) (*AuthSession, error) {
	if user.ID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	accessToken, ttl, err := s.issueAccessToken(user)
	if err != nil {
		return nil, err
	}

	refresh, err := s.newRefreshToken(user.ID, meta)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Create(ctx, refresh); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &AuthSession{
		AccessToken:      accessToken,
		RefreshToken:     refresh.Token,
		ExpiresIn:        int(ttl.Seconds()),
		RefreshExpiresIn: int(s.cfg.JWT.RefreshTokenTTL.Seconds()),
		User:             user.Sanitized(),
	}, nil
}

// Refresh rotates the presented refresh token and mints a new access token.
// Presenting an already-rotated token revokes the user's entire token chain.
func (s *AuthService) Refresh(ctx context.Context, presented string, meta SessionMetadata) (*AuthSession, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return nil, fmt.Errorf("refresh token is required")
	}

	record, err := s.tokens.GetByToken(ctx, presented)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup refresh token: %w", err)
	}

	now := time.Now().UTC()
	if !record.IsActive(now) {
		if record.WasRotated() {
			// The token was consumed by a legitimate rotation and is being
			// replayed: assume the chain is compromised and cut it entirely.
			revoked, revokeErr := s.tokens.RevokeAllForUser(ctx, record.UserID, now)
			if revokeErr != nil {
				return nil, fmt.Errorf("revoke token chain: %w", revokeErr)
			}
			s.publish(ctx, domain.TokenReuseDetectedEvent{
				EventID:       uuid.NewString(),
				UserID:        record.UserID,
				TokensRevoked: revoked,
				IP:            meta.IP,
				DetectedAt:    now,
			})
			if s.reuseObserver != nil {
				s.reuseObserver()
			}
		}
		return nil, ErrInvalidRefreshToken
	}

	// Re-read the user so the new access token reflects current role state.
	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInactiveAccount
	}

	replacement, err := s.newRefreshToken(user.ID, meta)
	if err != nil {
		return nil, err
	}

	if err := s.tokens.Rotate(ctx, record.Token, replacement); err != nil {
		// A concurrent refresh with the same token won the conditional
		// update; this request observes the token as already consumed.
		if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	accessToken, ttl, err := s.issueAccessToken(*user)
	if err != nil {
		return nil, err
	}

	return &AuthSession{
		AccessToken:      accessToken,
		RefreshToken:     replacement.Token,
		ExpiresIn:        int(ttl.Seconds()),
		RefreshExpiresIn: int(s.cfg.JWT.RefreshTokenTTL.Seconds()),
		User:             user.Sanitized(),
	}, nil
}

// Logout revokes the presented refresh token. With allSessions set it
// revokes every active token for the owning user instead.
func (s *AuthService) Logout(ctx context.Context, presented string, allSessions bool) error {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return fmt.Errorf("refresh token is required")
	}

	record, err := s.tokens.GetByToken(ctx, presented)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidRefreshToken
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}

	now := time.Now().UTC()

	if allSessions {
		revoked, err := s.tokens.RevokeAllForUser(ctx, record.UserID, now)
		if err != nil {
			return fmt.Errorf("revoke all refresh tokens: %w", err)
		}
		s.publish(ctx, domain.SessionsRevokedEvent{
			EventID:       uuid.NewString(),
			UserID:        record.UserID,
			TokensRevoked: revoked,
			Reason:        "logout_all",
			RevokedAt:     now,
		})
		return nil
	}

	if !record.IsActive(now) {
		return ErrInvalidRefreshToken
	}

	if err := s.tokens.Revoke(ctx, record.Token, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) || errors.Is(err, repository.ErrConflict) {
			return ErrInvalidRefreshToken
		}
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	s.publish(ctx, domain.SessionsRevokedEvent{
		EventID:       uuid.NewString(),
		UserID:        record.UserID,
		TokensRevoked: 1,
		Reason:        "logout",
		RevokedAt:     now,
	})

	return nil
}

// RevokeAllSessions revokes every active refresh token for a user. Invoked
// on password change and by reuse detection.
func (s *AuthService) RevokeAllSessions(ctx context.Context, userID, reason string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}

	now := time.Now().UTC()
	revoked, err := s.tokens.RevokeAllForUser(ctx, userID, now)
	if err != nil {
		return 0, fmt.Errorf("revoke all refresh tokens: %w", err)
	}

	if revoked > 0 {
		s.publish(ctx, domain.SessionsRevokedEvent{
			EventID:       uuid.NewString(),
			UserID:        userID,
			TokensRevoked: revoked,
			Reason:        reason,
			RevokedAt:     now,
		})
	}

	return revoked, nil
}

// ParseAccessToken validates the JWT access token and returns its claims.
func (s *AuthService) ParseAccessToken(token string) (*AccessTokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidAccessToken
	}

	claims := &AccessTokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWT.Secret), nil
	}, jwt.WithIssuer(s.cfg.JWT.Issuer), jwt.WithAudience(s.cfg.App.Name))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredAccessToken
		}
		return nil, ErrInvalidAccessToken
	}

	if parsed == nil || !parsed.Valid || strings.TrimSpace(claims.UserID) == "" {
		return nil, ErrInvalidAccessToken
	}

	return claims, nil
}

func (s *AuthService) issueAccessToken(user domain.User) (string, time.Duration, error) {
	now := time.Now().UTC()
	ttl := s.cfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	claims := AccessTokenClaims{
		Roles:  user.Roles,
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.cfg.JWT.Issuer,
			Audience:  jwt.ClaimStrings{s.cfg.App.Name},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return "", 0, fmt.Errorf("sign access token: %w", err)
	}

	return signed, ttl, nil
}

func (s *AuthService) newRefreshToken(userID string, meta SessionMetadata) (domain.RefreshToken, error) {
	raw, err := security.GenerateSecureToken(refreshTokenBytes)
	if err != nil {
		return domain.RefreshToken{}, fmt.Errorf("generate refresh token: %w", err)
	}

	now := time.Now().UTC()
	ttl := s.cfg.JWT.RefreshTokenTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}

	return domain.RefreshToken{
		Token:     raw,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		UserAgent: meta.UserAgent,
		IP:        meta.IP,
	}, nil
}

// publish dispatches a domain event. Dispatch is best-effort once state is
// durable; the publisher implementation reports failures.
func (s *AuthService) publish(ctx context.Context, event domain.Event) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Publish(ctx, event)
}
