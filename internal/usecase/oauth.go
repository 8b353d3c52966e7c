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

const oauthStateBytes = 24

var (
	// ErrUnknownProvider indicates the provider name is not recognized.
	ErrUnknownProvider = errors.New("unknown oauth provider")
	// ErrProviderDisabled indicates the provider is known but not configured.
	ErrProviderDisabled = errors.New("oauth provider is disabled")
	// ErrOAuthExchangeFailed indicates the code exchange or profile fetch failed upstream.
	ErrOAuthExchangeFailed = errors.New("oauth exchange failed")
	// ErrConflictingAccount indicates the provider email belongs to an existing
	// account that the external identity is not linked to.
	ErrConflictingAccount = errors.New("email belongs to an existing account")
	// ErrMissingProviderEmail indicates the provider returned no email, so an
	// account cannot be provisioned or matched.
	ErrMissingProviderEmail = errors.New("provider returned no email address")
	// ErrProviderAlreadyLinked indicates the user or the external identity
	// already carries a link for this provider.
	ErrProviderAlreadyLinked = errors.New("provider already linked")
	// ErrProviderNotLinked indicates no connection exists to unlink.
	ErrProviderNotLinked = errors.New("provider is not linked")
	// ErrLastAuthMethod indicates unlinking would leave the account with no
	// way to authenticate.
	ErrLastAuthMethod = errors.New("cannot remove the last authentication method")
)

// AuthorizationIntent is handed to the caller starting an OAuth flow. State
// and the PKCE verifier must round-trip to the callback unchanged.
type AuthorizationIntent struct {
	URL          string
	State        string
	CodeVerifier string
}

// OAuthService drives login, signup, linking, and unlinking through external
// identity providers.
type OAuthService struct {
	users       port.UserRepository
	connections port.OAuthConnectionRepository
	providers   port.OAuthProviderClient
	auth        *AuthService
	publisher   port.EventPublisher
}

// NewOAuthService constructs an OAuthService.
func NewOAuthService(
	users port.UserRepository,
	connections port.OAuthConnectionRepository,
	providers port.OAuthProviderClient,
	auth *AuthService,
	publisher port.EventPublisher,
) *OAuthService {
	return &OAuthService{
		users:       users,
		connections: connections,
		providers:   providers,
		auth:        auth,
		publisher:   publisher,
	}
}

// BeginAuthorization generates state plus a PKCE verifier and builds the
// provider authorization URL.
func (s *OAuthService) BeginAuthorization(providerName string) (*AuthorizationIntent, error) {
	provider, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	state, err := security.GenerateSecureToken(oauthStateBytes)
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	verifier, err := security.GeneratePKCEVerifier()
	if err != nil {
		return nil, fmt.Errorf("generate pkce verifier: %w", err)
	}

	url, err := s.providers.AuthorizationURL(provider, state, verifier)
	if err != nil {
		return nil, fmt.Errorf("build authorization url: %w", err)
	}

	return &AuthorizationIntent{URL: url, State: state, CodeVerifier: verifier}, nil
}

// CompleteAuthorization redeems the callback code and resolves it to a local
// session. Unknown external identities with an unclaimed email are
// provisioned as password-less accounts.
func (s *OAuthService) CompleteAuthorization(ctx context.Context, providerName, code, codeVerifier string, meta SessionMetadata) (*AuthSession, error) {
	provider, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	exchange, err := s.providers.Exchange(ctx, provider, code, codeVerifier)
	if err != nil {
		return nil, ErrOAuthExchangeFailed
	}

	now := time.Now().UTC()

	conn, err := s.connections.GetByProviderUserID(ctx, provider, exchange.Profile.ProviderUserID)
	switch {
	case err == nil:
		return s.loginExistingConnection(ctx, *conn, exchange, meta, now)
	case errors.Is(err, repository.ErrNotFound):
		return s.provisionOrConflict(ctx, provider, exchange, meta, now)
	default:
		return nil, fmt.Errorf("lookup oauth connection: %w", err)
	}
}

func (s *OAuthService) loginExistingConnection(ctx context.Context, conn domain.OAuthConnection, exchange *port.OAuthExchange, meta SessionMetadata, now time.Time) (*AuthSession, error) {
	user, err := s.users.GetByID(ctx, conn.UserID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrInactiveAccount
	}

	// Refresh provider tokens and profile hints on every login.
	applyExchange(&conn, exchange, now)
	if err := s.connections.Update(ctx, conn); err != nil {
		return nil, fmt.Errorf("update oauth connection: %w", err)
	}

	session, err := s.auth.IssueSession(ctx, *user, meta)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.UserLoggedInEvent{
		EventID:  uuid.NewString(),
		UserID:   user.ID,
		Method:   string(conn.Provider),
		IP:       meta.IP,
		LoggedAt: now,
	})

	return session, nil
}

func (s *OAuthService) provisionOrConflict(ctx context.Context, provider domain.OAuthProvider, exchange *port.OAuthExchange, meta SessionMetadata, now time.Time) (*AuthSession, error) {
	email := domain.NormalizeEmail(exchange.Profile.Email)
	if email == "" {
		return nil, ErrMissingProviderEmail
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		// The email is claimed by a local account that never linked this
		// identity. The owner must log in and link explicitly.
		return nil, ErrConflictingAccount
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}

	user := domain.User{
		ID:        NewUserID(),
		Email:     email,
		FullName:  exchange.Profile.Name,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if exchange.Profile.AvatarURL != "" {
		avatar := exchange.Profile.AvatarURL
		user.PhotoURL = &avatar
	}

	conn := newConnection(user.ID, provider, exchange, now)

	if err := s.connections.CreateUserWithConnection(ctx, user, conn); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrConflictingAccount
		}
		return nil, fmt.Errorf("create user with connection: %w", err)
	}

	session, err := s.auth.IssueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.UserRegisteredEvent{
		EventID:      uuid.NewString(),
		UserID:       user.ID,
		Email:        user.Email,
		FullName:     user.FullName,
		Method:       string(provider),
		RegisteredAt: now,
	})
	s.publish(ctx, domain.UserLoggedInEvent{
		EventID:  uuid.NewString(),
		UserID:   user.ID,
		Method:   string(provider),
		IP:       meta.IP,
		LoggedAt: now,
	})

	return session, nil
}

// LinkProvider binds an external identity to an existing authenticated account.
func (s *OAuthService) LinkProvider(ctx context.Context, userID, providerName, code, codeVerifier string) (*domain.OAuthConnection, error) {
	provider, err := s.resolveProvider(providerName)
	if err != nil {
		return nil, err
	}

	if _, err := s.connections.GetByUserAndProvider(ctx, userID, provider); err == nil {
		return nil, ErrProviderAlreadyLinked
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup oauth connection: %w", err)
	}

	exchange, err := s.providers.Exchange(ctx, provider, code, codeVerifier)
	if err != nil {
		return nil, ErrOAuthExchangeFailed
	}

	if other, err := s.connections.GetByProviderUserID(ctx, provider, exchange.Profile.ProviderUserID); err == nil {
		if other.UserID == userID {
			return nil, ErrProviderAlreadyLinked
		}
		return nil, ErrConflictingAccount
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup oauth connection: %w", err)
	}

	now := time.Now().UTC()
	conn := newConnection(userID, provider, exchange, now)

	if err := s.connections.Create(ctx, conn); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrProviderAlreadyLinked
		}
		return nil, fmt.Errorf("create oauth connection: %w", err)
	}

	s.publish(ctx, domain.OAuthLinkedEvent{
		EventID:  uuid.NewString(),
		UserID:   userID,
		Provider: provider,
		LinkedAt: now,
	})

	return &conn, nil
}

// UnlinkProvider removes a provider link, refusing when that would strand the
// account without any authentication method.
func (s *OAuthService) UnlinkProvider(ctx context.Context, userID, providerName string) error {
	provider, err := s.resolveProvider(providerName)
	if err != nil && !errors.Is(err, ErrProviderDisabled) {
		// Unlinking a since-disabled provider is still allowed.
		return err
	}

	conn, err := s.connections.GetByUserAndProvider(ctx, userID, provider)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProviderNotLinked
		}
		return fmt.Errorf("lookup oauth connection: %w", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}

	count, err := s.connections.CountByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("count oauth connections: %w", err)
	}
	if !user.HasPassword() && count <= 1 {
		return ErrLastAuthMethod
	}

	if err := s.connections.Delete(ctx, conn.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrProviderNotLinked
		}
		return fmt.Errorf("delete oauth connection: %w", err)
	}

	s.publish(ctx, domain.OAuthUnlinkedEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		Provider:   provider,
		UnlinkedAt: time.Now().UTC(),
	})

	return nil
}

// ListConnections returns the user's provider links.
func (s *OAuthService) ListConnections(ctx context.Context, userID string) ([]domain.OAuthConnection, error) {
	conns, err := s.connections.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list oauth connections: %w", err)
	}
	return conns, nil
}

func (s *OAuthService) publish(ctx context.Context, event domain.Event) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Publish(ctx, event)
}

func (s *OAuthService) resolveProvider(name string) (domain.OAuthProvider, error) {
	provider, err := domain.ParseOAuthProvider(name)
	if err != nil {
		return "", ErrUnknownProvider
	}
	if !s.providers.Enabled(provider) {
		return provider, ErrProviderDisabled
	}
	return provider, nil
}

func newConnection(userID string, provider domain.OAuthProvider, exchange *port.OAuthExchange, now time.Time) domain.OAuthConnection {
	conn := domain.OAuthConnection{
		ID:             uuid.NewString(),
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: exchange.Profile.ProviderUserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	applyExchange(&conn, exchange, now)
	return conn
}

func applyExchange(conn *domain.OAuthConnection, exchange *port.OAuthExchange, now time.Time) {
	if email := domain.NormalizeEmail(exchange.Profile.Email); email != "" {
		conn.Email = &email
	}
	if exchange.Profile.Name != "" {
		name := exchange.Profile.Name
		conn.Name = &name
	}
	if exchange.Profile.AvatarURL != "" {
		avatar := exchange.Profile.AvatarURL
		conn.AvatarURL = &avatar
	}
	if exchange.AccessToken != "" {
		access := exchange.AccessToken
		conn.AccessToken = &access
	}
	if exchange.RefreshToken != "" {
		refresh := exchange.RefreshToken
		conn.RefreshToken = &refresh
	}
	if !exchange.TokenExpiresAt.IsZero() {
		expires := exchange.TokenExpiresAt
		conn.TokenExpiresAt = &expires
	}
	conn.UpdatedAt = now
}
