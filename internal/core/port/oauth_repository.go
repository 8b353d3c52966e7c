package port

import (
	"context"

	"github.com/learnhub/iam-service/internal/core/domain"
)

// OAuthConnectionRepository persists links between users and external identities.
type OAuthConnectionRepository interface {
	Create(ctx context.Context, conn domain.OAuthConnection) error
	GetByProviderUserID(ctx context.Context, provider domain.OAuthProvider, providerUserID string) (*domain.OAuthConnection, error)
	GetByUserAndProvider(ctx context.Context, userID string, provider domain.OAuthProvider) (*domain.OAuthConnection, error)
	ListByUser(ctx context.Context, userID string) ([]domain.OAuthConnection, error)
	CountByUser(ctx context.Context, userID string) (int, error)
	Update(ctx context.Context, conn domain.OAuthConnection) error
	Delete(ctx context.Context, id string) error

	// CreateUserWithConnection creates a password-less user together with its
	// first connection in a single transaction, so a failed connection insert
	// never leaves an orphaned account.
	CreateUserWithConnection(ctx context.Context, user domain.User, conn domain.OAuthConnection) error
}
