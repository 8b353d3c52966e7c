package port

import (
	"context"
	"time"

	"github.com/learnhub/iam-service/internal/core/domain"
)

// TokenRepository persists refresh tokens keyed by their opaque value.
type TokenRepository interface {
	Create(ctx context.Context, token domain.RefreshToken) error
	GetByToken(ctx context.Context, token string) (*domain.RefreshToken, error)

	// Rotate atomically inserts the replacement and revokes the old token,
	// gated on the old token still being unrevoked. When a concurrent
	// rotation already consumed the old token it returns
	// repository.ErrConflict and persists nothing.
	Rotate(ctx context.Context, oldToken string, replacement domain.RefreshToken) error

	Revoke(ctx context.Context, token string, at time.Time) error
	// RevokeAllForUser revokes every active token for the user and returns
	// how many rows changed.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error)

	// DeleteExpired removes rows whose expiry predates the cutoff,
	// revoked or not. Active unexpired tokens are never touched.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
