package port

import (
	"context"

	"github.com/learnhub/iam-service/internal/core/domain"
)

// PermissionFilter narrows permission listings.
type PermissionFilter struct {
	Resource string
	Limit    int
	Offset   int
}

// PermissionRepository persists permissions, role grants, and direct user grants.
type PermissionRepository interface {
	Create(ctx context.Context, permission domain.Permission) error
	GetByID(ctx context.Context, id string) (*domain.Permission, error)
	GetByName(ctx context.Context, name string) (*domain.Permission, error)
	List(ctx context.Context, filter PermissionFilter) ([]domain.Permission, error)
	Count(ctx context.Context, filter PermissionFilter) (int, error)
	Delete(ctx context.Context, id string) error

	// ListByRoles returns the union of permissions granted to the given roles.
	ListByRoles(ctx context.Context, roleIDs []string) ([]domain.Permission, error)
	// ListDirectByUser returns permissions granted to the user bypassing roles.
	ListDirectByUser(ctx context.Context, userID string) ([]domain.Permission, error)

	// GrantToUser is idempotent: re-granting an already-held permission succeeds.
	GrantToUser(ctx context.Context, userID, permissionID string) error
	RevokeFromUser(ctx context.Context, userID, permissionID string) error
}
