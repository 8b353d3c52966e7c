package port

import (
	"context"

	"github.com/learnhub/iam-service/internal/core/domain"
)

// RoleRepository persists roles and their permission grants.
type RoleRepository interface {
	Create(ctx context.Context, role domain.Role) error
	GetByID(ctx context.Context, id string) (*domain.Role, error)
	GetByName(ctx context.Context, name string) (*domain.Role, error)
	List(ctx context.Context) ([]domain.Role, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]domain.Role, error)

	// GrantPermissions is idempotent at the join-table level: re-granting an
	// already-held permission is not an error.
	GrantPermissions(ctx context.Context, roleID string, permissionIDs []string) error
	RevokePermission(ctx context.Context, roleID, permissionID string) error
	// ReplacePermissions swaps the role's full grant set in one transaction.
	ReplacePermissions(ctx context.Context, roleID string, permissionIDs []string) error
}
