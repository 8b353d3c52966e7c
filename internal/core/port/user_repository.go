package port

import (
	"context"

	"github.com/learnhub/iam-service/internal/core/domain"
)

// UserFilter narrows user listings.
type UserFilter struct {
	IsActive *bool
	Limit    int
	Offset   int
}

// UserRepository persists user aggregates. Lookups load the role membership
// set alongside the aggregate; role mutations go through the join-table
// methods so persistence replaces rows rather than diffing in place.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user domain.User) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	List(ctx context.Context, filter UserFilter) ([]domain.User, error)
	Count(ctx context.Context, filter UserFilter) (int, error)

	AssignRole(ctx context.Context, userID, roleID string) error
	RemoveRole(ctx context.Context, userID, roleID string) error
	ListRoleNames(ctx context.Context, userID string) ([]string, error)
}
