package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"

	"github.com/learnhub/iam-service/internal/core/domain"
	"github.com/learnhub/iam-service/internal/core/port"
	"github.com/learnhub/iam-service/internal/repository"
)

var (
	// ErrRoleNotFound indicates no role matches the given identifier.
	ErrRoleNotFound = errors.New("role not found")
	// ErrRoleExists indicates a role with the name already exists.
	ErrRoleExists = errors.New("role already exists")
	// ErrSystemRole indicates the operation is refused on a system role.
	ErrSystemRole = errors.New("system roles cannot be deleted")
	// ErrRoleAlreadyAssigned indicates the user already holds the role.
	ErrRoleAlreadyAssigned = errors.New("role already assigned")
	// ErrRoleNotAssigned indicates the user does not hold the role.
	ErrRoleNotAssigned = errors.New("role is not assigned")
	// ErrSelfDemotion indicates an administrator attempted to strip their own
	// admin role.
	ErrSelfDemotion = errors.New("cannot remove your own admin role")
	// ErrUserNotFound indicates no user matches the given identifier.
	ErrUserNotFound = errors.New("user not found")
)

// CreateRoleInput carries the fields accepted when defining a role.
type CreateRoleInput struct {
	Name        string
	Description *string
}

// RoleService administers role definitions and user role membership.
type RoleService struct {
	users     port.UserRepository
	roles     port.RoleRepository
	publisher port.EventPublisher
}

// NewRoleService constructs a RoleService.
func NewRoleService(users port.UserRepository, roles port.RoleRepository, publisher port.EventPublisher) *RoleService {
	return &RoleService{users: users, roles: roles, publisher: publisher}
}

// CreateRole defines a new non-system role.
func (s *RoleService) CreateRole(ctx context.Context, in CreateRoleInput) (*domain.Role, error) {
	name := strings.ToLower(strings.TrimSpace(in.Name))
	if name == "" {
		return nil, fmt.Errorf("role name is required")
	}

	now := time.Now().UTC()
	role := domain.Role{
		ID:          uuid.NewString(),
		Name:        name,
		Description: in.Description,
		IsSystem:    false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.roles.Create(ctx, role); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrRoleExists
		}
		return nil, fmt.Errorf("create role: %w", err)
	}

	return &role, nil
}

// GetRole loads a role by id.
func (s *RoleService) GetRole(ctx context.Context, roleID string) (*domain.Role, error) {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("lookup role: %w", err)
	}
	return role, nil
}

// ListRoles returns every role definition.
func (s *RoleService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	return roles, nil
}

// DeleteRole removes a non-system role. Membership and grant rows cascade in
// the store.
func (s *RoleService) DeleteRole(ctx context.Context, roleID string) error {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("lookup role: %w", err)
	}
	if role.IsSystem {
		return ErrSystemRole
	}

	if err := s.roles.Delete(ctx, role.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("delete role: %w", err)
	}
	return nil
}

// AssignRole grants a role to a user. Re-assigning a held role is an error so
// callers surface duplicated administrative intent.
func (s *RoleService) AssignRole(ctx context.Context, actorID, userID, roleID string) error {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("lookup role: %w", err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if user.HasRole(role.Name) {
		return ErrRoleAlreadyAssigned
	}

	if err := s.users.AssignRole(ctx, userID, roleID); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrRoleAlreadyAssigned
		}
		return fmt.Errorf("assign role: %w", err)
	}

	s.publish(ctx, domain.RolesAssignedEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		RoleID:     role.ID,
		RoleName:   role.Name,
		AssignedBy: actorID,
		AssignedAt: time.Now().UTC(),
	})
	return nil
}

// RemoveRole revokes a role from a user. An administrator cannot strip their
// own admin role, which keeps at least one reachable admin path alive.
func (s *RoleService) RemoveRole(ctx context.Context, actorID, userID, roleID string) error {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("lookup role: %w", err)
	}

	if role.Name == domain.RoleAdmin && actorID == userID {
		return ErrSelfDemotion
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if !user.HasRole(role.Name) {
		return ErrRoleNotAssigned
	}

	if err := s.users.RemoveRole(ctx, userID, roleID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotAssigned
		}
		return fmt.Errorf("remove role: %w", err)
	}

	s.publish(ctx, domain.RolesRevokedEvent{
		EventID:   uuid.NewString(),
		UserID:    userID,
		RoleID:    role.ID,
		RoleName:  role.Name,
		RevokedBy: actorID,
		RevokedAt: time.Now().UTC(),
	})
	return nil
}

// ListUserRoles returns the roles held by a user.
func (s *RoleService) ListUserRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	roles, err := s.roles.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	return roles, nil
}

func (s *RoleService) publish(ctx context.Context, event domain.Event) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Publish(ctx, event)
}
