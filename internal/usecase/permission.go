package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	uuid "github.com/google/uuid"

	"github.com/learnhub/iam-service/internal/core/domain"
	"github.com/learnhub/iam-service/internal/core/port"
	"github.com/learnhub/iam-service/internal/repository"
)

var (
	// ErrPermissionNotFound indicates no permission matches the identifier.
	ErrPermissionNotFound = errors.New("permission not found")
	// ErrPermissionExists indicates a permission with the name already exists.
	ErrPermissionExists = errors.New("permission already exists")
	// ErrInvalidPermissionName indicates the name is not resource:action form.
	ErrInvalidPermissionName = errors.New("invalid permission name")
)

// adminWildcard is the blanket capability held by the admin system role.
var adminWildcard = domain.NewPermissionName(domain.RoleAdmin, domain.WildcardAction)

// CreatePermissionInput carries the fields accepted when defining a permission.
type CreatePermissionInput struct {
	Resource    string
	Action      string
	Description *string
}

// PermissionService administers permission definitions and resolves effective
// capability sets.
type PermissionService struct {
	roles       port.RoleRepository
	permissions port.PermissionRepository
	publisher   port.EventPublisher
}

// NewPermissionService constructs a PermissionService.
func NewPermissionService(roles port.RoleRepository, permissions port.PermissionRepository, publisher port.EventPublisher) *PermissionService {
	return &PermissionService{roles: roles, permissions: permissions, publisher: publisher}
}

// CreatePermission defines a new permission.
func (s *PermissionService) CreatePermission(ctx context.Context, in CreatePermissionInput) (*domain.Permission, error) {
	name := domain.NewPermissionName(in.Resource, in.Action)
	resource, action, err := domain.ParsePermissionName(name)
	if err != nil {
		return nil, ErrInvalidPermissionName
	}

	permission := domain.Permission{
		ID:          uuid.NewString(),
		Name:        name,
		Resource:    resource,
		Action:      action,
		Description: in.Description,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.permissions.Create(ctx, permission); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrPermissionExists
		}
		return nil, fmt.Errorf("create permission: %w", err)
	}

	return &permission, nil
}

// ListPermissions returns permission definitions, optionally filtered by resource.
func (s *PermissionService) ListPermissions(ctx context.Context, filter port.PermissionFilter) ([]domain.Permission, int, error) {
	permissions, err := s.permissions.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list permissions: %w", err)
	}
	total, err := s.permissions.Count(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count permissions: %w", err)
	}
	return permissions, total, nil
}

// DeletePermission removes a permission definition. Grant rows cascade in the store.
func (s *PermissionService) DeletePermission(ctx context.Context, permissionID string) error {
	if err := s.permissions.Delete(ctx, permissionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPermissionNotFound
		}
		return fmt.Errorf("delete permission: %w", err)
	}
	return nil
}

// GrantToRole grants permissions to a role. Already-held grants are skipped.
func (s *PermissionService) GrantToRole(ctx context.Context, actorID, roleID string, permissionIDs []string) error {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("lookup role: %w", err)
	}

	for _, id := range permissionIDs {
		if _, err := s.permissions.GetByID(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrPermissionNotFound
			}
			return fmt.Errorf("lookup permission: %w", err)
		}
	}

	if err := s.roles.GrantPermissions(ctx, role.ID, permissionIDs); err != nil {
		return fmt.Errorf("grant permissions: %w", err)
	}

	s.publishChange(ctx, actorID, &role.ID, nil)
	return nil
}

// RevokeFromRole removes a permission grant from a role.
func (s *PermissionService) RevokeFromRole(ctx context.Context, actorID, roleID, permissionID string) error {
	if err := s.roles.RevokePermission(ctx, roleID, permissionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPermissionNotFound
		}
		return fmt.Errorf("revoke permission: %w", err)
	}

	s.publishChange(ctx, actorID, &roleID, nil)
	return nil
}

// ReplaceRolePermissions swaps the role's entire grant set.
func (s *PermissionService) ReplaceRolePermissions(ctx context.Context, actorID, roleID string, permissionIDs []string) error {
	role, err := s.roles.GetByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrRoleNotFound
		}
		return fmt.Errorf("lookup role: %w", err)
	}

	if err := s.roles.ReplacePermissions(ctx, role.ID, permissionIDs); err != nil {
		return fmt.Errorf("replace permissions: %w", err)
	}

	s.publishChange(ctx, actorID, &role.ID, nil)
	return nil
}

// GrantToUser grants a permission directly to a user, bypassing roles.
// Re-granting a held permission succeeds without effect.
func (s *PermissionService) GrantToUser(ctx context.Context, actorID, userID, permissionID string) error {
	if _, err := s.permissions.GetByID(ctx, permissionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPermissionNotFound
		}
		return fmt.Errorf("lookup permission: %w", err)
	}

	if err := s.permissions.GrantToUser(ctx, userID, permissionID); err != nil {
		return fmt.Errorf("grant permission to user: %w", err)
	}

	s.publishChange(ctx, actorID, nil, &userID)
	return nil
}

// RevokeFromUser removes a direct user grant.
func (s *PermissionService) RevokeFromUser(ctx context.Context, actorID, userID, permissionID string) error {
	if err := s.permissions.RevokeFromUser(ctx, userID, permissionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPermissionNotFound
		}
		return fmt.Errorf("revoke permission from user: %w", err)
	}

	s.publishChange(ctx, actorID, nil, &userID)
	return nil
}

// EffectivePermissions resolves the union of role-derived and directly
// granted permission names, sorted for stable output.
func (s *PermissionService) EffectivePermissions(ctx context.Context, userID string) ([]string, error) {
	set, err := s.effectiveSet(ctx, userID)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// HasPermission reports whether the user's effective set grants the required
// capability. Holders of the admin wildcard pass every check.
func (s *PermissionService) HasPermission(ctx context.Context, userID, required string) (bool, error) {
	set, err := s.effectiveSet(ctx, userID)
	if err != nil {
		return false, err
	}
	return capabilityGranted(set, required), nil
}

func (s *PermissionService) effectiveSet(ctx context.Context, userID string) (domain.PermissionSet, error) {
	roles, err := s.roles.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}

	set := domain.NewPermissionSet()

	if len(roles) > 0 {
		roleIDs := make([]string, len(roles))
		for i, role := range roles {
			roleIDs[i] = role.ID
		}
		granted, err := s.permissions.ListByRoles(ctx, roleIDs)
		if err != nil {
			return nil, fmt.Errorf("list role permissions: %w", err)
		}
		set.Add(granted...)
	}

	direct, err := s.permissions.ListDirectByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list direct permissions: %w", err)
	}
	set.Add(direct...)

	return set, nil
}

// capabilityGranted tests the required capability against the set, letting
// the admin wildcard grant everything.
func capabilityGranted(set domain.PermissionSet, required string) bool {
	if set.Allows(required) {
		return true
	}
	_, ok := set[adminWildcard]
	return ok
}

func (s *PermissionService) publishChange(ctx context.Context, actorID string, roleID, userID *string) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Publish(ctx, domain.PermissionsChangedEvent{
		EventID:   uuid.NewString(),
		RoleID:    roleID,
		UserID:    userID,
		ChangedBy: actorID,
		ChangedAt: time.Now().UTC(),
	})
}
