package domain

import (
	"fmt"
	"strings"
	"time"
)

// RoleAdmin is the system role granted the blanket admin wildcard.
const RoleAdmin = "admin"

// WildcardAction matches every action on a resource when used in a permission name.
const WildcardAction = "*"

// Role defines a named permission bundle. System roles cannot be deleted.
type Role struct {
	ID          string
	Name        string
	Description *string
	IsSystem    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission defines an atomic capability in resource:action form.
type Permission struct {
	ID          string
	Name        string
	Resource    string
	Action      string
	Description *string
	CreatedAt   time.Time
}

// NewPermissionName builds the canonical lowercase resource:action name.
func NewPermissionName(resource, action string) string {
	return strings.ToLower(strings.TrimSpace(resource)) + ":" + strings.ToLower(strings.TrimSpace(action))
}

// ParsePermissionName splits a canonical permission name into its parts.
func ParsePermissionName(name string) (resource, action string, err error) {
	parts := strings.SplitN(strings.ToLower(strings.TrimSpace(name)), ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid permission name %q: want resource:action", name)
	}
	return parts[0], parts[1], nil
}

// Allows reports whether this permission satisfies the required capability,
// either literally or through the resource wildcard.
func (p Permission) Allows(required string) bool {
	required = strings.ToLower(strings.TrimSpace(required))
	if p.Name == required {
		return true
	}
	if p.Action != WildcardAction {
		return false
	}
	resource, _, err := ParsePermissionName(required)
	if err != nil {
		return false
	}
	return p.Resource == resource
}

// PermissionSet is a user's effective permission set keyed by canonical name.
type PermissionSet map[string]struct{}

// NewPermissionSet collects permissions into a set.
func NewPermissionSet(permissions ...Permission) PermissionSet {
	set := make(PermissionSet, len(permissions))
	set.Add(permissions...)
	return set
}

// Add unions more permissions into the set.
func (s PermissionSet) Add(permissions ...Permission) {
	for _, p := range permissions {
		if p.Name != "" {
			s[p.Name] = struct{}{}
		}
	}
}

// Allows tests literal match first, then the resource:* wildcard.
func (s PermissionSet) Allows(required string) bool {
	required = strings.ToLower(strings.TrimSpace(required))
	if _, ok := s[required]; ok {
		return true
	}
	resource, _, err := ParsePermissionName(required)
	if err != nil {
		return false
	}
	_, ok := s[NewPermissionName(resource, WildcardAction)]
	return ok
}

// UserRole assigns a role to a user.
type UserRole struct {
	UserID     string
	RoleID     string
	AssignedAt time.Time
}

// RolePermission links a role with a permission.
type RolePermission struct {
	RoleID       string
	PermissionID string
}

// UserPermission grants a permission directly to a user, bypassing roles.
type UserPermission struct {
	UserID       string
	PermissionID string
	GrantedAt    time.Time
}
