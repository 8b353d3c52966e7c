package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/learnhub/iam-service/internal/core/domain"
)

func TestCreateRole(t *testing.T) {
	roles := newTestRoleRepo()
	svc := NewRoleService(newTestUserRepo(), roles, &capturingPublisher{})

	role, err := svc.CreateRole(context.Background(), CreateRoleInput{Name: " Instructor "})
	if err != nil {
		t.Fatalf("CreateRole returned error: %v", err)
	}
	if role.Name != "instructor" {
		t.Fatalf("role name = %s, want normalized instructor", role.Name)
	}
	if role.IsSystem {
		t.Fatal("api-created roles are never system roles")
	}
	if role.ID == "" {
		t.Fatal("role id must be generated")
	}
}

func TestCreateRoleDuplicate(t *testing.T) {
	existing := domain.Role{ID: "role-1", Name: "instructor"}
	svc := NewRoleService(newTestUserRepo(), newTestRoleRepo(existing), &capturingPublisher{})

	_, err := svc.CreateRole(context.Background(), CreateRoleInput{Name: "instructor"})
	if !errors.Is(err, ErrRoleExists) {
		t.Fatalf("CreateRole error = %v, want %v", err, ErrRoleExists)
	}
}

func TestDeleteRole(t *testing.T) {
	custom := domain.Role{ID: "role-1", Name: "instructor"}
	system := domain.Role{ID: "role-2", Name: domain.RoleAdmin, IsSystem: true}
	roles := newTestRoleRepo(custom, system)
	svc := NewRoleService(newTestUserRepo(), roles, &capturingPublisher{})

	if err := svc.DeleteRole(context.Background(), "role-1"); err != nil {
		t.Fatalf("DeleteRole returned error: %v", err)
	}

	if err := svc.DeleteRole(context.Background(), "role-2"); !errors.Is(err, ErrSystemRole) {
		t.Fatalf("DeleteRole(system) error = %v, want %v", err, ErrSystemRole)
	}

	if err := svc.DeleteRole(context.Background(), "missing"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("DeleteRole(missing) error = %v, want %v", err, ErrRoleNotFound)
	}
}

func TestAssignRole(t *testing.T) {
	role := domain.Role{ID: "role-1", Name: "instructor"}
	user := domain.User{ID: "user-1", Email: "student@learnhub.io", IsActive: true}
	users := newTestUserRepo(user)
	publisher := &capturingPublisher{}
	svc := NewRoleService(users, newTestRoleRepo(role), publisher)

	if err := svc.AssignRole(context.Background(), "admin-1", "user-1", "role-1"); err != nil {
		t.Fatalf("AssignRole returned error: %v", err)
	}
	if len(users.assigned) != 1 || users.assigned[0] != [2]string{"user-1", "role-1"} {
		t.Fatalf("assigned = %v", users.assigned)
	}

	names := publisher.names()
	if len(names) != 1 || names[0] != "iam.user.roles.assigned" {
		t.Fatalf("published events = %v", names)
	}
}

func TestAssignRoleAlreadyHeld(t *testing.T) {
	role := domain.Role{ID: "role-1", Name: "instructor"}
	user := domain.User{ID: "user-1", Email: "a@learnhub.io", IsActive: true, Roles: []string{"instructor"}}
	svc := NewRoleService(newTestUserRepo(user), newTestRoleRepo(role), &capturingPublisher{})

	err := svc.AssignRole(context.Background(), "admin-1", "user-1", "role-1")
	if !errors.Is(err, ErrRoleAlreadyAssigned) {
		t.Fatalf("AssignRole error = %v, want %v", err, ErrRoleAlreadyAssigned)
	}
}

func TestAssignRoleMissingTargets(t *testing.T) {
	role := domain.Role{ID: "role-1", Name: "instructor"}
	user := domain.User{ID: "user-1", Email: "a@learnhub.io", IsActive: true}
	svc := NewRoleService(newTestUserRepo(user), newTestRoleRepo(role), &capturingPublisher{})

	if err := svc.AssignRole(context.Background(), "admin-1", "user-1", "missing"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("AssignRole error = %v, want %v", err, ErrRoleNotFound)
	}
	if err := svc.AssignRole(context.Background(), "admin-1", "missing", "role-1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("AssignRole error = %v, want %v", err, ErrUserNotFound)
	}
}

func TestRemoveRole(t *testing.T) {
	role := domain.Role{ID: "role-1", Name: "instructor"}
	user := domain.User{ID: "user-1", Email: "a@learnhub.io", IsActive: true, Roles: []string{"instructor"}}
	users := newTestUserRepo(user)
	publisher := &capturingPublisher{}
	svc := NewRoleService(users, newTestRoleRepo(role), publisher)

	if err := svc.RemoveRole(context.Background(), "admin-1", "user-1", "role-1"); err != nil {
		t.Fatalf("RemoveRole returned error: %v", err)
	}
	if len(users.removed) != 1 || users.removed[0] != [2]string{"user-1", "role-1"} {
		t.Fatalf("removed = %v", users.removed)
	}

	names := publisher.names()
	if len(names) != 1 || names[0] != "iam.user.roles.revoked" {
		t.Fatalf("published events = %v", names)
	}
}

func TestRemoveRoleNotHeld(t *testing.T) {
	role := domain.Role{ID: "role-1", Name: "instructor"}
	user := domain.User{ID: "user-1", Email: "a@learnhub.io", IsActive: true}
	svc := NewRoleService(newTestUserRepo(user), newTestRoleRepo(role), &capturingPublisher{})

	err := svc.RemoveRole(context.Background(), "admin-1", "user-1", "role-1")
	if !errors.Is(err, ErrRoleNotAssigned) {
		t.Fatalf("RemoveRole error = %v, want %v", err, ErrRoleNotAssigned)
	}
}

func TestRemoveLastRoleAllowed(t *testing.T) {
	// An account may end up with zero roles; authorization simply denies
	// everything until a new role is granted.
	role := domain.Role{ID: "role-1", Name: "student"}
	user := domain.User{ID: "user-1", Email: "a@learnhub.io", IsActive: true, Roles: []string{"student"}}
	users := newTestUserRepo(user)
	svc := NewRoleService(users, newTestRoleRepo(role), &capturingPublisher{})

	if err := svc.RemoveRole(context.Background(), "admin-1", "user-1", "role-1"); err != nil {
		t.Fatalf("RemoveRole returned error: %v", err)
	}
}

func TestRemoveRoleSelfDemotion(t *testing.T) {
	adminRole := domain.Role{ID: "role-1", Name: domain.RoleAdmin, IsSystem: true}
	admin := domain.User{ID: "admin-1", Email: "root@learnhub.io", IsActive: true, Roles: []string{domain.RoleAdmin}}
	users := newTestUserRepo(admin)
	svc := NewRoleService(users, newTestRoleRepo(adminRole), &capturingPublisher{})

	err := svc.RemoveRole(context.Background(), "admin-1", "admin-1", "role-1")
	if !errors.Is(err, ErrSelfDemotion) {
		t.Fatalf("RemoveRole error = %v, want %v", err, ErrSelfDemotion)
	}
	if len(users.removed) != 0 {
		t.Fatal("self-demotion must not reach the repository")
	}

	// Another admin can still demote them.
	if err := svc.RemoveRole(context.Background(), "admin-2", "admin-1", "role-1"); err != nil {
		t.Fatalf("RemoveRole by peer returned error: %v", err)
	}
}

func TestListUserRoles(t *testing.T) {
	roles := newTestRoleRepo()
	roles.byUser["user-1"] = []domain.Role{
		{ID: "role-1", Name: "student", CreatedAt: time.Now()},
	}
	svc := NewRoleService(newTestUserRepo(), roles, &capturingPublisher{})

	held, err := svc.ListUserRoles(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListUserRoles returned error: %v", err)
	}
	if len(held) != 1 || held[0].Name != "student" {
		t.Fatalf("held roles = %+v", held)
	}
}
