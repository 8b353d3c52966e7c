package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/learnhub/iam-service/internal/core/domain"
	"github.com/learnhub/iam-service/internal/core/port"
	"github.com/learnhub/iam-service/internal/infra/security"
)

func newTestUserService(t *testing.T, users *testUserRepo, tokens *testTokenRepo, publisher *capturingPublisher) *UserService {
	t.Helper()

	hasher, err := security.NewHasher(security.DefaultArgon2Config())
	if err != nil {
		t.Fatalf("create hasher: %v", err)
	}
	auth := newTestAuthService(t, users, tokens, publisher)
	return NewUserService(users, auth, hasher, security.DefaultPasswordValidator(), publisher)
}

func TestGetUserSanitizes(t *testing.T) {
	user := domain.User{ID: "user-1", Email: "a@learnhub.io", PasswordHash: mustHash(t, "correct horse 42"), IsActive: true}
	svc := newTestUserService(t, newTestUserRepo(user), newTestTokenRepo(), &capturingPublisher{})

	got, err := svc.GetUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetUser returned error: %v", err)
	}
	if got.PasswordHash != nil {
		t.Fatal("returned user must not carry the password hash")
	}

	if _, err := svc.GetUser(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("GetUser(missing) error = %v, want %v", err, ErrUserNotFound)
	}
}

func TestUpdateProfile(t *testing.T) {
	user := domain.User{ID: "user-1", Email: "a@learnhub.io", FullName: "Old Name", IsActive: true}
	users := newTestUserRepo(user)
	svc := newTestUserService(t, users, newTestTokenRepo(), &capturingPublisher{})

	newName := "New Name"
	phone := "+1 555 0100"
	updated, err := svc.UpdateProfile(context.Background(), "user-1", UpdateProfileInput{
		FullName: &newName,
		Phone:    &phone,
	})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if updated.FullName != "New Name" {
		t.Fatalf("full name = %s", updated.FullName)
	}
	if updated.Phone == nil || *updated.Phone != phone {
		t.Fatal("phone not applied")
	}
	if len(users.updated) != 1 {
		t.Fatalf("expected 1 repository update, got %d", len(users.updated))
	}
}

func TestSetActiveDeactivationRevokesSessions(t *testing.T) {
	user := domain.User{ID: "user-1", Email: "a@learnhub.io", IsActive: true}
	now := time.Now().UTC()
	token := domain.RefreshToken{Token: "refresh-1", UserID: "user-1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	users := newTestUserRepo(user)
	tokens := newTestTokenRepo(token)
	publisher := &capturingPublisher{}
	svc := newTestUserService(t, users, tokens, publisher)

	if err := svc.SetActive(context.Background(), "user-1", false); err != nil {
		t.Fatalf("SetActive returned error: %v", err)
	}
	if users.users["user-1"].IsActive {
		t.Fatal("user must be inactive")
	}
	if tokens.stored["refresh-1"].RevokedAt == nil {
		t.Fatal("deactivation must revoke live sessions")
	}

	names := publisher.names()
	if len(names) != 1 || names[0] != "iam.sessions.revoked" {
		t.Fatalf("published events = %v", names)
	}
}

func TestSetActiveIdempotent(t *testing.T) {
	user := domain.User{ID: "user-1", Email: "a@learnhub.io", IsActive: true}
	users := newTestUserRepo(user)
	svc := newTestUserService(t, users, newTestTokenRepo(), &capturingPublisher{})

	if err := svc.SetActive(context.Background(), "user-1", true); err != nil {
		t.Fatalf("SetActive returned error: %v", err)
	}
	if len(users.updated) != 0 {
		t.Fatal("no-op state changes must not hit the repository")
	}
}

func TestChangePassword(t *testing.T) {
	user := domain.User{ID: "user-1", Email: "a@learnhub.io", PasswordHash: mustHash(t, "old secret 1234"), IsActive: true}
	now := time.Now().UTC()
	token := domain.RefreshToken{Token: "refresh-1", UserID: "user-1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	users := newTestUserRepo(user)
	tokens := newTestTokenRepo(token)
	publisher := &capturingPublisher{}
	svc := newTestUserService(t, users, tokens, publisher)

	if err := svc.ChangePassword(context.Background(), "user-1", "old secret 1234", "brand new secret 5"); err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}

	stored, ok := users.passwords["user-1"]
	if !ok || stored == "brand new secret 5" {
		t.Fatal("new password must be stored hashed")
	}
	if tokens.stored["refresh-1"].RevokedAt == nil {
		t.Fatal("password change must revoke live sessions")
	}

	names := publisher.names()
	if len(names) != 2 || names[0] != "iam.sessions.revoked" || names[1] != "iam.user.password.changed" {
		t.Fatalf("published events = %v", names)
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	user := domain.User{ID: "user-1", Email: "a@learnhub.io", PasswordHash: mustHash(t, "old secret 1234"), IsActive: true}
	svc := newTestUserService(t, newTestUserRepo(user), newTestTokenRepo(), &capturingPublisher{})

	err := svc.ChangePassword(context.Background(), "user-1", "not the password", "brand new secret 5")
	if !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("ChangePassword error = %v, want %v", err, ErrPasswordMismatch)
	}
}

func TestChangePasswordSameAsCurrent(t *testing.T) {
	user := domain.User{ID: "user-1", Email: "a@learnhub.io", PasswordHash: mustHash(t, "old secret 1234"), IsActive: true}
	svc := newTestUserService(t, newTestUserRepo(user), newTestTokenRepo(), &capturingPublisher{})

	err := svc.ChangePassword(context.Background(), "user-1", "old secret 1234", "old secret 1234")
	var validationErr *security.PasswordValidationError
	if !errors.As(err, &validationErr) || validationErr.Code != "different" {
		t.Fatalf("ChangePassword error = %v, want different-password violation", err)
	}
}

func TestChangePasswordOAuthOnlyAccount(t *testing.T) {
	user := domain.User{ID: "user-1", Email: "social@learnhub.io", IsActive: true}
	svc := newTestUserService(t, newTestUserRepo(user), newTestTokenRepo(), &capturingPublisher{})

	err := svc.ChangePassword(context.Background(), "user-1", "anything", "brand new secret 5")
	if !errors.Is(err, ErrNoLocalPassword) {
		t.Fatalf("ChangePassword error = %v, want %v", err, ErrNoLocalPassword)
	}
}

func TestListUsers(t *testing.T) {
	first := domain.User{ID: "user-1", Email: "a@learnhub.io", PasswordHash: mustHash(t, "correct horse 42"), IsActive: true}
	second := domain.User{ID: "user-2", Email: "b@learnhub.io", IsActive: false}
	users := newTestUserRepo(first, second)
	svc := newTestUserService(t, users, newTestTokenRepo(), &capturingPublisher{})

	page, err := svc.ListUsers(context.Background(), port.UserFilter{})
	if err != nil {
		t.Fatalf("ListUsers returned error: %v", err)
	}
	if page.Total != 2 || len(page.Users) != 2 {
		t.Fatalf("page = %d of %d", len(page.Users), page.Total)
	}
	for _, user := range page.Users {
		if user.PasswordHash != nil {
			t.Fatal("listing must not expose password hashes")
		}
	}
}
