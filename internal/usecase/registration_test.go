package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/learnhub/iam-service/internal/core/domain"
	"github.com/learnhub/iam-service/internal/infra/security"
)

func newTestRegistrationService(t *testing.T, users *testUserRepo, tokens *testTokenRepo, publisher *capturingPublisher) *RegistrationService {
	t.Helper()

	hasher, err := security.NewHasher(security.DefaultArgon2Config())
	if err != nil {
		t.Fatalf("create hasher: %v", err)
	}
	auth := newTestAuthService(t, users, tokens, publisher)
	return NewRegistrationService(users, auth, hasher, security.DefaultPasswordValidator(), acceptAllEmails{}, publisher)
}

func TestRegisterSuccess(t *testing.T) {
	users := newTestUserRepo()
	tokens := newTestTokenRepo()
	publisher := &capturingPublisher{}
	svc := newTestRegistrationService(t, users, tokens, publisher)

	session, err := svc.Register(context.Background(), RegisterInput{
		Email:    " New.Student@LearnHub.io ",
		Password: "brisk otter vault 9",
		FullName: "New Student",
	}, SessionMetadata{})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}

	if len(users.created) != 1 {
		t.Fatalf("expected 1 created user, got %d", len(users.created))
	}
	created := users.created[0]
	if created.Email != "new.student@learnhub.io" {
		t.Fatalf("stored email = %s, want normalized form", created.Email)
	}
	if created.ID == "" {
		t.Fatal("user id must be generated")
	}
	if !created.IsActive {
		t.Fatal("new accounts start active")
	}
	if created.PasswordHash == nil || *created.PasswordHash == "brisk otter vault 9" {
		t.Fatal("password must be stored hashed")
	}

	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatal("registration must sign the account in")
	}

	names := publisher.names()
	if len(names) != 1 || names[0] != "iam.user.registered" {
		t.Fatalf("published events = %v", names)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	existing := domain.User{ID: "user-1", Email: "taken@learnhub.io", IsActive: true}
	svc := newTestRegistrationService(t, newTestUserRepo(existing), newTestTokenRepo(), &capturingPublisher{})

	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "Taken@LearnHub.io",
		Password: "brisk otter vault 9",
		FullName: "Imposter",
	}, SessionMetadata{})
	if !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("Register error = %v, want %v", err, ErrEmailTaken)
	}
}

func TestRegisterInvalidEmail(t *testing.T) {
	users := newTestUserRepo()
	tokens := newTestTokenRepo()
	publisher := &capturingPublisher{}
	hasher, err := security.NewHasher(security.DefaultArgon2Config())
	if err != nil {
		t.Fatalf("create hasher: %v", err)
	}
	auth := newTestAuthService(t, users, tokens, publisher)
	svc := NewRegistrationService(users, auth, hasher, security.DefaultPasswordValidator(), security.NewMailboxValidator(), publisher)

	for _, email := range []string{"", "no-at-sign", "a@b", "trailing@dot."} {
		if _, err := svc.Register(context.Background(), RegisterInput{
			Email:    email,
			Password: "brisk otter vault 9",
		}, SessionMetadata{}); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("Register(%q) error = %v, want %v", email, err, ErrInvalidEmail)
		}
	}
}

func TestRegisterWeakPassword(t *testing.T) {
	svc := newTestRegistrationService(t, newTestUserRepo(), newTestTokenRepo(), &capturingPublisher{})

	tests := []struct {
		name     string
		password string
		code     string
	}{
		{"too short", "ab1", "min_length"},
		{"no digit", "onlyletters", "digit"},
		{"no letter", "123456789", "letter"},
		{"guessable", "password1", "weak_password"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), RegisterInput{
				Email:    "weak@learnhub.io",
				Password: tc.password,
			}, SessionMetadata{})

			var validationErr *security.PasswordValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("Register error = %v, want password validation error", err)
			}
			if validationErr.Code != tc.code {
				t.Fatalf("violation code = %s, want %s", validationErr.Code, tc.code)
			}
		})
	}
}
