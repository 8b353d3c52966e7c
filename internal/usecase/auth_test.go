package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/learnhub/iam-service/internal/core/domain"
)

func TestLoginSuccess(t *testing.T) {
	user := domain.User{
		ID:           "user-1",
		Email:        "student@learnhub.io",
		PasswordHash: mustHash(t, "correct horse 42"),
		FullName:     "Student One",
		IsActive:     true,
		Roles:        []string{"student"},
	}
	users := newTestUserRepo(user)
	tokens := newTestTokenRepo()
	publisher := &capturingPublisher{}
	auth := newTestAuthService(t, users, tokens, publisher)

	session, err := auth.Login(context.Background(), "  Student@LearnHub.io ", "correct horse 42", SessionMetadata{})
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatal("expected access and refresh tokens")
	}
	if session.User.PasswordHash != nil {
		t.Fatal("session user must not carry the password hash")
	}
	if len(tokens.created) != 1 {
		t.Fatalf("expected 1 stored refresh token, got %d", len(tokens.created))
	}
	if tokens.created[0].UserID != "user-1" {
		t.Fatalf("refresh token stored for wrong user: %s", tokens.created[0].UserID)
	}

	claims, err := auth.ParseAccessToken(session.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken returned error: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("claims uid = %s, want user-1", claims.UserID)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "student" {
		t.Fatalf("claims roles = %v, want [student]", claims.Roles)
	}

	names := publisher.names()
	if len(names) != 1 || names[0] != "iam.user.logged_in" {
		t.Fatalf("published events = %v", names)
	}
}

func TestLoginFailures(t *testing.T) {
	activeUser := domain.User{
		ID:           "user-1",
		Email:        "student@learnhub.io",
		PasswordHash: mustHash(t, "correct horse 42"),
		IsActive:     true,
	}
	inactiveUser := domain.User{
		ID:           "user-2",
		Email:        "banned@learnhub.io",
		PasswordHash: mustHash(t, "correct horse 42"),
		IsActive:     false,
	}
	oauthOnlyUser := domain.User{
		ID:       "user-3",
		Email:    "social@learnhub.io",
		IsActive: true,
	}

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"unknown email", "nobody@learnhub.io", "correct horse 42", ErrInvalidCredentials},
		{"wrong password", "student@learnhub.io", "wrong", ErrInvalidCredentials},
		{"inactive account", "banned@learnhub.io", "correct horse 42", ErrInactiveAccount},
		{"oauth-only account", "social@learnhub.io", "correct horse 42", ErrInvalidCredentials},
	}

	users := newTestUserRepo(activeUser, inactiveUser, oauthOnlyUser)
	tokens := newTestTokenRepo()
	auth := newTestAuthService(t, users, tokens, &capturingPublisher{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := auth.Login(context.Background(), tc.email, tc.password, SessionMetadata{})
			if !errors.Is(err, tc.want) {
				t.Fatalf("Login error = %v, want %v", err, tc.want)
			}
		})
	}

	if len(tokens.created) != 0 {
		t.Fatalf("no refresh tokens should be stored on failed logins, got %d", len(tokens.created))
	}
}

func TestParseAccessTokenExpired(t *testing.T) {
	user := domain.User{ID: "user-1", Email: "student@learnhub.io", IsActive: true}
	users := newTestUserRepo(user)
	auth := newTestAuthService(t, users, newTestTokenRepo(), nil)
	auth.cfg.JWT.AccessTokenTTL = time.Nanosecond

	session, err := auth.IssueSession(context.Background(), user, SessionMetadata{})
	if err != nil {
		t.Fatalf("IssueSession returned error: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	if _, err := auth.ParseAccessToken(session.AccessToken); !errors.Is(err, ErrExpiredAccessToken) {
		t.Fatalf("ParseAccessToken error = %v, want %v", err, ErrExpiredAccessToken)
	}
}

func TestParseAccessTokenInvalid(t *testing.T) {
	auth := newTestAuthService(t, newTestUserRepo(), newTestTokenRepo(), nil)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := auth.ParseAccessToken(token); !errors.Is(err, ErrInvalidAccessToken) {
			t.Fatalf("ParseAccessToken(%q) error = %v, want %v", token, err, ErrInvalidAccessToken)
		}
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	user := domain.User{ID: "user-1", Email: "student@learnhub.io", IsActive: true, Roles: []string{"student"}}
	now := time.Now().UTC()
	existing := domain.RefreshToken{
		Token:     "refresh-1",
		UserID:    "user-1",
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(time.Hour),
	}
	users := newTestUserRepo(user)
	tokens := newTestTokenRepo(existing)
	auth := newTestAuthService(t, users, tokens, &capturingPublisher{})

	session, err := auth.Refresh(context.Background(), "refresh-1", SessionMetadata{})
	if err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}
	if session.RefreshToken == "refresh-1" {
		t.Fatal("refresh must return a new token value")
	}
	if len(tokens.rotations) != 1 {
		t.Fatalf("expected 1 rotation, got %d", len(tokens.rotations))
	}

	old := tokens.stored["refresh-1"]
	if old.RevokedAt == nil || old.ReplacedByToken == nil {
		t.Fatal("old token must be revoked and point at its replacement")
	}
	if *old.ReplacedByToken != session.RefreshToken {
		t.Fatalf("replacement pointer = %s, want %s", *old.ReplacedByToken, session.RefreshToken)
	}
}

func TestRefreshDetectsReuse(t *testing.T) {
	now := time.Now().UTC()
	revokedAt := now.Add(-time.Minute)
	replacement := "refresh-2"
	rotated := domain.RefreshToken{
		Token:           "refresh-1",
		UserID:          "user-1",
		CreatedAt:       now.Add(-time.Hour),
		ExpiresAt:       now.Add(time.Hour),
		RevokedAt:       &revokedAt,
		ReplacedByToken: &replacement,
	}
	live := domain.RefreshToken{
		Token:     replacement,
		UserID:    "user-1",
		CreatedAt: revokedAt,
		ExpiresAt: now.Add(time.Hour),
	}
	users := newTestUserRepo(domain.User{ID: "user-1", Email: "student@learnhub.io", IsActive: true})
	tokens := newTestTokenRepo(rotated, live)
	publisher := &capturingPublisher{}
	auth := newTestAuthService(t, users, tokens, publisher)

	_, err := auth.Refresh(context.Background(), "refresh-1", SessionMetadata{})
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("Refresh error = %v, want %v", err, ErrInvalidRefreshToken)
	}

	// Reuse of a rotated token kills the whole chain.
	if tokens.stored[replacement].RevokedAt == nil {
		t.Fatal("descendant token must be revoked after reuse detection")
	}

	names := publisher.names()
	if len(names) != 1 || names[0] != "iam.token.reuse_detected" {
		t.Fatalf("published events = %v, want [iam.token.reuse_detected]", names)
	}
}

func TestRefreshReuseNotifiesObserver(t *testing.T) {
	now := time.Now().UTC()
	revokedAt := now.Add(-time.Minute)
	replacement := "refresh-2"
	rotated := domain.RefreshToken{
		Token:           "refresh-1",
		UserID:          "user-1",
		CreatedAt:       now.Add(-time.Hour),
		ExpiresAt:       now.Add(time.Hour),
		RevokedAt:       &revokedAt,
		ReplacedByToken: &replacement,
	}
	users := newTestUserRepo(domain.User{ID: "user-1", Email: "student@learnhub.io", IsActive: true})
	auth := newTestAuthService(t, users, newTestTokenRepo(rotated), &capturingPublisher{})

	observed := 0
	auth.WithReuseObserver(func() { observed++ })

	_, err := auth.Refresh(context.Background(), "refresh-1", SessionMetadata{})
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("Refresh error = %v, want %v", err, ErrInvalidRefreshToken)
	}
	if observed != 1 {
		t.Fatalf("observer fired %d times, want 1", observed)
	}
}

func TestRefreshPlainRevokedTokenDoesNotTriggerReuse(t *testing.T) {
	now := time.Now().UTC()
	revokedAt := now.Add(-time.Minute)
	revoked := domain.RefreshToken{
		Token:     "refresh-1",
		UserID:    "user-1",
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(time.Hour),
		RevokedAt: &revokedAt,
	}
	publisher := &capturingPublisher{}
	auth := newTestAuthService(t, newTestUserRepo(), newTestTokenRepo(revoked), publisher)

	_, err := auth.Refresh(context.Background(), "refresh-1", SessionMetadata{})
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("Refresh error = %v, want %v", err, ErrInvalidRefreshToken)
	}
	if len(publisher.events) != 0 {
		t.Fatalf("a logout-revoked token must not publish reuse events, got %v", publisher.names())
	}
}

func TestRefreshExpiredToken(t *testing.T) {
	now := time.Now().UTC()
	expired := domain.RefreshToken{
		Token:     "refresh-1",
		UserID:    "user-1",
		CreatedAt: now.Add(-48 * time.Hour),
		ExpiresAt: now.Add(-time.Hour),
	}
	auth := newTestAuthService(t, newTestUserRepo(), newTestTokenRepo(expired), &capturingPublisher{})

	_, err := auth.Refresh(context.Background(), "refresh-1", SessionMetadata{})
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("Refresh error = %v, want %v", err, ErrInvalidRefreshToken)
	}
}

func TestRefreshUnknownToken(t *testing.T) {
	auth := newTestAuthService(t, newTestUserRepo(), newTestTokenRepo(), &capturingPublisher{})

	_, err := auth.Refresh(context.Background(), "never-issued", SessionMetadata{})
	if !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("Refresh error = %v, want %v", err, ErrInvalidRefreshToken)
	}
}

func TestRefreshInactiveUser(t *testing.T) {
	now := time.Now().UTC()
	token := domain.RefreshToken{
		Token:     "refresh-1",
		UserID:    "user-1",
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(time.Hour),
	}
	users := newTestUserRepo(domain.User{ID: "user-1", Email: "banned@learnhub.io", IsActive: false})
	auth := newTestAuthService(t, users, newTestTokenRepo(token), &capturingPublisher{})

	_, err := auth.Refresh(context.Background(), "refresh-1", SessionMetadata{})
	if !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("Refresh error = %v, want %v", err, ErrInactiveAccount)
	}
}

func TestLogoutSingleSession(t *testing.T) {
	now := time.Now().UTC()
	token := domain.RefreshToken{
		Token:     "refresh-1",
		UserID:    "user-1",
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(time.Hour),
	}
	tokens := newTestTokenRepo(token)
	publisher := &capturingPublisher{}
	auth := newTestAuthService(t, newTestUserRepo(), tokens, publisher)

	if err := auth.Logout(context.Background(), "refresh-1", false); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if tokens.stored["refresh-1"].RevokedAt == nil {
		t.Fatal("token must be revoked after logout")
	}

	names := publisher.names()
	if len(names) != 1 || names[0] != "iam.sessions.revoked" {
		t.Fatalf("published events = %v", names)
	}
}

func TestLogoutAllSessions(t *testing.T) {
	now := time.Now().UTC()
	first := domain.RefreshToken{Token: "refresh-1", UserID: "user-1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	second := domain.RefreshToken{Token: "refresh-2", UserID: "user-1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	other := domain.RefreshToken{Token: "refresh-3", UserID: "user-2", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	tokens := newTestTokenRepo(first, second, other)
	auth := newTestAuthService(t, newTestUserRepo(), tokens, &capturingPublisher{})

	if err := auth.Logout(context.Background(), "refresh-1", true); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	if tokens.stored["refresh-1"].RevokedAt == nil || tokens.stored["refresh-2"].RevokedAt == nil {
		t.Fatal("all of the user's tokens must be revoked")
	}
	if tokens.stored["refresh-3"].RevokedAt != nil {
		t.Fatal("other users' tokens must be untouched")
	}
}
