package domain

import "time"

// Event is a domain event queued on an aggregate and dispatched through the
// event publisher after the owning use case persists its changes.
type Event interface {
	// EventName returns the stable dotted event type, e.g. "iam.user.registered".
	EventName() string
}

// UserRegisteredEvent is emitted once per new account, whatever the
// registration method (password or an OAuth provider).
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Email        string
	FullName     string
	Method       string
	RegisteredAt time.Time
}

func (UserRegisteredEvent) EventName() string { return "iam.user.registered" }

// UserLoggedInEvent is emitted on each successful credential or OAuth login.
type UserLoggedInEvent struct {
	EventID  string
	UserID   string
	Method   string
	IP       *string
	LoggedAt time.Time
}

func (UserLoggedInEvent) EventName() string { return "iam.user.logged_in" }

// RolesAssignedEvent is emitted when an administrator grants a role.
type RolesAssignedEvent struct {
	EventID    string
	UserID     string
	RoleID     string
	RoleName   string
	AssignedBy string
	AssignedAt time.Time
}

func (RolesAssignedEvent) EventName() string { return "iam.user.roles.assigned" }

// RolesRevokedEvent is emitted when an administrator removes a role.
type RolesRevokedEvent struct {
	EventID   string
	UserID    string
	RoleID    string
	RoleName  string
	RevokedBy string
	RevokedAt time.Time
}

func (RolesRevokedEvent) EventName() string { return "iam.user.roles.revoked" }

// PermissionsChangedEvent is emitted when a role's or user's grants change,
// so downstream caches can invalidate.
type PermissionsChangedEvent struct {
	EventID   string
	RoleID    *string
	UserID    *string
	ChangedBy string
	ChangedAt time.Time
}

func (PermissionsChangedEvent) EventName() string { return "iam.permissions.changed" }

// SessionsRevokedEvent is emitted when one or all of a user's refresh tokens
// are revoked (logout, logout-all, password change).
type SessionsRevokedEvent struct {
	EventID       string
	UserID        string
	TokensRevoked int
	Reason        string
	RevokedAt     time.Time
}

func (SessionsRevokedEvent) EventName() string { return "iam.sessions.revoked" }

// TokenReuseDetectedEvent is emitted when an already-rotated refresh token is
// presented again, implying exfiltration of the token chain.
type TokenReuseDetectedEvent struct {
	EventID       string
	UserID        string
	TokensRevoked int
	IP            *string
	DetectedAt    time.Time
}

func (TokenReuseDetectedEvent) EventName() string { return "iam.token.reuse_detected" }

// PasswordChangedEvent is emitted after a successful password change.
type PasswordChangedEvent struct {
	EventID         string
	UserID          string
	SessionsRevoked int
	ChangedAt       time.Time
}

func (PasswordChangedEvent) EventName() string { return "iam.user.password.changed" }

// OAuthLinkedEvent is emitted when a provider is linked to an account.
type OAuthLinkedEvent struct {
	EventID  string
	UserID   string
	Provider OAuthProvider
	LinkedAt time.Time
}

func (OAuthLinkedEvent) EventName() string { return "iam.oauth.linked" }

// OAuthUnlinkedEvent is emitted when a provider link is removed.
type OAuthUnlinkedEvent struct {
	EventID    string
	UserID     string
	Provider   OAuthProvider
	UnlinkedAt time.Time
}

func (OAuthUnlinkedEvent) EventName() string { return "iam.oauth.unlinked" }
