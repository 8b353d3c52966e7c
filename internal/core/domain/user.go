package domain

import (
	"strings"
	"time"
)

// User is the identity aggregate for a platform account. Role membership is
// loaded alongside the aggregate by the repository; mutations go through the
// aggregate methods so the matching domain event is queued with the change.
type User struct {
	ID           string
	Email        string
	PasswordHash *string
	FullName     string
	Phone        *string
	PhotoURL     *string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Roles []string

	events []Event
}

// NormalizeEmail lowercases and trims an email address. Uniqueness is
// enforced case-insensitively at the persistence boundary against this form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// HasPassword reports whether the account carries a local credential.
func (u User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// CanAuthenticate reports whether the account retains at least one
// authentication method given the number of linked OAuth connections.
func (u User) CanAuthenticate(connectionCount int) bool {
	return u.HasPassword() || connectionCount > 0
}

// HasRole reports whether the role name is present in the loaded membership set.
func (u User) HasRole(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, role := range u.Roles {
		if role == name {
			return true
		}
	}
	return false
}

// AssignRole adds a role name to the in-memory membership set.
// Returns false when the role is already held.
func (u *User) AssignRole(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || u.HasRole(name) {
		return false
	}
	u.Roles = append(u.Roles, name)
	return true
}

// RemoveRole drops a role name from the in-memory membership set.
// Returns false when the role was not held.
func (u *User) RemoveRole(name string) bool {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, role := range u.Roles {
		if role == name {
			u.Roles = append(u.Roles[:i], u.Roles[i+1:]...)
			return true
		}
	}
	return false
}

// Deactivate flips the active flag off. Returns false when already inactive.
func (u *User) Deactivate() bool {
	if !u.IsActive {
		return false
	}
	u.IsActive = false
	return true
}

// Activate flips the active flag on. Returns false when already active.
func (u *User) Activate() bool {
	if u.IsActive {
		return false
	}
	u.IsActive = true
	return true
}

// Record queues a domain event for dispatch after the aggregate is persisted.
func (u *User) Record(event Event) {
	u.events = append(u.events, event)
}

// PullEvents drains and returns the queued domain events.
func (u *User) PullEvents() []Event {
	events := u.events
	u.events = nil
	return events
}

// Sanitized returns a copy safe to hand to transports (no credential material).
func (u User) Sanitized() User {
	u.PasswordHash = nil
	u.events = nil
	return u
}
