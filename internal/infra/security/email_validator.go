package security

import (
	"fmt"
	"net/mail"
	"strings"
)

// MailboxValidator is the default email validation strategy: RFC 5322
// address parsing plus a bare-domain sanity check. It satisfies
// port.EmailValidator and is injected at process start.
type MailboxValidator struct{}

// NewMailboxValidator constructs the default strategy.
func NewMailboxValidator() *MailboxValidator {
	return &MailboxValidator{}
}

// Validate rejects syntactically invalid addresses and addresses carrying a
// display name.
func (MailboxValidator) Validate(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}

	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email address: %w", err)
	}
	if addr.Address != email {
		return fmt.Errorf("email must be a bare address")
	}

	at := strings.LastIndex(addr.Address, "@")
	if at < 0 || !strings.Contains(addr.Address[at+1:], ".") {
		return fmt.Errorf("email domain is incomplete")
	}

	return nil
}
