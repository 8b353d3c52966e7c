package security

import (
	"fmt"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// PasswordValidationError carries a machine-readable code alongside the
// human-readable message so handlers can map policy violations to 422.
type PasswordValidationError struct {
	Code    string
	Message string
}

func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordRule checks one aspect of the password policy.
type PasswordRule func(password string) error

// PasswordValidator runs rules in order and stops at the first violation.
type PasswordValidator struct {
	rules []PasswordRule
}

// NewPasswordValidator builds a validator from the given rules.
func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	copied := make([]PasswordRule, len(rules))
	copy(copied, rules)
	return &PasswordValidator{rules: copied}
}

// DefaultPasswordValidator is the registration-time policy: 8+ characters,
// at least one letter and one digit, and a minimum zxcvbn score of 2.
func DefaultPasswordValidator() *PasswordValidator {
	return NewPasswordValidator(
		MinLengthRule(8),
		RequireLetterRule(),
		RequireDigitRule(),
		RequirePasswordStrengthRule(2),
	)
}

// Validate returns the first policy violation, or nil.
func (v *PasswordValidator) Validate(password string) error {
	if v == nil {
		return fmt.Errorf("password validator not configured")
	}
	for _, rule := range v.rules {
		if err := rule(password); err != nil {
			return err
		}
	}
	return nil
}

// MinLengthRule requires at least min runes. Length is counted in runes,
// not bytes, so multibyte characters are not penalized.
func MinLengthRule(min int) PasswordRule {
	return func(password string) error {
		if len([]rune(password)) >= min {
			return nil
		}
		return &PasswordValidationError{
			Code:    "min_length",
			Message: fmt.Sprintf("password must be at least %d characters long", min),
		}
	}
}

// RequireLetterRule requires at least one unicode letter.
func RequireLetterRule() PasswordRule {
	return requireClass(unicode.IsLetter, "letter", "password must include at least one letter")
}

// RequireDigitRule requires at least one digit.
func RequireDigitRule() PasswordRule {
	return requireClass(unicode.IsDigit, "digit", "password must include at least one digit")
}

func requireClass(member func(rune) bool, code, message string) PasswordRule {
	return func(password string) error {
		for _, r := range password {
			if member(r) {
				return nil
			}
		}
		return &PasswordValidationError{Code: code, Message: message}
	}
}

// RequireDifferentFrom rejects a password equal to comparator, used on
// password change to forbid reusing the current password.
func RequireDifferentFrom(comparator string) PasswordRule {
	return func(password string) error {
		if password != comparator {
			return nil
		}
		return &PasswordValidationError{
			Code:    "different",
			Message: "new password must be different from current password",
		}
	}
}

// RequirePasswordStrengthRule rejects passwords scoring below minScore on
// the zxcvbn estimator. userInputs contribute extra dictionary words, for
// example the account email, so trivially guessable values score low.
func RequirePasswordStrengthRule(minScore int, userInputs ...string) PasswordRule {
	return func(password string) error {
		if minScore <= 0 {
			return nil
		}
		if minScore > 4 {
			minScore = 4
		}

		if zxcvbn.PasswordStrength(password, userInputs).Score >= minScore {
			return nil
		}

		return &PasswordValidationError{
			Code:    "weak_password",
			Message: "password is too weak; choose a more complex value",
		}
	}
}
