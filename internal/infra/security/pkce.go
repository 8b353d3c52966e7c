package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const (
	pkceVerifierMinLength = 43
	pkceVerifierMaxLength = 128
)

// GeneratePKCEVerifier returns an RFC 7636 code verifier: a URL-safe random
// string of 43 characters (32 random bytes, base64url without padding).
func GeneratePKCEVerifier() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate pkce verifier: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ValidPKCEVerifier reports whether the supplied verifier satisfies the
// RFC 7636 length and charset constraints.
func ValidPKCEVerifier(verifier string) bool {
	if len(verifier) < pkceVerifierMinLength || len(verifier) > pkceVerifierMaxLength {
		return false
	}
	for _, r := range verifier {
		switch {
		case r >= 'A' && r <= 'Z':
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '.' || r == '_' || r == '~':
		default:
			return false
		}
	}
	return true
}

// PKCES256Challenge derives the S256 code challenge for a verifier.
func PKCES256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
