package domain

import (
	"fmt"
	"strings"
	"time"
)

// OAuthProvider enumerates the supported external identity providers.
type OAuthProvider string

const (
	ProviderGoogle   OAuthProvider = "google"
	ProviderGitHub   OAuthProvider = "github"
	ProviderFacebook OAuthProvider = "facebook"
)

// ParseOAuthProvider validates and normalizes a provider name.
func ParseOAuthProvider(name string) (OAuthProvider, error) {
	switch OAuthProvider(strings.ToLower(strings.TrimSpace(name))) {
	case ProviderGoogle:
		return ProviderGoogle, nil
	case ProviderGitHub:
		return ProviderGitHub, nil
	case ProviderFacebook:
		return ProviderFacebook, nil
	default:
		return "", fmt.Errorf("unknown oauth provider %q", name)
	}
}

// OAuthConnection links a local user to one external identity.
// At most one connection exists per (provider, provider_user_id) globally
// and per (user, provider); both constraints live in the store.
type OAuthConnection struct {
	ID             string
	UserID         string
	Provider       OAuthProvider
	ProviderUserID string
	Email          *string
	Name           *string
	AvatarURL      *string
	AccessToken    *string
	RefreshToken   *string
	TokenExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OAuthProfile is the provider-agnostic identity reported back from an
// authorization-code exchange.
type OAuthProfile struct {
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
}
