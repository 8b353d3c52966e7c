package port

import (
	"context"
	"time"

	"github.com/learnhub/iam-service/internal/core/domain"
)

// OAuthExchange is the result of redeeming an authorization code.
type OAuthExchange struct {
	Profile        domain.OAuthProfile
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt time.Time
}

// OAuthProviderClient drives the authorization-code-with-PKCE flow against
// the configured external providers.
type OAuthProviderClient interface {
	Enabled(provider domain.OAuthProvider) bool
	AuthorizationURL(provider domain.OAuthProvider, state, codeVerifier string) (string, error)
	// Exchange redeems the code and fetches the normalized profile within a
	// bounded timeout. Every upstream failure surfaces as a single error the
	// caller maps to its exchange-failed condition.
	Exchange(ctx context.Context, provider domain.OAuthProvider, code, codeVerifier string) (*OAuthExchange, error)
}
