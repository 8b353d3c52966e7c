package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"

	"github.com/learnhub/iam-service/internal/core/domain"
	"github.com/learnhub/iam-service/internal/core/port"
	"github.com/learnhub/iam-service/internal/infra/config"
)

const defaultExchangeTimeout = 10 * time.Second

// registration holds everything needed to drive one provider: the oauth2
// config for the code exchange and the userinfo endpoint for profile fetch.
type registration struct {
	enabled     bool
	oauth       *oauth2.Config
	userInfoURL string
	// emailsURL is GitHub-specific: the /user payload omits the address when
	// the user hides it, so a second call to /user/emails is needed.
	emailsURL string
	parse     func(body []byte) (domain.OAuthProfile, error)
}

// Client implements port.OAuthProviderClient on top of golang.org/x/oauth2.
type Client struct {
	providers  map[domain.OAuthProvider]*registration
	httpClient *http.Client
	timeout    time.Duration
	logger     *zap.Logger
}

// NewClient builds the provider registry from configuration. Disabled
// providers stay registered so Enabled can answer for them.
func NewClient(cfg config.OAuthSettings, logger *zap.Logger) *Client {
	timeout := cfg.ExchangeTimeout
	if timeout <= 0 {
		timeout = defaultExchangeTimeout
	}

	c := &Client{
		providers:  make(map[domain.OAuthProvider]*registration, 3),
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		logger:     logger,
	}

	c.providers[domain.ProviderGoogle] = &registration{
		enabled:     cfg.Google.Enabled,
		oauth:       oauthConfig(cfg.Google, endpoints.Google),
		userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		parse:       parseGoogleProfile,
	}
	c.providers[domain.ProviderGitHub] = &registration{
		enabled:     cfg.GitHub.Enabled,
		oauth:       oauthConfig(cfg.GitHub, endpoints.GitHub),
		userInfoURL: "https://api.github.com/user",
		emailsURL:   "https://api.github.com/user/emails",
		parse:       parseGitHubProfile,
	}
	c.providers[domain.ProviderFacebook] = &registration{
		enabled:     cfg.Facebook.Enabled,
		oauth:       oauthConfig(cfg.Facebook, endpoints.Facebook),
		userInfoURL: "https://graph.facebook.com/me?fields=id,name,email,picture.type(large)",
		parse:       parseFacebookProfile,
	}

	return c
}

func oauthConfig(settings config.OAuthProviderSettings, endpoint oauth2.Endpoint) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		RedirectURL:  settings.RedirectURL,
		Scopes:       settings.Scopes,
		Endpoint:     endpoint,
	}
}

// Enabled reports whether the provider is configured and switched on.
func (c *Client) Enabled(provider domain.OAuthProvider) bool {
	reg, ok := c.providers[provider]
	return ok && reg.enabled
}

// AuthorizationURL renders the provider's consent URL with the PKCE S256
// challenge derived from the supplied verifier.
func (c *Client) AuthorizationURL(provider domain.OAuthProvider, state, codeVerifier string) (string, error) {
	reg, ok := c.providers[provider]
	if !ok {
		return "", fmt.Errorf("unknown oauth provider %q", provider)
	}

	return reg.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(codeVerifier),
	), nil
}

// Exchange redeems the authorization code, then fetches and normalizes the
// provider profile. All upstream calls share one deadline.
func (c *Client) Exchange(ctx context.Context, provider domain.OAuthProvider, code, codeVerifier string) (*port.OAuthExchange, error) {
	reg, ok := c.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown oauth provider %q", provider)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := reg.oauth.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code with %s: %w", provider, err)
	}

	profile, err := c.fetchProfile(ctx, reg, token)
	if err != nil {
		return nil, fmt.Errorf("fetch %s profile: %w", provider, err)
	}

	return &port.OAuthExchange{
		Profile:        profile,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		TokenExpiresAt: token.Expiry,
	}, nil
}

func (c *Client) fetchProfile(ctx context.Context, reg *registration, token *oauth2.Token) (domain.OAuthProfile, error) {
	body, err := c.get(ctx, reg.userInfoURL, token)
	if err != nil {
		return domain.OAuthProfile{}, err
	}

	profile, err := reg.parse(body)
	if err != nil {
		return domain.OAuthProfile{}, err
	}

	if profile.Email == "" && reg.emailsURL != "" {
		email, err := c.fetchPrimaryEmail(ctx, reg.emailsURL, token)
		if err != nil {
			c.logger.Warn("Failed to fetch provider email list", zap.Error(err))
		} else {
			profile.Email = email
		}
	}

	return profile, nil
}

func (c *Client) get(ctx context.Context, url string, token *oauth2.Token) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build userinfo request: %w", err)
	}
	token.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call userinfo endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read userinfo response: %w", err)
	}

	return body, nil
}

func (c *Client) fetchPrimaryEmail(ctx context.Context, url string, token *oauth2.Token) (string, error) {
	body, err := c.get(ctx, url, token)
	if err != nil {
		return "", err
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := json.Unmarshal(body, &emails); err != nil {
		return "", fmt.Errorf("decode email list: %w", err)
	}

	for _, entry := range emails {
		if entry.Primary && entry.Verified {
			return entry.Email, nil
		}
	}
	for _, entry := range emails {
		if entry.Verified {
			return entry.Email, nil
		}
	}

	return "", nil
}

func parseGoogleProfile(body []byte) (domain.OAuthProfile, error) {
	var raw struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.OAuthProfile{}, fmt.Errorf("decode google profile: %w", err)
	}
	if raw.ID == "" {
		return domain.OAuthProfile{}, fmt.Errorf("google profile missing id")
	}

	return domain.OAuthProfile{
		ProviderUserID: raw.ID,
		Email:          raw.Email,
		Name:           raw.Name,
		AvatarURL:      raw.Picture,
	}, nil
}

func parseGitHubProfile(body []byte) (domain.OAuthProfile, error) {
	var raw struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Email     string `json:"email"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.OAuthProfile{}, fmt.Errorf("decode github profile: %w", err)
	}
	if raw.ID == 0 {
		return domain.OAuthProfile{}, fmt.Errorf("github profile missing id")
	}

	name := raw.Name
	if name == "" {
		name = raw.Login
	}

	return domain.OAuthProfile{
		ProviderUserID: strconv.FormatInt(raw.ID, 10),
		Email:          raw.Email,
		Name:           name,
		AvatarURL:      raw.AvatarURL,
	}, nil
}

func parseFacebookProfile(body []byte) (domain.OAuthProfile, error) {
	var raw struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return domain.OAuthProfile{}, fmt.Errorf("decode facebook profile: %w", err)
	}
	if raw.ID == "" {
		return domain.OAuthProfile{}, fmt.Errorf("facebook profile missing id")
	}

	return domain.OAuthProfile{
		ProviderUserID: raw.ID,
		Email:          raw.Email,
		Name:           raw.Name,
		AvatarURL:      raw.Picture.Data.URL,
	}, nil
}

var _ port.OAuthProviderClient = (*Client)(nil)
