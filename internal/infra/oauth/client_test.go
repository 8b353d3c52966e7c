package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/learnhub/iam-service/internal/core/domain"
	"github.com/learnhub/iam-service/internal/infra/config"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	cfg := config.OAuthSettings{
		ExchangeTimeout: 5 * time.Second,
		Google: config.OAuthProviderSettings{
			Enabled:      true,
			ClientID:     "google-client",
			ClientSecret: "google-secret",
			RedirectURL:  "https://app.learnhub.io/auth/callback/google",
			Scopes:       []string{"openid", "email", "profile"},
		},
		GitHub: config.OAuthProviderSettings{
			Enabled:      true,
			ClientID:     "github-client",
			ClientSecret: "github-secret",
			RedirectURL:  "https://app.learnhub.io/auth/callback/github",
			Scopes:       []string{"read:user", "user:email"},
		},
	}

	return NewClient(cfg, zaptest.NewLogger(t))
}

func TestEnabled(t *testing.T) {
	client := newTestClient(t)

	if !client.Enabled(domain.ProviderGoogle) {
		t.Fatal("expected google to be enabled")
	}

	if client.Enabled(domain.ProviderFacebook) {
		t.Fatal("expected facebook to be disabled")
	}

	if client.Enabled(domain.OAuthProvider("myspace")) {
		t.Fatal("expected unknown provider to be disabled")
	}
}

func TestAuthorizationURL(t *testing.T) {
	client := newTestClient(t)

	authURL, err := client.AuthorizationURL(domain.ProviderGoogle, "state-123", "verifier-0123456789012345678901234567890123456789")
	if err != nil {
		t.Fatalf("AuthorizationURL returned error: %v", err)
	}

	parsed, err := url.Parse(authURL)
	if err != nil {
		t.Fatalf("failed to parse authorization url: %v", err)
	}

	query := parsed.Query()
	if got := query.Get("client_id"); got != "google-client" {
		t.Fatalf("unexpected client_id: %s", got)
	}

	if got := query.Get("state"); got != "state-123" {
		t.Fatalf("unexpected state: %s", got)
	}

	if got := query.Get("code_challenge_method"); got != "S256" {
		t.Fatalf("unexpected code_challenge_method: %s", got)
	}

	if query.Get("code_challenge") == "" {
		t.Fatal("expected code_challenge to be set")
	}

	if got := query.Get("redirect_uri"); got != "https://app.learnhub.io/auth/callback/google" {
		t.Fatalf("unexpected redirect_uri: %s", got)
	}
}

func TestAuthorizationURLUnknownProvider(t *testing.T) {
	client := newTestClient(t)

	if _, err := client.AuthorizationURL(domain.OAuthProvider("myspace"), "state", "verifier"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestExchangeGoogle(t *testing.T) {
	var gotVerifier string

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("failed to parse token form: %v", err)
		}
		gotVerifier = r.FormValue("code_verifier")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "provider-access",
			"token_type":    "Bearer",
			"refresh_token": "provider-refresh",
			"expires_in":    3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer provider-access" {
			t.Errorf("unexpected authorization header: %s", got)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "google-user-1",
			"email":   "student@gmail.com",
			"name":    "Ada Lovelace",
			"picture": "https://lh3.example/photo.jpg",
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t)
	reg := client.providers[domain.ProviderGoogle]
	reg.oauth.Endpoint.TokenURL = server.URL + "/token"
	reg.userInfoURL = server.URL + "/userinfo"

	exchange, err := client.Exchange(context.Background(), domain.ProviderGoogle, "auth-code", "verifier-0123456789012345678901234567890123456789")
	if err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}

	if gotVerifier != "verifier-0123456789012345678901234567890123456789" {
		t.Fatalf("code_verifier not forwarded, got %q", gotVerifier)
	}

	if exchange.AccessToken != "provider-access" {
		t.Fatalf("unexpected access token: %s", exchange.AccessToken)
	}

	if exchange.RefreshToken != "provider-refresh" {
		t.Fatalf("unexpected refresh token: %s", exchange.RefreshToken)
	}

	if exchange.Profile.ProviderUserID != "google-user-1" {
		t.Fatalf("unexpected provider user id: %s", exchange.Profile.ProviderUserID)
	}

	if exchange.Profile.Email != "student@gmail.com" {
		t.Fatalf("unexpected email: %s", exchange.Profile.Email)
	}

	if exchange.Profile.Name != "Ada Lovelace" {
		t.Fatalf("unexpected name: %s", exchange.Profile.Name)
	}

	if exchange.Profile.AvatarURL != "https://lh3.example/photo.jpg" {
		t.Fatalf("unexpected avatar url: %s", exchange.Profile.AvatarURL)
	}
}

func TestExchangeGitHubEmailFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "gh-access",
			"token_type":   "Bearer",
		})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":         42,
			"login":      "adal",
			"email":      nil,
			"name":       "",
			"avatar_url": "https://avatars.example/42",
		})
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]any{
			{"email": "secondary@example.com", "primary": false, "verified": true},
			{"email": "primary@example.com", "primary": true, "verified": true},
		})
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t)
	reg := client.providers[domain.ProviderGitHub]
	reg.oauth.Endpoint.TokenURL = server.URL + "/token"
	reg.userInfoURL = server.URL + "/user"
	reg.emailsURL = server.URL + "/user/emails"

	exchange, err := client.Exchange(context.Background(), domain.ProviderGitHub, "auth-code", "verifier-0123456789012345678901234567890123456789")
	if err != nil {
		t.Fatalf("Exchange returned error: %v", err)
	}

	if exchange.Profile.ProviderUserID != "42" {
		t.Fatalf("unexpected provider user id: %s", exchange.Profile.ProviderUserID)
	}

	if exchange.Profile.Email != "primary@example.com" {
		t.Fatalf("unexpected email: %s", exchange.Profile.Email)
	}

	// Login substitutes for a missing display name.
	if exchange.Profile.Name != "adal" {
		t.Fatalf("unexpected name: %s", exchange.Profile.Name)
	}
}

func TestExchangeTokenEndpointFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestClient(t)
	reg := client.providers[domain.ProviderGoogle]
	reg.oauth.Endpoint.TokenURL = server.URL + "/token"

	if _, err := client.Exchange(context.Background(), domain.ProviderGoogle, "bad-code", "verifier"); err == nil {
		t.Fatal("expected exchange error")
	}
}

func TestExchangeUserinfoFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at",
			"token_type":   "Bearer",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	server := httptest.NewServer(mux)
	defer server.Close()

	client := newTestClient(t)
	reg := client.providers[domain.ProviderGoogle]
	reg.oauth.Endpoint.TokenURL = server.URL + "/token"
	reg.userInfoURL = server.URL + "/userinfo"

	_, err := client.Exchange(context.Background(), domain.ProviderGoogle, "auth-code", "verifier")
	if err == nil {
		t.Fatal("expected userinfo error")
	}

	if !strings.Contains(err.Error(), "status 502") {
		t.Fatalf("unexpected error: %v", err)
	}
}
