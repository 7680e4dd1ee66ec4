package salla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// OAuthAuthURL is the browser-facing authorization endpoint.
	OAuthAuthURL = "https://accounts.salla.sa/oauth2/auth"
	// OAuthTokenURL is the code/refresh exchange endpoint.
	OAuthTokenURL = "https://accounts.salla.sa/oauth2/token"

	// refreshSkew refreshes tokens slightly before their expiry to absorb
	// clock drift between the bridge and the token issuer.
	refreshSkew = 60 * time.Second
)

// ErrNotConnected indicates the merchant has not completed the OAuth
// handshake yet, so no tokens are stored.
var ErrNotConnected = errors.New("salla: store not connected")

// Token is the persisted OAuth credential set for the connected store.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the access token is expired or about to expire.
func (t Token) Expired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return true
	}
	return !now.Before(t.ExpiresAt.Add(-refreshSkew))
}

// TokenStore persists OAuth tokens between processes. The API server writes
// tokens during the OAuth callback, the worker reads them during sync runs.
type TokenStore interface {
	Load(ctx context.Context) (Token, error)
	Save(ctx context.Context, token Token) error
}

// AuthConfig holds the OAuth client credentials and callback address.
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	TokenURL     string
}

// Auth exchanges and refreshes OAuth tokens against the Salla accounts
// service. Concurrent refreshes collapse into a single upstream call.
type Auth struct {
	cfg    AuthConfig
	store  TokenStore
	client *http.Client
	group  singleflight.Group
	now    func() time.Time
}

// NewAuth constructs the token manager.
func NewAuth(cfg AuthConfig, store TokenStore, client *http.Client) *Auth {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = OAuthTokenURL
	}
	return &Auth{cfg: cfg, store: store, client: client, now: time.Now}
}

// AuthorizationURL builds the browser redirect that begins the handshake.
func (a *Auth) AuthorizationURL(state string) string {
	params := url.Values{
		"client_id":     {a.cfg.ClientID},
		"response_type": {"code"},
		"redirect_uri":  {a.cfg.RedirectURI},
		"state":         {state},
	}
	return OAuthAuthURL + "?" + params.Encode()
}

// AccessToken returns a valid access token, refreshing through the store
// when the cached one is expired.
func (a *Auth) AccessToken(ctx context.Context) (string, error) {
	token, err := a.store.Load(ctx)
	if err != nil {
		return "", err
	}
	if !token.Expired(a.now()) {
		return token.AccessToken, nil
	}
	refreshed, err, _ := a.group.Do("refresh", func() (any, error) {
		// Re-read inside the flight: another caller may have refreshed
		// while this one waited.
		current, err := a.store.Load(ctx)
		if err != nil {
			return Token{}, err
		}
		if !current.Expired(a.now()) {
			return current, nil
		}
		return a.refresh(ctx, current)
	})
	if err != nil {
		return "", err
	}
	return refreshed.(Token).AccessToken, nil
}

// Exchange trades an authorization code for tokens and persists them.
func (a *Auth) Exchange(ctx context.Context, code string) (Token, error) {
	return a.requestToken(ctx, url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {a.cfg.ClientID},
		"client_secret": {a.cfg.ClientSecret},
		"redirect_uri":  {a.cfg.RedirectURI},
		"code":          {code},
	})
}

func (a *Auth) refresh(ctx context.Context, current Token) (Token, error) {
	if current.RefreshToken == "" {
		return Token{}, ErrNotConnected
	}
	return a.requestToken(ctx, url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {a.cfg.ClientID},
		"client_secret": {a.cfg.ClientSecret},
		"refresh_token": {current.RefreshToken},
	})
}

func (a *Auth) requestToken(ctx context.Context, form url.Values) (Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("salla: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("salla: token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Token{}, &APIError{StatusCode: resp.StatusCode, Message: "token exchange failed"}
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Token{}, fmt.Errorf("salla: decode token response: %w", err)
	}

	token := Token{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    a.now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}
	if err := a.store.Save(ctx, token); err != nil {
		return Token{}, fmt.Errorf("salla: persist token: %w", err)
	}
	return token, nil
}
