package podio

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// DefaultTokenURL is Podio's OAuth token endpoint.
const DefaultTokenURL = "https://podio.com/oauth/token"

// expirySkew treats a token as expired slightly before Podio does.
const expirySkew = time.Minute

// Credential is the access token currently used against the API.
type Credential struct {
	AccessToken string
	ObtainedAt  time.Time
	// ExpiresAt is zero when the expiry is unknown (static tokens).
	ExpiresAt time.Time
}

func (c Credential) valid(now time.Time) bool {
	if c.AccessToken == "" {
		return false
	}
	return c.ExpiresAt.IsZero() || now.Add(expirySkew).Before(c.ExpiresAt)
}

// OAuthConfig holds the refresh triple and the optional static token.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	StaticToken  string
	TokenURL     string
}

// TokenStore caches the Podio credential and refreshes it on demand.
//
// The static token, when configured, seeds the cache so the first calls
// skip the refresh round-trip. A rejected token is replaced through the
// OAuth refresh grant; concurrent refreshes collapse into one request.
// If the refresh fails the static token is used as a last resort, unless
// the static token is the one that was just rejected.
type TokenStore struct {
	oauth      *oauth2.Config
	static     string
	httpClient *http.Client
	now        func() time.Time

	mu           sync.Mutex
	cred         Credential
	refreshToken string

	group singleflight.Group
}

// NewTokenStore creates a store. httpClient may be nil.
func NewTokenStore(cfg OAuthConfig, httpClient *http.Client) *TokenStore {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	s := &TokenStore{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		static:       cfg.StaticToken,
		httpClient:   httpClient,
		now:          time.Now,
		refreshToken: cfg.RefreshToken,
	}
	if cfg.StaticToken != "" {
		s.cred = Credential{AccessToken: cfg.StaticToken, ObtainedAt: s.now()}
	}
	return s
}

// Token returns the cached credential, refreshing when none is cached or it expired.
func (s *TokenStore) Token(ctx context.Context) (Credential, error) {
	s.mu.Lock()
	cred := s.cred
	s.mu.Unlock()

	if cred.valid(s.now()) {
		return cred, nil
	}
	return s.Refresh(ctx, cred.AccessToken)
}

// Refresh replaces the rejected access token. Callers whose rejected token
// has already been replaced get the current credential without a new request.
func (s *TokenStore) Refresh(ctx context.Context, rejected string) (Credential, error) {
	v, err, _ := s.group.Do("refresh", func() (interface{}, error) {
		s.mu.Lock()
		current := s.cred
		s.mu.Unlock()

		if current.AccessToken != rejected && current.valid(s.now()) {
			return current, nil
		}

		// Shared by every waiting caller; the http.Client timeout bounds it.
		cred, err := s.refresh(context.WithoutCancel(ctx))
		if err != nil {
			if s.static == "" || s.static == rejected {
				return Credential{}, err
			}
			log.Warn().Err(err).Msg("Podio token refresh failed, falling back to static access token")
			cred = Credential{AccessToken: s.static, ObtainedAt: s.now()}
		}

		s.mu.Lock()
		s.cred = cred
		s.mu.Unlock()
		return cred, nil
	})
	if err != nil {
		return Credential{}, err
	}
	return v.(Credential), nil
}

func (s *TokenStore) refresh(ctx context.Context) (Credential, error) {
	s.mu.Lock()
	refreshToken := s.refreshToken
	s.mu.Unlock()

	if s.oauth.ClientID == "" || s.oauth.ClientSecret == "" || refreshToken == "" {
		return Credential{}, &AuthError{Op: "refresh", Err: ErrNoRefreshCredentials}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	tok, err := s.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		log.Error().Err(err).Msg("Podio token refresh rejected")
		return Credential{}, &AuthError{Op: "refresh", Err: err}
	}

	// Podio may rotate the refresh token.
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		s.mu.Lock()
		s.refreshToken = tok.RefreshToken
		s.mu.Unlock()
	}

	log.Info().Time("expires_at", tok.Expiry).Msg("Podio OAuth token refreshed")
	return Credential{
		AccessToken: tok.AccessToken,
		ObtainedAt:  s.now(),
		ExpiresAt:   tok.Expiry,
	}, nil
}
