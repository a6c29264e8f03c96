// Package auth acquires and caches the bearer token the job-execution API
// expects. Tokens come from a Knox-style token endpoint authenticated with
// HTTP basic credentials; the token's own exp claim drives cache refresh.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenPath is the Knox token endpoint, relative to the auth base URL.
const tokenPath = "gateway/authtkn/knoxtoken/api/v1/token"

// Options tunes a TokenSource. The zero value gives sensible defaults.
type Options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
	Leeway     time.Duration // refresh this long before expiry (default 1m)
	DefaultTTL time.Duration // cache lifetime for tokens without a readable exp claim (default 10m)
}

// TokenSource fetches access tokens on demand and caches them until close
// to expiry. It is safe for concurrent use by multiple cursors sharing one
// connection.
type TokenSource struct {
	authURL    string
	user       string
	password   string
	httpClient *http.Client
	logger     *slog.Logger
	leeway     time.Duration
	defaultTTL time.Duration

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewTokenSource builds a TokenSource against the auth service at authURL.
func NewTokenSource(authURL, user, password string, opts ...Options) *TokenSource {
	var options Options
	if len(opts) > 0 {
		options = opts[0]
	}
	if options.HTTPClient == nil {
		options.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	if options.Leeway <= 0 {
		options.Leeway = time.Minute
	}
	if options.DefaultTTL <= 0 {
		options.DefaultTTL = 10 * time.Minute
	}
	return &TokenSource{
		authURL:    strings.TrimRight(authURL, "/"),
		user:       user,
		password:   password,
		httpClient: options.HTTPClient,
		logger:     options.Logger,
		leeway:     options.Leeway,
		defaultTTL: options.DefaultTTL,
	}
}

// Token returns a valid access token, fetching a fresh one when the cached
// token is absent or within the refresh leeway of expiring.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiry.Add(-s.leeway)) {
		return s.token, nil
	}

	token, err := s.fetch(ctx)
	if err != nil {
		return "", err
	}
	s.token = token
	s.expiry = s.expiryOf(token)
	s.logger.Debug("access token refreshed", "expires_at", s.expiry)
	return s.token, nil
}

func (s *TokenSource) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.authURL+"/"+tokenPath, nil)
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.SetBasicAuth(s.user, s.password)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch access token: unexpected status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("token response carries no access_token")
	}
	return payload.AccessToken, nil
}

// expiryOf reads the token's exp claim without verifying the signature;
// this client is the token's consumer, not its verifier. Tokens without a
// readable claim get the default TTL.
func (s *TokenSource) expiryOf(token string) time.Time {
	fallback := time.Now().Add(s.defaultTTL)

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fallback
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return fallback
	}
	return exp.Time
}
