package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cde-sql/internal/auth"
)

func signedToken(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "tester",
		"exp": time.Now().Add(expiresIn).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)
	return signed
}

func newTokenServer(t *testing.T, token string, fetches *atomic.Int64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "s3cret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fetches.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": token})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTokenSource(t *testing.T) {
	t.Run("caches_until_expiry", func(t *testing.T) {
		var fetches atomic.Int64
		server := newTokenServer(t, signedToken(t, time.Hour), &fetches)
		source := auth.NewTokenSource(server.URL, "alice", "s3cret")

		first, err := source.Token(context.Background())
		require.NoError(t, err)
		second, err := source.Token(context.Background())
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, int64(1), fetches.Load())
	})

	t.Run("refreshes_expired_token", func(t *testing.T) {
		var fetches atomic.Int64
		server := newTokenServer(t, signedToken(t, -time.Minute), &fetches)
		source := auth.NewTokenSource(server.URL, "alice", "s3cret")

		_, err := source.Token(context.Background())
		require.NoError(t, err)
		_, err = source.Token(context.Background())
		require.NoError(t, err)

		assert.Equal(t, int64(2), fetches.Load())
	})

	t.Run("opaque_token_uses_default_ttl", func(t *testing.T) {
		var fetches atomic.Int64
		server := newTokenServer(t, "not-a-jwt", &fetches)
		source := auth.NewTokenSource(server.URL, "alice", "s3cret", auth.Options{
			DefaultTTL: time.Hour,
		})

		token, err := source.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "not-a-jwt", token)

		_, err = source.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(1), fetches.Load())
	})

	t.Run("bad_credentials_error", func(t *testing.T) {
		var fetches atomic.Int64
		server := newTokenServer(t, signedToken(t, time.Hour), &fetches)
		source := auth.NewTokenSource(server.URL, "alice", "wrong")

		_, err := source.Token(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("unreachable_endpoint", func(t *testing.T) {
		source := auth.NewTokenSource("http://127.0.0.1:1", "alice", "s3cret")
		_, err := source.Token(context.Background())
		require.Error(t, err)
	})
}
