package authclient_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authclient "github.com/goliatone/go-authclient"
)

func TestParseSessionFromURL(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("fragment", func(t *testing.T) {
		got, ok, err := authclient.ParseSessionFromURL(
			"https://app.example.com/welcome#access_token=abc&refresh_token=def&expires_in=3600&token_type=bearer&type=signup", now)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "abc", got.Session.AccessToken)
		assert.Equal(t, "def", got.Session.RefreshToken)
		assert.Equal(t, now.Add(time.Hour), got.Session.ExpiresAt)
		assert.False(t, got.IsRecovery())
	})

	t.Run("expires_at wins", func(t *testing.T) {
		got, ok, err := authclient.ParseSessionFromURL(
			"https://app.example.com/#access_token=abc&refresh_token=def&expires_in=3600&expires_at=1717250400&type=recovery", now)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, time.Unix(1717250400, 0), got.Session.ExpiresAt)
		assert.True(t, got.IsRecovery())
	})

	t.Run("query", func(t *testing.T) {
		_, ok, err := authclient.ParseSessionFromURL("https://app.example.com/cb?access_token=abc&refresh_token=def", now)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("no session", func(t *testing.T) {
		_, ok, err := authclient.ParseSessionFromURL("https://app.example.com/ads?page=2", now)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("remote error", func(t *testing.T) {
		_, ok, err := authclient.ParseSessionFromURL(
			"https://app.example.com/#error=access_denied&error_code=otp_expired&error_description=Token+has+expired+or+is+invalid", now)
		require.Error(t, err)
		assert.False(t, ok)
		assert.True(t, authclient.IsAuthError(err))
		assert.Equal(t, "El enlace ha expirado o no es válido", authclient.MessageFor(err))
	})
}
