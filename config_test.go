package authclient_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authclient "github.com/goliatone/go-authclient"
)

func TestLoadConfigFromDefaults(t *testing.T) {
	cfg, err := authclient.LoadConfigFrom(context.Background(), map[string]string{
		"AUTHCLIENT_URL":     "https://project.example.co/",
		"AUTHCLIENT_API_KEY": "anon",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://project.example.co", cfg.URL)
	assert.Equal(t, "ptc.auth.session", cfg.StorageKey)
	assert.True(t, cfg.PersistSession)
	assert.True(t, cfg.AutoRefreshToken)
	assert.True(t, cfg.DetectSessionInURL)
	assert.Equal(t, 60*time.Second, cfg.RefreshMargin)
	assert.Equal(t, 5*time.Second, cfg.GuardTimeout)
	assert.Equal(t, "/login", cfg.LoginPath)
	assert.Equal(t, "/login", cfg.PostLogoutPath)
	assert.Equal(t, "/dashboard", cfg.PostLoginPath)
	assert.Equal(t, "/verify-email", cfg.PendingVerificationPath)
	assert.Equal(t, "returnUrl", cfg.ReturnParam)
	assert.Equal(t, "register-with-referral", cfg.ReferralFunction)
	assert.Equal(t, authclient.DefaultPublicEndpoints, cfg.PublicEndpoints)
}

func TestLoadConfigFromOverrides(t *testing.T) {
	cfg, err := authclient.LoadConfigFrom(context.Background(), map[string]string{
		"AUTHCLIENT_URL":              "https://project.example.co",
		"AUTHCLIENT_API_KEY":          "anon",
		"AUTHCLIENT_AUTO_REFRESH":     "false",
		"AUTHCLIENT_REFRESH_MARGIN":   "2m",
		"AUTHCLIENT_LOGIN_PATH":       "/ingresar",
		"AUTHCLIENT_PUBLIC_ENDPOINTS": "/auth/v1/token,/rest/v1/rpc/get_public_ads",
	})
	require.NoError(t, err)

	assert.False(t, cfg.AutoRefreshToken)
	assert.Equal(t, 2*time.Minute, cfg.RefreshMargin)
	assert.Equal(t, "/ingresar", cfg.LoginPath)
	assert.Equal(t, "/login", cfg.PostLogoutPath)
	assert.Equal(t, []string{"/auth/v1/token", "/rest/v1/rpc/get_public_ads"}, cfg.PublicEndpoints)
}

func TestLoadConfigFromRequiresURLAndKey(t *testing.T) {
	_, err := authclient.LoadConfigFrom(context.Background(), map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "URL")

	_, err = authclient.LoadConfigFrom(context.Background(), map[string]string{
		"AUTHCLIENT_URL": "not a url",
	})
	require.Error(t, err)
}
