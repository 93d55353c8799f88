package authclient_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authclient "github.com/goliatone/go-authclient"
	"github.com/goliatone/go-authclient/remote/remotetest"
)

func TestTokenInspectorUnverified(t *testing.T) {
	srv := remotetest.New()
	defer srv.Close()

	user := srv.AddUser(testEmail, testPassword, authclient.RoleUser)
	token, err := srv.MintAccessToken(user.ID, time.Hour)
	require.NoError(t, err)

	ti := authclient.NewTokenInspector()
	assert.False(t, ti.Verifies())

	claims, err := ti.Claims(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)
	assert.Equal(t, testEmail, claims.Email)
	assert.NotEmpty(t, claims.SessionID)

	u := claims.User()
	require.NotNil(t, u)
	assert.Equal(t, user.ID, u.ID)
	assert.Equal(t, testEmail, u.Email)

	exp, err := ti.ExpiresAt(token)
	require.NoError(t, err)
	assert.Equal(t, srv.Now().Add(time.Hour).Unix(), exp.Unix())
}

func TestTokenInspectorExpiredStillDecodes(t *testing.T) {
	srv := remotetest.New()
	defer srv.Close()

	user := srv.AddUser(testEmail, testPassword, authclient.RoleUser)
	token, err := srv.MintAccessToken(user.ID, -time.Minute)
	require.NoError(t, err)

	exp, err := authclient.NewTokenInspector().ExpiresAt(token)
	require.NoError(t, err)
	assert.True(t, exp.Before(time.Now()))
}

func TestTokenInspectorVerifiesSignature(t *testing.T) {
	srv := remotetest.New()
	defer srv.Close()

	user := srv.AddUser(testEmail, testPassword, authclient.RoleUser)
	token, err := srv.MintAccessToken(user.ID, time.Hour)
	require.NoError(t, err)

	ti := authclient.NewTokenInspector(authclient.WithSigningSecret(srv.Secret()))
	assert.True(t, ti.Verifies())

	claims, err := ti.Claims(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)

	wrong := authclient.NewTokenInspector(authclient.WithSigningSecret([]byte("not-the-secret")))
	_, err = wrong.Claims(token)
	require.Error(t, err)
	assert.True(t, authclient.IsAuthError(err))
}

func TestTokenInspectorMalformed(t *testing.T) {
	ti := authclient.NewTokenInspector()

	_, err := ti.Claims("")
	require.Error(t, err)
	assert.True(t, authclient.IsMalformedError(err))

	_, err = ti.Claims("not.a.jwt")
	require.Error(t, err)
	assert.True(t, authclient.IsMalformedError(err))
}

func TestAccessClaimsUserNil(t *testing.T) {
	var c *authclient.AccessClaims
	assert.Nil(t, c.User())
}
