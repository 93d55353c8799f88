package remote_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authclient "github.com/goliatone/go-authclient"
	"github.com/goliatone/go-authclient/remote"
	"github.com/goliatone/go-authclient/remote/remotetest"
)

const (
	email    = "marta@example.com"
	password = "s3cret-pass"
)

func newClient(t *testing.T, opts ...remotetest.Option) (*remote.Client, *remotetest.Server) {
	t.Helper()
	srv := remotetest.New(opts...)
	t.Cleanup(srv.Close)

	c, err := remote.New(remote.Config{URL: srv.URL + "/", APIKey: remotetest.APIKey})
	require.NoError(t, err)
	return c, srv
}

func TestNewRequiresURLAndKey(t *testing.T) {
	_, err := remote.New(remote.Config{APIKey: "k"})
	assert.Error(t, err)

	_, err = remote.New(remote.Config{URL: "http://localhost"})
	assert.Error(t, err)

	c, err := remote.New(remote.Config{URL: "http://localhost/", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost", c.BaseURL())
}

func TestSignInWithPassword(t *testing.T) {
	c, srv := newClient(t)
	user := srv.AddUser(email, password, authclient.RoleUser)

	session, err := c.SignInWithPassword(context.Background(), authclient.Credentials{Email: email, Password: password})
	require.NoError(t, err)

	assert.NotEmpty(t, session.AccessToken)
	assert.NotEmpty(t, session.RefreshToken)
	assert.Equal(t, "bearer", session.TokenType)
	assert.Equal(t, 3600, session.ExpiresIn)
	assert.Equal(t, srv.Now().Add(time.Hour).Unix(), session.ExpiresAt.Unix())
	require.NotNil(t, session.User)
	assert.Equal(t, user.ID, session.User.ID)
}

func TestSignInParsesAuthErrors(t *testing.T) {
	c, srv := newClient(t)
	srv.AddUser(email, password, authclient.RoleUser)

	_, err := c.SignInWithPassword(context.Background(), authclient.Credentials{Email: email, Password: "nope"})
	require.Error(t, err)

	var remoteErr *remote.Error
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusBadRequest, remoteErr.Status())
	assert.Equal(t, "invalid_credentials", remoteErr.Code)
	assert.Equal(t, "Invalid login credentials", remoteErr.RemoteMessage())
	assert.Equal(t, authclient.MessageInvalidCredentials, authclient.MessageFor(err))
}

func TestSignUp(t *testing.T) {
	t.Run("auto confirmed", func(t *testing.T) {
		c, _ := newClient(t)

		res, err := c.SignUp(context.Background(), authclient.SignUpRequest{
			Email:    email,
			Password: password,
			Username: "marta",
		})
		require.NoError(t, err)
		require.NotNil(t, res.Session)
		assert.False(t, res.NeedsConfirmation())
		assert.Equal(t, "marta", res.User.UserMetadata["username"])
	})

	t.Run("confirmation required", func(t *testing.T) {
		c, _ := newClient(t, remotetest.WithAutoConfirm(false))

		res, err := c.SignUp(context.Background(), authclient.SignUpRequest{Email: email, Password: password})
		require.NoError(t, err)
		assert.Nil(t, res.Session)
		assert.True(t, res.NeedsConfirmation())
		require.NotNil(t, res.User)
		assert.Equal(t, email, res.User.Email)
	})

	t.Run("already registered", func(t *testing.T) {
		c, srv := newClient(t)
		srv.AddUser(email, password, authclient.RoleUser)

		_, err := c.SignUp(context.Background(), authclient.SignUpRequest{Email: email, Password: password})
		var remoteErr *remote.Error
		require.ErrorAs(t, err, &remoteErr)
		assert.Equal(t, http.StatusUnprocessableEntity, remoteErr.StatusCode)
		assert.Equal(t, "user_already_exists", remoteErr.Code)
	})
}

func TestRefreshSessionRotatesTokens(t *testing.T) {
	c, srv := newClient(t)
	srv.AddUser(email, password, authclient.RoleUser)

	first, err := c.SignInWithPassword(context.Background(), authclient.Credentials{Email: email, Password: password})
	require.NoError(t, err)

	second, err := c.RefreshSession(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = c.RefreshSession(context.Background(), first.RefreshToken)
	require.Error(t, err)
	assert.True(t, authclient.IsAuthError(err))
}

func TestUserEndpoints(t *testing.T) {
	c, srv := newClient(t)
	user := srv.AddUser(email, password, authclient.RoleUser)
	ctx := context.Background()

	session, err := c.SignInWithPassword(ctx, authclient.Credentials{Email: email, Password: password})
	require.NoError(t, err)

	got, err := c.GetUser(ctx, session.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	updated, err := c.UpdateUser(ctx, session.AccessToken, authclient.UserAttributes{
		Data: map[string]any{"full_name": "Marta Ruiz"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Marta Ruiz", updated.UserMetadata["full_name"])

	profile, ok := srv.Profile(user.ID)
	require.True(t, ok)
	assert.Equal(t, "Marta Ruiz", profile.FullName)

	require.NoError(t, c.ResetPasswordForEmail(ctx, email, "https://app.example.com/reset"))
	assert.Equal(t, []string{email}, srv.Recovered())

	require.NoError(t, c.SignOut(ctx, session.AccessToken))
	_, err = c.RefreshSession(ctx, session.RefreshToken)
	assert.Error(t, err)
}

func TestGetUserWithExpiredToken(t *testing.T) {
	c, srv := newClient(t)
	user := srv.AddUser(email, password, authclient.RoleUser)

	token, err := srv.MintAccessToken(user.ID, -time.Minute)
	require.NoError(t, err)

	_, err = c.GetUser(context.Background(), token)
	var remoteErr *remote.Error
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusUnauthorized, remoteErr.StatusCode)
	assert.Equal(t, "PGRST301", remoteErr.Code)
	assert.Equal(t, "JWT expired", remoteErr.Message)
}

func TestRPC(t *testing.T) {
	c, srv := newClient(t)
	user := srv.AddUser(email, password, authclient.RoleUser)
	srv.HandleRPC("get_ads", func(userID string, params map[string]any) (any, error) {
		return []map[string]any{{"id": "ad-1", "owner": userID, "limit": params["limit"]}}, nil
	})

	token, err := srv.MintAccessToken(user.ID, time.Hour)
	require.NoError(t, err)

	var out []map[string]any
	require.NoError(t, c.RPC(context.Background(), token, "get_ads", map[string]any{"limit": 5}, &out))
	require.Len(t, out, 1)
	assert.Equal(t, user.ID, out[0]["owner"])
	assert.Equal(t, 5.0, out[0]["limit"])

	require.NoError(t, c.RPC(context.Background(), token, "get_ads", nil, nil))
	assert.Equal(t, 2, srv.Calls("rpc:get_ads"))
}

func TestInvokeFunction(t *testing.T) {
	c, srv := newClient(t)
	referrer := srv.AddUser("ref@example.com", password, authclient.RoleUser)
	srv.AddReferralCode("MARTA10", referrer.ID)

	var out struct {
		User  *authclient.User `json:"user"`
		Error string           `json:"error"`
	}
	err := c.InvokeFunction(context.Background(), "", remotetest.ReferralFunction, map[string]any{
		"email":         email,
		"password":      password,
		"referral_code": "MARTA10",
	}, &out)
	require.NoError(t, err)
	assert.Empty(t, out.Error)
	require.NotNil(t, out.User)
	assert.Equal(t, referrer.ID, out.User.UserMetadata["referred_by"])

	err = c.InvokeFunction(context.Background(), "", "unknown", nil, nil)
	var remoteErr *remote.Error
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, http.StatusNotFound, remoteErr.StatusCode)
	assert.Equal(t, "Function not found", remoteErr.Message)
}

func TestFetchProfileUsesDataClient(t *testing.T) {
	c, srv := newClient(t)
	user := srv.AddUser(email, password, authclient.RoleAdvertiser)

	token, err := srv.MintAccessToken(user.ID, time.Hour)
	require.NoError(t, err)

	_, err = c.FetchProfile(context.Background(), user.ID)
	require.Error(t, err)

	withToken := c.WithDataClient(&http.Client{Transport: bearer{token: token}})
	profile, err := withToken.FetchProfile(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, profile.ID)
	assert.Equal(t, authclient.RoleAdvertiser, profile.Role)
	assert.Equal(t, email, profile.Email)
}

func TestErrorBodies(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    string
		message string
	}{
		{"auth shape", 400, `{"error_code":"otp_expired","msg":"Token has expired or is invalid"}`, "otp_expired", "Token has expired or is invalid"},
		{"oauth shape", 400, `{"error":"invalid_grant","error_description":"Invalid Refresh Token"}`, "invalid_grant", "Invalid Refresh Token"},
		{"data shape", 400, `{"code":"P0001","message":"Insufficient balance","details":null}`, "P0001", "Insufficient balance"},
		{"plain text", 502, `upstream unavailable`, "", "upstream unavailable"},
		{"empty", 503, ``, "", "Service Unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := remote.New(remote.Config{URL: srv.URL, APIKey: "k"})
			require.NoError(t, err)

			err = c.RPC(context.Background(), "", "anything", nil, nil)
			var remoteErr *remote.Error
			require.ErrorAs(t, err, &remoteErr)
			assert.Equal(t, tt.status, remoteErr.StatusCode)
			assert.Equal(t, tt.code, remoteErr.Code)
			assert.Equal(t, tt.message, remoteErr.Message)
		})
	}
}

type bearer struct {
	token string
}

func (b bearer) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+b.token)
	return http.DefaultTransport.RoundTrip(req)
}
