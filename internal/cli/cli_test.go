package cli_test

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authclient "github.com/goliatone/go-authclient"
	"github.com/goliatone/go-authclient/internal/cli"
	"github.com/goliatone/go-authclient/remote/remotetest"
)

type harness struct {
	t      *testing.T
	server *remotetest.Server
	db     string
	pretty bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	srv := remotetest.New()
	t.Cleanup(srv.Close)

	t.Setenv("AUTHCLIENT_URL", srv.URL)
	t.Setenv("AUTHCLIENT_API_KEY", remotetest.APIKey)
	t.Setenv("AUTHCLIENT_AUTO_REFRESH", "false")

	return &harness{
		t:      t,
		server: srv,
		db:     "file:" + filepath.Join(t.TempDir(), "sessions.db"),
	}
}

func (h *harness) run(args ...string) (string, error) {
	h.t.Helper()

	base := []string{
		"--env-file", "",
		"--log-format", "json",
		"--log-level", "error",
		"--db", h.db,
	}
	if !h.pretty {
		base = append(base, "--no-color")
	}

	var out bytes.Buffer
	cmd := cli.NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, base...))

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoginWhoamiLogout(t *testing.T) {
	h := newHarness(t)
	h.server.AddUser("ana@example.com", "s3cret-pass", authclient.RoleUser)

	out, err := h.run("login", "--email", "ana@example.com", "--password", "s3cret-pass")
	require.NoError(t, err)
	assert.Contains(t, out, authclient.MessageLoginSuccess)
	assert.Contains(t, out, `"authenticated": true`)

	out, err = h.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "authenticated"`)
	assert.Contains(t, out, `"email": "ana@example.com"`)

	out, err = h.run("logout")
	require.NoError(t, err)
	assert.Contains(t, out, authclient.MessageLogoutSuccess)
	assert.Equal(t, 1, h.server.Calls("logout"))

	out, err = h.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, `"authenticated": false`)
}

func TestWhoamiPrettyOutput(t *testing.T) {
	h := newHarness(t)
	h.pretty = true

	out, err := h.run("whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "\t\"authenticated\": false")
}

func TestLoginWrongPassword(t *testing.T) {
	h := newHarness(t)
	h.server.AddUser("ana@example.com", "s3cret-pass", authclient.RoleUser)

	_, err := h.run("login", "--email", "ana@example.com", "--password", "wrong-pass")
	require.Error(t, err)
	assert.Contains(t, err.Error(), authclient.MessageInvalidCredentials)
}

func TestRPCUsesStoredSession(t *testing.T) {
	h := newHarness(t)
	user := h.server.AddUser("ana@example.com", "s3cret-pass", authclient.RoleUser)

	var gotUser string
	var gotParams map[string]any
	h.server.HandleRPC("get_user_balance", func(userID string, params map[string]any) (any, error) {
		gotUser = userID
		gotParams = params
		return map[string]any{"balance": 12.5}, nil
	})

	_, err := h.run("login", "--email", "ana@example.com", "--password", "s3cret-pass")
	require.NoError(t, err)

	out, err := h.run("rpc", "get_user_balance", "--params", `{"currency":"USD"}`)
	require.NoError(t, err)

	assert.Equal(t, user.ID, gotUser)
	assert.Equal(t, "USD", gotParams["currency"])
	assert.Contains(t, out, `"balance": 12.5`)
}

func TestRPCInvalidParams(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("rpc", "get_user_balance", "--params", "{nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --params")
	assert.Zero(t, h.server.Calls("rpc:get_user_balance"))
}

func TestRegisterWithoutConfirmation(t *testing.T) {
	h := newHarness(t)

	out, err := h.run("register",
		"--email", "leo@example.com",
		"--password", "s3cret-pass",
		"--username", "leo",
	)
	require.NoError(t, err)
	assert.Contains(t, out, authclient.MessageRegisterSuccess)
	assert.Contains(t, out, `"needs_confirmation": false`)
	assert.Equal(t, 1, h.server.Calls("signup"))
}

func TestUnknownStore(t *testing.T) {
	h := newHarness(t)

	_, err := h.run("whoami", "--store", "etcd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown session store")
}

func TestMissingConfiguration(t *testing.T) {
	h := newHarness(t)
	t.Setenv("AUTHCLIENT_URL", "")

	_, err := h.run("whoami")
	require.Error(t, err)
}
