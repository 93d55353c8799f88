package authclient_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	authclient "github.com/goliatone/go-authclient"
	"github.com/goliatone/go-authclient/remote"
	"github.com/goliatone/go-authclient/remote/remotetest"
)

const (
	testEmail    = "ana@example.com"
	testPassword = "s3cret-pass"
)

func testConfig(srv *remotetest.Server) authclient.Config {
	cfg := authclient.DefaultConfig()
	cfg.URL = srv.URL
	cfg.APIKey = remotetest.APIKey
	cfg.AutoRefreshToken = false
	return cfg
}

type fixture struct {
	server  *remotetest.Server
	remote  *remote.Client
	auther  *authclient.Auther
	storage *authclient.MemoryStorage
	sink    *recordingSink
}

func newFixture(t *testing.T, opts ...authclient.Option) *fixture {
	t.Helper()
	return newFixtureWithServer(t, remotetest.New(), opts...)
}

func newFixtureWithServer(t *testing.T, srv *remotetest.Server, opts ...authclient.Option) *fixture {
	t.Helper()
	t.Cleanup(srv.Close)

	rc, err := remote.New(remote.Config{URL: srv.URL, APIKey: remotetest.APIKey})
	require.NoError(t, err)

	f := &fixture{
		server:  srv,
		remote:  rc,
		storage: authclient.NewMemoryStorage(),
		sink:    &recordingSink{},
	}

	base := []authclient.Option{
		authclient.WithLogger(authclient.NopLogger()),
		authclient.WithStorage(f.storage),
		authclient.WithActivitySink(f.sink),
	}
	f.auther = authclient.NewAuther(rc, testConfig(srv), append(base, opts...)...)
	t.Cleanup(f.auther.Close)
	return f
}

func (f *fixture) login(t *testing.T) authclient.User {
	t.Helper()
	user := f.server.AddUser(testEmail, testPassword, authclient.RoleUser)
	res := f.auther.Login(context.Background(), testEmail, testPassword)
	require.True(t, res.Success, res.Message)
	return user
}

type recordingSink struct {
	mu     sync.Mutex
	events []authclient.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, e authclient.ActivityEvent) error {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
	return nil
}

func (s *recordingSink) Types() []authclient.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]authclient.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

// fakeSource is a SessionSource with a scripted refresh.
type fakeSource struct {
	mu        sync.Mutex
	session   *authclient.Session
	next      *authclient.Session
	err       error
	refreshes int
}

func (s *fakeSource) CurrentSession() *authclient.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Clone()
}

func (s *fakeSource) Refresh(context.Context) (*authclient.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshes++
	if s.err != nil {
		return nil, s.err
	}
	s.session = s.next.Clone()
	return s.session.Clone(), nil
}

func (s *fakeSource) Refreshes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshes
}

func sessionExpiringAt(token string, at time.Time) *authclient.Session {
	return &authclient.Session{
		AccessToken:  token,
		RefreshToken: "refresh-" + token,
		ExpiresAt:    at,
		User:         &authclient.User{ID: "user-1", Email: testEmail},
	}
}
