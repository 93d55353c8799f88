package bunstore_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	authclient "github.com/goliatone/go-authclient"
	"github.com/goliatone/go-authclient/remote"
	"github.com/goliatone/go-authclient/remote/remotetest"
	"github.com/goliatone/go-authclient/storage/bunstore"
)

func setupStore(t *testing.T) (*bunstore.Store, *bun.DB) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		_ = db.Close()
	})

	store := bunstore.New(db)
	require.NoError(t, store.Migrate(context.Background()))
	return store, db
}

func TestStoreSaveAndLoad(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	expires := time.Now().Add(time.Hour).Truncate(time.Second)
	session := &authclient.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		TokenType:    "bearer",
		ExpiresAt:    expires,
		User:         &authclient.User{ID: "user-1", Email: "ana@example.com"},
	}

	require.NoError(t, store.Save(ctx, "ptc.auth.session", session))

	loaded, err := store.Load(ctx, "ptc.auth.session")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "access-1", loaded.AccessToken)
	assert.Equal(t, "refresh-1", loaded.RefreshToken)
	assert.Equal(t, "ana@example.com", loaded.User.Email)
	assert.True(t, expires.Equal(loaded.ExpiresAt))
}

func TestStoreSaveOverwrites(t *testing.T) {
	store, db := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "k", &authclient.Session{AccessToken: "a1", RefreshToken: "r1"}))
	require.NoError(t, store.Save(ctx, "k", &authclient.Session{AccessToken: "a2", RefreshToken: "r2"}))

	loaded, err := store.Load(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "a2", loaded.AccessToken)

	count, err := db.NewSelect().Model((*bunstore.Record)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStoreLoadMissing(t *testing.T) {
	store, _ := setupStore(t)

	loaded, err := store.Load(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestStoreDelete(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "k", &authclient.Session{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, store.Delete(ctx, "k"))

	loaded, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, loaded)

	require.NoError(t, store.Delete(ctx, "k"))
}

func TestStoreSaveNilDeletes(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "k", &authclient.Session{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, store.Save(ctx, "k", nil))

	loaded, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestStorePurgeExpired(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Save(ctx, "old", &authclient.Session{AccessToken: "a", RefreshToken: "r", ExpiresAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, store.Save(ctx, "new", &authclient.Session{AccessToken: "b", RefreshToken: "r", ExpiresAt: now.Add(time.Hour)}))

	n, err := store.PurgeExpired(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	old, err := store.Load(ctx, "old")
	require.NoError(t, err)
	assert.Nil(t, old)

	kept, err := store.Load(ctx, "new")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestRecordIDIsStable(t *testing.T) {
	assert.Equal(t, bunstore.RecordID("k"), bunstore.RecordID("k"))
	assert.NotEqual(t, bunstore.RecordID("a"), bunstore.RecordID("b"))
}

func TestStoreWithAuther(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	srv := remotetest.New()
	defer srv.Close()
	srv.AddUser("ana@example.com", "s3cret-pass", authclient.RoleUser)

	rc, err := remote.New(remote.Config{URL: srv.URL, APIKey: remotetest.APIKey})
	require.NoError(t, err)

	cfg := authclient.DefaultConfig()
	cfg.URL = srv.URL
	cfg.APIKey = remotetest.APIKey
	cfg.AutoRefreshToken = false

	stored, err := rc.SignInWithPassword(ctx, authclient.Credentials{Email: "ana@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, cfg.StorageKey, stored))

	a := authclient.NewAuther(rc, cfg, authclient.WithStorage(store), authclient.WithLogger(authclient.NopLogger()))
	defer a.Close()

	res := a.Initialize(ctx, authclient.InitOptions{})
	require.True(t, res.Success, res.Message)
	assert.True(t, a.IsAuthenticated())
	assert.Equal(t, stored.AccessToken, a.AccessToken())
	assert.Equal(t, 1, srv.Calls("user"))
}
