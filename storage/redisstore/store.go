// Package redisstore persists client sessions in Redis. Keys expire with
// the refresh window of the session they hold.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	authclient "github.com/goliatone/go-authclient"
)

const (
	defaultPrefix = "authclient:session:"
	defaultGrace  = 7 * 24 * time.Hour
)

// Config captures the settings for establishing a Redis connection.
type Config struct {
	Addr     string
	Password string
	DB       int
	Timeout  time.Duration
}

// Connect initialises a Redis client and validates connectivity with a ping.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Store implements authclient.Storage.
type Store struct {
	client redis.UniversalClient
	prefix string
	grace  time.Duration
	now    func() time.Time
}

var _ authclient.Storage = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithGrace sets how long a key outlives the access token expiry. The
// refresh token is still usable during that window.
func WithGrace(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithClock injects a custom clock.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Store using client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
		grace:  defaultGrace,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Load implements authclient.Storage.
func (s *Store) Load(ctx context.Context, key string) (*authclient.Session, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redisstore: load %s: %w", key, err)
	}
	return authclient.DecodeSession(raw)
}

// Save implements authclient.Storage.
func (s *Store) Save(ctx context.Context, key string, session *authclient.Session) error {
	if session == nil {
		return s.Delete(ctx, key)
	}

	payload, err := authclient.EncodeSession(session)
	if err != nil {
		return fmt.Errorf("redisstore: encode session: %w", err)
	}

	if err := s.client.Set(ctx, s.key(key), payload, s.ttl(session)).Err(); err != nil {
		return fmt.Errorf("redisstore: save %s: %w", key, err)
	}
	return nil
}

// Delete implements authclient.Storage.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete %s: %w", key, err)
	}
	return nil
}

// ttl is zero (no expiry) for sessions without a known expiry.
func (s *Store) ttl(session *authclient.Session) time.Duration {
	if session.ExpiresAt.IsZero() {
		return 0
	}
	ttl := session.ExpiresAt.Sub(s.now()) + s.grace
	if ttl < time.Second {
		ttl = time.Second
	}
	return ttl
}

func (s *Store) key(key string) string {
	return s.prefix + key
}
