package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	authclient "github.com/goliatone/go-authclient"
	"github.com/goliatone/go-authclient/activitymap"
	"github.com/goliatone/go-authclient/remote"
	"github.com/goliatone/go-authclient/storage/bunstore"
	"github.com/goliatone/go-authclient/storage/redisstore"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	envFile   string
	logFormat string
	logLevel  string
	verbose   bool
	store     string
	dbPath    string
	redisAddr string
	jwksURL   string
	noColor   bool
}

// app holds the wired client for a single command run.
type app struct {
	cfg      authclient.Config
	logger   authclient.Logger
	remote   *remote.Client
	auther   *authclient.Auther
	invoker  *authclient.Invoker
	guards   *authclient.Guards
	metrics  *authclient.Metrics
	registry *prometheus.Registry
	out      io.Writer
	noColor  bool

	closers []func()
}

func newApp(ctx context.Context, opts *globalOptions, out io.Writer) (*app, error) {
	if err := loadEnvFile(opts.envFile); err != nil {
		return nil, err
	}

	cfg, err := authclient.LoadConfig(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid client configuration")
	}

	a := &app{
		cfg:      cfg,
		logger:   newLogger(opts),
		registry: prometheus.NewRegistry(),
		out:      out,
		noColor:  opts.noColor,
	}

	if a.metrics, err = authclient.NewMetrics(a.registry); err != nil {
		return nil, err
	}

	storage, err := a.openStorage(ctx, opts)
	if err != nil {
		a.Close()
		return nil, err
	}

	authOpts := []authclient.Option{
		authclient.WithLogger(a.logger),
		authclient.WithStorage(storage),
		authclient.WithMetrics(a.metrics),
		authclient.WithActivitySink(activitymap.NewSink(func(_ context.Context, n activitymap.Normalized) error {
			a.logger.Debug("auth activity", "verb", n.Verb, "actor_id", n.ActorID, "outcome", n.Metadata[activitymap.MetadataKeyOutcome])
			return nil
		}, activitymap.WithDefaultChannel("cli"))),
	}

	if opts.jwksURL != "" {
		jwks, err := authclient.NewJWKSKeyfunc(opts.jwksURL, 0)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load JWKS: %w", err)
		}
		a.closers = append(a.closers, jwks.EndBackground)
		authOpts = append(authOpts, authclient.WithTokenInspector(
			authclient.NewTokenInspector(authclient.WithKeyfunc(jwks.Keyfunc)),
		))
	}

	rc, err := remote.New(remote.Config{
		URL:        cfg.URL,
		APIKey:     cfg.APIKey,
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.auther = authclient.NewAuther(rc, cfg, authOpts...)
	a.closers = append(a.closers, a.auther.Close)

	transport := authclient.NewTransport(a.auther, nil, func(r authclient.Redirect) {
		a.logger.Warn("request needs navigation", "kind", r.Kind.String(), "target", r.Target, "return_to", r.ReturnTo)
	})
	a.remote = rc.WithDataClient(&http.Client{Transport: transport, Timeout: cfg.RequestTimeout})

	a.invoker = authclient.NewInvokerFor(a.auther, a.remote,
		authclient.WithInvokerLogger(a.logger),
		authclient.WithInvokerMetrics(a.metrics),
	)
	a.guards = authclient.NewGuards(a.auther.Store(), a.remote, cfg,
		authclient.WithGuardLogger(a.logger),
		authclient.WithGuardMetrics(a.metrics),
	)

	if res := a.auther.Initialize(ctx, authclient.InitOptions{}); !res.Success {
		a.logger.Warn("session restore failed", "message", res.Message, "error", res.Err)
	}
	return a, nil
}

func (a *app) openStorage(ctx context.Context, opts *globalOptions) (authclient.Storage, error) {
	switch opts.store {
	case "memory":
		return authclient.NewMemoryStorage(), nil
	case "redis":
		client, err := redisstore.Connect(ctx, redisstore.Config{
			Addr:    opts.redisAddr,
			Timeout: a.cfg.RequestTimeout,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return redisstore.New(client), nil
	case "sqlite", "":
		sqldb, err := sql.Open(sqliteshim.ShimName, opts.dbPath)
		if err != nil {
			return nil, fmt.Errorf("open session db: %w", err)
		}
		sqldb.SetMaxOpenConns(1)
		db := bun.NewDB(sqldb, sqlitedialect.New())
		a.closers = append(a.closers, func() { _ = db.Close() })

		store := bunstore.New(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown session store %q (memory, sqlite, redis)", opts.store)
	}
}

// Close releases everything opened by newApp, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newLogger(opts *globalOptions) authclient.Logger {
	if opts.logFormat == "json" {
		level := opts.logLevel
		if opts.verbose {
			level = "debug"
		}
		return authclient.NewZerologLogger(authclient.NewZerolog(authclient.LoggerOptions{
			Level:  level,
			Output: os.Stderr,
		}))
	}

	level := glog.Info
	if opts.verbose {
		level = glog.Trace
	}
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(level),
		glog.WithName("authclient"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(goerrors.ToSlogAttributes),
	)
	return lgr.GetLogger("cli")
}

// loadEnvFile loads a dotenv file. A missing default file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || (path == defaultEnvFile && errors.Is(err, fs.ErrNotExist)) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}
