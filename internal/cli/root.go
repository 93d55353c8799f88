// Package cli implements the authclient command line tool.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

const defaultEnvFile = ".env"

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "authclient",
		Short: "Session client for the PTC advertising platform",
		Long: `authclient signs in against the hosted auth service, keeps the session
fresh and calls platform RPC functions with it.

Configuration is read from AUTHCLIENT_* environment variables, optionally
loaded from a .env file. The session is persisted between runs.

Examples:
  authclient login --email ana@example.com --password secret
  authclient whoami
  authclient rpc get_user_balance
  authclient serve --addr :8080`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", defaultEnvFile, "dotenv file to load before reading the environment")
	flags.StringVar(&opts.logFormat, "log-format", "pretty", "log format: pretty or json")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level for json logs")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")
	flags.StringVar(&opts.store, "store", "sqlite", "session store: memory, sqlite or redis")
	flags.StringVar(&opts.dbPath, "db", "file:authclient.db", "sqlite DSN for the session store")
	flags.StringVar(&opts.redisAddr, "redis-addr", "localhost:6379", "redis address for the session store")
	flags.StringVar(&opts.jwksURL, "jwks-url", "", "verify access tokens against this JWKS endpoint")
	flags.BoolVar(&opts.noColor, "no-color", false, "print plain JSON")

	root.AddCommand(
		newLoginCommand(opts),
		newRegisterCommand(opts),
		newLogoutCommand(opts),
		newWhoamiCommand(opts),
		newRefreshCommand(opts),
		newResetPasswordCommand(opts),
		newUpdatePasswordCommand(opts),
		newUpdateProfileCommand(opts),
		newRPCCommand(opts),
		newServeCommand(opts),
	)
	return root
}

// ExecuteContext runs the root command.
func ExecuteContext(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// withApp wires the client, runs fn and releases it.
func withApp(cmd *cobra.Command, opts *globalOptions, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, opts, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	return fn(ctx, a)
}
