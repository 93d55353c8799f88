package cli

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	authclient "github.com/goliatone/go-authclient"
	"github.com/goliatone/go-authclient/middleware/guard"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve guarded demo routes and metrics",
		Long: `Serve a small set of routes protected by the route guards, using the
stored session as the visitor. /metrics exposes the client counters.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return a.serve(ctx, addr)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8572", "listen address")
	return cmd
}

func (a *app) serve(ctx context.Context, addr string) error {
	fapp := fiber.New(fiber.Config{
		UnescapePath:          true,
		StrictRouting:         false,
		DisableStartupMessage: true,
	})
	fapp.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{})))

	srv := router.NewFiberAdapter(func(*fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fapp)
	})
	a.routes(srv.Router())

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Serve(addr)
	}()
	a.logger.Info("serving guarded routes", "addr", addr)

	select {
	case err := <-errc:
		if err != nil {
			return err
		}
		<-ctx.Done()
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return fapp.ShutdownWithContext(shutdownCtx)
}

func (a *app) routes(r router.Router[*fiber.App]) {
	cfg := guard.Config{Guards: a.guards}

	r.Get("/state", a.stateHandler)
	r.Get(a.cfg.LoginPath, a.stateHandler, guard.GuestOnly(cfg))
	r.Get(a.cfg.DashboardPath, a.stateHandler, guard.RequireAuth(cfg))
	r.Get("/admin", a.profileHandler, guard.RequireRole(cfg, authclient.RoleAdmin, authclient.RoleDev))
	r.Get("/ads", a.profileHandler, guard.RequireRole(cfg, authclient.RoleAdvertiser, authclient.RoleAdmin))
	r.Get("/withdrawals", a.stateHandler, guard.RequireVerified(cfg))
}

func (a *app) stateHandler(ctx router.Context) error {
	state, ok := authclient.FromContext(ctx.Context())
	if !ok {
		state = a.auther.State()
	}
	return ctx.JSON(router.StatusOK, viewOf(state))
}

func (a *app) profileHandler(ctx router.Context) error {
	profile, ok := authclient.ProfileFromContext(ctx.Context())
	if !ok {
		return ctx.JSON(router.StatusBadRequest, map[string]string{
			"error": "profile not loaded",
		})
	}
	return ctx.JSON(router.StatusOK, profile)
}
