// Package guard adapts authclient.Guards to go-router middleware.
package guard

import (
	"context"
	"net/http"

	"github.com/goliatone/go-router"

	authclient "github.com/goliatone/go-authclient"
)

// Config configures the guard middleware.
type Config struct {
	// Guards is required.
	Guards *authclient.Guards
	// Filter skips the guard when it returns true.
	Filter func(router.Context) bool
	// SuccessHandler runs when access is granted. Defaults to ctx.Next().
	SuccessHandler router.HandlerFunc
	// DeniedHandler runs when access is denied. Defaults to a redirect to
	// the decision target with the return target in ReturnParam.
	DeniedHandler func(ctx router.Context, d authclient.Decision) error
	// ContextKey is where the auth state is stored in locals.
	ContextKey string
	// ProfileKey is where the resolved profile is stored by role guards.
	ProfileKey string
	// ReturnParam names the query parameter carrying the return target.
	ReturnParam string
}

// GetDefaultConfig fills in defaults.
func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.Guards == nil {
		panic("AUTHCLIENT: guard middleware configuration: Guards is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = authclient.DefaultLocalsKey
	}

	if cfg.ProfileKey == "" {
		cfg.ProfileKey = cfg.ContextKey + "_profile"
	}

	if cfg.ReturnParam == "" {
		cfg.ReturnParam = cfg.Guards.Config().ReturnParam
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.DeniedHandler == nil {
		param := cfg.ReturnParam
		cfg.DeniedHandler = func(ctx router.Context, d authclient.Decision) error {
			return ctx.Redirect(d.Location(param), redirectStatus(ctx.Method()))
		}
	}

	return cfg
}

// RequireAuth only lets authenticated users through.
func RequireAuth(config ...Config) router.MiddlewareFunc {
	return newGuard(GetDefaultConfig(config...), func(g *authclient.Guards, ctx context.Context, target string) authclient.Decision {
		return g.RequireAuth(ctx, target)
	})
}

// GuestOnly keeps authenticated users away, e.g. from the login page.
func GuestOnly(config ...Config) router.MiddlewareFunc {
	return newGuard(GetDefaultConfig(config...), func(g *authclient.Guards, ctx context.Context, _ string) authclient.Decision {
		return g.GuestOnly(ctx)
	})
}

// RequireRole only lets through users whose profile role is in roles.
func RequireRole(cfg Config, roles ...authclient.Role) router.MiddlewareFunc {
	return newGuard(GetDefaultConfig(cfg), func(g *authclient.Guards, ctx context.Context, target string) authclient.Decision {
		return g.RequireRole(ctx, target, roles...)
	})
}

// RequireVerified only lets through users with a confirmed email.
func RequireVerified(config ...Config) router.MiddlewareFunc {
	return newGuard(GetDefaultConfig(config...), func(g *authclient.Guards, ctx context.Context, target string) authclient.Decision {
		return g.RequireVerified(ctx, target)
	})
}

type decideFunc func(g *authclient.Guards, ctx context.Context, target string) authclient.Decision

func newGuard(cfg Config, decide decideFunc) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			d := decide(cfg.Guards, ctx.Context(), ctx.OriginalURL())
			if !d.Allow {
				return cfg.DeniedHandler(ctx, d)
			}

			state := cfg.Guards.WaitSettled(ctx.Context())
			ctx.Locals(cfg.ContextKey, state)

			stdCtx := authclient.WithContext(ctx.Context(), state)
			if d.Profile != nil {
				ctx.Locals(cfg.ProfileKey, d.Profile)
				stdCtx = authclient.WithProfileContext(stdCtx, d.Profile)
			}
			ctx.SetContext(stdCtx)

			return cfg.SuccessHandler(ctx)
		}
	}
}

// redirectStatus keeps GET as GET and turns form posts into a GET of the
// target.
func redirectStatus(method string) int {
	if method == http.MethodGet || method == http.MethodHead {
		return http.StatusFound
	}
	return http.StatusSeeOther
}
