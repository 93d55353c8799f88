package authclient

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Decision is the outcome of a route guard.
type Decision struct {
	Allow    bool
	Redirect string
	ReturnTo string
	// Profile is set when a role guard resolved the user's profile.
	Profile *Profile
}

// Location returns the redirect target with the return target encoded in
// the param query parameter.
func (d Decision) Location(param string) string {
	if d.Allow || d.Redirect == "" {
		return ""
	}
	if d.ReturnTo == "" || param == "" {
		return d.Redirect
	}
	sep := "?"
	if strings.Contains(d.Redirect, "?") {
		sep = "&"
	}
	return d.Redirect + sep + url.Values{param: {d.ReturnTo}}.Encode()
}

func allow() Decision { return Decision{Allow: true} }

func redirectTo(target, returnTo string) Decision {
	return Decision{Redirect: target, ReturnTo: returnTo}
}

// Guards gate navigation on the session state. They never write the store.
type Guards struct {
	state    StateReader
	profiles ProfileFetcher
	cfg      Config
	logger   Logger
	metrics  *Metrics
}

// GuardOption configures Guards.
type GuardOption func(*Guards)

// WithGuardLogger sets the logger.
func WithGuardLogger(logger Logger) GuardOption {
	return func(g *Guards) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGuardMetrics enables prometheus counters.
func WithGuardMetrics(m *Metrics) GuardOption {
	return func(g *Guards) {
		g.metrics = m
	}
}

// NewGuards returns route guards reading from state. profiles may be nil
// when role guards are not used.
func NewGuards(state StateReader, profiles ProfileFetcher, cfg Config, opts ...GuardOption) *Guards {
	g := &Guards{
		state:    state,
		profiles: profiles,
		cfg:      cfg.WithDefaults(),
		logger:   defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Config returns the effective configuration.
func (g *Guards) Config() Config { return g.cfg }

// WaitSettled blocks until no operation is in flight, the guard timeout
// elapses or ctx is done, and returns the latest state either way.
func (g *Guards) WaitSettled(ctx context.Context) AuthState {
	current := g.state.Snapshot()
	if current.Settled() {
		return current
	}

	updates, cancel := g.state.Subscribe()
	defer cancel()

	timer := time.NewTimer(g.cfg.GuardTimeout)
	defer timer.Stop()

	for {
		select {
		case s, ok := <-updates:
			if !ok {
				return current
			}
			current = s
			if current.Settled() {
				return current
			}
		case <-timer.C:
			g.logger.Warn("guard wait timed out, using current state", "status", current.Status.String())
			return g.state.Snapshot()
		case <-ctx.Done():
			return g.state.Snapshot()
		}
	}
}

// RequireAuth lets authenticated users through and sends everyone else to
// the login page with target as return target.
func (g *Guards) RequireAuth(ctx context.Context, target string) Decision {
	d := g.requireAuth(g.WaitSettled(ctx), target)
	g.metrics.observeGuard("require_auth", d)
	return d
}

func (g *Guards) requireAuth(state AuthState, target string) Decision {
	if !state.IsAuthenticated() {
		return redirectTo(g.cfg.LoginPath, target)
	}
	return allow()
}

// GuestOnly keeps authenticated users away from guest pages such as login.
func (g *Guards) GuestOnly(ctx context.Context) Decision {
	state := g.WaitSettled(ctx)
	d := allow()
	if state.IsAuthenticated() {
		d = redirectTo(g.cfg.PostLoginPath, "")
	}
	g.metrics.observeGuard("guest_only", d)
	return d
}

// RequireRole lets through users whose profile role is one of roles.
// Profiles that cannot be resolved send the user to the dashboard.
func (g *Guards) RequireRole(ctx context.Context, target string, roles ...Role) Decision {
	state := g.WaitSettled(ctx)
	d := g.requireAuth(state, target)
	if d.Allow {
		d = g.checkRole(ctx, state, NewRoleSet(roles...))
	}
	g.metrics.observeGuard("require_role", d)
	return d
}

func (g *Guards) checkRole(ctx context.Context, state AuthState, allowed RoleSet) Decision {
	userID := state.Session.UserID()
	if g.profiles == nil || userID == "" {
		return redirectTo(g.cfg.DashboardPath, "")
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.GuardTimeout)
	defer cancel()

	profile, err := safeCall(func() (*Profile, error) {
		return g.profiles.FetchProfile(ctx, userID)
	})
	if err != nil || profile == nil {
		g.logger.Warn("guard profile lookup failed", "user_id", userID, "error", err)
		return redirectTo(g.cfg.DashboardPath, "")
	}

	if !allowed.Has(profile.Role) {
		return redirectTo(g.cfg.UnauthorizedPath, "")
	}
	return Decision{Allow: true, Profile: profile}
}

// RequireVerified lets through users that confirmed their email.
func (g *Guards) RequireVerified(ctx context.Context, target string) Decision {
	state := g.WaitSettled(ctx)
	d := g.requireAuth(state, target)
	if d.Allow && !state.User.IsVerified() {
		d = redirectTo(g.cfg.PendingVerificationPath, target)
	}
	g.metrics.observeGuard("require_verified", d)
	return d
}
