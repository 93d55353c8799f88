package authclient

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/sethvargo/go-envconfig"
)

// DefaultPublicEndpoints are the auth endpoints that must never carry a
// bearer token.
var DefaultPublicEndpoints = []string{
	"/auth/v1/token",
	"/auth/v1/signup",
	"/auth/v1/recover",
	"/auth/v1/verify",
}

// Config holds client options. Zero values are filled in by WithDefaults.
type Config struct {
	URL    string `env:"AUTHCLIENT_URL"`
	APIKey string `env:"AUTHCLIENT_API_KEY"`

	StorageKey          string        `env:"AUTHCLIENT_STORAGE_KEY, default=ptc.auth.session"`
	PersistSession      bool          `env:"AUTHCLIENT_PERSIST_SESSION, default=true"`
	AutoRefreshToken    bool          `env:"AUTHCLIENT_AUTO_REFRESH, default=true"`
	AutoRefreshInterval time.Duration `env:"AUTHCLIENT_AUTO_REFRESH_INTERVAL, default=30s"`
	DetectSessionInURL  bool          `env:"AUTHCLIENT_DETECT_SESSION_IN_URL, default=true"`
	RefreshMargin       time.Duration `env:"AUTHCLIENT_REFRESH_MARGIN, default=60s"`
	GuardTimeout        time.Duration `env:"AUTHCLIENT_GUARD_TIMEOUT, default=5s"`
	RequestTimeout      time.Duration `env:"AUTHCLIENT_REQUEST_TIMEOUT, default=15s"`

	LoginPath               string `env:"AUTHCLIENT_LOGIN_PATH, default=/login"`
	PostLoginPath           string `env:"AUTHCLIENT_POST_LOGIN_PATH, default=/dashboard"`
	PostLogoutPath          string `env:"AUTHCLIENT_POST_LOGOUT_PATH, default=/login"`
	UnauthorizedPath        string `env:"AUTHCLIENT_UNAUTHORIZED_PATH, default=/unauthorized"`
	DashboardPath           string `env:"AUTHCLIENT_DASHBOARD_PATH, default=/dashboard"`
	PendingVerificationPath string `env:"AUTHCLIENT_PENDING_VERIFICATION_PATH, default=/verify-email"`
	PasswordResetRedirect   string `env:"AUTHCLIENT_PASSWORD_RESET_REDIRECT"`
	ReturnParam             string `env:"AUTHCLIENT_RETURN_PARAM, default=returnUrl"`

	ReferralFunction string   `env:"AUTHCLIENT_REFERRAL_FUNCTION, default=register-with-referral"`
	PublicEndpoints  []string `env:"AUTHCLIENT_PUBLIC_ENDPOINTS"`
}

// LoadConfig reads the configuration from the process environment.
func LoadConfig(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return cfg, err
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

// LoadConfigFrom reads the configuration from a static lookup, mostly for tests.
func LoadConfigFrom(ctx context.Context, env map[string]string) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: envconfig.MapLookuper(env),
	})
	if err != nil {
		return cfg, err
	}
	cfg = cfg.WithDefaults()
	return cfg, cfg.Validate()
}

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	return Config{
		PersistSession:     true,
		AutoRefreshToken:   true,
		DetectSessionInURL: true,
	}.WithDefaults()
}

// WithDefaults fills zero fields. Booleans are left alone.
func (c Config) WithDefaults() Config {
	if c.StorageKey == "" {
		c.StorageKey = "ptc.auth.session"
	}
	if c.AutoRefreshInterval <= 0 {
		c.AutoRefreshInterval = 30 * time.Second
	}
	if c.RefreshMargin <= 0 {
		c.RefreshMargin = 60 * time.Second
	}
	if c.GuardTimeout <= 0 {
		c.GuardTimeout = 5 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.LoginPath == "" {
		c.LoginPath = "/login"
	}
	if c.PostLoginPath == "" {
		c.PostLoginPath = "/dashboard"
	}
	if c.PostLogoutPath == "" {
		c.PostLogoutPath = c.LoginPath
	}
	if c.UnauthorizedPath == "" {
		c.UnauthorizedPath = "/unauthorized"
	}
	if c.DashboardPath == "" {
		c.DashboardPath = "/dashboard"
	}
	if c.PendingVerificationPath == "" {
		c.PendingVerificationPath = "/verify-email"
	}
	if c.ReturnParam == "" {
		c.ReturnParam = "returnUrl"
	}
	if c.ReferralFunction == "" {
		c.ReferralFunction = "register-with-referral"
	}
	if len(c.PublicEndpoints) == 0 {
		c.PublicEndpoints = append([]string(nil), DefaultPublicEndpoints...)
	}
	c.URL = strings.TrimRight(c.URL, "/")
	return c
}

// Validate checks the config for required values.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.URL, validation.Required, is.URL),
		validation.Field(&c.APIKey, validation.Required),
		validation.Field(&c.StorageKey, validation.Required),
		validation.Field(&c.LoginPath, validation.Required),
		validation.Field(&c.PostLoginPath, validation.Required),
	)
}
