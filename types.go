package authclient

import (
	"context"
	"fmt"
	"time"
)

// Logger is the structured logger used across the package. Messages are
// static strings and args are key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Session is the credential pair issued by the remote auth service.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresIn    int       `json:"expires_in,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         *User     `json:"user,omitempty"`
}

// ExpiresWithin reports whether the session expires before now+margin.
// A session without a known expiry never reports as expiring.
func (s *Session) ExpiresWithin(margin time.Duration, now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(margin).Before(s.ExpiresAt)
}

// IsExpired reports whether the access token is already past its expiry.
func (s *Session) IsExpired(now time.Time) bool {
	return s.ExpiresWithin(0, now)
}

// Clone returns a deep copy so snapshots never share mutable state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.User = s.User.Clone()
	return &out
}

// UserID returns the id of the session owner, if known.
func (s *Session) UserID() string {
	if s == nil || s.User == nil {
		return ""
	}
	return s.User.ID
}

// User is the identity attached to a session.
type User struct {
	ID               string         `json:"id"`
	Email            string         `json:"email,omitempty"`
	Phone            string         `json:"phone,omitempty"`
	Role             string         `json:"role,omitempty"`
	EmailConfirmedAt *time.Time     `json:"email_confirmed_at,omitempty"`
	AppMetadata      map[string]any `json:"app_metadata,omitempty"`
	UserMetadata     map[string]any `json:"user_metadata,omitempty"`
	CreatedAt        *time.Time     `json:"created_at,omitempty"`
	UpdatedAt        *time.Time     `json:"updated_at,omitempty"`
}

// IsVerified reports whether the user confirmed their email address.
func (u *User) IsVerified() bool {
	if u == nil {
		return false
	}
	if u.EmailConfirmedAt != nil && !u.EmailConfirmedAt.IsZero() {
		return true
	}
	if v, ok := u.UserMetadata["email_verified"].(bool); ok {
		return v
	}
	return false
}

// Clone returns a deep copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.AppMetadata = cloneMap(u.AppMetadata)
	out.UserMetadata = cloneMap(u.UserMetadata)
	return &out
}

// Profile is the application level record kept next to the auth user.
type Profile struct {
	ID           string `json:"id"`
	Username     string `json:"username,omitempty"`
	FullName     string `json:"full_name,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Role         Role   `json:"role"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// Credentials are used for password sign in.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUpRequest carries registration data.
type SignUpRequest struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Username string         `json:"username,omitempty"`
	FullName string         `json:"full_name,omitempty"`
	Phone    string         `json:"phone,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Metadata returns the user metadata sent along with the sign up call.
func (r SignUpRequest) Metadata() map[string]any {
	out := cloneMap(r.Data)
	if out == nil {
		out = map[string]any{}
	}
	if r.Username != "" {
		out["username"] = r.Username
	}
	if r.FullName != "" {
		out["full_name"] = r.FullName
	}
	if r.Phone != "" {
		out["phone"] = r.Phone
	}
	return out
}

// SignUpResult is returned by registration. Session is nil when the remote
// requires email confirmation before the first sign in.
type SignUpResult struct {
	User    *User    `json:"user,omitempty"`
	Session *Session `json:"session,omitempty"`
}

// NeedsConfirmation reports whether the account must be confirmed first.
func (r *SignUpResult) NeedsConfirmation() bool {
	return r != nil && r.Session == nil
}

// UserAttributes is the payload for user updates. Empty fields are left
// untouched by the remote.
type UserAttributes struct {
	Email    string         `json:"email,omitempty"`
	Password string         `json:"password,omitempty"`
	Phone    string         `json:"phone,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// ProfileUpdate is the editable subset of the user profile.
type ProfileUpdate struct {
	Username string `json:"username,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Phone    string `json:"phone,omitempty"`
}

// RemoteAuth is the hosted auth service. Implementations must be safe for
// concurrent use.
type RemoteAuth interface {
	SignInWithPassword(ctx context.Context, creds Credentials) (*Session, error)
	SignUp(ctx context.Context, req SignUpRequest) (*SignUpResult, error)
	SignOut(ctx context.Context, accessToken string) error
	RefreshSession(ctx context.Context, refreshToken string) (*Session, error)
	GetUser(ctx context.Context, accessToken string) (*User, error)
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (*User, error)
	InvokeFunction(ctx context.Context, accessToken, name string, body, out any) error
}

// ProfileFetcher loads the application profile for a user id.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, userID string) (*Profile, error)
}

// ProfileFetcherFunc adapts a function to ProfileFetcher.
type ProfileFetcherFunc func(ctx context.Context, userID string) (*Profile, error)

// FetchProfile implements ProfileFetcher.
func (f ProfileFetcherFunc) FetchProfile(ctx context.Context, userID string) (*Profile, error) {
	return f(ctx, userID)
}

// SessionSource hands out the current token and refreshes it on demand.
// Auther is the production implementation.
type SessionSource interface {
	CurrentSession() *Session
	Refresh(ctx context.Context) (*Session, error)
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println(append([]any{"[DBG] AUTHCLIENT", msg}, args...)...)
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println(append([]any{"[INF] AUTHCLIENT", msg}, args...)...)
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println(append([]any{"[WRN] AUTHCLIENT", msg}, args...)...)
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println(append([]any{"[ERR] AUTHCLIENT", msg}, args...)...)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger discards every message.
func NopLogger() Logger { return nopLogger{} }

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
