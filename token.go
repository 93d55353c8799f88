package authclient

import (
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// AccessClaims are the claims carried by access tokens issued by the remote.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	Role         string         `json:"role,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
}

// User builds the minimal user described by the claims.
func (c *AccessClaims) User() *User {
	if c == nil {
		return nil
	}
	return &User{
		ID:           c.Subject,
		Email:        c.Email,
		Phone:        c.Phone,
		Role:         c.Role,
		AppMetadata:  cloneMap(c.AppMetadata),
		UserMetadata: cloneMap(c.UserMetadata),
	}
}

// TokenInspector reads access tokens. Without a key function it decodes
// claims without verifying the signature, which is enough for expiry
// bookkeeping on the client. Verification is opt in.
type TokenInspector struct {
	keyFunc jwt.Keyfunc
	parser  *jwt.Parser
}

// TokenInspectorOption configures a TokenInspector.
type TokenInspectorOption func(*TokenInspector)

// WithKeyfunc enables signature verification with the given key function.
func WithKeyfunc(kf jwt.Keyfunc) TokenInspectorOption {
	return func(ti *TokenInspector) {
		ti.keyFunc = kf
	}
}

// WithSigningSecret enables HMAC signature verification.
func WithSigningSecret(secret []byte) TokenInspectorOption {
	return func(ti *TokenInspector) {
		if len(secret) == 0 {
			return
		}
		ti.keyFunc = func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return secret, nil
		}
	}
}

// NewJWKSKeyfunc fetches the remote JWKS and keeps it refreshed in the
// background. Call EndBackground on the returned JWKS when done.
func NewJWKSKeyfunc(jwksURL string, refresh time.Duration) (*keyfunc.JWKS, error) {
	if refresh <= 0 {
		refresh = time.Hour
	}
	return keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   refresh,
		RefreshRateLimit:  time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	})
}

// NewTokenInspector returns a TokenInspector.
func NewTokenInspector(opts ...TokenInspectorOption) *TokenInspector {
	ti := &TokenInspector{
		parser: jwt.NewParser(jwt.WithoutClaimsValidation()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ti)
		}
	}
	return ti
}

// Verifies reports whether signatures are checked.
func (ti *TokenInspector) Verifies() bool {
	return ti != nil && ti.keyFunc != nil
}

// Claims decodes the token claims. Expiry is not enforced here, callers
// compare ExpiresAt themselves.
func (ti *TokenInspector) Claims(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if token == "" {
		return nil, goerrors.New("missing or malformed JWT", goerrors.CategoryBadInput)
	}

	if ti.Verifies() {
		if _, err := ti.parser.ParseWithClaims(token, claims, ti.keyFunc); err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "access token verification failed").
				WithCode(goerrors.CodeUnauthorized)
		}
		return claims, nil
	}

	if _, _, err := ti.parser.ParseUnverified(token, claims); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "token is malformed")
	}
	return claims, nil
}

// ExpiresAt returns the exp claim, zero when missing.
func (ti *TokenInspector) ExpiresAt(token string) (time.Time, error) {
	claims, err := ti.Claims(token)
	if err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, nil
	}
	return claims.ExpiresAt.Time, nil
}

// normalizeSession fills ExpiresAt and User from the token when the remote
// left them out.
func (ti *TokenInspector) normalizeSession(s *Session, now time.Time) *Session {
	if s == nil {
		return nil
	}
	if s.ExpiresAt.IsZero() {
		if s.ExpiresIn > 0 {
			s.ExpiresAt = now.Add(time.Duration(s.ExpiresIn) * time.Second)
		} else if exp, err := ti.ExpiresAt(s.AccessToken); err == nil {
			s.ExpiresAt = exp
		}
	}
	if s.User == nil {
		if claims, err := ti.Claims(s.AccessToken); err == nil {
			s.User = claims.User()
		}
	}
	if s.TokenType == "" {
		s.TokenType = "bearer"
	}
	return s
}
