package authclient

import (
	"context"

	"github.com/goliatone/go-router"
)

// DefaultLocalsKey is the router locals key the guard middleware uses.
const DefaultLocalsKey = "auth_state"

var stateCtxKey = &contextKey{"auth_state"}
var profileCtxKey = &contextKey{"profile"}

type contextKey struct {
	name string
}

// WithContext sets the AuthState in the given context
func WithContext(ctx context.Context, state AuthState) context.Context {
	return context.WithValue(ctx, stateCtxKey, state)
}

// FromContext finds the AuthState in the context.
func FromContext(ctx context.Context) (AuthState, bool) {
	raw, ok := ctx.Value(stateCtxKey).(AuthState)
	return raw, ok
}

// WithProfileContext sets the resolved Profile in the given context
func WithProfileContext(ctx context.Context, profile *Profile) context.Context {
	return context.WithValue(ctx, profileCtxKey, profile)
}

// ProfileFromContext extracts the Profile from the standard context
func ProfileFromContext(ctx context.Context) (*Profile, bool) {
	raw, ok := ctx.Value(profileCtxKey).(*Profile)
	return raw, ok && raw != nil
}

// GetRouterState extracts the AuthState from the router context
func GetRouterState(ctx router.Context, key string) (AuthState, bool) {
	if key == "" {
		key = DefaultLocalsKey
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return AuthState{}, false
	}
	state, ok := raw.(AuthState)
	return state, ok
}

// UserFromContext returns the signed in user carried by the context, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	state, ok := FromContext(ctx)
	if !ok || state.User == nil {
		return nil, false
	}
	return state.User, true
}
