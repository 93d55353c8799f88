// Package authclient manages the client side session of an application
// that delegates identity to a hosted auth service (GoTrue style endpoints)
// and business logic to PostgREST style RPC functions.
//
// Session ownership:
//   - Auther is the only writer of the session Store. Every change goes
//     through Auther.HandleEvent with a typed Event (SignedIn, SignedOut,
//     TokenRefreshed, UserUpdated) and is published on the EventBus.
//   - Everyone else reads immutable AuthState snapshots or subscribes to a
//     latest-value channel. There is no package level session.
//
// Fresh tokens:
//   - RetryPolicy is the shared "call with a fresh token" rule. Transport
//     (an http.RoundTripper) uses it to retry a 401 once after a refresh,
//     Invoker uses it for RPC calls that bypass the transport, adding a
//     proactive refresh when the session is about to expire.
//   - Refreshes are single flight: concurrent callers share one remote call.
//     A rejected refresh token destroys the session.
//
// Results:
//   - Public Auther operations return Result values with a user facing
//     message. Backend messages are translated with Translate; anything
//     unknown passes through unchanged.
//
// Guards:
//   - Guards decide route access from the session (RequireAuth, GuestOnly,
//     RequireRole, RequireVerified). They wait for in-flight operations to
//     settle, bounded by Config.GuardTimeout. See middleware/guard for the
//     go-router adapters.
package authclient
