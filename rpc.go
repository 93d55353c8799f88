package authclient

import (
	"context"
	"time"
)

// RPCCaller issues a remote procedure call with an explicit access token.
// These calls do not go through Transport, so the Invoker applies the
// refresh policy itself.
type RPCCaller interface {
	RPC(ctx context.Context, token, fn string, params, out any) error
}

// RPCCallerFunc adapts a function to RPCCaller.
type RPCCallerFunc func(ctx context.Context, token, fn string, params, out any) error

// RPC implements RPCCaller.
func (f RPCCallerFunc) RPC(ctx context.Context, token, fn string, params, out any) error {
	return f(ctx, token, fn, params, out)
}

// Invoker runs remote procedure calls with a fresh token: it refreshes
// ahead of time when the session is about to expire and retries once on
// auth errors.
type Invoker struct {
	caller  RPCCaller
	source  SessionSource
	margin  time.Duration
	now     func() time.Time
	logger  Logger
	metrics *Metrics
}

// InvokerOption configures an Invoker.
type InvokerOption func(*Invoker)

// WithInvokerMargin sets how close to expiry a session must be for a
// proactive refresh.
func WithInvokerMargin(d time.Duration) InvokerOption {
	return func(i *Invoker) {
		if d > 0 {
			i.margin = d
		}
	}
}

// WithInvokerClock injects a custom clock (useful for tests).
func WithInvokerClock(now func() time.Time) InvokerOption {
	return func(i *Invoker) {
		if now != nil {
			i.now = now
		}
	}
}

// WithInvokerLogger sets the logger.
func WithInvokerLogger(logger Logger) InvokerOption {
	return func(i *Invoker) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// WithInvokerMetrics enables prometheus counters.
func WithInvokerMetrics(m *Metrics) InvokerOption {
	return func(i *Invoker) {
		i.metrics = m
	}
}

// NewInvoker returns an Invoker with a 60 second margin.
func NewInvoker(caller RPCCaller, source SessionSource, opts ...InvokerOption) *Invoker {
	i := &Invoker{
		caller: caller,
		source: source,
		margin: 60 * time.Second,
		now:    time.Now,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	return i
}

// NewInvokerFor builds an Invoker sharing the Auther's clock, margin,
// logger and metrics.
func NewInvokerFor(a *Auther, caller RPCCaller, opts ...InvokerOption) *Invoker {
	base := []InvokerOption{
		WithInvokerMargin(a.cfg.RefreshMargin),
		WithInvokerClock(a.now),
		WithInvokerLogger(a.logger),
		WithInvokerMetrics(a.metrics),
	}
	return NewInvoker(caller, a, append(base, opts...)...)
}

// Call invokes fn decoding the response into out.
func (i *Invoker) Call(ctx context.Context, fn string, params, out any) error {
	policy := RetryPolicy[struct{}]{
		Source: i.source,
		Margin: i.margin,
		Now:    i.now,
		NeedsRefresh: func(_ struct{}, err error) bool {
			return IsAuthError(err)
		},
		OnRefreshFailure: func(_ context.Context, err error) {
			i.logger.Warn("rpc refresh failed", "fn", fn, "error", err)
		},
		OnRefresh: i.metrics.observeRefresh,
	}

	_, err := policy.Do(ctx, func(ctx context.Context, token string) (struct{}, error) {
		return struct{}{}, i.caller.RPC(ctx, token, fn, params, out)
	})
	i.metrics.observeRPC(err)
	if err != nil {
		i.logger.Debug("rpc call failed", "fn", fn, "error", err)
	}
	return err
}

// Invoke is the typed form of Invoker.Call.
func Invoke[T any](ctx context.Context, i *Invoker, fn string, params any) (T, error) {
	var out T
	err := i.Call(ctx, fn, params, &out)
	return out, err
}
