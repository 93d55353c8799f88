package authclient

import (
	"context"
	"time"
)

// RetryPolicy is the shared "call with a fresh token" rule used by the HTTP
// interceptor and the RPC invoker:
//
//   - when Margin is positive and the session expires within it, refresh
//     first and fail with ErrSessionExpired if that refresh fails;
//   - run the call;
//   - if NeedsRefresh flags the outcome, refresh once. On failure run
//     OnRefreshFailure and return the original outcome. On success retry
//     exactly once and return whatever the retry produced.
//
// A refresh that fails because ctx ended returns ctx.Err() (proactive) or
// the original outcome (reactive) and never runs OnRefreshFailure.
type RetryPolicy[T any] struct {
	Source SessionSource
	Margin time.Duration
	Now    func() time.Time

	// NeedsRefresh decides whether the first outcome warrants a refresh.
	NeedsRefresh func(T, error) bool
	// BeforeRetry releases resources held by the discarded outcome.
	BeforeRetry func(T)
	// OnRefreshFailure runs after a reactive refresh failed.
	OnRefreshFailure func(ctx context.Context, err error)
	// OnRefresh observes every refresh attempt, for metrics.
	OnRefresh func(trigger string, err error)
}

// Call is the unit of work the policy wraps. It receives the access token to
// use, "" when there is no session.
type Call[T any] func(ctx context.Context, token string) (T, error)

// Do runs call under the policy.
func (p RetryPolicy[T]) Do(ctx context.Context, call Call[T]) (T, error) {
	var zero T
	session := p.current()

	if p.Margin > 0 && session != nil && session.ExpiresWithin(p.Margin, p.now()) {
		refreshed, err := p.Source.Refresh(ctx)
		p.observe("proactive", err)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return zero, ctxErr
			}
			return zero, sessionExpired(err)
		}
		session = refreshed
	}

	res, err := call(ctx, tokenOf(session))
	if p.Source == nil || p.NeedsRefresh == nil || !p.NeedsRefresh(res, err) {
		return res, err
	}

	refreshed, rerr := p.Source.Refresh(ctx)
	p.observe("reactive", rerr)
	if rerr != nil {
		// a refresh cut short by the caller says nothing about the session
		if p.OnRefreshFailure != nil && ctx.Err() == nil {
			p.OnRefreshFailure(ctx, rerr)
		}
		return res, err
	}

	if p.BeforeRetry != nil {
		p.BeforeRetry(res)
	}
	return call(ctx, tokenOf(refreshed))
}

func (p RetryPolicy[T]) current() *Session {
	if p.Source == nil {
		return nil
	}
	return p.Source.CurrentSession()
}

func (p RetryPolicy[T]) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p RetryPolicy[T]) observe(trigger string, err error) {
	if p.OnRefresh != nil {
		p.OnRefresh(trigger, err)
	}
}

func tokenOf(s *Session) string {
	if s == nil {
		return ""
	}
	return s.AccessToken
}
