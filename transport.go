package authclient

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
)

// RedirectKind tells the UI layer where a failed request should send the user.
type RedirectKind uint8

const (
	RedirectLogin RedirectKind = iota + 1
	RedirectUnauthorized
)

func (k RedirectKind) String() string {
	switch k {
	case RedirectLogin:
		return "login"
	case RedirectUnauthorized:
		return "unauthorized"
	default:
		return "none"
	}
}

// Redirect is the navigation side effect emitted by the interceptor.
type Redirect struct {
	Kind     RedirectKind
	Target   string
	ReturnTo string
}

// RedirectFunc receives redirect signals. It must not block.
type RedirectFunc func(Redirect)

// Transport is an http.RoundTripper that authenticates outgoing requests
// with the current session. A 401 triggers one refresh and one retry, a
// failed refresh forces a logout and emits a login redirect. A 403 emits
// an unauthorized redirect.
type Transport struct {
	Base       http.RoundTripper
	Auther     *Auther
	OnRedirect RedirectFunc
	Metrics    *Metrics
}

var _ http.RoundTripper = (*Transport)(nil)

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(a *Auther, base http.RoundTripper, onRedirect RedirectFunc) *Transport {
	return &Transport{Base: base, Auther: a, OnRedirect: onRedirect}
}

// NewHTTPClient returns an http.Client using a Transport.
func NewHTTPClient(a *Auther, onRedirect RedirectFunc) *http.Client {
	return &http.Client{
		Transport: NewTransport(a, nil, onRedirect),
		Timeout:   a.cfg.RequestTimeout,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.isPublic(req) {
		t.metrics().observeInterceptor("public")
		return t.base().RoundTrip(req)
	}

	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil
	cfg := t.Auther.cfg

	policy := RetryPolicy[*http.Response]{
		Source: t.Auther,
		Now:    t.Auther.now,
		NeedsRefresh: func(resp *http.Response, err error) bool {
			return err == nil && resp != nil && resp.StatusCode == http.StatusUnauthorized && replayable
		},
		BeforeRetry: func(resp *http.Response) {
			drain(resp)
		},
		OnRefreshFailure: func(ctx context.Context, err error) {
			t.metrics().observeInterceptor("refresh_failed")
			t.Auther.ForceLogout(ctx, "interceptor_refresh_failed")
			t.emit(Redirect{Kind: RedirectLogin, Target: cfg.LoginPath, ReturnTo: req.URL.String()})
		},
		OnRefresh: t.metrics().observeRefresh,
	}

	attempt := 0
	resp, err := policy.Do(req.Context(), func(ctx context.Context, token string) (*http.Response, error) {
		attempt++
		out, err := t.prepare(req, token, attempt > 1)
		if err != nil {
			return nil, err
		}
		return t.base().RoundTrip(out)
	})
	if err != nil {
		return resp, err
	}

	switch {
	case resp.StatusCode == http.StatusForbidden:
		t.metrics().observeInterceptor("forbidden")
		t.emit(Redirect{Kind: RedirectUnauthorized, Target: cfg.UnauthorizedPath, ReturnTo: req.URL.String()})
	case attempt > 1:
		t.metrics().observeInterceptor("retried")
	default:
		t.metrics().observeInterceptor("passed")
	}
	return resp, nil
}

// prepare clones req with auth headers set. A RoundTripper must not modify
// the caller's request.
func (t *Transport) prepare(req *http.Request, token string, retry bool) (*http.Request, error) {
	out := req.Clone(req.Context())
	if retry && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		out.Body = body
	}

	if apiKey := t.Auther.cfg.APIKey; apiKey != "" {
		out.Header.Set("apikey", apiKey)
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return out, nil
}

// isPublic matches on the path only, so a query such as ?next=/auth/v1/verify
// does not strip the token from a protected call.
func (t *Transport) isPublic(req *http.Request) bool {
	target := req.URL.Path
	for _, ep := range t.Auther.cfg.PublicEndpoints {
		if ep != "" && strings.Contains(target, ep) {
			return true
		}
	}
	return false
}

func (t *Transport) emit(r Redirect) {
	if t.OnRedirect != nil {
		t.OnRedirect(r)
	}
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) metrics() *Metrics {
	if t.Metrics != nil {
		return t.Metrics
	}
	return t.Auther.metrics
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// BufferBody makes a request replayable by buffering its body.
func BufferBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	_ = req.Body.Close()
	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}
