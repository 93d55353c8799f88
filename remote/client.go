// Package remote is the HTTP client for the hosted auth and data service:
// GoTrue style auth endpoints under /auth/v1, PostgREST tables and RPC
// functions under /rest/v1 and edge functions under /functions/v1.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	authclient "github.com/goliatone/go-authclient"
)

// Client talks to the remote service. Auth calls carry explicit tokens.
// Data calls (FetchProfile) go through DataClient, which is normally an
// http.Client wrapped by authclient.Transport.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	dataClient *http.Client
	profiles   string
}

var (
	_ authclient.RemoteAuth     = (*Client)(nil)
	_ authclient.RPCCaller      = (*Client)(nil)
	_ authclient.ProfileFetcher = (*Client)(nil)
)

// Config holds client configuration.
type Config struct {
	URL        string
	APIKey     string
	HTTPClient *http.Client
	DataClient *http.Client
	// ProfilesTable defaults to "profiles".
	ProfilesTable string
}

// New creates a new client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote: URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("remote: APIKey is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	dataClient := cfg.DataClient
	if dataClient == nil {
		dataClient = httpClient
	}

	profiles := cfg.ProfilesTable
	if profiles == "" {
		profiles = "profiles"
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		dataClient: dataClient,
		profiles:   profiles,
	}, nil
}

// WithDataClient returns a copy of c using hc for data calls.
func (c *Client) WithDataClient(hc *http.Client) *Client {
	out := *c
	if hc != nil {
		out.dataClient = hc
	}
	return &out
}

// BaseURL returns the service URL.
func (c *Client) BaseURL() string { return c.baseURL }

type tokenResponse struct {
	AccessToken  string           `json:"access_token"`
	TokenType    string           `json:"token_type"`
	ExpiresIn    int              `json:"expires_in"`
	ExpiresAt    int64            `json:"expires_at"`
	RefreshToken string           `json:"refresh_token"`
	User         *authclient.User `json:"user"`
}

func (t tokenResponse) session() *authclient.Session {
	s := &authclient.Session{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		ExpiresIn:    t.ExpiresIn,
		User:         t.User,
	}
	if t.ExpiresAt > 0 {
		s.ExpiresAt = time.Unix(t.ExpiresAt, 0)
	}
	return s
}

// SignInWithPassword implements authclient.RemoteAuth.
func (c *Client) SignInWithPassword(ctx context.Context, creds authclient.Credentials) (*authclient.Session, error) {
	var out tokenResponse
	err := c.doJSON(ctx, c.httpClient, http.MethodPost, "/auth/v1/token?grant_type=password", "", map[string]string{
		"email":    creds.Email,
		"password": creds.Password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.session(), nil
}

// SignUp implements authclient.RemoteAuth. The service answers with a
// session when accounts are auto confirmed and with the bare user otherwise.
func (c *Client) SignUp(ctx context.Context, req authclient.SignUpRequest) (*authclient.SignUpResult, error) {
	body := map[string]any{
		"email":    req.Email,
		"password": req.Password,
		"data":     req.Metadata(),
	}

	raw, err := c.do(ctx, c.httpClient, http.MethodPost, "/auth/v1/signup", "", body)
	if err != nil {
		return nil, err
	}

	if gjson.GetBytes(raw, "access_token").Exists() {
		var tr tokenResponse
		if err := json.Unmarshal(raw, &tr); err != nil {
			return nil, fmt.Errorf("remote: decode sign up session: %w", err)
		}
		return &authclient.SignUpResult{User: tr.User, Session: tr.session()}, nil
	}

	var user authclient.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("remote: decode sign up user: %w", err)
	}
	return &authclient.SignUpResult{User: &user}, nil
}

// SignOut implements authclient.RemoteAuth.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	_, err := c.do(ctx, c.httpClient, http.MethodPost, "/auth/v1/logout", accessToken, nil)
	return err
}

// RefreshSession implements authclient.RemoteAuth.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*authclient.Session, error) {
	var out tokenResponse
	err := c.doJSON(ctx, c.httpClient, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", map[string]string{
		"refresh_token": refreshToken,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.session(), nil
}

// GetUser implements authclient.RemoteAuth.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*authclient.User, error) {
	var user authclient.User
	if err := c.doJSON(ctx, c.httpClient, http.MethodGet, "/auth/v1/user", accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ResetPasswordForEmail implements authclient.RemoteAuth.
func (c *Client) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	path := "/auth/v1/recover"
	if redirectTo != "" {
		path += "?" + url.Values{"redirect_to": {redirectTo}}.Encode()
	}
	_, err := c.do(ctx, c.httpClient, http.MethodPost, path, "", map[string]string{"email": email})
	return err
}

// UpdateUser implements authclient.RemoteAuth.
func (c *Client) UpdateUser(ctx context.Context, accessToken string, attrs authclient.UserAttributes) (*authclient.User, error) {
	var user authclient.User
	if err := c.doJSON(ctx, c.httpClient, http.MethodPut, "/auth/v1/user", accessToken, attrs, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// InvokeFunction implements authclient.RemoteAuth.
func (c *Client) InvokeFunction(ctx context.Context, accessToken, name string, body, out any) error {
	return c.doJSON(ctx, c.httpClient, http.MethodPost, "/functions/v1/"+url.PathEscape(name), accessToken, body, out)
}

// RPC implements authclient.RPCCaller.
func (c *Client) RPC(ctx context.Context, token, fn string, params, out any) error {
	if params == nil {
		params = map[string]any{}
	}
	return c.doJSON(ctx, c.httpClient, http.MethodPost, "/rest/v1/rpc/"+url.PathEscape(fn), token, params, out)
}

// FetchProfile implements authclient.ProfileFetcher. It goes through the
// data client, so the interceptor supplies the token.
func (c *Client) FetchProfile(ctx context.Context, userID string) (*authclient.Profile, error) {
	q := url.Values{
		"id":     {"eq." + userID},
		"select": {"id,username,full_name,email,phone,role,referral_code"},
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/rest/v1/"+url.PathEscape(c.profiles)+"?"+q.Encode(), "", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.pgrst.object+json")

	raw, err := c.send(c.dataClient, req)
	if err != nil {
		return nil, err
	}

	var profile authclient.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, fmt.Errorf("remote: decode profile: %w", err)
	}
	return &profile, nil
}

func (c *Client) doJSON(ctx context.Context, hc *http.Client, method, path, token string, body, out any) error {
	raw, err := c.do(ctx, hc, method, path, token, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("remote: decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, hc *http.Client, method, path, token string, body any) ([]byte, error) {
	req, err := c.newRequest(ctx, method, path, token, body)
	if err != nil {
		return nil, err
	}
	return c.send(hc, req)
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("remote: marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("remote: create request: %w", err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) send(hc *http.Client, req *http.Request) ([]byte, error) {
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("remote: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, parseError(resp.StatusCode, raw)
	}
	return raw, nil
}
