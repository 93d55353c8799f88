package authclient

import (
	"net/url"
	"strconv"
	"time"
)

// URLSession is a session delivered through a redirect URL after email
// confirmation, magic link or password recovery.
type URLSession struct {
	Session *Session
	Type    string
}

// IsRecovery reports whether the link came from a password reset email.
func (u URLSession) IsRecovery() bool {
	return u.Type == "recovery"
}

// ParseSessionFromURL extracts a session from the fragment (or, failing
// that, the query) of raw. ok is false when the URL carries no session.
// Errors reported by the remote in the URL are returned as err.
func ParseSessionFromURL(raw string, now time.Time) (URLSession, bool, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return URLSession{}, false, nil
	}

	params, err := url.ParseQuery(u.Fragment)
	if err != nil || (params.Get("access_token") == "" && params.Get("error") == "") {
		params = u.Query()
	}

	if e := params.Get("error"); e != "" {
		return URLSession{}, false, &URLError{
			Code:        e,
			ErrorCode:   params.Get("error_code"),
			Description: params.Get("error_description"),
		}
	}

	access := params.Get("access_token")
	refresh := params.Get("refresh_token")
	if access == "" || refresh == "" {
		return URLSession{}, false, nil
	}

	s := &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    params.Get("token_type"),
	}
	if v, err := strconv.Atoi(params.Get("expires_in")); err == nil {
		s.ExpiresIn = v
		s.ExpiresAt = now.Add(time.Duration(v) * time.Second)
	}
	if v, err := strconv.ParseInt(params.Get("expires_at"), 10, 64); err == nil && v > 0 {
		s.ExpiresAt = time.Unix(v, 0)
	}

	return URLSession{Session: s, Type: params.Get("type")}, true, nil
}

// URLError is an error the remote reported through the redirect URL, for
// example an expired confirmation link.
type URLError struct {
	Code        string
	ErrorCode   string
	Description string
}

func (e *URLError) Error() string {
	return "url session: " + e.Code + ": " + e.RemoteMessage()
}

// RemoteMessage implements Messager.
func (e *URLError) RemoteMessage() string {
	if e.Description != "" {
		return e.Description
	}
	return e.Code
}

// Status implements StatusCoder, URL errors are credential failures.
func (e *URLError) Status() int { return 401 }
