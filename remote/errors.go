package remote

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Error is a non 2xx answer from the remote service.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote: status %d: %s (%s)", e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("remote: status %d: %s", e.StatusCode, e.Message)
}

// Status returns the HTTP status code.
func (e *Error) Status() int { return e.StatusCode }

// RemoteMessage returns the backend message without decoration.
func (e *Error) RemoteMessage() string { return e.Message }

// parseError reads the error shapes used by the auth service
// ({"error_code","msg"} and {"error","error_description"}) and by the data
// API ({"code","message","details","hint"}).
func parseError(status int, body []byte) *Error {
	e := &Error{StatusCode: status}

	if gjson.ValidBytes(body) {
		res := gjson.ParseBytes(body)
		e.Message = firstString(res, "msg", "message", "error_description", "error")
		e.Code = firstString(res, "error_code", "code")
		if e.Code == "" && res.Get("error_description").Exists() {
			e.Code = res.Get("error").String()
		}
	}

	if e.Message == "" {
		if text := strings.TrimSpace(string(body)); text != "" && len(text) < 512 {
			e.Message = text
		} else {
			e.Message = http.StatusText(status)
		}
	}
	return e
}

func firstString(res gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := res.Get(p); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
