package authclient

import (
	"context"
	"errors"
	"net"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeSessionExpired    = "SESSION_EXPIRED"
	TextCodeNoSession         = "NO_SESSION"
	TextCodeRefreshFailed     = "REFRESH_FAILED"
	TextCodeInvalidTransition = "INVALID_AUTH_STATE_TRANSITION"
	TextCodeUnauthorized      = "UNAUTHORIZED"
	TextCodeForbidden         = "FORBIDDEN"
	TextCodeValidation        = "VALIDATION_FAILED"
	TextCodeRemote            = "REMOTE_ERROR"
)

// ErrSessionExpired is returned when a call needs a fresh token and the
// refresh could not produce one.
var ErrSessionExpired = goerrors.New("session expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoSession is returned when an operation requires a signed in user.
var ErrNoSession = goerrors.New("no session", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoSession).
	WithCode(goerrors.CodeUnauthorized)

// ErrRefreshFailed wraps refresh failures that are not auth related.
var ErrRefreshFailed = goerrors.New("unable to refresh session", goerrors.CategoryOperation).
	WithTextCode(TextCodeRefreshFailed).
	WithCode(goerrors.CodeInternal)

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid auth state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrForbidden is returned when the backend rejects a call for lack of rights.
var ErrForbidden = goerrors.New("forbidden", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// FunctionError is a failure an edge function reported in the body of a
// 2xx answer.
type FunctionError struct {
	Function string
	Message  string
}

func (e *FunctionError) Error() string {
	return "function " + e.Function + ": " + e.Message
}

// RemoteMessage implements Messager.
func (e *FunctionError) RemoteMessage() string { return e.Message }

// Status implements StatusCoder. Body level failures are bad requests.
func (e *FunctionError) Status() int { return 400 }

// StatusCoder is implemented by remote errors that carry an HTTP status.
type StatusCoder interface {
	Status() int
}

// authErrorMarkers are lowercase fragments the backend uses for token and
// session failures.
var authErrorMarkers = []string{
	"refresh_token_not_found",
	"session_not_found",
	"bad_jwt",
	"pgrst301",
	"pgrst302",
	"jwt",
	"token is expired",
	"invalid claim",
	"not authenticated",
	"no session",
	"session expired",
	"status 401",
}

// IsAuthError reports whether err signals an invalid or expired credential
// that a token refresh could fix.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}

	var sc StatusCoder
	if errors.As(err, &sc) && sc.Status() == 401 {
		return true
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.Code == goerrors.CodeUnauthorized || richErr.TextCode == TextCodeSessionExpired {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range authErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// IsForbiddenError reports whether err carries a 403.
func IsForbiddenError(err error) bool {
	if err == nil {
		return false
	}
	var sc StatusCoder
	if errors.As(err, &sc) && sc.Status() == 403 {
		return true
	}
	return hasTextCode(err, TextCodeForbidden)
}

// IsSessionExpired reports whether err is (or wraps) ErrSessionExpired.
func IsSessionExpired(err error) bool {
	return hasTextCode(err, TextCodeSessionExpired)
}

// IsNetworkError reports transport level failures: dial errors, timeouts,
// canceled contexts.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

func hasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == code
	}
	return false
}

func sessionExpired(cause error) error {
	e := ErrSessionExpired.Clone()
	if cause != nil {
		e = e.WithMetadata(map[string]any{"cause": cause.Error()})
	}
	return e
}
