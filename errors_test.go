package authclient_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"

	authclient "github.com/goliatone/go-authclient"
	"github.com/goliatone/go-authclient/remote"
)

func TestIsAuthError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "remote 401",
			err:      &remote.Error{StatusCode: 401, Code: "PGRST301", Message: "JWT expired"},
			expected: true,
		},
		{
			name:     "revoked refresh token",
			err:      &remote.Error{StatusCode: 400, Code: "refresh_token_not_found", Message: "Invalid Refresh Token: Refresh Token Not Found"},
			expected: true,
		},
		{
			name:     "structured session expired",
			err:      authclient.ErrSessionExpired,
			expected: true,
		},
		{
			name:     "wrapped legacy message",
			err:      fmt.Errorf("call failed: %w", errors.New("token is expired")),
			expected: true,
		},
		{
			name:     "business error",
			err:      &remote.Error{StatusCode: 400, Code: "P0001", Message: "Insufficient balance"},
			expected: false,
		},
		{
			name:     "forbidden",
			err:      &remote.Error{StatusCode: 403, Message: "permission denied for table withdrawals"},
			expected: false,
		},
		{
			name:     "nil",
			err:      nil,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, authclient.IsAuthError(tt.err))
		})
	}
}

func TestIsForbiddenError(t *testing.T) {
	assert.True(t, authclient.IsForbiddenError(&remote.Error{StatusCode: 403}))
	assert.True(t, authclient.IsForbiddenError(authclient.ErrForbidden))
	assert.False(t, authclient.IsForbiddenError(&remote.Error{StatusCode: 401}))
	assert.False(t, authclient.IsForbiddenError(nil))
}

func TestIsNetworkError(t *testing.T) {
	assert.True(t, authclient.IsNetworkError(context.DeadlineExceeded))
	assert.True(t, authclient.IsNetworkError(fmt.Errorf("remote: http request: %w", &net.OpError{Op: "dial", Err: errors.New("connection refused")})))
	assert.False(t, authclient.IsNetworkError(errors.New("boom")))
}

func TestIsSessionExpired(t *testing.T) {
	wrapped := goerrors.Wrap(authclient.ErrSessionExpired, goerrors.CategoryOperation, "rpc")
	assert.True(t, authclient.IsSessionExpired(wrapped))
	assert.False(t, authclient.IsSessionExpired(authclient.ErrNoSession))
}

func TestIsTokenExpiredError(t *testing.T) {
	assert.True(t, authclient.IsTokenExpiredError(errors.New("some wrapper: token is expired")))
	assert.False(t, authclient.IsTokenExpiredError(errors.New("invalid token")))
	assert.False(t, authclient.IsTokenExpiredError(nil))
}

func TestIsMalformedError(t *testing.T) {
	assert.True(t, authclient.IsMalformedError(errors.New("token is malformed: bad segment")))
	assert.True(t, authclient.IsMalformedError(errors.New("missing or malformed JWT")))
	assert.False(t, authclient.IsMalformedError(errors.New("token is expired")))
}
