package authclient_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	authclient "github.com/goliatone/go-authclient"
	"github.com/goliatone/go-authclient/remote"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"exact match", "Invalid login credentials", authclient.MessageInvalidCredentials},
		{"substring match", "AuthApiError: Email not confirmed", "Debes confirmar tu correo electrónico antes de iniciar sesión"},
		{"case insensitive", "user already registered", "Este correo electrónico ya está registrado"},
		{"unknown passes through", "Something odd happened", "Something odd happened"},
		{"empty", "", authclient.MessageUnexpectedError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, authclient.Translate(tt.input))
		})
	}
}

func TestMessageFor(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil", nil, ""},
		{"remote message", &remote.Error{StatusCode: 400, Message: "Invalid login credentials"}, authclient.MessageInvalidCredentials},
		{"wrapped remote message", fmt.Errorf("login: %w", &remote.Error{StatusCode: 422, Message: "Password should be at least 6 characters"}), "La contraseña debe tener al menos 6 caracteres"},
		{"session expired", authclient.ErrSessionExpired, authclient.MessageSessionExpired},
		{"no session", authclient.ErrNoSession, authclient.MessageNotAuthenticated},
		{"internal error", errors.New("sql: connection reset"), authclient.MessageUnexpectedError},
		{"function body error", &authclient.FunctionError{Function: "register-with-referral", Message: "Invalid referral code"}, "El código de referido no es válido"},
		{"function body duplicate", &authclient.FunctionError{Function: "register-with-referral", Message: "User already registered"}, "Este correo electrónico ya está registrado"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, authclient.MessageFor(tt.err))
		})
	}
}

func TestResultHelpers(t *testing.T) {
	ok := authclient.Ok(3, "listo")
	assert.True(t, ok.Success)
	v, err := ok.Unwrap()
	assert.Equal(t, 3, v)
	assert.NoError(t, err)

	failed := authclient.Fail[int](authclient.ErrNoSession)
	assert.False(t, failed.Success)
	assert.Equal(t, authclient.MessageNotAuthenticated, failed.Message)
	_, err = failed.Unwrap()
	assert.ErrorIs(t, err, authclient.ErrNoSession)
}
