package authclient

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	MessageInvalidCredentials = "Credenciales de inicio de sesión inválidas"
	MessageNetworkError       = "Error de conexión. Verifica tu conexión a internet e inténtalo de nuevo"
	MessageUnexpectedError    = "Ha ocurrido un error inesperado. Inténtalo de nuevo"
	MessageSessionExpired     = "Tu sesión ha expirado. Inicia sesión de nuevo"
	MessageNotAuthenticated   = "Debes iniciar sesión para continuar"
	MessageLoginSuccess       = "Inicio de sesión exitoso"
	MessageLogoutSuccess      = "Sesión cerrada correctamente"
	MessageRegisterSuccess    = "Registro exitoso"
	MessageConfirmEmail       = "Registro exitoso. Revisa tu correo para confirmar tu cuenta"
	MessageResetEmailSent     = "Te hemos enviado un correo para restablecer tu contraseña"
	MessagePasswordUpdated    = "Contraseña actualizada correctamente"
	MessageProfileUpdated     = "Perfil actualizado correctamente"
	MessageSessionRefreshed   = "Sesión actualizada"
)

type translation struct {
	remote string
	local  string
}

// translations maps backend messages to user facing text. Order matters for
// the substring pass: more specific entries go first.
var translations = []translation{
	{"Invalid login credentials", MessageInvalidCredentials},
	{"Email not confirmed", "Debes confirmar tu correo electrónico antes de iniciar sesión"},
	{"User already registered", "Este correo electrónico ya está registrado"},
	{"Password should be at least 6 characters", "La contraseña debe tener al menos 6 caracteres"},
	{"Unable to validate email address: invalid format", "El formato del correo electrónico no es válido"},
	{"Email rate limit exceeded", "Has excedido el límite de correos. Inténtalo más tarde"},
	{"New password should be different from the old password", "La nueva contraseña debe ser diferente a la anterior"},
	{"Signups not allowed for this instance", "El registro de nuevos usuarios está deshabilitado"},
	{"For security purposes, you can only request this once every 60 seconds", "Por seguridad, solo puedes solicitar esto una vez cada 60 segundos"},
	{"Token has expired or is invalid", "El enlace ha expirado o no es válido"},
	{"User not found", "Usuario no encontrado"},
	{"Username already taken", "El nombre de usuario ya está en uso"},
	{"Invalid referral code", "El código de referido no es válido"},
}

// Translate converts a backend error message into the localized text.
// Exact matches win, then case insensitive substring matches. Unknown
// messages are returned unchanged.
func Translate(msg string) string {
	if msg == "" {
		return MessageUnexpectedError
	}
	for _, t := range translations {
		if t.remote == msg {
			return t.local
		}
	}
	lower := strings.ToLower(msg)
	for _, t := range translations {
		if strings.Contains(lower, strings.ToLower(t.remote)) {
			return t.local
		}
	}
	return msg
}

// MessageFor returns the user facing message for an error. Backend
// messages go through the translation table, anything else gets a generic
// message so raw internals never reach the user.
func MessageFor(err error) string {
	switch {
	case err == nil:
		return ""
	case IsSessionExpired(err):
		return MessageSessionExpired
	case hasTextCode(err, TextCodeNoSession):
		return MessageNotAuthenticated
	case IsNetworkError(err):
		return MessageNetworkError
	}

	var m Messager
	if errors.As(err, &m) {
		return Translate(m.RemoteMessage())
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Category == goerrors.CategoryValidation && richErr.Message != "" {
		return richErr.Message
	}
	return MessageUnexpectedError
}

// Messager is implemented by remote errors that expose the raw backend text
// without transport decoration.
type Messager interface {
	RemoteMessage() string
}
