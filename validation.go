package authclient

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

const (
	minPasswordLength = 6
	maxPasswordLength = 72
)

var errInvalidPhone = errors.New("must be a valid phone number")

// DefaultPhoneRegion is used when numbers are given without a country prefix.
var DefaultPhoneRegion = "CO"

var passwordRules = []validation.Rule{
	validation.Required,
	validation.Length(minPasswordLength, maxPasswordLength),
}

// Validate checks the login payload. Password strength is not enforced at
// sign in, the remote is the authority.
func (c Credentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.Email),
		validation.Field(&c.Password, validation.Required),
	)
}

// Validate checks the registration payload.
func (r SignUpRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, passwordRules...),
		validation.Field(&r.Username, validation.Length(3, 32)),
		validation.Field(&r.Phone, validation.By(validPhone)),
	)
}

// Validate checks the profile update payload.
func (p ProfileUpdate) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Username, validation.Length(3, 32)),
		validation.Field(&p.FullName, validation.Length(0, 120)),
		validation.Field(&p.Phone, validation.By(validPhone)),
	)
}

// ValidatePassword checks a new password.
func ValidatePassword(password string) error {
	return validation.Validate(password, passwordRules...)
}

// ValidateEmail checks an email address.
func ValidateEmail(email string) error {
	return validation.Validate(email, validation.Required, is.Email)
}

// NormalizePhone returns the E.164 form of a phone number.
func NormalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	num, err := phonenumbers.Parse(raw, DefaultPhoneRegion)
	if err != nil {
		return "", err
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", errInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

func validPhone(value any) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if _, err := NormalizePhone(s); err != nil {
		return errInvalidPhone
	}
	return nil
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	return goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest)
}
