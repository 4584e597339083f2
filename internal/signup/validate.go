package signup

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Format checks on the email are left to the browser and the provider.
type emailForm struct {
	Email string `validate:"required,max=320"`
}

type credentialsForm struct {
	Email    string `validate:"required,max=320"`
	Password string `validate:"required,max=72"`
}

func validateEmail(email string) error {
	return validationError(validate.Struct(emailForm{Email: strings.TrimSpace(email)}))
}

func validateCredentials(email, password string) error {
	return validationError(validate.Struct(credentialsForm{
		Email:    strings.TrimSpace(email),
		Password: password,
	}))
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}
	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())
	label := fe.Field()
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: field, Message: label + " is required"}
	case "max":
		return &ValidationError{Field: field, Message: label + " is too long"}
	default:
		return &ValidationError{Field: field, Message: label + " is invalid"}
	}
}
