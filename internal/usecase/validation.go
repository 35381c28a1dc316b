package usecase

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/xavierca1/leadsync/internal/identity"
)

var validate = validator.New()

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func ValidateSendMessageInput(input SendMessageInput) []ValidationError {
	var errs []ValidationError

	if err := validate.Struct(input); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, ValidationError{Field: strings.ToLower(fe.Field()), Message: describe(fe)})
			}
		} else {
			errs = append(errs, ValidationError{Field: "input", Message: err.Error()})
		}
	}

	if strings.TrimSpace(input.Phone) != "" && identity.NormalizePhone(input.Phone) == "" {
		errs = append(errs, ValidationError{"phone", "must be a valid phone number"})
	}
	return errs
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	}
	return "is invalid"
}
