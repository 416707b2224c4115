package validators

import (
	"fmt"

	"github.com/asaskevich/govalidator"
)

// ValidateEmail checks presence and RFC 5322 shape.
func ValidateEmail(fieldName, value string) *ValidationResult {
	friendly := ToUserFriendlyName(fieldName)

	if len(value) == 0 {
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("%s is required", friendly)),
			WithCode(ValidationCodeRequired),
		)
	}
	if !govalidator.IsEmail(value) {
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("%s is not a valid email address", friendly)),
			WithCode(ValidationCodeInvalid),
		)
	}
	return NewValidationResult(true, fieldName, WithValue(value))
}
