package validators

import (
	"fmt"

	"github.com/identra/identra/pkg/idgen"
)

// ValidateUUID checks presence and UUID v4 shape.
func ValidateUUID(fieldName, value string) *ValidationResult {
	friendly := ToUserFriendlyName(fieldName)

	if len(value) == 0 {
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("%s is required", friendly)),
			WithCode(ValidationCodeRequired),
		)
	}
	if !idgen.IsValid(value) {
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("%s is not a valid identifier", friendly)),
			WithCode(ValidationCodeInvalid),
		)
	}
	return NewValidationResult(true, fieldName, WithValue(value))
}
