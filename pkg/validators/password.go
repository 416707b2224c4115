package validators

import (
	"fmt"
	"strings"

	passwordvalidator "github.com/wagslane/go-password-validator"

	"github.com/identra/identra/pkg/query"
)

// minPasswordEntropyBits is an entropy floor layered under the policy rules
// so that rule-passing but guessable passwords still fail.
const minPasswordEntropyBits = 60

// ValidatePassword checks a candidate against the resolved complexity
// policy and the entropy floor.
func ValidatePassword(fieldName, value string, policy *query.PasswordComplexityPolicy) *ValidationResult {
	friendly := ToUserFriendlyName(fieldName)

	if len(value) == 0 {
		return NewValidationResult(false, fieldName,
			WithMaskedValue(value),
			WithMessage(fmt.Sprintf("%s is required", friendly)),
			WithCode(ValidationCodeRequired),
		)
	}

	if result := query.ValidatePassword(value, policy); !result.Valid {
		return NewValidationResult(false, fieldName,
			WithMaskedValue(value),
			WithMessage(strings.Join(result.Errors, "; ")),
			WithCode(ValidationCodeInvalid),
		)
	}

	if err := passwordvalidator.Validate(value, minPasswordEntropyBits); err != nil {
		return NewValidationResult(false, fieldName,
			WithMaskedValue(value),
			WithMessage(fmt.Sprintf("%s is too weak", friendly)),
			WithCode(ValidationCodeWeak),
		)
	}
	return NewValidationResult(true, fieldName, WithMaskedValue(value))
}
