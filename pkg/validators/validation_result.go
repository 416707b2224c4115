// Package validators holds the input validators of the public surface:
// email, UUID, OAuth redirect URI, and password-against-policy checks.
package validators

import (
	"strings"

	"github.com/identra/identra/pkg/domain"
)

// ValidationCode classifies a validation outcome.
type ValidationCode string

const (
	ValidationCodeSuccess  ValidationCode = "success"
	ValidationCodeRequired ValidationCode = "required"
	ValidationCodeInvalid  ValidationCode = "invalid"
	ValidationCodeWeak     ValidationCode = "weak"
)

// ValidationResult is the outcome of validating one field.
type ValidationResult struct {
	IsValid   bool           `json:"isValid"`
	FieldName string         `json:"fieldName"`
	Value     string         `json:"value"`
	Message   string         `json:"message"`
	Code      ValidationCode `json:"code"`
}

// Option customizes a ValidationResult.
type Option func(*ValidationResult)

// WithValue records the validated value for display.
func WithValue(value string) Option {
	return func(r *ValidationResult) { r.Value = value }
}

// WithMaskedValue records the value with all but the last four runes hidden.
func WithMaskedValue(value string) Option {
	return func(r *ValidationResult) { r.Value = MaskString(value) }
}

// WithMessage sets the human-readable message.
func WithMessage(message string) Option {
	return func(r *ValidationResult) { r.Message = message }
}

// WithCode sets the validation code.
func WithCode(code ValidationCode) Option {
	return func(r *ValidationResult) { r.Code = code }
}

// NewValidationResult creates a result and applies the options.
func NewValidationResult(isValid bool, fieldName string, opts ...Option) *ValidationResult {
	r := &ValidationResult{IsValid: isValid, FieldName: fieldName, Code: ValidationCodeSuccess}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ToError converts a failed result into an invalid-argument error carrying
// the field as a detail. A valid result converts to nil.
func (r *ValidationResult) ToError() *domain.Error {
	if r.IsValid {
		return nil
	}
	return domain.InvalidArgument("VALIDATION-"+string(r.Code), r.Message).
		WithDetail("field", r.FieldName)
}

// MaskString hides all but the last four characters.
func MaskString(value string) string {
	if len(value) < 4 {
		return "************"
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}

// ToUserFriendlyName turns snake_case field names into display names:
// "redirect_uri" becomes "Redirect uri".
func ToUserFriendlyName(fieldName string) string {
	if fieldName == "" {
		return fieldName
	}
	parts := strings.Split(fieldName, "_")
	for i, part := range parts {
		if i == 0 && len(part) > 0 {
			parts[i] = strings.ToUpper(part[:1]) + strings.ToLower(part[1:])
		} else {
			parts[i] = strings.ToLower(part)
		}
	}
	return strings.Join(parts, " ")
}
