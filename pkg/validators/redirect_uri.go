package validators

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateRedirectURI checks an OAuth redirect URI: absolute, no fragment,
// and https for web origins. Custom schemes stay allowed for native apps;
// plain http is allowed only on loopback hosts.
func ValidateRedirectURI(fieldName, value string) *ValidationResult {
	friendly := ToUserFriendlyName(fieldName)

	if len(value) == 0 {
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("%s is required", friendly)),
			WithCode(ValidationCodeRequired),
		)
	}

	u, err := url.Parse(value)
	if err != nil || !u.IsAbs() {
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("%s must be an absolute URI", friendly)),
			WithCode(ValidationCodeInvalid),
		)
	}
	if u.Fragment != "" {
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("%s must not contain a fragment", friendly)),
			WithCode(ValidationCodeInvalid),
		)
	}
	if u.Scheme == "http" && !isLoopback(u.Hostname()) {
		return NewValidationResult(false, fieldName,
			WithValue(value),
			WithMessage(fmt.Sprintf("%s must use https outside loopback", friendly)),
			WithCode(ValidationCodeInvalid),
		)
	}
	return NewValidationResult(true, fieldName, WithValue(value))
}

func isLoopback(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1" ||
		strings.HasSuffix(host, ".localhost")
}
