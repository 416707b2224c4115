package validators

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/identra/identra/pkg/domain"
	"github.com/identra/identra/pkg/query"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name  string
		value string
		valid bool
		code  ValidationCode
	}{
		{"Valid", "alice@example.com", true, ValidationCodeSuccess},
		{"Empty", "", false, ValidationCodeRequired},
		{"NoAt", "alice.example.com", false, ValidationCodeInvalid},
		{"NoDomain", "alice@", false, ValidationCodeInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := ValidateEmail("email", tc.value)
			assert.Equal(t, tc.valid, result.IsValid)
			assert.Equal(t, tc.code, result.Code)
		})
	}
}

func TestValidateUUID(t *testing.T) {
	assert.True(t, ValidateUUID("user_id", "0f81afcd-624f-4e3c-8e02-7a0d9a9a6d3a").IsValid)
	assert.False(t, ValidateUUID("user_id", "").IsValid)
	assert.False(t, ValidateUUID("user_id", "not-a-uuid").IsValid)
	// Version and variant bits matter.
	assert.False(t, ValidateUUID("user_id", "0f81afcd-624f-1e3c-8e02-7a0d9a9a6d3a").IsValid)
}

func TestValidateRedirectURI(t *testing.T) {
	tests := []struct {
		name  string
		value string
		valid bool
	}{
		{"HTTPS", "https://app.example.com/callback", true},
		{"CustomScheme", "com.example.app:/oauth", true},
		{"LoopbackHTTP", "http://localhost:8080/callback", true},
		{"Loopback127", "http://127.0.0.1/callback", true},
		{"PlainHTTP", "http://app.example.com/callback", false},
		{"Fragment", "https://app.example.com/callback#frag", false},
		{"Relative", "/callback", false},
		{"Empty", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := ValidateRedirectURI("redirect_uri", tc.value)
			assert.Equal(t, tc.valid, result.IsValid, result.Message)
		})
	}
}

func TestValidatePassword(t *testing.T) {
	policy := &query.PasswordComplexityPolicy{
		PasswordComplexityDocument: domain.DefaultPasswordComplexity(),
	}

	t.Run("Valid", func(t *testing.T) {
		result := ValidatePassword("password", "Tr4verse-Moon-Gate", policy)
		assert.True(t, result.IsValid, result.Message)
	})

	t.Run("PolicyFailure", func(t *testing.T) {
		result := ValidatePassword("password", "nouppercase1", policy)
		assert.False(t, result.IsValid)
		assert.Equal(t, ValidationCodeInvalid, result.Code)
	})

	t.Run("LowEntropyDespitePolicy", func(t *testing.T) {
		// Satisfies the character classes but stays trivially guessable.
		result := ValidatePassword("password", "Aaaaaaa1", policy)
		assert.False(t, result.IsValid)
		assert.Equal(t, ValidationCodeWeak, result.Code)
	})

	t.Run("MaskedValue", func(t *testing.T) {
		result := ValidatePassword("password", "Tr4verse-Moon-Gate", policy)
		assert.NotContains(t, result.Value, "Tr4verse")
	})
}

func TestToError(t *testing.T) {
	valid := ValidateEmail("email", "alice@example.com")
	assert.Nil(t, valid.ToError())

	invalid := ValidateEmail("email", "nope")
	err := invalid.ToError()
	if assert.NotNil(t, err) {
		assert.Equal(t, domain.KindInvalidArgument, err.Kind)
		assert.Equal(t, "email", err.Details["field"])
	}
}

func TestToUserFriendlyName(t *testing.T) {
	assert.Equal(t, "Redirect uri", ToUserFriendlyName("redirect_uri"))
	assert.Equal(t, "Email", ToUserFriendlyName("email"))
	assert.Equal(t, "", ToUserFriendlyName(""))
}
