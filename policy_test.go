package authcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPasswordValidation(t *testing.T) {
	validator := NewPasswordValidator(DefaultPasswordPolicy())

	type io struct {
		password string
		valid    bool
	}
	cases := []io{
		{"Hunter2!-abcdef", true},
		{"CorrectHorse9!x", true},
		{"short1!A", false},           // too short
		{"hunter2!-abcdef", false},    // no uppercase
		{"HUNTER2!-ABCDEF", false},    // no lowercase
		{"Hunterx!-abcdef", false},    // no digit
		{"Hunter2xxabcdef", false},    // no special character
		{"", false},
	}
	for _, c := range cases {
		result := validator.Validate(c.password)
		assert.Equal(t, c.valid, result.Valid, "Failed for %v", c.password)
		if !c.valid && len(result.Violations) == 0 {
			t.Errorf("Expected violations for %v", c.password)
		}
	}
}

func TestPasswordValidationReportsAllViolations(t *testing.T) {
	validator := NewPasswordValidator(DefaultPasswordPolicy())
	result := validator.Validate("abc")
	if result.Valid {
		t.Fatalf("Expected invalid")
	}
	// length, uppercase, digit, special
	assert.Equal(t, 4, len(result.Violations))
}

func TestPasswordValidationRelaxedPolicy(t *testing.T) {
	policy := DefaultPasswordPolicy()
	policy.MinLength = 8
	policy.RequireUppercase = false
	policy.RequireSpecialChar = false
	validator := NewPasswordValidator(policy)

	assert.True(t, validator.Validate("lower123").Valid)
	assert.False(t, validator.Validate("lowercase").Valid)
}

func TestPasswordPolicyFromConfig(t *testing.T) {
	cfg := &Config{}
	cfg.Reset()
	cfg.PasswordMinLength = 14
	cfg.MaxLoginAttempts = 5
	cfg.AccountLockoutMinutes = 30
	cfg.PasswordExpirationDays = 60
	cfg.PasswordHistorySize = 3

	policy := PasswordPolicyFromConfig(cfg)
	assert.Equal(t, 14, policy.MinLength)
	assert.Equal(t, 5, policy.MaxFailedAttempts)
	assert.Equal(t, 30, policy.LockoutDurationMinutes)
	assert.Equal(t, 60, policy.PasswordExpiryDays)
	assert.Equal(t, 3, policy.PasswordHistorySize)
	assert.True(t, policy.RequireUppercase)

	cfg.RequirePasswordComplexity = false
	policy = PasswordPolicyFromConfig(cfg)
	assert.False(t, policy.RequireUppercase)
	assert.False(t, policy.RequireSpecialChar)
}
