package authcore

import (
	"fmt"
	"strings"
	"unicode"
)

const specialPasswordChars = "!@#$%^&*()_+-=[]{}|;:,.<>?/~`"

// PasswordPolicy is an immutable value describing the rules a password and
// its lifecycle must satisfy. Construct one with DefaultPasswordPolicy or
// PasswordPolicyFromConfig and do not mutate it afterwards.
type PasswordPolicy struct {
	MinLength              int
	RequireUppercase       bool
	RequireLowercase       bool
	RequireDigit           bool
	RequireSpecialChar     bool
	PasswordHistorySize    int
	PasswordExpiryDays     int // 0 = passwords never expire
	MaxFailedAttempts      int
	LockoutWindowMinutes   int
	LockoutDurationMinutes int
}

func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:              12,
		RequireUppercase:       true,
		RequireLowercase:       true,
		RequireDigit:           true,
		RequireSpecialChar:     true,
		PasswordHistorySize:    5,
		PasswordExpiryDays:     90,
		MaxFailedAttempts:      3,
		LockoutWindowMinutes:   15,
		LockoutDurationMinutes: 15,
	}
}

// PasswordPolicyFromConfig derives a policy from the config surface. The
// lockout window is fixed at 15 minutes; the rest follow config.
func PasswordPolicyFromConfig(cfg *Config) PasswordPolicy {
	return PasswordPolicy{
		MinLength:              cfg.PasswordMinLength,
		RequireUppercase:       cfg.RequirePasswordComplexity,
		RequireLowercase:       cfg.RequirePasswordComplexity,
		RequireDigit:           cfg.RequirePasswordComplexity,
		RequireSpecialChar:     cfg.RequirePasswordComplexity,
		PasswordHistorySize:    cfg.PasswordHistorySize,
		PasswordExpiryDays:     cfg.PasswordExpirationDays,
		MaxFailedAttempts:      cfg.MaxLoginAttempts,
		LockoutWindowMinutes:   15,
		LockoutDurationMinutes: cfg.AccountLockoutMinutes,
	}
}

// PolicyValidationResult carries the complete set of violations, not just the
// first one, so callers can surface everything at once.
type PolicyValidationResult struct {
	Valid      bool
	Violations []string
}

// PasswordValidator checks candidate passwords against a policy.
type PasswordValidator struct {
	policy PasswordPolicy
}

func NewPasswordValidator(policy PasswordPolicy) *PasswordValidator {
	return &PasswordValidator{policy: policy}
}

// Validate runs every check in fixed order (length, uppercase, lowercase,
// digit, special) and reports all failures.
func (x *PasswordValidator) Validate(password string) PolicyValidationResult {
	violations := []string{}

	if len(password) < x.policy.MinLength {
		violations = append(violations, fmt.Sprintf("Password must be at least %v characters long", x.policy.MinLength))
	}
	if x.policy.RequireUppercase && !containsClass(password, unicode.IsUpper) {
		violations = append(violations, "Password must contain at least one uppercase letter")
	}
	if x.policy.RequireLowercase && !containsClass(password, unicode.IsLower) {
		violations = append(violations, "Password must contain at least one lowercase letter")
	}
	if x.policy.RequireDigit && !containsClass(password, unicode.IsDigit) {
		violations = append(violations, "Password must contain at least one digit")
	}
	if x.policy.RequireSpecialChar && !strings.ContainsAny(password, specialPasswordChars) {
		violations = append(violations, "Password must contain at least one special character")
	}

	return PolicyValidationResult{
		Valid:      len(violations) == 0,
		Violations: violations,
	}
}

func containsClass(s string, class func(rune) bool) bool {
	for _, r := range s {
		if class(r) {
			return true
		}
	}
	return false
}
