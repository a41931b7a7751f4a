package security

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
)

// PasswordSymbols is the set of characters accepted by the symbol rule.
const PasswordSymbols = "!@#$%^&*()_+-=[]{}|;:,.<>?"

const defaultMinPasswordLength = 8

var commonPasswords = []string{
	"password", "123456", "123456789", "qwerty", "abc123",
	"password123", "admin", "letmein", "welcome", "monkey",
}

// PasswordValidationError represents a single password policy violation.
type PasswordValidationError struct {
	Code    string
	Message string
}

// Error implements error for PasswordValidationError.
func (e *PasswordValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PasswordRule validates a password according to a specific policy rule.
type PasswordRule interface {
	Validate(password string) error
}

// PasswordRuleFunc adapts a function to be used as a PasswordRule.
type PasswordRuleFunc func(password string) error

// Validate executes the underlying rule function.
func (f PasswordRuleFunc) Validate(password string) error {
	return f(password)
}

// PasswordValidator applies a sequence of password rules.
type PasswordValidator struct {
	rules []PasswordRule
}

// NewPasswordValidator constructs a validator with the provided rules.
func NewPasswordValidator(rules ...PasswordRule) *PasswordValidator {
	copied := make([]PasswordRule, len(rules))
	copy(copied, rules)
	return &PasswordValidator{rules: copied}
}

// DefaultPasswordValidator returns the account password policy: minimum length,
// upper, lower, digit and symbol classes, and a common-password deny list.
// A non-positive minLength falls back to 8.
func DefaultPasswordValidator(minLength int) *PasswordValidator {
	if minLength <= 0 {
		minLength = defaultMinPasswordLength
	}
	return NewPasswordValidator(
		MinLengthRule(minLength),
		RequireUpperRule(),
		RequireLowerRule(),
		RequireDigitRule(),
		RequireSymbolRule(PasswordSymbols),
		DenyCommonPasswordsRule(commonPasswords...),
	)
}

// Violations executes all rules and returns every violation in rule order.
func (v *PasswordValidator) Violations(password string) []*PasswordValidationError {
	if v == nil {
		return []*PasswordValidationError{{Code: "not_configured", Message: "password validator not configured"}}
	}
	var out []*PasswordValidationError
	for _, rule := range v.rules {
		err := rule.Validate(password)
		if err == nil {
			continue
		}
		if vErr, ok := err.(*PasswordValidationError); ok {
			out = append(out, vErr)
			continue
		}
		out = append(out, &PasswordValidationError{Code: "invalid", Message: err.Error()})
	}
	return out
}

// Validate returns the messages of every violated rule; nil means the password is acceptable.
func (v *PasswordValidator) Validate(password string) []string {
	violations := v.Violations(password)
	if len(violations) == 0 {
		return nil
	}
	reasons := make([]string, 0, len(violations))
	for _, violation := range violations {
		reasons = append(reasons, violation.Message)
	}
	return reasons
}

// MinLengthRule ensures the password has at least min characters.
func MinLengthRule(min int) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		if len([]rune(password)) < min {
			return &PasswordValidationError{
				Code:    "min_length",
				Message: fmt.Sprintf("Password must be at least %d characters long.", min),
			}
		}
		return nil
	})
}

// RequireUpperRule ensures the password contains an uppercase letter.
func RequireUpperRule() PasswordRule {
	return requireRune(unicode.IsUpper, "uppercase", "Password must contain at least one uppercase letter.")
}

// RequireLowerRule ensures the password contains a lowercase letter.
func RequireLowerRule() PasswordRule {
	return requireRune(unicode.IsLower, "lowercase", "Password must contain at least one lowercase letter.")
}

// RequireDigitRule ensures the password contains at least one digit.
func RequireDigitRule() PasswordRule {
	return requireRune(unicode.IsDigit, "digit", "Password must contain at least one number.")
}

// RequireSymbolRule ensures the password contains one of symbols.
func RequireSymbolRule(symbols string) PasswordRule {
	return requireRune(func(r rune) bool {
		return strings.ContainsRune(symbols, r)
	}, "symbol", "Password must contain at least one special character.")
}

// DenyCommonPasswordsRule rejects passwords equal (case-insensitively) to a listed value.
func DenyCommonPasswordsRule(denied ...string) PasswordRule {
	set := make(map[string]struct{}, len(denied))
	for _, d := range denied {
		set[strings.ToLower(d)] = struct{}{}
	}
	return PasswordRuleFunc(func(password string) error {
		if _, found := set[strings.ToLower(password)]; found {
			return &PasswordValidationError{
				Code:    "common",
				Message: "Password is too common. Please choose a stronger password.",
			}
		}
		return nil
	})
}

func requireRune(match func(rune) bool, code, message string) PasswordRule {
	return PasswordRuleFunc(func(password string) error {
		for _, r := range password {
			if match(r) {
				return nil
			}
		}
		return &PasswordValidationError{Code: code, Message: message}
	})
}

var _ port.PasswordPolicyValidator = (*PasswordValidator)(nil)
