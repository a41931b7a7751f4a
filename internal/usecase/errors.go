package usecase

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

var (
	// ErrInvalidInput indicates a required argument was empty or malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrAlreadyExists indicates the email or username is already registered.
	ErrAlreadyExists = errors.New("account already exists")
	// ErrInvalidCredentials covers both unknown identifiers and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCodeExpired indicates no live code exists for the email and purpose.
	ErrCodeExpired = errors.New("code expired")
	// ErrCodeExhausted is returned by the attempt that used up the code.
	ErrCodeExhausted = errors.New("code attempts exhausted")
	// ErrResetTokenInvalid indicates the reset token is missing, expired or already used.
	ErrResetTokenInvalid = errors.New("reset token invalid")
	// ErrProviderEmailMissing indicates the identity provider did not assert an email.
	ErrProviderEmailMissing = errors.New("provider email missing")
	// ErrDuplicateBindingConflict indicates the user is already bound to another
	// identity of the same provider.
	ErrDuplicateBindingConflict = errors.New("duplicate social binding")
	// ErrAccountInactive indicates a provider identity resolved to a deactivated user.
	ErrAccountInactive = errors.New("account inactive")
	// ErrTransientFailure wraps store or mailer outages. Security checks fail closed on it.
	ErrTransientFailure = errors.New("transient failure")
)

// WeakPasswordError lists every violated password rule.
type WeakPasswordError struct {
	Reasons []string
}

func (e *WeakPasswordError) Error() string {
	return "weak password: " + strings.Join(e.Reasons, " ")
}

// AccountLockedError reports an active lockout.
type AccountLockedError struct {
	RemainingMinutes int
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked for %d more minutes", e.RemainingMinutes)
}

// CodeInvalidError reports a wrong code with attempts left.
type CodeInvalidError struct {
	RemainingAttempts int
}

func (e *CodeInvalidError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts remaining", e.RemainingAttempts)
}

// RateLimitExceededError signals that a rate limiting rule prevented the request.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *RateLimitExceededError) Error() string {
	if e == nil {
		return "rate limit exceeded"
	}
	return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter)
}

// RetryAfterSeconds rounds the wait up to whole seconds.
func (e *RateLimitExceededError) RetryAfterSeconds() int {
	return ceilSeconds(e.RetryAfter)
}

func transient(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransientFailure, err)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func ceilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Minutes()))
}
