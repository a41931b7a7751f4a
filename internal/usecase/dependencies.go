package usecase

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
)

// Dependencies bundles the collaborators shared by the flows.
type Dependencies struct {
	Users     port.UserRepository
	Store     port.KeyValueStore
	Hasher    port.PasswordHasher
	Validator port.PasswordPolicyValidator
	Mailer    port.Mailer
	Random    port.Randomness
	Metrics   port.AuthMetrics

	Audit    *AuditTrail
	Codes    *CodeService
	Limiter  *RateLimiter
	Lockout  *LockoutService
	Composer MessageComposer

	Logger *zap.Logger
	Now    func() time.Time
}

func (d Dependencies) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d Dependencies) clock() func() time.Time {
	if d.Now == nil {
		return time.Now
	}
	return d.Now
}

type noopMetrics struct{}

func (noopMetrics) ObserveOutcome(string, string) {}
func (noopMetrics) ObserveLockout()               {}

func (d Dependencies) metrics() port.AuthMetrics {
	if d.Metrics == nil {
		return noopMetrics{}
	}
	return d.Metrics
}

// outcomeLabel reduces a flow error to a low-cardinality metric label.
func outcomeLabel(err error) string {
	var (
		weak    *WeakPasswordError
		locked  *AccountLockedError
		invalid *CodeInvalidError
		limited *RateLimitExceededError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &weak):
		return "weak_password"
	case errors.As(err, &locked):
		return "locked"
	case errors.As(err, &invalid):
		return "code_invalid"
	case errors.As(err, &limited):
		return "rate_limited"
	case errors.Is(err, ErrAlreadyExists):
		return "already_exists"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrCodeExpired):
		return "code_expired"
	case errors.Is(err, ErrCodeExhausted):
		return "code_exhausted"
	case errors.Is(err, ErrResetTokenInvalid):
		return "reset_token_invalid"
	case errors.Is(err, ErrProviderEmailMissing):
		return "provider_email_missing"
	case errors.Is(err, ErrDuplicateBindingConflict):
		return "duplicate_binding"
	case errors.Is(err, ErrAccountInactive):
		return "account_inactive"
	case errors.Is(err, ErrTransientFailure):
		return "transient_failure"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	default:
		return "error"
	}
}
