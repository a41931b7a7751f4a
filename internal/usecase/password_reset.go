package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/logger"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/security"
	"github.com/xf00889/alumnisystem-sub000/internal/repository"
)

const (
	defaultResetTokenTTL = 10 * time.Minute
	resetTokenBytes      = 32
	resetTokenPrefix     = "reset_token:"
)

// PasswordResetFlow resets a password through an emailed code and a
// short-lived token that gates the final step.
type PasswordResetFlow struct {
	users     port.UserRepository
	store     port.KeyValueStore
	hasher    port.PasswordHasher
	validator port.PasswordPolicyValidator
	mailer    port.Mailer
	random    port.Randomness
	codes     *CodeService
	limiter   *RateLimiter
	lockout   *LockoutService
	audit     *AuditTrail
	composer  MessageComposer
	metrics   port.AuthMetrics
	tokenTTL  time.Duration
	logger    *zap.Logger
}

// NewPasswordResetFlow constructs the flow. A non-positive tokenTTL uses 10 minutes.
func NewPasswordResetFlow(deps Dependencies, tokenTTL time.Duration) *PasswordResetFlow {
	if tokenTTL <= 0 {
		tokenTTL = defaultResetTokenTTL
	}
	return &PasswordResetFlow{
		users:     deps.Users,
		store:     deps.Store,
		hasher:    deps.Hasher,
		validator: deps.Validator,
		mailer:    deps.Mailer,
		random:    deps.Random,
		codes:     deps.Codes,
		limiter:   deps.Limiter,
		lockout:   deps.Lockout,
		audit:     deps.Audit,
		composer:  deps.Composer,
		metrics:   deps.metrics(),
		tokenTTL:  tokenTTL,
		logger:    deps.logger(),
	}
}

// Request emails a reset code when the address belongs to an account. The
// result is nil either way so callers cannot tell the cases apart.
func (f *PasswordResetFlow) Request(ctx context.Context, email, ip string) (err error) {
	defer func() { f.metrics.ObserveOutcome("password_reset_request", outcomeLabel(err)) }()

	email = domain.NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	if err := f.limiter.Check(ctx, email, ActionPasswordReset); err != nil {
		var limited *RateLimitExceededError
		if errors.As(err, &limited) {
			f.audit.Record(ctx, AuditEntry{
				Kind:    domain.EventRateLimited,
				Subject: email,
				IP:      ip,
				Details: map[string]any{"action": string(ActionPasswordReset), "retry_after_seconds": limited.RetryAfterSeconds()},
			})
		}
		return err
	}

	user, err := f.users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return transient("lookup user", err)
	}

	dispatched := false
	if user != nil {
		code, err := f.codes.Issue(ctx, email, domain.CodePurposePasswordReset)
		if err != nil {
			return err
		}
		msg := f.composer.CodeMessage(domain.CodePurposePasswordReset, email, user.DisplayName(), code, f.codes.Settings().TTL, false)
		if f.mailer != nil {
			if err := f.mailer.Send(ctx, msg); err != nil {
				f.logger.Error("send password reset email failed", zap.String("to", logger.MaskEmail(email)), zap.Error(err))
			}
		}
		dispatched = true
	}

	f.audit.Record(ctx, AuditEntry{
		Kind:    domain.EventPasswordResetRequest,
		Subject: email,
		UserID:  userIDOf(user),
		IP:      ip,
		Details: map[string]any{"dispatched": dispatched},
	})

	if dispatched {
		if _, err := f.limiter.Record(ctx, email, ActionPasswordReset); err != nil {
			f.logger.Warn("record password reset attempt failed", zap.String("email", logger.MaskEmail(email)), zap.Error(err))
		}
	}
	return nil
}

// VerifyCode checks the reset code and, on success, returns a token that
// authorizes Finalize for tokenTTL.
func (f *PasswordResetFlow) VerifyCode(ctx context.Context, email, code, ip string) (token string, err error) {
	defer func() { f.metrics.ObserveOutcome("password_reset_verify", outcomeLabel(err)) }()

	email = domain.NormalizeEmail(email)
	result, err := f.codes.Verify(ctx, email, domain.CodePurposePasswordReset, strings.TrimSpace(code))
	if err != nil {
		return "", err
	}
	if result.Outcome != domain.CodeOK {
		f.audit.Record(ctx, AuditEntry{
			Kind:    domain.EventPasswordResetCodeFailed,
			Subject: email,
			IP:      ip,
			Details: map[string]any{"reason": result.Outcome.String(), "remaining_attempts": result.RemainingAttempts},
		})
		return "", codeError(result)
	}

	token, err = f.random.Token(resetTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	if err := f.store.Set(ctx, resetTokenPrefix+email, security.HashToken(token), f.tokenTTL); err != nil {
		return "", transient("store reset token", err)
	}

	f.audit.Record(ctx, AuditEntry{
		Kind:    domain.EventPasswordResetCodeVerified,
		Subject: email,
		IP:      ip,
	})
	return token, nil
}

// Finalize clears lockouts for the username and email, claims the token, then
// sets the new password and activates the account in one row update. The token
// is put back when the update fails.
func (f *PasswordResetFlow) Finalize(ctx context.Context, email, token, newPassword, ip string) (user *domain.User, err error) {
	defer func() { f.metrics.ObserveOutcome("password_reset_finalize", outcomeLabel(err)) }()

	email = domain.NormalizeEmail(email)
	if reasons := f.validator.Validate(newPassword); len(reasons) > 0 {
		f.audit.Record(ctx, AuditEntry{
			Kind:    domain.EventPasswordResetFailed,
			Subject: email,
			IP:      ip,
			Details: map[string]any{"reason": "weak_password"},
		})
		return nil, &WeakPasswordError{Reasons: reasons}
	}

	tokenKey := resetTokenPrefix + email
	stored, err := f.store.Get(ctx, tokenKey)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, f.rejectToken(ctx, email, ip, "missing")
	}
	if err != nil {
		return nil, transient("load reset token", err)
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(security.HashToken(strings.TrimSpace(token)))) != 1 {
		return nil, f.rejectToken(ctx, email, ip, "mismatch")
	}

	found, err := f.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, f.rejectToken(ctx, email, ip, "no_user")
	}
	if err != nil {
		return nil, transient("lookup user", err)
	}

	hash, err := f.hasher.Hash(newPassword)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	// lockout state goes first: a failure here leaves the token and the row untouched
	if err := f.lockout.Reset(ctx, email, found.Username); err != nil {
		return nil, err
	}

	remaining, live, err := f.store.TTL(ctx, tokenKey)
	if err != nil {
		return nil, transient("read reset token ttl", err)
	}
	if !live {
		return nil, f.rejectToken(ctx, email, ip, "consumed")
	}
	consumed, err := f.store.CompareAndDelete(ctx, tokenKey, stored)
	if err != nil {
		return nil, transient("consume reset token", err)
	}
	if !consumed {
		return nil, f.rejectToken(ctx, email, ip, "consumed")
	}

	active := true
	err = f.users.InTx(ctx, func(tx port.UserRepository) error {
		if err := tx.UpdateFields(ctx, found.ID, port.UserFieldUpdate{IsActive: &active, PasswordHash: &hash}); err != nil {
			return err
		}
		user, err = tx.GetByID(ctx, found.ID)
		return err
	})
	if err != nil {
		f.restoreToken(ctx, tokenKey, stored, remaining)
		return nil, transient("update password", err)
	}

	f.audit.Record(ctx, AuditEntry{
		Kind:    domain.EventPasswordResetSuccess,
		Subject: email,
		UserID:  user.ID,
		IP:      ip,
		Details: map[string]any{"reactivated": !found.IsActive},
	})
	return user, nil
}

// restoreToken puts a claimed token back after a failed write so the user can
// retry with it. SetIfAbsent keeps a concurrent reissue intact.
func (f *PasswordResetFlow) restoreToken(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if _, err := f.store.SetIfAbsent(ctx, key, value, ttl); err != nil {
		f.logger.Warn("restore reset token failed", zap.Error(err))
	}
}

func (f *PasswordResetFlow) rejectToken(ctx context.Context, email, ip, reason string) error {
	f.audit.Record(ctx, AuditEntry{
		Kind:    domain.EventPasswordResetFailed,
		Subject: email,
		IP:      ip,
		Details: map[string]any{"reason": "reset_token_" + reason},
	})
	return ErrResetTokenInvalid
}
