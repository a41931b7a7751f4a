package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/logger"
	"github.com/xf00889/alumnisystem-sub000/internal/repository"
)

// LoginOptions tunes LoginFlow behavior.
type LoginOptions struct {
	// AutoReactivate revives an inactive account with a usable password once
	// the password verifies. When false such accounts cannot log in.
	AutoReactivate bool
}

// LoginFlow authenticates credentials against the lockout state and the hasher.
type LoginFlow struct {
	users   port.UserRepository
	hasher  port.PasswordHasher
	lockout *LockoutService
	limiter *RateLimiter
	audit   *AuditTrail
	metrics port.AuthMetrics
	opts    LoginOptions
	logger  *zap.Logger
	now     func() time.Time
}

// NewLoginFlow constructs the login flow. A nil limiter disables the per-IP budget.
func NewLoginFlow(deps Dependencies, opts LoginOptions) *LoginFlow {
	return &LoginFlow{
		users:   deps.Users,
		hasher:  deps.Hasher,
		lockout: deps.Lockout,
		limiter: deps.Limiter,
		audit:   deps.Audit,
		metrics: deps.metrics(),
		opts:    opts,
		logger:  deps.logger(),
		now:     deps.clock(),
	}
}

// Authenticate returns the user for valid credentials. Unknown identifiers and
// wrong passwords both yield ErrInvalidCredentials and both count toward the
// lockout of the submitted identifier.
func (f *LoginFlow) Authenticate(ctx context.Context, identifier, password, ip string) (user *domain.User, err error) {
	defer func() { f.metrics.ObserveOutcome("login", outcomeLabel(err)) }()

	id := domain.NormalizeIdentifier(identifier)
	if id == "" || password == "" {
		f.equalizeTiming(password)
		f.audit.Record(ctx, AuditEntry{
			Kind:    domain.EventFailedLogin,
			Subject: id,
			IP:      ip,
			Details: map[string]any{"reason": "missing_credentials"},
		})
		return nil, ErrInvalidCredentials
	}

	if err := f.checkIPBudget(ctx, id, ip); err != nil {
		return nil, err
	}

	status, err := f.lockout.Status(ctx, id)
	if err != nil {
		return nil, err
	}
	if status.Locked {
		f.audit.Record(ctx, AuditEntry{
			Kind:    domain.EventLoginAttemptLockedAccount,
			Subject: id,
			IP:      ip,
			Details: map[string]any{"remaining_minutes": status.RemainingMinutes},
		})
		return nil, &AccountLockedError{RemainingMinutes: status.RemainingMinutes}
	}

	found, err := f.resolve(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		f.equalizeTiming(password)
		return nil, f.fail(ctx, id, nil, ip, "no_user")
	}
	if err != nil {
		return nil, transient("lookup user", err)
	}

	if !found.HasUsablePassword() {
		// the hasher returns early on unusable hashes
		f.equalizeTiming(password)
		return nil, f.fail(ctx, id, found, ip, "unusable_password")
	}

	ok, verifyErr := f.hasher.Verify(password, found.PasswordHash)
	if verifyErr != nil {
		f.logger.Warn("stored password hash unreadable", zap.String("user_id", found.ID), zap.Error(verifyErr))
		ok = false
	}
	if !ok {
		return nil, f.fail(ctx, id, found, ip, "invalid_password")
	}

	reactivate := false
	if !found.IsActive {
		if !f.opts.AutoReactivate {
			f.audit.Record(ctx, AuditEntry{
				Kind:    domain.EventFailedLogin,
				Subject: id,
				UserID:  found.ID,
				IP:      ip,
				Details: map[string]any{"reason": "inactive"},
			})
			return nil, ErrInvalidCredentials
		}
		reactivate = true
	}

	now := f.now().UTC()
	fields := port.UserFieldUpdate{LastLoginAt: &now}
	if reactivate {
		active := true
		fields.IsActive = &active
	}
	rehashed := false
	if f.hasher.NeedsRehash(found.PasswordHash) {
		if upgraded, err := f.hasher.Hash(password); err != nil {
			f.logger.Warn("password rehash failed", zap.String("user_id", found.ID), zap.Error(err))
		} else {
			fields.PasswordHash = &upgraded
			rehashed = true
		}
	}

	// counters are cleared before the row write; a store failure denies the login
	if err := f.lockout.Reset(ctx, id, found.Username, found.Email); err != nil {
		return nil, err
	}

	err = f.users.InTx(ctx, func(tx port.UserRepository) error {
		if err := tx.UpdateFields(ctx, found.ID, fields); err != nil {
			return err
		}
		user, err = tx.GetByID(ctx, found.ID)
		return err
	})
	if err != nil {
		return nil, transient("record login", err)
	}

	f.audit.Record(ctx, AuditEntry{
		Kind:    domain.EventSuccessfulLogin,
		Subject: id,
		UserID:  user.ID,
		IP:      ip,
		Details: map[string]any{"reactivated": reactivate, "rehashed": rehashed},
	})
	return user, nil
}

// fail counts the failure under the identifier, the user's username and email,
// and the client IP. Exactly one audit event is written: the lock event when
// this failure engaged the lock, failed_login otherwise.
func (f *LoginFlow) fail(ctx context.Context, id string, user *domain.User, ip, reason string) error {
	aliases := []string{}
	if user != nil {
		aliases = append(aliases, user.Username, user.Email)
	}

	record, err := f.lockout.RecordFailure(ctx, id, aliases...)
	if err != nil {
		return err
	}

	if f.limiter != nil && strings.TrimSpace(ip) != "" {
		if _, err := f.limiter.Record(ctx, ip, ActionLogin); err != nil {
			f.logger.Warn("record login attempt failed", zap.String("ip", logger.MaskIP(ip)), zap.Error(err))
		}
	}

	if record.NowLocked {
		f.audit.Record(ctx, AuditEntry{
			Kind:    domain.EventAccountLockedFailedAttempts,
			Subject: id,
			UserID:  userIDOf(user),
			IP:      ip,
			Details: map[string]any{
				"reason":           reason,
				"failed_attempts":  record.FailedAttempts,
				"duration_minutes": record.DurationMinutes,
			},
		})
		return &AccountLockedError{RemainingMinutes: record.DurationMinutes}
	}

	remaining := f.lockout.Settings().MaxFailed - record.FailedAttempts
	if remaining < 0 {
		remaining = 0
	}
	f.audit.Record(ctx, AuditEntry{
		Kind:    domain.EventFailedLogin,
		Subject: id,
		UserID:  userIDOf(user),
		IP:      ip,
		Details: map[string]any{
			"reason":             reason,
			"failed_attempts":    record.FailedAttempts,
			"attempts_remaining": remaining,
		},
	})
	return ErrInvalidCredentials
}

func (f *LoginFlow) checkIPBudget(ctx context.Context, id, ip string) error {
	if f.limiter == nil || strings.TrimSpace(ip) == "" {
		return nil
	}
	err := f.limiter.Check(ctx, ip, ActionLogin)
	var limited *RateLimitExceededError
	if errors.As(err, &limited) {
		f.audit.Record(ctx, AuditEntry{
			Kind:    domain.EventRateLimited,
			Subject: id,
			IP:      ip,
			Details: map[string]any{"action": string(ActionLogin), "retry_after_seconds": limited.RetryAfterSeconds()},
		})
	}
	return err
}

// resolve looks up by email when the identifier has an @, otherwise by
// username or email. Rows are read straight from the store on every call.
func (f *LoginFlow) resolve(ctx context.Context, id string) (*domain.User, error) {
	if strings.Contains(id, "@") {
		return f.users.GetByEmail(ctx, id)
	}
	return f.users.GetByUsernameOrEmail(ctx, id)
}

// equalizeTiming spends one hash so unknown identifiers cost the same as known ones.
func (f *LoginFlow) equalizeTiming(password string) {
	if _, err := f.hasher.Hash(password); err != nil {
		f.logger.Debug("timing equalization hash failed", zap.Error(err))
	}
}
