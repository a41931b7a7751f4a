package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/config"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/security"
	"github.com/xf00889/alumnisystem-sub000/internal/usecase"
)

// CoreDeps are the ports the auth core is built on. Hasher, Validator and
// Random default to the production implementations when nil.
type CoreDeps struct {
	Users     port.UserRepository
	Store     port.KeyValueStore
	Mailer    port.Mailer
	Sink      port.AuditSink
	Hasher    port.PasswordHasher
	Validator port.PasswordPolicyValidator
	Random    port.Randomness
	Metrics   port.AuthMetrics
	Logger    *zap.Logger
	Now       func() time.Time
}

// Core bundles the flows built from one configuration.
type Core struct {
	Audit         *usecase.AuditTrail
	Codes         *usecase.CodeService
	Limiter       *usecase.RateLimiter
	Lockout       *usecase.LockoutService
	Signup        *usecase.SignupFlow
	Login         *usecase.LoginFlow
	PasswordReset *usecase.PasswordResetFlow
	Social        *usecase.SocialReconciliation
}

// BuildCore wires the flows from cfg and deps. Settings are copied by value
// into each service.
func BuildCore(cfg *config.AppConfig, deps CoreDeps) (*Core, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if deps.Users == nil || deps.Store == nil {
		return nil, fmt.Errorf("user repository and key-value store are required")
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	hasher := deps.Hasher
	if hasher == nil {
		argon, err := security.NewArgon2Hasher(security.Argon2Config{
			Memory:      cfg.Argon2.Memory,
			Iterations:  cfg.Argon2.Iterations,
			Parallelism: cfg.Argon2.Parallelism,
			SaltLength:  cfg.Argon2.SaltLength,
			KeyLength:   cfg.Argon2.KeyLength,
		})
		if err != nil {
			return nil, fmt.Errorf("configure argon2: %w", err)
		}
		hasher = argon
	}
	validator := deps.Validator
	if validator == nil {
		validator = security.DefaultPasswordValidator(cfg.Auth.PasswordMinLength)
	}
	random := deps.Random
	if random == nil {
		random = security.SecureRandom{}
	}

	audit := usecase.NewAuditTrail(deps.Sink, log)
	audit.WithClock(now)

	codes := usecase.NewCodeService(deps.Store, random, usecase.CodeSettings{
		Length:      cfg.Auth.CodeLength,
		TTL:         cfg.Auth.CodeTTL,
		MaxAttempts: cfg.Auth.CodeMaxAttempts,
	}, log)
	codes.WithClock(now)

	lockout := usecase.NewLockoutService(deps.Store, deps.Users, audit, usecase.LockoutSettings{
		MaxFailed:     cfg.Auth.LockoutMaxFailed,
		Duration:      cfg.Auth.LockoutDuration,
		CounterWindow: cfg.Auth.LockoutCounterWindow,
	}, log).WithMetrics(deps.Metrics)
	lockout.WithClock(now)

	limiter := usecase.NewRateLimiter(deps.Store, RateLimitPolicies(cfg.RateLimit))

	shared := usecase.Dependencies{
		Users:     deps.Users,
		Store:     deps.Store,
		Hasher:    hasher,
		Validator: validator,
		Mailer:    deps.Mailer,
		Random:    random,
		Metrics:   deps.Metrics,
		Audit:     audit,
		Codes:     codes,
		Limiter:   limiter,
		Lockout:   lockout,
		Composer:  usecase.MessageComposer{SiteName: cfg.Mail.FromName},
		Logger:    log,
		Now:       now,
	}

	return &Core{
		Audit:         audit,
		Codes:         codes,
		Limiter:       limiter,
		Lockout:       lockout,
		Signup:        usecase.NewSignupFlow(shared),
		Login:         usecase.NewLoginFlow(shared, usecase.LoginOptions{AutoReactivate: cfg.Auth.AutoReactivateOnLogin}),
		PasswordReset: usecase.NewPasswordResetFlow(shared, cfg.Auth.ResetTokenTTL),
		Social:        usecase.NewSocialReconciliation(shared),
	}, nil
}

// RateLimitPolicies maps the configured budgets onto limiter actions. Zero
// values fall back to the built-in defaults.
func RateLimitPolicies(cfg config.RateLimitSettings) map[usecase.RateAction]usecase.RateLimitPolicy {
	return map[usecase.RateAction]usecase.RateLimitPolicy{
		usecase.ActionResendVerification: {Max: cfg.ResendMax, Window: cfg.ResendWindow},
		usecase.ActionPasswordReset:      {Max: cfg.ResetMax, Window: cfg.ResetWindow},
		usecase.ActionLogin:              {Max: cfg.LoginMax, Window: cfg.LoginWindow},
		usecase.ActionOAuthCallback:      {Max: cfg.OAuthMax, Window: cfg.OAuthWindow},
	}
}
