package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/logger"
	"github.com/xf00889/alumnisystem-sub000/internal/repository"
)

const flowSignup = "signup"

// RegisterInput carries the signup form.
type RegisterInput struct {
	Email     string
	Username  string
	Password  string
	FirstName string
	LastName  string
	IP        string
}

// Registration is returned while the account waits for email verification.
type Registration struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// SignupFlow registers inactive accounts and activates them with an emailed code.
type SignupFlow struct {
	users     port.UserRepository
	hasher    port.PasswordHasher
	validator port.PasswordPolicyValidator
	mailer    port.Mailer
	codes     *CodeService
	limiter   *RateLimiter
	audit     *AuditTrail
	composer  MessageComposer
	metrics   port.AuthMetrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewSignupFlow constructs the signup flow.
func NewSignupFlow(deps Dependencies) *SignupFlow {
	return &SignupFlow{
		users:     deps.Users,
		hasher:    deps.Hasher,
		validator: deps.Validator,
		mailer:    deps.Mailer,
		codes:     deps.Codes,
		limiter:   deps.Limiter,
		audit:     deps.Audit,
		composer:  deps.Composer,
		metrics:   deps.metrics(),
		logger:    deps.logger(),
		now:       deps.clock(),
	}
}

// Register creates an inactive user and emails a verification code.
func (f *SignupFlow) Register(ctx context.Context, in RegisterInput) (reg *Registration, err error) {
	defer func() { f.metrics.ObserveOutcome("signup_register", outcomeLabel(err)) }()

	email := domain.NormalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)
	if email == "" || !strings.Contains(email, "@") || username == "" {
		return nil, fmt.Errorf("%w: email and username are required", ErrInvalidInput)
	}

	if err := f.ensureAvailable(ctx, email, username, in.IP); err != nil {
		return nil, err
	}

	if reasons := f.validator.Validate(in.Password); len(reasons) > 0 {
		f.audit.Record(ctx, AuditEntry{
			Kind:    domain.EventSignupRejected,
			Subject: email,
			IP:      in.IP,
			Details: map[string]any{"reason": "weak_password"},
		})
		return nil, &WeakPasswordError{Reasons: reasons}
	}

	hash, err := f.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := f.users.Create(ctx, port.NewUser{
		Username:     username,
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: hash,
		IsActive:     false,
	})
	if errors.Is(err, repository.ErrConflict) {
		f.audit.Record(ctx, AuditEntry{
			Kind:    domain.EventSignupRejected,
			Subject: email,
			IP:      in.IP,
			Details: map[string]any{"reason": "already_exists"},
		})
		return nil, ErrAlreadyExists
	}
	if err != nil {
		return nil, transient("create user", err)
	}

	code, err := f.codes.Issue(ctx, email, domain.CodePurposeSignup)
	if err != nil {
		return nil, err
	}
	f.send(ctx, f.composer.CodeMessage(domain.CodePurposeSignup, email, user.DisplayName(), code, f.codes.Settings().TTL, false))

	f.audit.Record(ctx, AuditEntry{
		Kind:    domain.EventAccountCreation,
		Subject: email,
		UserID:  user.ID,
		IP:      in.IP,
		Details: map[string]any{"username": username, "method": "email"},
	})

	return &Registration{
		UserID:    user.ID,
		Email:     email,
		ExpiresAt: f.now().UTC().Add(f.codes.Settings().TTL),
	}, nil
}

// Verify activates the account when code matches the live signup code.
func (f *SignupFlow) Verify(ctx context.Context, email, code, ip string) (user *domain.User, err error) {
	defer func() { f.metrics.ObserveOutcome("signup_verify", outcomeLabel(err)) }()

	email = domain.NormalizeEmail(email)
	result, err := f.codes.Verify(ctx, email, domain.CodePurposeSignup, strings.TrimSpace(code))
	if err != nil {
		return nil, err
	}
	if result.Outcome != domain.CodeOK {
		f.audit.Record(ctx, AuditEntry{
			Kind:    domain.EventEmailVerificationFailed,
			Subject: email,
			IP:      ip,
			Details: map[string]any{"reason": result.Outcome.String(), "remaining_attempts": result.RemainingAttempts},
		})
		return nil, codeError(result)
	}

	found, err := f.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrCodeExpired
	}
	if err != nil {
		return nil, transient("lookup user", err)
	}

	active := true
	if err := f.users.UpdateFields(ctx, found.ID, port.UserFieldUpdate{IsActive: &active}); err != nil {
		return nil, transient("activate user", err)
	}

	user, err = f.users.GetByID(ctx, found.ID)
	if err != nil {
		return nil, transient("reload user", err)
	}

	f.audit.Record(ctx, AuditEntry{
		Kind:    domain.EventEmailVerificationSuccess,
		Subject: email,
		UserID:  user.ID,
		IP:      ip,
	})
	return user, nil
}

// Resend issues a fresh signup code when the email belongs to an inactive
// account. Unknown and already active emails get the same nil result without
// any mail being sent.
func (f *SignupFlow) Resend(ctx context.Context, email, ip string) (err error) {
	defer func() { f.metrics.ObserveOutcome("signup_resend", outcomeLabel(err)) }()

	email = domain.NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	if err := f.limiter.Check(ctx, email, ActionResendVerification); err != nil {
		var limited *RateLimitExceededError
		if errors.As(err, &limited) {
			f.audit.Record(ctx, AuditEntry{
				Kind:    domain.EventRateLimited,
				Subject: email,
				IP:      ip,
				Details: map[string]any{"action": string(ActionResendVerification), "retry_after_seconds": limited.RetryAfterSeconds()},
			})
		}
		return err
	}

	user, err := f.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return transient("lookup user", err)
	}
	if user.IsActive {
		return nil
	}

	code, err := f.codes.Issue(ctx, email, domain.CodePurposeSignup)
	if err != nil {
		return err
	}
	f.send(ctx, f.composer.CodeMessage(domain.CodePurposeSignup, email, user.DisplayName(), code, f.codes.Settings().TTL, true))

	if _, err := f.limiter.Record(ctx, email, ActionResendVerification); err != nil {
		f.logger.Warn("record resend attempt failed", zap.String("email", logger.MaskEmail(email)), zap.Error(err))
	}

	f.audit.Record(ctx, AuditEntry{
		Kind:    domain.EventVerificationResent,
		Subject: email,
		UserID:  user.ID,
		IP:      ip,
	})
	return nil
}

func (f *SignupFlow) ensureAvailable(ctx context.Context, email, username, ip string) error {
	reject := func(field string) error {
		f.audit.Record(ctx, AuditEntry{
			Kind:    domain.EventSignupRejected,
			Subject: email,
			IP:      ip,
			Details: map[string]any{"reason": "already_exists", "field": field},
		})
		return ErrAlreadyExists
	}

	if _, err := f.users.GetByEmail(ctx, email); err == nil {
		return reject("email")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return transient("lookup email", err)
	}

	if _, err := f.users.GetByUsername(ctx, username); err == nil {
		return reject("username")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return transient("lookup username", err)
	}
	return nil
}

// send hands msg to the mailer. A failed send keeps the issued code; the user
// can ask for a resend.
func (f *SignupFlow) send(ctx context.Context, msg port.Message) {
	if f.mailer == nil {
		return
	}
	if err := f.mailer.Send(ctx, msg); err != nil {
		f.logger.Error("send verification email failed", zap.String("to", logger.MaskEmail(msg.To)), zap.Error(err))
	}
}
