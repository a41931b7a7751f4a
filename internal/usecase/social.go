package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/repository"
)

const (
	maxUsernameLength     = 150
	usernameSuffixDigits  = 4
	usernameSuffixRetries = 5
)

var usernameDisallowed = regexp.MustCompile(`[^a-z0-9_.+-]`)

// SocialAssertion is an identity asserted by an external provider.
type SocialAssertion struct {
	Provider    string
	ProviderUID string
	Email       string
	FirstName   string
	LastName    string
	IP          string
}

// SocialLoginResult reports which user the assertion resolved to and how.
type SocialLoginResult struct {
	User    *domain.User
	Created bool
	Linked  bool
}

// SocialReconciliation maps provider identities to local users.
type SocialReconciliation struct {
	users   port.UserRepository
	random  port.Randomness
	limiter *RateLimiter
	audit   *AuditTrail
	metrics port.AuthMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewSocialReconciliation constructs the reconciler.
func NewSocialReconciliation(deps Dependencies) *SocialReconciliation {
	return &SocialReconciliation{
		users:   deps.Users,
		random:  deps.Random,
		limiter: deps.Limiter,
		audit:   deps.Audit,
		metrics: deps.metrics(),
		logger:  deps.logger(),
		now:     deps.clock(),
	}
}

// Reconcile returns the bound user, links an existing user with the asserted
// email, or creates an active passwordless user. A user keeps at most one
// binding per provider. Deactivated users are refused with ErrAccountInactive
// and never gain a binding.
func (s *SocialReconciliation) Reconcile(ctx context.Context, in SocialAssertion) (result *SocialLoginResult, err error) {
	defer func() { s.metrics.ObserveOutcome("social_login", outcomeLabel(err)) }()

	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	uid := strings.TrimSpace(in.ProviderUID)
	email := domain.NormalizeEmail(in.Email)
	if provider == "" || uid == "" {
		return nil, fmt.Errorf("%w: provider and provider uid are required", ErrInvalidInput)
	}

	if err := s.checkBudget(ctx, provider, email, in.IP); err != nil {
		return nil, err
	}

	if user, err := s.boundUser(ctx, provider, uid); err != nil {
		return nil, err
	} else if user != nil {
		if !user.IsActive {
			return nil, s.rejectInactive(ctx, provider, uid, email, user, in.IP)
		}
		s.record(ctx, domain.EventSocialLogin, provider, uid, email, user, in.IP, nil)
		return &SocialLoginResult{User: user}, nil
	}

	if email == "" {
		s.record(ctx, domain.EventSocialLoginRejected, provider, uid, email, nil, in.IP, map[string]any{"reason": "provider_email_missing"})
		return nil, ErrProviderEmailMissing
	}

	result = &SocialLoginResult{}
	err = s.users.InTx(ctx, func(tx port.UserRepository) error {
		existing, err := tx.GetByEmail(ctx, email)
		switch {
		case err == nil:
			if !existing.IsActive {
				result.User = existing
				return ErrAccountInactive
			}
			bindings, err := tx.ListSocialBindings(ctx, existing.ID, provider)
			if err != nil {
				return err
			}
			for _, b := range bindings {
				if b.ProviderUID != uid {
					result.User = existing
					return ErrDuplicateBindingConflict
				}
			}
			if err := tx.CreateSocialBinding(ctx, s.binding(provider, uid, existing.ID)); err != nil {
				return err
			}
			result.User = existing
			result.Linked = true
			return nil
		case errors.Is(err, repository.ErrNotFound):
			username, err := s.availableUsername(ctx, tx, email)
			if err != nil {
				return err
			}
			created, err := tx.Create(ctx, port.NewUser{
				Username:  username,
				Email:     email,
				FirstName: strings.TrimSpace(in.FirstName),
				LastName:  strings.TrimSpace(in.LastName),
				IsActive:  true,
			})
			if err != nil {
				return err
			}
			if err := tx.CreateSocialBinding(ctx, s.binding(provider, uid, created.ID)); err != nil {
				return err
			}
			result.User = created
			result.Created = true
			return nil
		default:
			return err
		}
	})

	switch {
	case err == nil:
	case errors.Is(err, ErrDuplicateBindingConflict):
		s.record(ctx, domain.EventSocialLoginRejected, provider, uid, email, result.User, in.IP, map[string]any{"reason": "duplicate_binding"})
		return nil, ErrDuplicateBindingConflict
	case errors.Is(err, ErrAccountInactive):
		return nil, s.rejectInactive(ctx, provider, uid, email, result.User, in.IP)
	case errors.Is(err, repository.ErrConflict):
		// a concurrent callback bound the same identity or took the email
		user, lookupErr := s.boundUser(ctx, provider, uid)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if user == nil {
			s.record(ctx, domain.EventSocialLoginRejected, provider, uid, email, nil, in.IP, map[string]any{"reason": "duplicate_binding"})
			return nil, ErrDuplicateBindingConflict
		}
		if !user.IsActive {
			return nil, s.rejectInactive(ctx, provider, uid, email, user, in.IP)
		}
		s.record(ctx, domain.EventSocialLogin, provider, uid, email, user, in.IP, nil)
		return &SocialLoginResult{User: user}, nil
	default:
		return nil, transient("reconcile social login", err)
	}

	kind := domain.EventSocialAccountLinked
	if result.Created {
		kind = domain.EventSocialAccountCreated
	}
	s.record(ctx, kind, provider, uid, email, result.User, in.IP, nil)
	return result, nil
}

func (s *SocialReconciliation) rejectInactive(ctx context.Context, provider, uid, email string, user *domain.User, ip string) error {
	s.record(ctx, domain.EventSocialLoginRejected, provider, uid, email, user, ip, map[string]any{"reason": "inactive"})
	return ErrAccountInactive
}

func (s *SocialReconciliation) checkBudget(ctx context.Context, provider, email, ip string) error {
	if s.limiter == nil || strings.TrimSpace(ip) == "" {
		return nil
	}
	if err := s.limiter.Check(ctx, ip, ActionOAuthCallback); err != nil {
		var limited *RateLimitExceededError
		if errors.As(err, &limited) {
			s.audit.Record(ctx, AuditEntry{
				Kind:    domain.EventRateLimited,
				Subject: email,
				IP:      ip,
				Details: map[string]any{"action": string(ActionOAuthCallback), "provider": provider, "retry_after_seconds": limited.RetryAfterSeconds()},
			})
		}
		return err
	}
	if _, err := s.limiter.Record(ctx, ip, ActionOAuthCallback); err != nil {
		return err
	}
	return nil
}

func (s *SocialReconciliation) boundUser(ctx context.Context, provider, uid string) (*domain.User, error) {
	binding, err := s.users.GetSocialBinding(ctx, provider, uid)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, transient("lookup social binding", err)
	}
	user, err := s.users.GetByID(ctx, binding.UserID)
	if err != nil {
		return nil, transient("load bound user", err)
	}
	return user, nil
}

func (s *SocialReconciliation) binding(provider, uid, userID string) domain.SocialBinding {
	return domain.SocialBinding{
		ID:          uuid.NewString(),
		Provider:    provider,
		ProviderUID: uid,
		UserID:      userID,
		CreatedAt:   s.now().UTC(),
	}
}

// availableUsername derives a username from the email local part and appends
// random digits until it is free.
func (s *SocialReconciliation) availableUsername(ctx context.Context, users port.UserRepository, email string) (string, error) {
	base := usernameDisallowed.ReplaceAllString(strings.SplitN(email, "@", 2)[0], "")
	if base == "" {
		base = "user"
	}
	if len(base) > maxUsernameLength-usernameSuffixDigits-1 {
		base = base[:maxUsernameLength-usernameSuffixDigits-1]
	}

	candidate := base
	for attempt := 0; attempt <= usernameSuffixRetries; attempt++ {
		_, err := users.GetByUsername(ctx, candidate)
		if errors.Is(err, repository.ErrNotFound) {
			return candidate, nil
		}
		if err != nil {
			return "", err
		}
		suffix, err := s.random.Digits(usernameSuffixDigits)
		if err != nil {
			return "", fmt.Errorf("generate username suffix: %w", err)
		}
		candidate = base + "_" + suffix
	}
	return uuid.NewString(), nil
}

func (s *SocialReconciliation) record(ctx context.Context, kind domain.EventKind, provider, uid, email string, user *domain.User, ip string, extra map[string]any) {
	details := map[string]any{"provider": provider, "provider_uid": uid}
	for k, v := range extra {
		details[k] = v
	}
	subject := email
	if subject == "" && user != nil {
		subject = user.Email
	}
	s.audit.Record(ctx, AuditEntry{
		Kind:    kind,
		Subject: subject,
		UserID:  userIDOf(user),
		IP:      ip,
		Details: details,
	})
}
