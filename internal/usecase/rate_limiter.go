package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/repository"
)

// RateAction names a throttled operation.
type RateAction string

const (
	ActionResendVerification RateAction = "resend_verification"
	ActionPasswordReset      RateAction = "password_reset_attempt"
	ActionOAuthCallback      RateAction = "oauth_callback"
	ActionLogin              RateAction = "login"
)

// RateLimitPolicy allows Max attempts per Window, counted from the first attempt.
type RateLimitPolicy struct {
	Max    int
	Window time.Duration
}

// DefaultRateLimitPolicies returns the built-in budgets.
func DefaultRateLimitPolicies() map[RateAction]RateLimitPolicy {
	return map[RateAction]RateLimitPolicy{
		ActionResendVerification: {Max: 5, Window: 15 * time.Minute},
		ActionPasswordReset:      {Max: 3, Window: 15 * time.Minute},
		ActionOAuthCallback:      {Max: 10, Window: time.Minute},
		ActionLogin:              {Max: 10, Window: 15 * time.Minute},
	}
}

// RateLimiter keeps fixed-window counters per (action, identifier) in the
// key-value store. Store errors are reported so callers can fail closed.
type RateLimiter struct {
	store    port.KeyValueStore
	policies map[RateAction]RateLimitPolicy
}

// NewRateLimiter constructs a limiter. Policies missing from overrides use the defaults.
func NewRateLimiter(store port.KeyValueStore, overrides map[RateAction]RateLimitPolicy) *RateLimiter {
	policies := DefaultRateLimitPolicies()
	for action, policy := range overrides {
		if policy.Max > 0 && policy.Window > 0 {
			policies[action] = policy
		}
	}
	return &RateLimiter{store: store, policies: policies}
}

// Policy returns the budget for action.
func (l *RateLimiter) Policy(action RateAction) (RateLimitPolicy, error) {
	policy, ok := l.policies[action]
	if !ok {
		return RateLimitPolicy{}, fmt.Errorf("%w: unknown rate limit action %q", ErrInvalidInput, action)
	}
	return policy, nil
}

// IsLimited reports whether identifier has used its budget for action.
func (l *RateLimiter) IsLimited(ctx context.Context, identifier string, action RateAction) (bool, error) {
	policy, err := l.Policy(action)
	if err != nil {
		return true, err
	}
	count, err := l.count(ctx, identifier, action)
	if err != nil {
		return true, err
	}
	return count >= policy.Max, nil
}

// Record counts one attempt and returns the new count.
func (l *RateLimiter) Record(ctx context.Context, identifier string, action RateAction) (int, error) {
	policy, err := l.Policy(action)
	if err != nil {
		return 0, err
	}
	count, err := l.store.Increment(ctx, rateKey(action, identifier), policy.Window)
	if err != nil {
		return 0, transient("record rate attempt", err)
	}
	return int(count), nil
}

// Remaining returns the attempts left in the current window.
func (l *RateLimiter) Remaining(ctx context.Context, identifier string, action RateAction) (int, error) {
	policy, err := l.Policy(action)
	if err != nil {
		return 0, err
	}
	count, err := l.count(ctx, identifier, action)
	if err != nil {
		return 0, err
	}
	if remaining := policy.Max - count; remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

// RemainingSeconds returns the seconds until the window resets, or 0 when no window is open.
func (l *RateLimiter) RemainingSeconds(ctx context.Context, identifier string, action RateAction) (int, error) {
	if _, err := l.Policy(action); err != nil {
		return 0, err
	}
	ttl, ok, err := l.store.TTL(ctx, rateKey(action, identifier))
	if err != nil {
		return 0, transient("read rate window", err)
	}
	if !ok {
		return 0, nil
	}
	return ceilSeconds(ttl), nil
}

// Reset clears the counter.
func (l *RateLimiter) Reset(ctx context.Context, identifier string, action RateAction) error {
	if err := l.store.Delete(ctx, rateKey(action, identifier)); err != nil {
		return transient("reset rate counter", err)
	}
	return nil
}

// Check returns a *RateLimitExceededError when identifier is limited and a
// transient error when the state cannot be read.
func (l *RateLimiter) Check(ctx context.Context, identifier string, action RateAction) error {
	limited, err := l.IsLimited(ctx, identifier, action)
	if err != nil {
		return err
	}
	if !limited {
		return nil
	}
	seconds, err := l.RemainingSeconds(ctx, identifier, action)
	if err != nil {
		return err
	}
	return &RateLimitExceededError{Scope: string(action), RetryAfter: time.Duration(seconds) * time.Second}
}

func (l *RateLimiter) count(ctx context.Context, identifier string, action RateAction) (int, error) {
	raw, err := l.store.Get(ctx, rateKey(action, identifier))
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, transient("read rate counter", err)
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse rate counter: %w", err)
	}
	return count, nil
}

func rateKey(action RateAction, identifier string) string {
	return "ratelimit:" + string(action) + ":" + domain.NormalizeIdentifier(identifier)
}
