package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/repository"
)

const (
	defaultLockoutMaxFailed = 5
	defaultLockoutDuration  = 30 * time.Minute
	defaultLockoutWindow    = 60 * time.Minute

	lockoutCounterPrefix = "lockout:"
	lockoutFlagPrefix    = "locked:"
)

// LockoutSettings configures brute-force protection.
type LockoutSettings struct {
	MaxFailed     int
	Duration      time.Duration
	CounterWindow time.Duration
}

func (s LockoutSettings) withDefaults() LockoutSettings {
	if s.MaxFailed <= 0 {
		s.MaxFailed = defaultLockoutMaxFailed
	}
	if s.Duration <= 0 {
		s.Duration = defaultLockoutDuration
	}
	if s.CounterWindow <= 0 {
		s.CounterWindow = defaultLockoutWindow
	}
	return s
}

// LockoutService counts failed logins per identifier and locks an identifier
// once the threshold is reached inside the counter window. Counters and lock
// flags live in the key-value store and expire on their own.
type LockoutService struct {
	store    port.KeyValueStore
	users    port.UserRepository
	audit    *AuditTrail
	metrics  port.AuthMetrics
	settings LockoutSettings
	logger   *zap.Logger
	now      func() time.Time
}

// NewLockoutService constructs the service. users is optional and only used to
// mirror administrative operations onto a user's username and email.
func NewLockoutService(store port.KeyValueStore, users port.UserRepository, audit *AuditTrail, settings LockoutSettings, logger *zap.Logger) *LockoutService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LockoutService{
		store:    store,
		users:    users,
		audit:    audit,
		settings: settings.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// WithMetrics attaches a metrics recorder.
func (s *LockoutService) WithMetrics(metrics port.AuthMetrics) *LockoutService {
	s.metrics = metrics
	return s
}

// WithClock overrides the internal clock, used in tests.
func (s *LockoutService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Settings returns the effective configuration.
func (s *LockoutService) Settings() LockoutSettings {
	return s.settings
}

// Status reads the lock flag and failure counter of identifier.
func (s *LockoutService) Status(ctx context.Context, identifier string) (domain.LockoutStatus, error) {
	id := domain.NormalizeIdentifier(identifier)
	status := domain.LockoutStatus{Identifier: id}
	if id == "" {
		status.AttemptsRemaining = s.settings.MaxFailed
		return status, nil
	}

	ttl, locked, err := s.store.TTL(ctx, lockoutFlagPrefix+id)
	if err != nil {
		return status, transient("read lock flag", err)
	}
	if locked {
		status.Locked = true
		status.RemainingMinutes = ceilMinutes(ttl)
		if status.RemainingMinutes == 0 {
			status.RemainingMinutes = 1
		}
	}

	failed, err := s.failedAttempts(ctx, id)
	if err != nil {
		return status, err
	}
	status.FailedAttempts = failed
	if remaining := s.settings.MaxFailed - failed; remaining > 0 && !status.Locked {
		status.AttemptsRemaining = remaining
	}
	return status, nil
}

// RecordFailure counts a failed login for identifier and every alias. The lock
// engages once a counter reaches the threshold; NowLocked is true only for the
// call that created the lock flag.
func (s *LockoutService) RecordFailure(ctx context.Context, identifier string, aliases ...string) (domain.FailureRecord, error) {
	ids := uniqueIdentifiers(append([]string{identifier}, aliases...))
	if len(ids) == 0 {
		return domain.FailureRecord{}, fmt.Errorf("%w: identifier is required", ErrInvalidInput)
	}

	var record domain.FailureRecord
	for _, id := range ids {
		count, err := s.store.Increment(ctx, lockoutCounterPrefix+id, s.settings.CounterWindow)
		if err != nil {
			return record, transient("count failed login", err)
		}
		if int(count) > record.FailedAttempts {
			record.FailedAttempts = int(count)
		}
		if int(count) < s.settings.MaxFailed {
			continue
		}

		lockedAt := strconv.FormatInt(s.now().UTC().Unix(), 10)
		created, err := s.store.SetIfAbsent(ctx, lockoutFlagPrefix+id, lockedAt, s.settings.Duration)
		if err != nil {
			return record, transient("set lock flag", err)
		}
		if created {
			record.NowLocked = true
		}
	}

	if record.NowLocked {
		record.DurationMinutes = ceilMinutes(s.settings.Duration)
		if s.metrics != nil {
			s.metrics.ObserveLockout()
		}
	}
	return record, nil
}

// Reset deletes the counters and lock flags of every identifier.
func (s *LockoutService) Reset(ctx context.Context, identifiers ...string) error {
	ids := uniqueIdentifiers(identifiers)
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids)*2)
	for _, id := range ids {
		keys = append(keys, lockoutCounterPrefix+id, lockoutFlagPrefix+id)
	}
	if err := s.store.Delete(ctx, keys...); err != nil {
		return transient("reset lockout", err)
	}
	return nil
}

// ForceUnlock resets identifier and, when it resolves to a user, the user's
// username and email. It is audited even when nothing was locked.
func (s *LockoutService) ForceUnlock(ctx context.Context, identifier, actor string) (domain.LockoutStatus, error) {
	id := domain.NormalizeIdentifier(identifier)
	if id == "" {
		return domain.LockoutStatus{}, fmt.Errorf("%w: identifier is required", ErrInvalidInput)
	}

	before, err := s.Status(ctx, id)
	if err != nil {
		return domain.LockoutStatus{}, err
	}

	user := s.resolveUser(ctx, id)
	targets := []string{id}
	if user != nil {
		targets = append(targets, user.Username, user.Email)
	}

	if err := s.Reset(ctx, targets...); err != nil {
		return domain.LockoutStatus{}, err
	}

	s.audit.Record(ctx, AuditEntry{
		Kind:    domain.EventAccountUnlocked,
		Subject: id,
		UserID:  userIDOf(user),
		Details: map[string]any{
			"actor":           actor,
			"was_locked":      before.Locked,
			"failed_attempts": before.FailedAttempts,
			"identifiers":     uniqueIdentifiers(targets),
		},
	})
	return before, nil
}

// Inspect is Status for operators; the query is audited.
func (s *LockoutService) Inspect(ctx context.Context, identifier, actor string) (domain.LockoutStatus, error) {
	status, err := s.Status(ctx, identifier)
	if err != nil {
		return status, err
	}
	s.audit.Record(ctx, AuditEntry{
		Kind:    domain.EventLockoutStatusQueried,
		Subject: status.Identifier,
		Details: map[string]any{"actor": actor, "locked": status.Locked},
	})
	return status, nil
}

// ListLocked enumerates every identifier with a live lock flag, resolving users
// when possible. Identifiers of the same user are collapsed into one row.
func (s *LockoutService) ListLocked(ctx context.Context, actor string) ([]domain.LockedAccount, error) {
	keys, err := s.store.Keys(ctx, lockoutFlagPrefix)
	if err != nil {
		return nil, transient("list lock flags", err)
	}

	byUser := make(map[string]int)
	accounts := make([]domain.LockedAccount, 0, len(keys))
	for _, key := range keys {
		id := strings.TrimPrefix(key, lockoutFlagPrefix)
		status, err := s.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		if !status.Locked {
			continue
		}

		account := domain.LockedAccount{
			Identifier:       id,
			RemainingMinutes: status.RemainingMinutes,
			FailedAttempts:   status.FailedAttempts,
		}
		if user := s.resolveUser(ctx, id); user != nil {
			if idx, seen := byUser[user.ID]; seen {
				if account.RemainingMinutes > accounts[idx].RemainingMinutes {
					accounts[idx].RemainingMinutes = account.RemainingMinutes
				}
				continue
			}
			account.UserID = user.ID
			account.Username = user.Username
			account.Email = user.Email
			byUser[user.ID] = len(accounts)
		}
		accounts = append(accounts, account)
	}

	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Identifier < accounts[j].Identifier })

	s.audit.Record(ctx, AuditEntry{
		Kind:    domain.EventLockedAccountsListed,
		Subject: actor,
		Details: map[string]any{"actor": actor, "count": len(accounts)},
	})
	return accounts, nil
}

func (s *LockoutService) failedAttempts(ctx context.Context, id string) (int, error) {
	raw, err := s.store.Get(ctx, lockoutCounterPrefix+id)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, transient("read failure counter", err)
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("parse failure counter: %w", err)
	}
	return count, nil
}

func (s *LockoutService) resolveUser(ctx context.Context, id string) *domain.User {
	if s.users == nil {
		return nil
	}
	var (
		user *domain.User
		err  error
	)
	if strings.Contains(id, "@") {
		user, err = s.users.GetByEmail(ctx, id)
	} else {
		user, err = s.users.GetByUsernameOrEmail(ctx, id)
	}
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("resolve locked identifier failed", zap.Error(err))
		}
		return nil
	}
	return user
}

func uniqueIdentifiers(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		id := domain.NormalizeIdentifier(v)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
