package usecase

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/repository"
)

const (
	defaultCodeLength      = 6
	defaultCodeTTL         = 15 * time.Minute
	defaultCodeMaxAttempts = 3
	codeNonceBytes         = 12
)

// CodeSettings configures issued codes.
type CodeSettings struct {
	Length      int
	TTL         time.Duration
	MaxAttempts int
}

func (s CodeSettings) withDefaults() CodeSettings {
	if s.Length <= 0 {
		s.Length = defaultCodeLength
	}
	if s.TTL <= 0 {
		s.TTL = defaultCodeTTL
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = defaultCodeMaxAttempts
	}
	return s
}

// CodeService issues and verifies short numeric codes per (purpose, email).
// The record lives at code:<purpose>:<email>; failed attempts are counted in a
// sibling key tied to the record nonce.
type CodeService struct {
	store    port.KeyValueStore
	random   port.Randomness
	settings CodeSettings
	logger   *zap.Logger
	now      func() time.Time
}

// NewCodeService constructs a code service.
func NewCodeService(store port.KeyValueStore, random port.Randomness, settings CodeSettings, logger *zap.Logger) *CodeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CodeService{
		store:    store,
		random:   random,
		settings: settings.withDefaults(),
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *CodeService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Settings returns the effective configuration.
func (s *CodeService) Settings() CodeSettings {
	return s.settings
}

// Issue creates a code with the default lifetime, replacing any live one.
func (s *CodeService) Issue(ctx context.Context, email string, purpose domain.CodePurpose) (string, error) {
	return s.IssueWithTTL(ctx, email, purpose, s.settings.TTL)
}

// IssueWithTTL creates a code that expires ttl after now.
func (s *CodeService) IssueWithTTL(ctx context.Context, email string, purpose domain.CodePurpose, ttl time.Duration) (string, error) {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if !purpose.Valid() {
		return "", fmt.Errorf("%w: unknown code purpose %q", ErrInvalidInput, purpose)
	}
	if ttl <= 0 {
		ttl = s.settings.TTL
	}

	code, err := s.random.Digits(s.settings.Length)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	nonce, err := s.random.Token(codeNonceBytes)
	if err != nil {
		return "", fmt.Errorf("generate code nonce: %w", err)
	}

	now := s.now().UTC()
	record := domain.PendingCode{
		Nonce:       nonce,
		Purpose:     purpose,
		Email:       email,
		Code:        code,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
		MaxAttempts: s.settings.MaxAttempts,
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return "", fmt.Errorf("encode code: %w", err)
	}

	if err := s.store.Set(ctx, codeKey(purpose, email), string(payload), ttl); err != nil {
		return "", transient("store code", err)
	}

	return code, nil
}

// Verify checks submitted against the live code. Wrong or malformed input uses
// an attempt; the attempt that reaches the maximum deletes the code and yields
// CodeExhausted, after which the code reads as expired.
func (s *CodeService) Verify(ctx context.Context, email string, purpose domain.CodePurpose, submitted string) (domain.CodeVerification, error) {
	email = domain.NormalizeEmail(email)
	if email == "" || !purpose.Valid() {
		return domain.CodeVerification{Outcome: domain.CodeExpired}, nil
	}

	key := codeKey(purpose, email)
	raw, err := s.store.Get(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return domain.CodeVerification{Outcome: domain.CodeExpired}, nil
	}
	if err != nil {
		return domain.CodeVerification{}, transient("load code", err)
	}

	var record domain.PendingCode
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		s.logger.Warn("discarding unreadable code record", zap.String("purpose", string(purpose)), zap.Error(err))
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			return domain.CodeVerification{}, transient("delete code", delErr)
		}
		return domain.CodeVerification{Outcome: domain.CodeExpired}, nil
	}

	now := s.now().UTC()
	if !now.Before(record.ExpiresAt) {
		if err := s.store.Delete(ctx, key, attemptsKey(key, record.Nonce)); err != nil {
			return domain.CodeVerification{}, transient("delete code", err)
		}
		return domain.CodeVerification{Outcome: domain.CodeExpired}, nil
	}

	maxAttempts := record.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = s.settings.MaxAttempts
	}
	counter := attemptsKey(key, record.Nonce)

	used, err := s.attemptsUsed(ctx, counter)
	if err != nil {
		return domain.CodeVerification{}, err
	}
	if used >= maxAttempts {
		if err := s.store.Delete(ctx, key, counter); err != nil {
			return domain.CodeVerification{}, transient("delete code", err)
		}
		return domain.CodeVerification{Outcome: domain.CodeExpired}, nil
	}

	if wellFormedCode(submitted, len(record.Code)) &&
		subtle.ConstantTimeCompare([]byte(submitted), []byte(record.Code)) == 1 {
		consumed, err := s.store.CompareAndDelete(ctx, key, raw)
		if err != nil {
			return domain.CodeVerification{}, transient("consume code", err)
		}
		if !consumed {
			// reissued or exhausted concurrently
			return domain.CodeVerification{Outcome: domain.CodeExpired}, nil
		}
		if err := s.store.Delete(ctx, counter); err != nil {
			s.logger.Warn("delete code attempts failed", zap.String("purpose", string(purpose)), zap.Error(err))
		}
		return domain.CodeVerification{Outcome: domain.CodeOK}, nil
	}

	window := record.ExpiresAt.Sub(now)
	if window < time.Second {
		window = time.Second
	}
	count, err := s.store.Increment(ctx, counter, window)
	if err != nil {
		return domain.CodeVerification{}, transient("count code attempt", err)
	}

	if int(count) >= maxAttempts {
		if _, err := s.store.CompareAndDelete(ctx, key, raw); err != nil {
			return domain.CodeVerification{}, transient("delete code", err)
		}
		return domain.CodeVerification{Outcome: domain.CodeExhausted}, nil
	}

	return domain.CodeVerification{Outcome: domain.CodeInvalid, RemainingAttempts: maxAttempts - int(count)}, nil
}

// Invalidate removes any live code for the key.
func (s *CodeService) Invalidate(ctx context.Context, email string, purpose domain.CodePurpose) error {
	if err := s.store.Delete(ctx, codeKey(purpose, domain.NormalizeEmail(email))); err != nil {
		return transient("delete code", err)
	}
	return nil
}

func (s *CodeService) attemptsUsed(ctx context.Context, counter string) (int, error) {
	raw, err := s.store.Get(ctx, counter)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, transient("load code attempts", err)
	}
	used, err := strconv.Atoi(raw)
	if err != nil {
		return 0, nil
	}
	return used, nil
}

// codeError maps a non-OK verification to the error returned by the flows.
func codeError(result domain.CodeVerification) error {
	switch result.Outcome {
	case domain.CodeOK:
		return nil
	case domain.CodeInvalid:
		return &CodeInvalidError{RemainingAttempts: result.RemainingAttempts}
	case domain.CodeExhausted:
		return ErrCodeExhausted
	default:
		return ErrCodeExpired
	}
}

func wellFormedCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}

func codeKey(purpose domain.CodePurpose, email string) string {
	return "code:" + string(purpose) + ":" + email
}

func attemptsKey(codeKey, nonce string) string {
	return codeKey + ":attempts:" + nonce
}
