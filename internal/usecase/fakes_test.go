package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/security"
	"github.com/xf00889/alumnisystem-sub000/internal/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// memoryStore is a KeyValueStore with expirations driven by a fake clock.
type memoryStore struct {
	mu      sync.Mutex
	clock   *fakeClock
	entries map[string]memoryEntry
	err     error

	// deleteErr fails Delete only, leaving reads and compare-and-delete working.
	deleteErr error
}

func newMemoryStore(clock *fakeClock) *memoryStore {
	return &memoryStore{clock: clock, entries: make(map[string]memoryEntry)}
}

func (s *memoryStore) live(key string) (memoryEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.IsZero() && !s.clock.Now().Before(entry.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

func (s *memoryStore) fail() error {
	if s.err != nil {
		return fmt.Errorf("%w: %w", repository.ErrStoreUnavailable, s.err)
	}
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return "", err
	}
	entry, ok := s.live(key)
	if !ok {
		return "", repository.ErrNotFound
	}
	return entry.value, nil
}

func (s *memoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: s.clock.Now().Add(ttl)}
	return nil
}

func (s *memoryStore) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return false, err
	}
	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: s.clock.Now().Add(ttl)}
	return true, nil
}

func (s *memoryStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return err
	}
	if s.deleteErr != nil {
		return fmt.Errorf("%w: %w", repository.ErrStoreUnavailable, s.deleteErr)
	}
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

func (s *memoryStore) Increment(_ context.Context, key string, ttlOnCreate time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return 0, err
	}
	entry, ok := s.live(key)
	if !ok {
		entry = memoryEntry{value: "0", expiresAt: s.clock.Now().Add(ttlOnCreate)}
	}
	n, _ := strconv.ParseInt(entry.value, 10, 64)
	n++
	entry.value = strconv.FormatInt(n, 10)
	s.entries[key] = entry
	return n, nil
}

func (s *memoryStore) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return 0, false, err
	}
	entry, ok := s.live(key)
	if !ok {
		return 0, false, nil
	}
	return entry.expiresAt.Sub(s.clock.Now()), true, nil
}

func (s *memoryStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return false, err
	}
	entry, ok := s.live(key)
	if !ok || entry.value != expected {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

func (s *memoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(); err != nil {
		return nil, err
	}
	var keys []string
	for k := range s.entries {
		if _, ok := s.live(k); ok && strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *memoryStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.live(key)
	return ok
}

type fakeUsers struct {
	mu       sync.Mutex
	clock    *fakeClock
	byID     map[string]*domain.User
	bindings []domain.SocialBinding
	nextID   int
	updates  []port.UserFieldUpdate
	err      error

	// updateErr fails UpdateFields only.
	updateErr error
}

func newFakeUsers(clock *fakeClock) *fakeUsers {
	return &fakeUsers{clock: clock, byID: make(map[string]*domain.User)}
}

func (r *fakeUsers) add(u domain.User) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u.ID == "" {
		r.nextID++
		u.ID = fmt.Sprintf("user-%d", r.nextID)
	}
	stored := u
	r.byID[u.ID] = &stored
	cp := stored
	return &cp
}

func (r *fakeUsers) get(id string) domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.byID[id]
}

func (r *fakeUsers) find(match func(*domain.User) bool) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	for _, u := range r.byID {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUsers) Create(_ context.Context, in port.NewUser) (*domain.User, error) {
	if _, err := r.find(func(u *domain.User) bool {
		return strings.EqualFold(u.Email, in.Email) || strings.EqualFold(u.Username, in.Username)
	}); err == nil {
		return nil, repository.ErrConflict
	}
	return r.add(domain.User{
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: in.PasswordHash,
		IsActive:     in.IsActive,
		CreatedAt:    r.clock.Now(),
	}), nil
}

func (r *fakeUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.ID == id })
}

func (r *fakeUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *fakeUsers) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return strings.EqualFold(u.Username, username) })
}

func (r *fakeUsers) GetByUsernameOrEmail(_ context.Context, identifier string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool {
		return strings.EqualFold(u.Username, identifier) || strings.EqualFold(u.Email, identifier)
	})
}

func (r *fakeUsers) UpdateFields(_ context.Context, id string, fields port.UserFieldUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if r.updateErr != nil {
		return r.updateErr
	}
	u, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.updates = append(r.updates, fields)
	if fields.IsActive != nil {
		u.IsActive = *fields.IsActive
	}
	if fields.PasswordHash != nil {
		u.PasswordHash = *fields.PasswordHash
	}
	if fields.LastLoginAt != nil {
		at := *fields.LastLoginAt
		u.LastLoginAt = &at
	}
	return nil
}

func (r *fakeUsers) GetSocialBinding(_ context.Context, provider, providerUID string) (*domain.SocialBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bindings {
		if b.Provider == provider && b.ProviderUID == providerUID {
			cp := b
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakeUsers) CreateSocialBinding(_ context.Context, binding domain.SocialBinding) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bindings {
		if b.Provider == binding.Provider && b.ProviderUID == binding.ProviderUID {
			return repository.ErrConflict
		}
	}
	r.bindings = append(r.bindings, binding)
	return nil
}

func (r *fakeUsers) ListSocialBindings(_ context.Context, userID, provider string) ([]domain.SocialBinding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SocialBinding
	for _, b := range r.bindings {
		if b.UserID == userID && b.Provider == provider {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeUsers) InTx(_ context.Context, fn func(port.UserRepository) error) error {
	return fn(r)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []port.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg port.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *recordingMailer) last() port.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[len(m.sent)-1]
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.SecurityEvent
	err    error
}

func (s *recordingSink) Log(_ context.Context, event domain.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return s.err
}

func (s *recordingSink) kinds() []domain.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.EventKind, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Kind)
	}
	return out
}

func (s *recordingSink) last() domain.SecurityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events[len(s.events)-1]
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

// fakeHasher is a cheap deterministic hasher; "legacy:" hashes need a rehash.
// Like the argon2 hasher it returns at once for unusable hashes, so work()
// shows which paths skip the key derivation.
type fakeHasher struct {
	mu       sync.Mutex
	hashes   int
	verifies int
}

func (h *fakeHasher) Hash(password string) (string, error) {
	h.mu.Lock()
	h.hashes++
	h.mu.Unlock()
	return "hashed:" + password, nil
}

func (h *fakeHasher) Verify(password, encoded string) (bool, error) {
	if encoded == "" || strings.HasPrefix(encoded, "!") {
		return false, nil
	}
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return encoded == "hashed:"+password || encoded == "legacy:"+password, nil
}

func (h *fakeHasher) NeedsRehash(encoded string) bool {
	return strings.HasPrefix(encoded, "legacy:")
}

func (h *fakeHasher) hashCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hashes
}

// work counts key derivations: hashes plus verifications of real hashes.
func (h *fakeHasher) work() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hashes + h.verifies
}

// sequenceRandom hands out queued codes, then falls back to real randomness.
type sequenceRandom struct {
	mu     sync.Mutex
	codes  []string
	tokens int
}

func (r *sequenceRandom) Digits(n int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.codes) > 0 {
		code := r.codes[0]
		r.codes = r.codes[1:]
		return code, nil
	}
	return security.GenerateNumericCode(n)
}

func (r *sequenceRandom) Token(int) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens++
	return fmt.Sprintf("token-%d", r.tokens), nil
}

type harness struct {
	clock   *fakeClock
	store   *memoryStore
	users   *fakeUsers
	mailer  *recordingMailer
	sink    *recordingSink
	hasher  *fakeHasher
	random  *sequenceRandom
	deps    Dependencies
	signup  *SignupFlow
	login   *LoginFlow
	reset   *PasswordResetFlow
	social  *SocialReconciliation
	lockout *LockoutService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	clock := newFakeClock()
	h := &harness{
		clock:  clock,
		store:  newMemoryStore(clock),
		users:  newFakeUsers(clock),
		mailer: &recordingMailer{},
		sink:   &recordingSink{},
		hasher: &fakeHasher{},
		random: &sequenceRandom{},
	}

	log := zaptest.NewLogger(t)
	audit := NewAuditTrail(h.sink, log)
	audit.WithClock(clock.Now)

	codes := NewCodeService(h.store, h.random, CodeSettings{}, log)
	codes.WithClock(clock.Now)

	h.lockout = NewLockoutService(h.store, h.users, audit, LockoutSettings{}, log)
	h.lockout.WithClock(clock.Now)

	h.deps = Dependencies{
		Users:     h.users,
		Store:     h.store,
		Hasher:    h.hasher,
		Validator: security.DefaultPasswordValidator(8),
		Mailer:    h.mailer,
		Random:    h.random,
		Audit:     audit,
		Codes:     codes,
		Limiter:   NewRateLimiter(h.store, nil),
		Lockout:   h.lockout,
		Logger:    log,
		Now:       clock.Now,
	}

	h.signup = NewSignupFlow(h.deps)
	h.login = NewLoginFlow(h.deps, LoginOptions{AutoReactivate: true})
	h.reset = NewPasswordResetFlow(h.deps, 0)
	h.social = NewSocialReconciliation(h.deps)
	return h
}

// activeUser stores an active user with password hashed by the fake hasher.
func (h *harness) activeUser(username, email, password string) *domain.User {
	return h.users.add(domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: "hashed:" + password,
		IsActive:     true,
		CreatedAt:    h.clock.Now(),
	})
}

// codeFrom extracts the six digit code from the last mail.
func (h *harness) codeFrom(t *testing.T) string {
	t.Helper()
	body := h.mailer.last().PlainBody
	idx := strings.Index(body, "Code: ")
	if idx < 0 {
		t.Fatalf("no code in mail body: %q", body)
	}
	return body[idx+6 : idx+12]
}
