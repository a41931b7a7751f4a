package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/app"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/config"
	"github.com/xf00889/alumnisystem-sub000/internal/infra/security"
	"github.com/xf00889/alumnisystem-sub000/internal/repository"
	redisrepo "github.com/xf00889/alumnisystem-sub000/internal/repository/redis"
	httproutes "github.com/xf00889/alumnisystem-sub000/internal/transport/http/routes"
)

const socialSecret = "front-end-shared-secret"

type memUsers struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	bindings []domain.SocialBinding
	seq      int
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[string]*domain.User{}}
}

func (m *memUsers) find(match func(*domain.User) bool) (*domain.User, error) {
	for _, u := range m.users {
		if match(u) {
			copied := *u
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) Create(_ context.Context, in port.NewUser) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, in.Email) || strings.EqualFold(u.Username, in.Username) {
			return nil, repository.ErrConflict
		}
	}
	m.seq++
	u := &domain.User{
		ID:           fmt.Sprintf("user-%d", m.seq),
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: in.PasswordHash,
		IsActive:     in.IsActive,
		CreatedAt:    time.Now().UTC(),
	}
	m.users[u.ID] = u
	copied := *u
	return &copied, nil
}

func (m *memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(u *domain.User) bool { return u.ID == id })
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(u *domain.User) bool { return strings.EqualFold(u.Email, email) })
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.find(func(u *domain.User) bool { return strings.EqualFold(u.Username, username) })
}

func (m *memUsers) GetByUsernameOrEmail(ctx context.Context, identifier string) (*domain.User, error) {
	if u, err := m.GetByUsername(ctx, identifier); err == nil {
		return u, nil
	}
	return m.GetByEmail(ctx, identifier)
}

func (m *memUsers) UpdateFields(_ context.Context, id string, fields port.UserFieldUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrNotFound
	}
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

func (m *memUsers) GetSocialBinding(_ context.Context, provider, uid string) (*domain.SocialBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bindings {
		if b.Provider == provider && b.ProviderUID == uid {
			copied := b
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memUsers) CreateSocialBinding(_ context.Context, binding domain.SocialBinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.bindings {
		if b.Provider == binding.Provider && (b.ProviderUID == binding.ProviderUID || b.UserID == binding.UserID) {
			return repository.ErrConflict
		}
	}
	m.bindings = append(m.bindings, binding)
	return nil
}

func (m *memUsers) ListSocialBindings(_ context.Context, userID, provider string) ([]domain.SocialBinding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SocialBinding
	for _, b := range m.bindings {
		if b.UserID == userID && b.Provider == provider {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memUsers) InTx(_ context.Context, fn func(port.UserRepository) error) error {
	return fn(m)
}

func (m *memUsers) promote(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			u.IsStaff = true
		}
	}
}

type inbox struct {
	mu   sync.Mutex
	msgs []port.Message
}

func (i *inbox) Send(_ context.Context, msg port.Message) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.msgs = append(i.msgs, msg)
	return nil
}

var codePattern = regexp.MustCompile(`Code: (\d{6})`)

func (i *inbox) lastCode(t *testing.T) string {
	t.Helper()
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.msgs) == 0 {
		t.Fatal("no mail sent")
	}
	match := codePattern.FindStringSubmatch(i.msgs[len(i.msgs)-1].PlainBody)
	if match == nil {
		t.Fatalf("no code in mail body: %q", i.msgs[len(i.msgs)-1].PlainBody)
	}
	return match[1]
}

type testServer struct {
	engine *gin.Engine
	users  *memUsers
	inbox  *inbox
	redis  *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.AppConfig{
		App:    config.AppSettings{Name: "alumni-auth", Env: "test"},
		Auth:   config.AuthSettings{AutoReactivateOnLogin: true, PasswordMinLength: 8},
		Argon2: config.Argon2Settings{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
		Social: config.SocialSettings{AssertionSecret: socialSecret},
	}

	users := newMemUsers()
	mails := &inbox{}
	log := zaptest.NewLogger(t)

	core, err := app.BuildCore(cfg, app.CoreDeps{
		Users:  users,
		Store:  redisrepo.NewKVStore(client, "test"),
		Mailer: mails,
		Logger: log,
	})
	if err != nil {
		t.Fatalf("BuildCore returned error: %v", err)
	}

	sessions, err := security.NewSessionManager("0123456789abcdef0123456789abcdef", "alumni-auth", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionManager returned error: %v", err)
	}

	engine := httproutes.Register(httproutes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Sessions: sessions,
		Gatherer: prometheus.NewRegistry(),
		Flows: httproutes.FlowSet{
			Signup:        core.Signup,
			Login:         core.Login,
			PasswordReset: core.PasswordReset,
			Social:        core.Social,
			Lockout:       core.Lockout,
		},
	})
	return &testServer{engine: engine, users: users, inbox: mails, redis: mr}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.7:40000"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	s.engine.ServeHTTP(rr, req)

	decoded := map[string]any{}
	if rr.Body.Len() > 0 {
		_ = json.Unmarshal(rr.Body.Bytes(), &decoded)
	}
	return rr, decoded
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rr, _ := s.do(t, http.MethodGet, "/healthz", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	rr, _ = s.do(t, http.MethodGet, "/readyz", nil, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected readiness 200 without checks, got %d", rr.Code)
	}
}

func TestSignupVerifyAndLogin(t *testing.T) {
	s := newTestServer(t)

	rr, body := s.do(t, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"email":    "Alice@Example.edu",
		"username": "alice",
		"password": "Str0ng!Pass",
	}, nil)
	if rr.Code != http.StatusAccepted || body["status"] != "pending_verification" {
		t.Fatalf("unexpected signup response: %d %v", rr.Code, body)
	}

	rr, body = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"identifier": "alice",
		"password":   "Str0ng!Pass",
	}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("inactive user with usable password is reactivated on login, got %d %v", rr.Code, body)
	}

	rr, body = s.do(t, http.MethodPost, "/api/v1/auth/signup/verify", map[string]string{
		"email": "alice@example.edu",
		"code":  s.inbox.lastCode(t),
	}, nil)
	if rr.Code != http.StatusOK || body["status"] != "activated" {
		t.Fatalf("unexpected verify response: %d %v", rr.Code, body)
	}
	if token, _ := body["access_token"].(string); token == "" {
		t.Fatalf("expected session token, got %v", body)
	}
}

func TestSignupRejectsWeakPassword(t *testing.T) {
	s := newTestServer(t)

	rr, body := s.do(t, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"email":    "bob@example.edu",
		"username": "bob",
		"password": "short",
	}, nil)
	if rr.Code != http.StatusBadRequest || body["code"] != "weak_password" {
		t.Fatalf("unexpected response: %d %v", rr.Code, body)
	}
	details, _ := body["details"].(map[string]any)
	if reasons, _ := details["reasons"].([]any); len(reasons) == 0 {
		t.Fatalf("expected reasons, got %v", body)
	}
}

func TestLoginLockoutAndStaffUnlock(t *testing.T) {
	s := newTestServer(t)

	for _, u := range []map[string]string{
		{"email": "carol@example.edu", "username": "carol", "password": "Str0ng!Pass"},
		{"email": "registrar@example.edu", "username": "registrar", "password": "Adm1n!Pass"},
	} {
		if rr, body := s.do(t, http.MethodPost, "/api/v1/auth/signup", u, nil); rr.Code != http.StatusAccepted {
			t.Fatalf("signup failed: %d %v", rr.Code, body)
		}
	}
	s.users.promote("registrar")

	for i := 1; i <= 4; i++ {
		rr, body := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"identifier": "carol", "password": "wrong"}, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d %v", i, rr.Code, body)
		}
	}
	rr, body := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"identifier": "carol", "password": "wrong"}, nil)
	if rr.Code != http.StatusLocked || body["code"] != "account_locked" {
		t.Fatalf("expected 423 on fifth failure, got %d %v", rr.Code, body)
	}

	rr, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"identifier": "carol", "password": "Str0ng!Pass"}, nil)
	if rr.Code != http.StatusLocked {
		t.Fatalf("correct password while locked must stay locked, got %d", rr.Code)
	}

	if rr, _ := s.do(t, http.MethodGet, "/api/v1/admin/lockouts", nil, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without session, got %d", rr.Code)
	}

	rr, body = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"identifier": "registrar", "password": "Adm1n!Pass"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("staff login failed: %d %v", rr.Code, body)
	}
	auth := map[string]string{"Authorization": "Bearer " + body["access_token"].(string)}

	rr, body = s.do(t, http.MethodGet, "/api/v1/admin/lockouts", nil, auth)
	if rr.Code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("expected one locked account, got %d %v", rr.Code, body)
	}

	rr, body = s.do(t, http.MethodGet, "/api/v1/admin/lockouts/carol", nil, auth)
	if rr.Code != http.StatusOK || body["locked"] != true || body["remaining_minutes"] != float64(30) {
		t.Fatalf("unexpected status: %d %v", rr.Code, body)
	}

	if rr, _ := s.do(t, http.MethodDelete, "/api/v1/admin/lockouts/carol", nil, auth); rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 on unlock, got %d", rr.Code)
	}

	rr, body = s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"identifier": "carol", "password": "Str0ng!Pass"}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected login after unlock, got %d %v", rr.Code, body)
	}
}

func TestResendForUnknownEmailSendsNothing(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 6; i++ {
		if rr, body := s.do(t, http.MethodPost, "/api/v1/auth/signup/resend", map[string]string{"email": "nobody@example.edu"}, nil); rr.Code != http.StatusAccepted {
			t.Fatalf("resend %d: expected 202, got %d %v", i+1, rr.Code, body)
		}
	}
	s.inbox.mu.Lock()
	defer s.inbox.mu.Unlock()
	if len(s.inbox.msgs) != 0 {
		t.Fatalf("no mail may be sent for unknown addresses, got %d", len(s.inbox.msgs))
	}
}

func TestPasswordResetRequestRateLimited(t *testing.T) {
	s := newTestServer(t)

	if rr, body := s.do(t, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"email": "frank@example.edu", "username": "frank", "password": "Str0ng!Pass",
	}, nil); rr.Code != http.StatusAccepted {
		t.Fatalf("signup failed: %d %v", rr.Code, body)
	}

	for i := 0; i < 3; i++ {
		if rr, _ := s.do(t, http.MethodPost, "/api/v1/auth/password/reset", map[string]string{"email": "frank@example.edu"}, nil); rr.Code != http.StatusAccepted {
			t.Fatalf("request %d: expected 202, got %d", i+1, rr.Code)
		}
	}

	rr, body := s.do(t, http.MethodPost, "/api/v1/auth/password/reset", map[string]string{"email": "frank@example.edu"}, nil)
	if rr.Code != http.StatusTooManyRequests || body["code"] != "rate_limited" {
		t.Fatalf("expected 429, got %d %v", rr.Code, body)
	}
	if rr.Header().Get("Retry-After") != "900" {
		t.Fatalf("expected Retry-After 900, got %q", rr.Header().Get("Retry-After"))
	}
}

func TestPasswordResetFlow(t *testing.T) {
	s := newTestServer(t)

	if rr, body := s.do(t, http.MethodPost, "/api/v1/auth/signup", map[string]string{
		"email": "dave@example.edu", "username": "dave", "password": "Str0ng!Pass",
	}, nil); rr.Code != http.StatusAccepted {
		t.Fatalf("signup failed: %d %v", rr.Code, body)
	}

	if rr, _ := s.do(t, http.MethodPost, "/api/v1/auth/password/reset", map[string]string{"email": "dave@example.edu"}, nil); rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rr.Code)
	}

	rr, body := s.do(t, http.MethodPost, "/api/v1/auth/password/reset/verify", map[string]string{
		"email": "dave@example.edu", "code": s.inbox.lastCode(t),
	}, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("verify failed: %d %v", rr.Code, body)
	}
	token := body["reset_token"].(string)

	rr, body = s.do(t, http.MethodPost, "/api/v1/auth/password/reset/confirm", map[string]string{
		"email": "dave@example.edu", "reset_token": token, "new_password": "N3w!Passw0rd",
	}, nil)
	if rr.Code != http.StatusOK || body["status"] != "completed" {
		t.Fatalf("confirm failed: %d %v", rr.Code, body)
	}

	rr, body = s.do(t, http.MethodPost, "/api/v1/auth/password/reset/confirm", map[string]string{
		"email": "dave@example.edu", "reset_token": token, "new_password": "An0ther!Pass",
	}, nil)
	if rr.Code != http.StatusBadRequest || body["code"] != "reset_token_invalid" {
		t.Fatalf("reset token must be single use, got %d %v", rr.Code, body)
	}

	if rr, _ := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"identifier": "dave", "password": "N3w!Passw0rd"}, nil); rr.Code != http.StatusOK {
		t.Fatalf("expected login with new password, got %d", rr.Code)
	}
}

func TestSocialCallback(t *testing.T) {
	s := newTestServer(t)
	secret := map[string]string{"X-Social-Assertion-Secret": socialSecret}
	assertion := map[string]string{"provider_uid": "g-123", "email": "erin@example.edu", "first_name": "Erin"}

	if rr, _ := s.do(t, http.MethodPost, "/api/v1/auth/social/google/callback", assertion, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", rr.Code)
	}

	rr, body := s.do(t, http.MethodPost, "/api/v1/auth/social/google/callback", assertion, secret)
	if rr.Code != http.StatusOK || body["status"] != "created" {
		t.Fatalf("unexpected first callback: %d %v", rr.Code, body)
	}

	rr, body = s.do(t, http.MethodPost, "/api/v1/auth/social/google/callback", assertion, secret)
	if rr.Code != http.StatusOK || body["status"] != "authenticated" {
		t.Fatalf("unexpected second callback: %d %v", rr.Code, body)
	}

	rr, body = s.do(t, http.MethodPost, "/api/v1/auth/social/google/callback", map[string]string{"provider_uid": "g-999"}, secret)
	if rr.Code != http.StatusBadRequest || body["code"] != "provider_email_missing" {
		t.Fatalf("expected provider_email_missing, got %d %v", rr.Code, body)
	}
}

func TestStoreOutageFailsClosed(t *testing.T) {
	s := newTestServer(t)
	s.redis.Close()

	rr, body := s.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"identifier": "carol", "password": "whatever"}, nil)
	if rr.Code != http.StatusServiceUnavailable || body["code"] != "temporarily_unavailable" {
		t.Fatalf("expected 503, got %d %v", rr.Code, body)
	}
}
