package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestSessionManagerIssueAndParse(t *testing.T) {
	mgr, err := NewSessionManager(testSecret, "alumni-auth", time.Hour)
	if err != nil {
		t.Fatalf("NewSessionManager returned error: %v", err)
	}

	token, expiresAt, err := mgr.Issue(domain.User{ID: "user-1", Username: "alice", IsStaff: true})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if time.Until(expiresAt) <= 59*time.Minute {
		t.Fatalf("unexpected expiry %v", expiresAt)
	}

	claims, err := mgr.Parse(token)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if claims.UserID != "user-1" || claims.Username != "alice" || !claims.Staff || claims.Superuser {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestSessionManagerRejectsExpiredAndTampered(t *testing.T) {
	mgr, err := NewSessionManager(testSecret, "alumni-auth", time.Minute)
	if err != nil {
		t.Fatalf("NewSessionManager returned error: %v", err)
	}

	token, _, err := mgr.Issue(domain.User{ID: "user-1"})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	other, err := NewSessionManager(strings.Repeat("z", 32), "alumni-auth", time.Minute)
	if err != nil {
		t.Fatalf("NewSessionManager returned error: %v", err)
	}
	forged, _, err := other.Issue(domain.User{ID: "user-1", IsStaff: true})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if _, err := mgr.Parse(forged); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected token signed with another secret to fail, got %v", err)
	}

	mgr.WithClock(func() time.Time { return time.Now().Add(2 * time.Minute) })
	if _, err := mgr.Parse(token); !errors.Is(err, ErrInvalidSessionToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
}

func TestNewSessionManagerRequiresSecret(t *testing.T) {
	if _, err := NewSessionManager(strings.Repeat("x", 8), "alumni-auth", time.Hour); !errors.Is(err, ErrSessionSecretMissing) {
		t.Fatalf("expected ErrSessionSecretMissing, got %v", err)
	}
}
