package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	uuid "github.com/google/uuid"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
)

// ErrSessionSecretMissing indicates the signing secret was not configured.
var ErrSessionSecretMissing = errors.New("jwt: session secret not configured")

// ErrInvalidSessionToken is returned for tokens that fail parsing or validation.
var ErrInvalidSessionToken = errors.New("jwt: invalid session token")

const (
	defaultSessionTTL = 12 * time.Hour
	minSecretLength   = 32
)

// SessionClaims are carried by the session token handed out after a flow
// authenticates a user.
type SessionClaims struct {
	UserID    string `json:"uid"`
	Username  string `json:"usr"`
	Staff     bool   `json:"staff,omitempty"`
	Superuser bool   `json:"su,omitempty"`
	jwt.RegisteredClaims
}

// SessionManager signs and parses HS256 session tokens.
type SessionManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionManager validates the secret and returns a manager.
func NewSessionManager(secret, issuer string, ttl time.Duration) (*SessionManager, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrSessionSecretMissing, minSecretLength)
	}
	issuer = strings.TrimSpace(issuer)
	if issuer == "" {
		return nil, fmt.Errorf("jwt: issuer is required")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &SessionManager{secret: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// WithClock overrides the internal clock, used in tests.
func (m *SessionManager) WithClock(clock func() time.Time) {
	if clock != nil {
		m.now = clock
	}
}

// Issue signs a session token for user.
func (m *SessionManager) Issue(user domain.User) (string, time.Time, error) {
	if strings.TrimSpace(user.ID) == "" {
		return "", time.Time{}, fmt.Errorf("jwt: user id is required")
	}

	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := &SessionClaims{
		UserID:    user.ID,
		Username:  user.Username,
		Staff:     user.IsStaff,
		Superuser: user.IsSuperuser,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse validates signature, issuer and expiry and returns the claims.
func (m *SessionManager) Parse(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	return claims, nil
}
