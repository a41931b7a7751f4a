package domain

import (
	"strings"
	"time"
)

// unusablePasswordPrefix marks a stored hash that can never verify (social-only
// accounts and administratively disabled passwords).
const unusablePasswordPrefix = "!"

// User mirrors the persisted representation in the users table.
type User struct {
	ID           string
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	IsActive     bool
	IsStaff      bool
	IsSuperuser  bool
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

// HasUsablePassword reports whether the account carries a hash that a password can match.
func (u User) HasUsablePassword() bool {
	return u.PasswordHash != "" && !strings.HasPrefix(u.PasswordHash, unusablePasswordPrefix)
}

// DisplayName is the first name when known, otherwise the username.
func (u User) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName); name != "" {
		return name
	}
	return u.Username
}

// SocialBinding links an external identity to a local user. (Provider, ProviderUID) is unique.
type SocialBinding struct {
	ID          string
	Provider    string
	ProviderUID string
	UserID      string
	CreatedAt   time.Time
}

// NormalizeEmail lowercases and trims an email for comparisons and key derivation.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeIdentifier lowercases and trims a submitted login identifier.
func NormalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
