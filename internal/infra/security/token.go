package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/xf00889/alumnisystem-sub000/internal/core/port"
)

var ten = big.NewInt(10)

// GenerateNumericCode returns a random numeric string of the given length.
// Each digit is drawn uniformly from a cryptographically secure source.
func GenerateNumericCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
		digits[i] = byte('0' + n.Int64())
	}

	return string(digits), nil
}

// GenerateSecureToken returns a base64 URL-safe random string using the specified number of random bytes.
func GenerateSecureToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken calculates a SHA-256 hash of the provided value.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// SecureRandom is the crypto/rand backed port.Randomness.
type SecureRandom struct{}

func (SecureRandom) Digits(n int) (string, error) {
	return GenerateNumericCode(n)
}

func (SecureRandom) Token(byteLength int) (string, error) {
	return GenerateSecureToken(byteLength)
}

var _ port.Randomness = SecureRandom{}
