package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2Algorithm is the identifier used by hashes imported from the previous
// deployment: pbkdf2_sha256$<iterations>$<salt>$<base64 hash>.
const pbkdf2Algorithm = "pbkdf2_sha256"

func verifyPBKDF2(password, encoded string) (bool, error) {
	parts := strings.SplitN(encoded, "$", 4)
	if len(parts) != 4 || parts[0] != pbkdf2Algorithm {
		return false, errInvalidHashFormat
	}

	iterations, err := strconv.Atoi(parts[1])
	if err != nil || iterations <= 0 {
		return false, fmt.Errorf("pbkdf2: invalid iterations %q", parts[1])
	}

	expected, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return false, fmt.Errorf("pbkdf2: decode hash: %w", err)
	}
	if len(expected) == 0 {
		return false, errInvalidHashFormat
	}

	computed := pbkdf2.Key([]byte(password), []byte(parts[2]), iterations, len(expected), sha256.New)
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func isBcryptHash(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$") ||
		strings.HasPrefix(encoded, "bcrypt$")
}

func verifyBcrypt(password, encoded string) (bool, error) {
	encoded = strings.TrimPrefix(encoded, "bcrypt$")
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("bcrypt: %w", err)
	}
}
