package security

import (
	"strings"
	"testing"
)

func TestGenerateNumericCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		code, err := GenerateNumericCode(6)
		if err != nil {
			t.Fatalf("GenerateNumericCode returned error: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		if strings.Trim(code, "0123456789") != "" {
			t.Fatalf("expected only digits, got %q", code)
		}
		seen[code] = struct{}{}
	}
	if len(seen) < 45 {
		t.Fatalf("expected mostly distinct codes, got %d distinct of 50", len(seen))
	}
}

func TestGenerateNumericCodeRejectsNonPositiveLength(t *testing.T) {
	if _, err := GenerateNumericCode(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestSecureRandomToken(t *testing.T) {
	token, err := SecureRandom{}.Token(32)
	if err != nil {
		t.Fatalf("Token returned error: %v", err)
	}
	if len(token) != 43 {
		t.Fatalf("expected 43 base64url characters, got %d", len(token))
	}
	if HashToken(token) == HashToken(token+"x") {
		t.Fatal("expected distinct hashes")
	}
}
