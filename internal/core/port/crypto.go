package port

// PasswordPolicyValidator enforces password strength requirements. It returns
// every failed rule so callers can report all reasons at once.
type PasswordPolicyValidator interface {
	Validate(password string) []string
}

// Argon2Params captures tunable parameters for the Argon2id hashing algorithm.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
	NeedsRehash(encoded string) bool
}

// Randomness is the secure random source used for codes and tokens.
type Randomness interface {
	Digits(n int) (string, error)
	Token(byteLength int) (string, error)
}
