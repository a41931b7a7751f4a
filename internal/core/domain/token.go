package domain

import "time"

// CodePurpose scopes a one-time code. The set is closed; use the constants.
type CodePurpose string

const (
	CodePurposeSignup             CodePurpose = "signup"
	CodePurposePasswordReset      CodePurpose = "password_reset"
	CodePurposeMentorReactivation CodePurpose = "mentor_reactivation"
)

// Valid reports whether p is one of the known purposes.
func (p CodePurpose) Valid() bool {
	switch p {
	case CodePurposeSignup, CodePurposePasswordReset, CodePurposeMentorReactivation:
		return true
	default:
		return false
	}
}

// PendingCode is the stored state of an issued code.
type PendingCode struct {
	// Nonce distinguishes reissues so attempt counters never carry over.
	Nonce       string      `json:"nonce"`
	Purpose     CodePurpose `json:"purpose"`
	Email       string      `json:"email"`
	Code        string      `json:"code"`
	CreatedAt   time.Time   `json:"created_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
	MaxAttempts int         `json:"max_attempts"`
}

// CodeOutcome classifies a verification attempt.
type CodeOutcome int

const (
	CodeOK CodeOutcome = iota
	CodeExpired
	CodeInvalid
	CodeExhausted
)

func (o CodeOutcome) String() string {
	switch o {
	case CodeOK:
		return "ok"
	case CodeExpired:
		return "expired"
	case CodeInvalid:
		return "invalid"
	case CodeExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// CodeVerification is the result of checking a submitted code.
type CodeVerification struct {
	Outcome           CodeOutcome
	RemainingAttempts int
}
