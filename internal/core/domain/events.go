package domain

import "time"

// EventKind names a security event written to the audit trail.
type EventKind string

const (
	EventAccountCreation             EventKind = "account_creation"
	EventSignupRejected              EventKind = "signup_rejected"
	EventEmailVerificationSuccess    EventKind = "email_verification_success"
	EventEmailVerificationFailed     EventKind = "email_verification_failed"
	EventVerificationResent          EventKind = "verification_resent"
	EventSuccessfulLogin             EventKind = "successful_login"
	EventFailedLogin                 EventKind = "failed_login"
	EventLoginAttemptLockedAccount   EventKind = "login_attempt_locked_account"
	EventAccountLockedFailedAttempts EventKind = "account_locked_failed_attempts"
	EventAccountUnlocked             EventKind = "account_unlocked"
	EventAccountReactivated          EventKind = "account_reactivated"
	EventPasswordResetRequest        EventKind = "password_reset_request"
	EventPasswordResetCodeVerified   EventKind = "password_reset_code_verified"
	EventPasswordResetCodeFailed     EventKind = "password_reset_code_failed"
	EventPasswordResetSuccess        EventKind = "password_reset_success"
	EventPasswordResetFailed         EventKind = "password_reset_failed"
	EventRateLimited                 EventKind = "rate_limited"
	EventSocialLogin                 EventKind = "social_login"
	EventSocialAccountLinked         EventKind = "social_account_linked"
	EventSocialAccountCreated        EventKind = "social_account_created"
	EventSocialLoginRejected         EventKind = "social_login_rejected"
	EventLockoutStatusQueried        EventKind = "lockout_status_queried"
	EventLockedAccountsListed        EventKind = "locked_accounts_listed"
)

// SecurityEvent is an immutable audit record. Subject is an email or username,
// never a secret.
type SecurityEvent struct {
	ID         string
	OccurredAt time.Time
	Kind       EventKind
	Subject    string
	UserID     *string
	IPAddress  *string
	Details    map[string]any
}
