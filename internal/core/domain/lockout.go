package domain

// LockoutStatus reports the lock state of a login identifier.
type LockoutStatus struct {
	Identifier       string
	Locked           bool
	RemainingMinutes int
	FailedAttempts   int
	// AttemptsRemaining is the number of failures left before the lock engages.
	AttemptsRemaining int
}

// FailureRecord is returned after counting a failed login.
type FailureRecord struct {
	FailedAttempts int
	// NowLocked is true only for the failure that crossed the threshold.
	NowLocked       bool
	DurationMinutes int
}

// LockedAccount is a row of the locked accounts listing.
type LockedAccount struct {
	Identifier       string
	UserID           string
	Username         string
	Email            string
	RemainingMinutes int
	FailedAttempts   int
}
