package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	TraceID string         `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, code, message string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   message,
		Code:    code,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// UserSummary describes a minimal view of a user returned by the API.
type UserSummary struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	IsActive  bool   `json:"is_active"`
	IsStaff   bool   `json:"is_staff,omitempty"`
}

func newUserSummary(u *domain.User) UserSummary {
	return UserSummary{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsActive:  u.IsActive,
		IsStaff:   u.IsStaff || u.IsSuperuser,
	}
}

// SessionResponse is returned by every flow step that ends authenticated.
type SessionResponse struct {
	Status      string      `json:"status"`
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        UserSummary `json:"user"`
}

// SignupRequest is the registration form.
type SignupRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Username  string `json:"username" binding:"required,max=150"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name" binding:"max=150"`
	LastName  string `json:"last_name" binding:"max=150"`
}

// SignupResponse reports a registration waiting for email verification.
type SignupResponse struct {
	Status    string    `json:"status"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EmailCodeRequest carries an email and the code mailed to it.
type EmailCodeRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// EmailRequest carries a bare email address.
type EmailRequest struct {
	Email string `json:"email" binding:"required"`
}

// LoginRequest defines the payload for the login endpoint.
type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// ResetTokenResponse carries the token that authorizes the final reset step.
type ResetTokenResponse struct {
	Status     string `json:"status"`
	ResetToken string `json:"reset_token"`
	ExpiresIn  int    `json:"expires_in"`
}

// ResetConfirmRequest sets the new password.
type ResetConfirmRequest struct {
	Email       string `json:"email" binding:"required"`
	ResetToken  string `json:"reset_token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// SocialCallbackRequest is the identity asserted by the OAuth front end.
type SocialCallbackRequest struct {
	ProviderUID string `json:"provider_uid" binding:"required"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
}

// LockoutStatusResponse reports the lock state of one identifier.
type LockoutStatusResponse struct {
	Identifier        string `json:"identifier"`
	Locked            bool   `json:"locked"`
	RemainingMinutes  int    `json:"remaining_minutes"`
	FailedAttempts    int    `json:"failed_attempts"`
	AttemptsRemaining int    `json:"attempts_remaining"`
}

func newLockoutStatusResponse(s domain.LockoutStatus) LockoutStatusResponse {
	return LockoutStatusResponse{
		Identifier:        s.Identifier,
		Locked:            s.Locked,
		RemainingMinutes:  s.RemainingMinutes,
		FailedAttempts:    s.FailedAttempts,
		AttemptsRemaining: s.AttemptsRemaining,
	}
}

// LockedAccountResponse is one row of the locked accounts listing.
type LockedAccountResponse struct {
	Identifier       string `json:"identifier"`
	UserID           string `json:"user_id,omitempty"`
	Username         string `json:"username,omitempty"`
	Email            string `json:"email,omitempty"`
	RemainingMinutes int    `json:"remaining_minutes"`
	FailedAttempts   int    `json:"failed_attempts"`
}

// LockedAccountsResponse lists locked identifiers.
type LockedAccountsResponse struct {
	Accounts []LockedAccountResponse `json:"accounts"`
	Count    int                     `json:"count"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports the state of each dependency.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
