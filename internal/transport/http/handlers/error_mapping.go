package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xf00889/alumnisystem-sub000/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Code    string
	Message string
}

// flowErrorCases covers the sentinel results shared by every flow.
var flowErrorCases = []ErrorCase{
	{Err: usecase.ErrInvalidInput, Status: http.StatusBadRequest, Code: "invalid_input", Message: "invalid request"},
	{Err: usecase.ErrAlreadyExists, Status: http.StatusConflict, Code: "already_exists", Message: "an account with this email or username already exists"},
	{Err: usecase.ErrInvalidCredentials, Status: http.StatusUnauthorized, Code: "invalid_credentials", Message: "invalid username or password"},
	{Err: usecase.ErrCodeExpired, Status: http.StatusBadRequest, Code: "code_expired", Message: "the code has expired, request a new one"},
	{Err: usecase.ErrCodeExhausted, Status: http.StatusBadRequest, Code: "code_exhausted", Message: "too many wrong codes, request a new one"},
	{Err: usecase.ErrResetTokenInvalid, Status: http.StatusBadRequest, Code: "reset_token_invalid", Message: "the reset session is invalid or expired"},
	{Err: usecase.ErrProviderEmailMissing, Status: http.StatusBadRequest, Code: "provider_email_missing", Message: "the provider did not share an email address"},
	{Err: usecase.ErrDuplicateBindingConflict, Status: http.StatusConflict, Code: "duplicate_binding", Message: "this account is already linked to another identity of the provider"},
	{Err: usecase.ErrAccountInactive, Status: http.StatusForbidden, Code: "account_inactive", Message: "this account is not active"},
	{Err: usecase.ErrTransientFailure, Status: http.StatusServiceUnavailable, Code: "temporarily_unavailable", Message: "service temporarily unavailable, try again"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Code, cs.Message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, "internal_error", fallbackMessage))
}

// RespondWithFlowError writes the response for a flow failure. Typed results
// carry their hints in details; rate limits also set Retry-After.
func RespondWithFlowError(c *gin.Context, err error) {
	_ = c.Error(err)

	var (
		weak    *usecase.WeakPasswordError
		locked  *usecase.AccountLockedError
		invalid *usecase.CodeInvalidError
		limited *usecase.RateLimitExceededError
	)
	switch {
	case errors.As(err, &weak):
		resp := NewErrorResponse(c, "weak_password", "password does not meet the requirements")
		resp.Details = map[string]any{"reasons": weak.Reasons}
		c.JSON(http.StatusBadRequest, resp)
	case errors.As(err, &locked):
		resp := NewErrorResponse(c, "account_locked", "account temporarily locked after repeated failed logins")
		resp.Details = map[string]any{"remaining_minutes": locked.RemainingMinutes}
		c.JSON(http.StatusLocked, resp)
	case errors.As(err, &invalid):
		resp := NewErrorResponse(c, "code_invalid", "the code is incorrect")
		resp.Details = map[string]any{"remaining_attempts": invalid.RemainingAttempts}
		c.JSON(http.StatusBadRequest, resp)
	case errors.As(err, &limited):
		seconds := limited.RetryAfterSeconds()
		c.Header("Retry-After", strconv.Itoa(seconds))
		resp := NewErrorResponse(c, "rate_limited", "too many requests, try again later")
		resp.Details = map[string]any{"scope": limited.Scope, "retry_after_seconds": seconds}
		c.JSON(http.StatusTooManyRequests, resp)
	default:
		RespondWithMappedError(c, err, flowErrorCases, http.StatusInternalServerError, "internal server error")
	}
}

func respondBadPayload(c *gin.Context) {
	c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid_payload", "invalid request payload"))
}
