package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xf00889/alumnisystem-sub000/internal/infra/security"
)

const claimsKey = "session_claims"

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, code, message string) ErrorResponse {
	return ErrorResponse{
		Error:   message,
		Code:    code,
		TraceID: GetTraceID(c),
	}
}

// SessionParser validates session tokens.
type SessionParser interface {
	Parse(raw string) (*security.SessionClaims, error)
}

// RequireSession validates the bearer session token and stores its claims.
func RequireSession(parser SessionParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		if parser == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				newErrorResponse(c, "sessions_disabled", "session tokens are not configured"))
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "unauthenticated", "missing authorization header"))
			return
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "unauthenticated", "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		claims, err := parser.Parse(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "unauthenticated", "invalid session token"))
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Set(claimsKey, claims)
		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = claims.UserID
		}

		c.Next()
	}
}

// RequireStaff rejects sessions without the staff or superuser flag. It must
// run after RequireSession.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := SessionClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "unauthenticated", "authentication required"))
			return
		}
		if !claims.Staff && !claims.Superuser {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "forbidden", "staff access required"))
			return
		}
		c.Next()
	}
}

// SessionClaims returns the claims stored by RequireSession.
func SessionClaims(c *gin.Context) (*security.SessionClaims, bool) {
	value, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*security.SessionClaims)
	return claims, ok && claims != nil
}
