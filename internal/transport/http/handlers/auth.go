package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xf00889/alumnisystem-sub000/internal/core/domain"
	"github.com/xf00889/alumnisystem-sub000/internal/usecase"
)

// SessionIssuer signs the session token handed out once a flow authenticates a user.
type SessionIssuer interface {
	Issue(user domain.User) (string, time.Time, error)
}

// AuthHandler exposes the credential login endpoint.
type AuthHandler struct {
	login    *usecase.LoginFlow
	sessions SessionIssuer
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(login *usecase.LoginFlow, sessions SessionIssuer) *AuthHandler {
	return &AuthHandler{login: login, sessions: sessions}
}

// RegisterRoutes binds authentication routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/login", h.Login)
}

// Login authenticates an identifier and password.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadPayload(c)
		return
	}

	user, err := h.login.Authenticate(c.Request.Context(), req.Identifier, req.Password, c.ClientIP())
	if err != nil {
		RespondWithFlowError(c, err)
		return
	}
	respondWithSession(c, h.sessions, user, "authenticated", http.StatusOK)
}

// respondWithSession issues a session token for user. Without an issuer the
// user is returned without a token.
func respondWithSession(c *gin.Context, sessions SessionIssuer, user *domain.User, status string, code int) {
	resp := SessionResponse{Status: status, User: newUserSummary(user)}
	if sessions != nil {
		token, expiresAt, err := sessions.Issue(*user)
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "internal_error", "could not issue session"))
			return
		}
		resp.AccessToken = token
		resp.TokenType = "Bearer"
		resp.ExpiresAt = expiresAt
	}
	c.JSON(code, resp)
}
