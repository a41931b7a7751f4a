package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xf00889/alumnisystem-sub000/internal/usecase"
)

// PasswordResetHandler exposes the three reset steps.
type PasswordResetHandler struct {
	reset    *usecase.PasswordResetFlow
	sessions SessionIssuer
	tokenTTL time.Duration
}

func NewPasswordResetHandler(reset *usecase.PasswordResetFlow, sessions SessionIssuer, tokenTTL time.Duration) *PasswordResetHandler {
	return &PasswordResetHandler{reset: reset, sessions: sessions, tokenTTL: tokenTTL}
}

// RegisterRoutes binds the reset routes under r.
func (h *PasswordResetHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/password/reset", h.Request)
	r.POST("/password/reset/verify", h.VerifyCode)
	r.POST("/password/reset/confirm", h.Confirm)
}

func (h *PasswordResetHandler) Request(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadPayload(c)
		return
	}

	if err := h.reset.Request(c.Request.Context(), req.Email, c.ClientIP()); err != nil {
		RespondWithFlowError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, MessageResponse{
		Status:  "sent_if_eligible",
		Message: "if the address belongs to an account, a reset code is on its way",
	})
}

func (h *PasswordResetHandler) VerifyCode(c *gin.Context) {
	var req EmailCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadPayload(c)
		return
	}

	token, err := h.reset.VerifyCode(c.Request.Context(), req.Email, req.Code, c.ClientIP())
	if err != nil {
		RespondWithFlowError(c, err)
		return
	}
	c.JSON(http.StatusOK, ResetTokenResponse{
		Status:     "code_valid",
		ResetToken: token,
		ExpiresIn:  int(h.tokenTTL.Seconds()),
	})
}

func (h *PasswordResetHandler) Confirm(c *gin.Context) {
	var req ResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadPayload(c)
		return
	}

	user, err := h.reset.Finalize(c.Request.Context(), req.Email, req.ResetToken, req.NewPassword, c.ClientIP())
	if err != nil {
		RespondWithFlowError(c, err)
		return
	}
	respondWithSession(c, h.sessions, user, "completed", http.StatusOK)
}
