package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xf00889/alumnisystem-sub000/internal/usecase"
)

// SignupHandler exposes registration and email verification.
type SignupHandler struct {
	signup   *usecase.SignupFlow
	sessions SessionIssuer
}

func NewSignupHandler(signup *usecase.SignupFlow, sessions SessionIssuer) *SignupHandler {
	return &SignupHandler{signup: signup, sessions: sessions}
}

// RegisterRoutes binds the signup routes under r.
func (h *SignupHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/signup", h.Register)
	r.POST("/signup/verify", h.Verify)
	r.POST("/signup/resend", h.Resend)
}

func (h *SignupHandler) Register(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadPayload(c)
		return
	}

	reg, err := h.signup.Register(c.Request.Context(), usecase.RegisterInput{
		Email:     req.Email,
		Username:  req.Username,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		IP:        c.ClientIP(),
	})
	if err != nil {
		RespondWithFlowError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, SignupResponse{
		Status:    "pending_verification",
		UserID:    reg.UserID,
		Email:     reg.Email,
		ExpiresAt: reg.ExpiresAt,
	})
}

func (h *SignupHandler) Verify(c *gin.Context) {
	var req EmailCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadPayload(c)
		return
	}

	user, err := h.signup.Verify(c.Request.Context(), req.Email, req.Code, c.ClientIP())
	if err != nil {
		RespondWithFlowError(c, err)
		return
	}
	respondWithSession(c, h.sessions, user, "activated", http.StatusOK)
}

// Resend answers the same way whether or not a code went out.
func (h *SignupHandler) Resend(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadPayload(c)
		return
	}

	if err := h.signup.Resend(c.Request.Context(), req.Email, c.ClientIP()); err != nil {
		RespondWithFlowError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, MessageResponse{
		Status:  "sent_if_eligible",
		Message: "if the address belongs to an account awaiting verification, a new code is on its way",
	})
}
