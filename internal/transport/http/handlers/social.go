package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xf00889/alumnisystem-sub000/internal/usecase"
)

// SocialAssertionHeader carries the shared secret of the OAuth front end.
const SocialAssertionHeader = "X-Social-Assertion-Secret"

// SocialHandler accepts provider identities asserted by the OAuth front end.
type SocialHandler struct {
	social   *usecase.SocialReconciliation
	sessions SessionIssuer
	secret   []byte
}

// NewSocialHandler constructs the handler. An empty secret disables the endpoint.
func NewSocialHandler(social *usecase.SocialReconciliation, sessions SessionIssuer, secret string) *SocialHandler {
	return &SocialHandler{social: social, sessions: sessions, secret: []byte(secret)}
}

// RegisterRoutes binds the social callback under r.
func (h *SocialHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/social/:provider/callback", h.Callback)
}

func (h *SocialHandler) Callback(c *gin.Context) {
	if len(h.secret) == 0 {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "social_login_disabled", "social login is not configured"))
		return
	}
	if subtle.ConstantTimeCompare([]byte(c.GetHeader(SocialAssertionHeader)), h.secret) != 1 {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "unauthenticated", "invalid assertion secret"))
		return
	}

	var req SocialCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadPayload(c)
		return
	}

	result, err := h.social.Reconcile(c.Request.Context(), usecase.SocialAssertion{
		Provider:    c.Param("provider"),
		ProviderUID: req.ProviderUID,
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		IP:          c.ClientIP(),
	})
	if err != nil {
		RespondWithFlowError(c, err)
		return
	}

	status := "authenticated"
	switch {
	case result.Created:
		status = "created"
	case result.Linked:
		status = "linked"
	}
	respondWithSession(c, h.sessions, result.User, status, http.StatusOK)
}
