package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xf00889/alumnisystem-sub000/internal/transport/http/middleware"
	"github.com/xf00889/alumnisystem-sub000/internal/usecase"
)

// LockoutHandler lets staff inspect and clear login lockouts.
type LockoutHandler struct {
	lockout *usecase.LockoutService
}

func NewLockoutHandler(lockout *usecase.LockoutService) *LockoutHandler {
	return &LockoutHandler{lockout: lockout}
}

// RegisterRoutes binds the lockout routes under r, which must already require a staff session.
func (h *LockoutHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/lockouts", h.List)
	r.GET("/lockouts/:identifier", h.Status)
	r.DELETE("/lockouts/:identifier", h.Unlock)
}

func (h *LockoutHandler) List(c *gin.Context) {
	accounts, err := h.lockout.ListLocked(c.Request.Context(), actor(c))
	if err != nil {
		RespondWithFlowError(c, err)
		return
	}

	resp := LockedAccountsResponse{Accounts: make([]LockedAccountResponse, 0, len(accounts)), Count: len(accounts)}
	for _, a := range accounts {
		resp.Accounts = append(resp.Accounts, LockedAccountResponse{
			Identifier:       a.Identifier,
			UserID:           a.UserID,
			Username:         a.Username,
			Email:            a.Email,
			RemainingMinutes: a.RemainingMinutes,
			FailedAttempts:   a.FailedAttempts,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *LockoutHandler) Status(c *gin.Context) {
	status, err := h.lockout.Inspect(c.Request.Context(), c.Param("identifier"), actor(c))
	if err != nil {
		RespondWithFlowError(c, err)
		return
	}
	c.JSON(http.StatusOK, newLockoutStatusResponse(status))
}

func (h *LockoutHandler) Unlock(c *gin.Context) {
	if _, err := h.lockout.ForceUnlock(c.Request.Context(), c.Param("identifier"), actor(c)); err != nil {
		RespondWithFlowError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func actor(c *gin.Context) string {
	if claims, ok := middleware.SessionClaims(c); ok {
		return claims.Username
	}
	return "unknown"
}
