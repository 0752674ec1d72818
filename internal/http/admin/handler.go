package admin

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jaydaVis04/jLedger/internal/domain/models"
	"github.com/jaydaVis04/jLedger/internal/http/middleware"
)

// Sessions is the compromise-response capability exposed to admins.
type Sessions interface {
	RevokeAll(ctx context.Context, userID string) error
}

type Handler struct {
	sessions Sessions
}

func NewHandler(sessions Sessions) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes mounts the admin endpoints. Routes are gated by a
// verified access token plus an ADMIN role check against the store.
func (h *Handler) RegisterRoutes(r gin.IRouter, jwtSecret []byte, users middleware.UserProvider) {
	grp := r.Group("/admin")
	grp.Use(middleware.RequireAuth(jwtSecret), middleware.RequireRole(users, models.RoleAdmin))
	grp.POST("/sessions/revoke", h.revokeSessions)
}

type revokeInput struct {
	UserID string `json:"user_id" binding:"required"`
}

// revokeSessions revokes every active refresh token of the given user.
// Used to kill all sessions after a suspected credential compromise.
func (h *Handler) revokeSessions(c *gin.Context) {
	var input revokeInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	if err := h.sessions.RevokeAll(c.Request.Context(), input.UserID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	c.Status(http.StatusNoContent)
}
