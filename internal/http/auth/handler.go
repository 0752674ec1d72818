package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jaydaVis04/jLedger/internal/domain/models"
	"github.com/jaydaVis04/jLedger/internal/http/middleware"
	authservice "github.com/jaydaVis04/jLedger/internal/services/auth"
)

// refreshCookie is the HTTP-only cookie carrying the raw refresh
// secret, scoped to the auth routes so it never rides other requests.
const (
	refreshCookie     = "refresh_token"
	refreshCookiePath = "/auth"
)

// Auth is the session-manager surface the HTTP layer depends on.
type Auth interface {
	Register(ctx context.Context, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (accessToken, rawRefreshToken string, user *models.User, err error)
	Refresh(ctx context.Context, rawRefreshToken string) (accessToken, newRawRefreshToken string, err error)
	Logout(ctx context.Context, rawRefreshToken string) error
	Me(ctx context.Context, accessToken string) (*models.User, error)
}

type Handler struct {
	auth            Auth
	refreshTokenTTL time.Duration
	secureCookie    bool
}

func NewHandler(auth Auth, refreshTokenTTL time.Duration, secureCookie bool) *Handler {
	return &Handler{auth: auth, refreshTokenTTL: refreshTokenTTL, secureCookie: secureCookie}
}

// RegisterRoutes mounts the auth endpoints on the router.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	grp := r.Group("/auth")
	grp.POST("/register", h.register)
	grp.POST("/login", h.login)
	grp.POST("/refresh", h.refresh)
	grp.POST("/logout", h.logout)
	grp.GET("/me", h.me)
}

type credentialsInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type userView struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Role      models.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}

func publicView(user *models.User) userView {
	return userView{
		ID:        user.ID,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	}
}

func (h *Handler) register(c *gin.Context) {
	var input credentialsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email or password"})
		return
	}

	user, err := h.auth.Register(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		if errors.Is(err, authservice.ErrUserAlreadyExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	c.JSON(http.StatusCreated, publicView(user))
}

func (h *Handler) login(c *gin.Context) {
	var input credentialsInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email or password"})
		return
	}

	accessToken, rawRefreshToken, user, err := h.auth.Login(c.Request.Context(), input.Email, input.Password)
	if err != nil {
		if errors.Is(err, authservice.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	h.setRefreshCookie(c, rawRefreshToken)
	c.JSON(http.StatusOK, gin.H{
		"accessToken": accessToken,
		"user":        publicView(user),
	})
}

func (h *Handler) refresh(c *gin.Context) {
	raw, err := c.Cookie(refreshCookie)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing refresh token"})
		return
	}

	accessToken, newRaw, err := h.auth.Refresh(c.Request.Context(), raw)
	if err != nil {
		switch {
		case errors.Is(err, authservice.ErrMissingToken):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing refresh token"})
		case errors.Is(err, authservice.ErrInvalidToken):
			h.clearRefreshCookie(c)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired refresh token"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		}
		return
	}

	h.setRefreshCookie(c, newRaw)
	c.JSON(http.StatusOK, gin.H{"accessToken": accessToken})
}

func (h *Handler) logout(c *gin.Context) {
	raw, err := c.Cookie(refreshCookie)
	if err != nil {
		// nothing to revoke, logout is idempotent
		c.Status(http.StatusNoContent)
		return
	}

	if err := h.auth.Logout(c.Request.Context(), raw); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		return
	}

	h.clearRefreshCookie(c)
	c.Status(http.StatusNoContent)
}

func (h *Handler) me(c *gin.Context) {
	token, ok := middleware.BearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
		return
	}

	user, err := h.auth.Me(c.Request.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, authservice.ErrUnauthenticated):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
		case errors.Is(err, authservice.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "server error"})
		}
		return
	}

	c.JSON(http.StatusOK, publicView(user))
}

func (h *Handler) setRefreshCookie(c *gin.Context, raw string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookie, raw, int(h.refreshTokenTTL.Seconds()), refreshCookiePath, "", h.secureCookie, true)
}

func (h *Handler) clearRefreshCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(refreshCookie, "", -1, refreshCookiePath, "", h.secureCookie, true)
}
