package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/jaydaVis04/jLedger/internal/domain/models"
	"github.com/jaydaVis04/jLedger/internal/lib/jwt"
)

// userIDKey is the gin context key under which RequireAuth stores the
// verified subject ID.
const userIDKey = "userID"

// UserProvider resolves a verified subject ID to an account. Used by
// RequireRole; role policy deliberately lives outside the token itself.
type UserProvider interface {
	UserByID(ctx context.Context, userID string) (*models.User, error)
}

// BearerToken extracts the token from an "Authorization: Bearer ..." header.
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || token == "" {
		return "", false
	}
	return token, true
}

// UserID returns the subject ID stored by RequireAuth.
func UserID(c *gin.Context) (string, bool) {
	id, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	userID, ok := id.(string)
	return userID, ok
}

// RequireAuth verifies the bearer access token and stores its subject
// in the request context. Verification is stateless: signature and
// expiry only, no store lookup.
func RequireAuth(jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid authorization header"})
			return
		}

		userID, err := jwt.ParseToken(token, jwtSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

// RequireRole allows the request through only when the verified subject
// holds the given role. Must be mounted after RequireAuth.
func RequireRole(users UserProvider, role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		user, err := users.UserByID(c.Request.Context(), userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if user.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Next()
	}
}
