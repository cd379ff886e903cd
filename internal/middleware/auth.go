package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dmchat/internal/auth"
)

// Context keys set by AuthMiddleware.
const (
	UserIDKey  = "userID"
	SessionKey = "session"
)

// Authenticator resolves a bearer token to a session.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Session, error)
}

// AuthMiddleware validates the Authorization header. Browsers cannot set
// headers on websocket upgrades, so a token query parameter is accepted too.
func AuthMiddleware(authenticator Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		sess, err := authenticator.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserIDKey, sess.UserID)
		c.Set(SessionKey, sess)
		c.Next()
	}
}

// bearerToken returns the token and whether any credential was presented.
func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		if token := c.Query("token"); token != "" {
			return token, true
		}
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", true
	}
	return strings.TrimSpace(parts[1]), true
}

// SessionFrom returns the session stored by AuthMiddleware.
func SessionFrom(c *gin.Context) (auth.Session, bool) {
	val, ok := c.Get(SessionKey)
	if !ok {
		return auth.Session{}, false
	}
	sess, ok := val.(auth.Session)
	return sess, ok
}
