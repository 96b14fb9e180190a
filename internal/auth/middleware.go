package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

// BearerToken extracts the token from an "Authorization: Bearer <t>" header.
func BearerToken(c *gin.Context) (string, bool) {
	raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
	if !strings.HasPrefix(raw, bearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
	return tok, tok != ""
}

// RequireSession verifies the bearer session token and stores the caller in
// the request context. Permission checks belong to internal/rbac.
func RequireSession(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, ok := BearerToken(c)
		if !ok {
			abortUnauthorized(c)
			return
		}
		claims, err := m.Verify(tok, time.Now())
		if err != nil {
			abortUnauthorized(c)
			return
		}

		p := claims.Principal()
		c.Request = c.Request.WithContext(WithPrincipal(c.Request.Context(), p))

		// userID feeds the rate limiter key and the access log.
		c.Set("userID", p.UserID)
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       "unauthorized",
		"message":    "Не авторизован",
	})
}
