// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides WebhookAuth, the shared-secret check in front of the
// endpoints the analysis workflow calls (call ingestion, result callbacks).
// Those callers have no user session; they present a static bearer token.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// WebhookAuth returns a Gin middleware that requires "Authorization: Bearer
// <secret>" on every request. An empty secret disables the check so local
// setups can post without configuring one.
//
// Failures abort with 401 and the standard error envelope.
func WebhookAuth(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) { c.Next() }
	}
	want := []byte(secret)

	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		tok, found := strings.CutPrefix(raw, "Bearer ")
		if !found || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(tok)), want) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "unauthorized",
				"message":    "Неавторизованный доступ",
			})
			return
		}
		c.Next()
	}
}
