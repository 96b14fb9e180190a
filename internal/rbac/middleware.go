package rbac

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/callqa-backend/internal/auth"
	"github.com/tbourn/callqa-backend/internal/domain"
)

const (
	msgUnauthorized = "Не авторизован"
	msgForbidden    = "Недостаточно прав"
)

// Require aborts with 401/403 unless the session principal has perm.
// It must run after auth.RequireSession.
func Require(perm Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		var pp *domain.Principal
		if p, ok := auth.PrincipalFrom(c.Request.Context()); ok {
			pp = &p
		}
		if err := Check(pp, perm); err != nil {
			Abort(c, err)
			return
		}
		c.Next()
	}
}

// RequireRole aborts with 401/403 unless the session principal has one of
// roles.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := auth.PrincipalFrom(c.Request.Context())
		if !ok {
			Abort(c, ErrUnauthorized)
			return
		}
		if !slices.Contains(roles, p.Role) {
			Abort(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

// Abort writes the error envelope for ErrUnauthorized or ErrForbidden.
func Abort(c *gin.Context, err error) {
	status, code, msg := http.StatusForbidden, "forbidden", msgForbidden
	if err == ErrUnauthorized {
		status, code, msg = http.StatusUnauthorized, "unauthorized", msgUnauthorized
	}
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       code,
		"message":    msg,
	})
}
