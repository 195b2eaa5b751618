package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/bloodbank/internal/service/audit"
)

// AuditContext records the caller's address and user agent for audit
// entries written while serving the request.
func AuditContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := audit.WithClient(c.Request.Context(), c.ClientIP(), c.Request.UserAgent())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
