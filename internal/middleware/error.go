package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/bloodbank/pkg/logger"
)

// ErrorLogger logs errors handlers attached with c.Error. The response has
// already been written by then.
func ErrorLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		l := logger.FromContext(c.Request.Context(), log)
		for _, e := range c.Errors {
			l.Error(e.Err, "Request error",
				"path", c.Request.URL.Path,
				"method", c.Request.Method,
				"client_ip", c.ClientIP(),
			)
		}
	}
}
