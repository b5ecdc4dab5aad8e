// README: Static API key check for partner endpoints.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const APIKeyHeader = "X-API-Key"

// APIKey rejects requests whose X-API-Key does not match key. The failure body
// uses the partner response shape.
func APIKey(key string, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	want := []byte(key)
	return func(c *gin.Context) {
		got := c.GetHeader(APIKeyHeader)
		if key == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			log.Warn("invalid api key attempt", zap.String("ip", c.ClientIP()), zap.String("path", c.Request.URL.Path))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "Invalid or missing API key",
				"success": false,
			})
			return
		}
		c.Next()
	}
}
