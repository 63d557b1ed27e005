package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"minter/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Debug("api: request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// AdminAuth requires "Authorization: Bearer <token>". An empty token locks the
// admin routes.
func AdminAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		provided, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" || !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			logger.Warn("api: admin access denied", zap.String("ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}
