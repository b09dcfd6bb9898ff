package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/document-ingest/pkg/logger"
)

// RequestLogger logs one line per request. Event streams are logged when
// they end.
func RequestLogger(log logger.Logger) gin.HandlerFunc {
	log = log.Named("access")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("Request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)),
			logger.String("client", c.ClientIP()),
		)
	}
}
