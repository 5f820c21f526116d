package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gestao-docs-api/internal/service"
)

// Metrics returns middleware that captures request metrics using the provided service.
// Websocket sessions are long lived and are left out of the latency histogram.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil || isWebsocketUpgrade(c) {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
