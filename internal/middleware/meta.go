package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

const responseMetaKey = "response_meta"

// WithResponseMeta collects response metadata and stamps the processing time.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
		meta := ensureMeta(c)
		if _, ok := meta["processing_time_ms"]; !ok {
			meta["processing_time_ms"] = time.Since(start).Milliseconds()
		}
	}
}

// SetMeta records one metadata value for the response.
func SetMeta(c *gin.Context, key string, value interface{}) {
	ensureMeta(c)[key] = value
}

// Meta returns the metadata collected so far, or nil.
func Meta(c *gin.Context) map[string]interface{} {
	value, ok := c.Get(responseMetaKey)
	if !ok {
		return nil
	}
	meta, _ := value.(map[string]interface{})
	return meta
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if meta := Meta(c); meta != nil {
		return meta
	}
	meta := make(map[string]interface{})
	c.Set(responseMetaKey, meta)
	return meta
}
