package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lms-api/pkg/middleware/requestid"
)

const responseMetaKey = "response_meta"

// ResponseMeta accumulates the envelope `meta` block while a request is handled.
type ResponseMeta struct {
	started  time.Time
	cacheHit *bool
}

// WithResponseMeta stamps the request start so handlers can report processing time.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &ResponseMeta{started: time.Now()})
		c.Next()
	}
}

// SetCacheHit marks whether the payload about to be written came from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	meta := metaFrom(c)
	if meta == nil {
		meta = &ResponseMeta{}
		c.Set(responseMetaKey, meta)
	}
	meta.cacheHit = &hit
}

// ExtractMeta renders the accumulated metadata, or nil when nothing was recorded.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	meta := metaFrom(c)
	if meta == nil {
		return nil
	}
	out := map[string]interface{}{}
	if meta.cacheHit != nil {
		out["cache_hit"] = *meta.cacheHit
	}
	if !meta.started.IsZero() {
		out["processing_time_ms"] = time.Since(meta.started).Milliseconds()
	}
	if id := requestid.Value(c); id != "" {
		out["request_id"] = id
	}
	return out
}

func metaFrom(c *gin.Context) *ResponseMeta {
	if c == nil {
		return nil
	}
	if v, ok := c.Get(responseMetaKey); ok {
		if meta, ok := v.(*ResponseMeta); ok {
			return meta
		}
	}
	return nil
}
