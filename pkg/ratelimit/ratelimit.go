// Package ratelimit provides a Redis fixed-window request limiter for the
// public search endpoint. When Redis is unreachable the limiter fails open:
// search availability matters more here than strict quota enforcement.
package ratelimit

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

type Limiter struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

// New builds a limiter allowing limit requests per client IP per window.
// rdb may be nil, which disables limiting entirely.
func New(rdb *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, limit: limit, window: window}
}

// WindowKey buckets a client into the current fixed window.
func WindowKey(clientIP string, now time.Time, window time.Duration) string {
	bucket := now.Unix() / int64(window.Seconds())
	return fmt.Sprintf("ratelimit:%s:%d", clientIP, bucket)
}

// Middleware returns the gin handler enforcing the limit.
func (l *Limiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.rdb == nil {
			c.Next()
			return
		}
		key := WindowKey(c.ClientIP(), time.Now(), l.window)

		pipe := l.rdb.TxPipeline()
		count := pipe.Incr(c.Request.Context(), key)
		pipe.Expire(c.Request.Context(), key, l.window)
		if _, err := pipe.Exec(c.Request.Context()); err != nil {
			log.Warn().Err(err).Msg("rate limiter unavailable, allowing request")
			c.Next()
			return
		}
		if int(count.Val()) > l.limit {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
