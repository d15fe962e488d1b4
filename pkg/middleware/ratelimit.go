package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fraudreview/pkg/ratelimit"
)

// KeyFunc 从请求中取限流维度
type KeyFunc func(c *gin.Context) string

// ClientIPKey 按客户端 IP 限流
func ClientIPKey(c *gin.Context) string { return "ip:" + c.ClientIP() }

// SubjectKey 按已认证主体限流，未认证时退回 IP
func SubjectKey(c *gin.Context) string {
	if claims, ok := ClaimsFromContext(c); ok && claims.Subject != "" {
		return "user:" + claims.Subject
	}
	return ClientIPKey(c)
}

// RateLimit 限流中间件，限流器异常时放行
func RateLimit(limiter ratelimit.RateLimiter, limit ratelimit.Limit, prefix string, key KeyFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := limiter.Allow(c.Request.Context(), prefix+key(c), limit)
		if err != nil {
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(res.ResetAfter/time.Second), 10))

		if !res.Allowed {
			c.Header("Retry-After", strconv.FormatInt(int64(res.RetryAfter/time.Second)+1, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":    http.StatusTooManyRequests,
				"message": "too many requests",
			})
			return
		}

		c.Next()
	}
}
