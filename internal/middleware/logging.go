package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LoggingMiddleware logs each request through the shared structured logger.
func LoggingMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Infow("request",
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

// ErrorHandlingMiddleware recovers panics and logs them instead of
// crashing the process.
func ErrorHandlingMiddleware(log *zap.SugaredLogger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, recovered any) {
		log.Errorw("panic recovered", "error", recovered, "path", c.Request.URL.Path)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	})
}

// ipLimiters guards per-client-IP rate limiters for RateLimitMiddleware.
type ipLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// RateLimitMiddleware applies a per-client-IP token bucket to inbound
// requests, rejecting with 429 once a client exceeds rps sustained /
// burst instantaneous requests.
func RateLimitMiddleware(rps float64, burst int) gin.HandlerFunc {
	il := &ipLimiters{limiters: make(map[string]*rate.Limiter), rps: rate.Limit(rps), burst: burst}
	return func(c *gin.Context) {
		ip := c.ClientIP()
		il.mu.Lock()
		lim, ok := il.limiters[ip]
		if !ok {
			lim = rate.NewLimiter(il.rps, il.burst)
			il.limiters[ip] = lim
		}
		il.mu.Unlock()

		if !lim.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
