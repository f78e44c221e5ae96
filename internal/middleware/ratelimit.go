package middleware

import (
	"net/http"
	"sync"

	"github.com/basketfi/vaultcore/internal/config"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitMiddleware throttles mutating calls per module key. Must run
// after ModuleAuthMiddleware so the key has been validated.
func RateLimitMiddleware(cfg *config.Config) gin.HandlerFunc {
	var mu sync.Mutex
	limiters := make(map[string]*rate.Limiter)

	qps := cfg.Auth.RateQPS
	if qps <= 0 {
		qps = 10
	}
	burst := cfg.Auth.RateBurst
	if burst <= 0 {
		burst = 20
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderModuleKey)
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		mu.Lock()
		limiter, ok := limiters[key]
		if !ok {
			limiter = rate.NewLimiter(rate.Limit(qps), burst)
			limiters[key] = limiter
		}
		mu.Unlock()

		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": "1s",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
