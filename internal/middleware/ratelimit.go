package middleware

import (
	"net/http" // HTTP status codes

	"controlplane/internal/ratelimit" // Sliding-window limiter

	"github.com/gin-gonic/gin" // Gin web framework
)

// RateLimit throttles by client IP using the given sliding-window
// limiter. Rejected requests get 429.
func RateLimit(limiter *ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			return
		}
		c.Next()
	}
}
