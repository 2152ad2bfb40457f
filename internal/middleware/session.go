package middleware

import (
	"context"  // Bounded verification calls
	"net/http" // HTTP status codes
	"strings"  // String manipulation
	"time"     // Verification timeout

	"controlplane/internal/auth" // Session authority

	"github.com/gin-gonic/gin" // Gin web framework
)

// verifyTimeout bounds the revocation lookup behind token verification
const verifyTimeout = 5 * time.Second

// TokenFromRequest extracts a bearer token from the Authorization or
// X-API-KEY header, the same dual acceptance the control surface uses.
func TokenFromRequest(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		header = c.GetHeader("X-API-KEY")
	}
	if header == "" {
		return ""
	}
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(header)
}

// SessionAuth verifies the session token (signature, expiry and
// revocation) and stores the subject username in the gin context.
func SessionAuth(sessions *auth.SessionAuthority) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		// Check that a token is present
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), verifyTimeout)
		defer cancel()
		username, err := sessions.Verify(ctx, token)
		if err != nil {
			// Storage trouble is not an auth verdict
			if ctx.Err() != nil {
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
				return
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set("username", username) // Store username in context
		c.Set("token", token)       // Keep the raw token for logout
		c.Next()                    // Proceed to the next handler
	}
}
