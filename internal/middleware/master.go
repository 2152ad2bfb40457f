package middleware

import (
	"context"  // Bounded verification calls
	"net/http" // HTTP status codes

	"controlplane/internal/auth" // Access controller

	"github.com/gin-gonic/gin" // Gin web framework
)

// MasterOnly admits requests carrying the control token or a session
// token whose subject is a master account.
func MasterOnly(access *auth.AccessController) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		ctx, cancel := context.WithTimeout(c.Request.Context(), verifyTimeout)
		defer cancel()
		if !access.IsMasterToken(ctx, token) {
			// Non-masters get forbidden regardless of why
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Master access required"})
			return
		}
		c.Next()
	}
}
