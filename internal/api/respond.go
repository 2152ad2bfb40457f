package api

import (
	"context"  // Timeout detection
	"errors"   // Error matching
	"net/http" // HTTP status codes
	"time"     // Request timeouts

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// requestTimeout bounds every persistence call behind a handler
const requestTimeout = 5 * time.Second

// requestContext derives a bounded context for service calls
func requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), requestTimeout)
}

// serviceError reports a failure no taxonomy entry covers. Timeouts
// become 503; everything else is a generic 500. Internal storage
// errors are logged, never surfaced.
func serviceError(c *gin.Context, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service unavailable"})
		return
	}
	logrus.WithFields(logrus.Fields{
		"path":  c.FullPath(),
		"error": err.Error(),
	}).Error("Request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
}
