package api

import (
	"errors"   // Error matching
	"net/http" // HTTP status codes

	"controlplane/internal/auth"       // Password and session authorities
	"controlplane/internal/middleware" // Token extraction

	"github.com/gin-gonic/gin" // Gin web framework
)

// Request struct for registration
type RegisterRequest struct {
	Username string `json:"username" binding:"required"` // Username must be provided
	Password string `json:"password" binding:"required"` // Password must be provided
}

// Request struct for login
type LoginRequest struct {
	Username string `json:"username" binding:"required"` // Username must be provided
	Password string `json:"password" binding:"required"` // Password must be provided
}

// Response struct for authentication
type AuthResponse struct {
	Token string `json:"token"` // Session token
}

// RegisterHandler creates a new user account
func RegisterHandler(users *auth.PasswordAuthority) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()
		err := users.Register(ctx, req.Username, req.Password)
		switch {
		case err == nil:
			c.JSON(http.StatusCreated, gin.H{"message": "User registered successfully"})
		case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrInvalidPassword):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, auth.ErrConflict):
			// Registration is the one place username existence may leak
			c.JSON(http.StatusConflict, gin.H{"error": "Username already exists"})
		default:
			serviceError(c, err)
		}
	}
}

// LoginHandler authenticates a user and returns a session token
func LoginHandler(users *auth.PasswordAuthority, sessions *auth.SessionAuthority) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()
		username, err := users.Authenticate(ctx, req.Username, req.Password)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthorized) {
				// Unknown user and wrong password are indistinguishable
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
				return
			}
			serviceError(c, err)
			return
		}
		// The token subject is the canonical username, not the spelling
		// the client typed
		token, err := sessions.Issue(username)
		if err != nil {
			serviceError(c, err)
			return
		}
		c.JSON(http.StatusOK, AuthResponse{Token: token})
	}
}

// LogoutHandler revokes the presented session token. Calling it with
// no token, or twice with the same token, succeeds either way.
func LogoutHandler(sessions *auth.SessionAuthority) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := middleware.TokenFromRequest(c)
		if token == "" {
			c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()
		if err := sessions.Revoke(ctx, token); err != nil {
			serviceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}
