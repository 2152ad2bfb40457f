package api

import (
	"bytes"         // Replay of the request body into the parser
	"encoding/json" // Username extraction from ceremony bodies
	"errors"        // Error matching
	"io"            // Body reading
	"net/http"      // HTTP status codes

	"controlplane/internal/passkey" // WebAuthn ceremonies

	"github.com/gin-gonic/gin" // Gin web framework
)

// Request struct naming the ceremony subject
type CeremonyBeginRequest struct {
	Username string `json:"username" binding:"required"` // Username must be provided
}

// BeginWebAuthnRegistrationHandler starts credential enrollment,
// returning creation options with a fresh challenge.
func BeginWebAuthnRegistrationHandler(ceremony *passkey.Ceremony) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CeremonyBeginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()
		options, err := ceremony.BeginRegistration(ctx, req.Username)
		if err != nil {
			serviceError(c, err)
			return
		}
		c.JSON(http.StatusOK, options)
	}
}

// CompleteWebAuthnRegistrationHandler verifies the attestation and
// stores the credential. The body is the authenticator's credential
// creation response with a top-level username field alongside it.
func CompleteWebAuthnRegistrationHandler(ceremony *passkey.Ceremony) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, username, ok := ceremonyBody(c)
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()
		err := ceremony.CompleteRegistration(ctx, username, bytes.NewReader(raw))
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"message": "Credential registered"})
		case errors.Is(err, passkey.ErrInvalidCeremony):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ceremony"})
		default:
			serviceError(c, err)
		}
	}
}

// BeginWebAuthnAuthenticationHandler starts a login ceremony, returning
// assertion options with the user's allowed credential ids.
func BeginWebAuthnAuthenticationHandler(ceremony *passkey.Ceremony) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CeremonyBeginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()
		options, err := ceremony.BeginAuthentication(ctx, req.Username)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, options)
		case errors.Is(err, passkey.ErrNoCredentials):
			c.JSON(http.StatusNotFound, gin.H{"error": "No registered credentials"})
		default:
			serviceError(c, err)
		}
	}
}

// CompleteWebAuthnAuthenticationHandler verifies the assertion and
// returns a freshly issued session token.
func CompleteWebAuthnAuthenticationHandler(ceremony *passkey.Ceremony) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, username, ok := ceremonyBody(c)
		if !ok {
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()
		token, err := ceremony.CompleteAuthentication(ctx, username, bytes.NewReader(raw))
		switch {
		case err == nil:
			c.JSON(http.StatusOK, AuthResponse{Token: token})
		case errors.Is(err, passkey.ErrUnknownCredential):
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown credential"})
		case errors.Is(err, passkey.ErrInvalidCeremony):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ceremony"})
		default:
			serviceError(c, err)
		}
	}
}

// ceremonyBody reads the raw ceremony response and pulls the username
// out of it. The raw bytes are kept intact for the protocol parser,
// which ignores the extra field.
func ceremonyBody(c *gin.Context) ([]byte, string, bool) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return nil, "", false
	}
	var meta struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil || meta.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing username"})
		return nil, "", false
	}
	return raw, meta.Username, true
}
