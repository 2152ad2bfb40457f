package api

import (
	"errors"   // Error matching
	"net/http" // HTTP status codes

	"controlplane/internal/wallet" // Wallet and deal service

	"github.com/gin-gonic/gin" // Gin web framework
)

// CreateDealRequest represents a new purchasable deal
type CreateDealRequest struct {
	ID          string `json:"id"`                        // Optional explicit id
	Title       string `json:"title" binding:"required"`  // Display title
	Description string `json:"description"`               // Optional description
	PriceCents  int64  `json:"price_cents"`               // Price in cents, >= 0
	Metadata    string `json:"metadata"`                  // Free-form JSON blob
}

// PurchaseRequest carries the optional replay guard for a purchase
type PurchaseRequest struct {
	IdempotencyKey string `json:"idempotency_key"` // Optional replay guard
}

// CreateDealHandler stores a new deal (master only)
func CreateDealHandler(ws *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateDealRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()
		id, err := ws.CreateDeal(ctx, req.ID, req.Title, req.Description, req.PriceCents, req.Metadata)
		switch {
		case err == nil:
			c.JSON(http.StatusCreated, gin.H{"id": id})
		case errors.Is(err, wallet.ErrInvalidDeal), errors.Is(err, wallet.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			serviceError(c, err)
		}
	}
}

// ListDealsHandler returns every deal
func ListDealsHandler(ws *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()
		deals, err := ws.ListDeals(ctx)
		if err != nil {
			serviceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deals": deals})
	}
}

// GetDealHandler returns one deal by id
func GetDealHandler(ws *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()
		deal, err := ws.GetDeal(ctx, c.Param("id"))
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"deal": deal})
		case errors.Is(err, wallet.ErrDealNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Deal not found"})
		default:
			serviceError(c, err)
		}
	}
}

// SetDealActiveHandler toggles a deal's purchasability (master only)
func SetDealActiveHandler(ws *wallet.Service, active bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()
		err := ws.SetDealActive(ctx, c.Param("id"), active)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "active": active})
		case errors.Is(err, wallet.ErrDealNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Deal not found"})
		default:
			serviceError(c, err)
		}
	}
}

// PurchaseDealHandler buys a deal for the authenticated user
func PurchaseDealHandler(ws *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetString("username") // Set by the session middleware
		var req PurchaseRequest
		_ = c.ShouldBindJSON(&req) // Body is optional
		ctx, cancel := requestContext(c)
		defer cancel()
		txID, err := ws.Purchase(ctx, username, c.Param("id"), req.IdempotencyKey)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"transaction_id": txID})
		case errors.Is(err, wallet.ErrDealNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Deal not found"})
		case errors.Is(err, wallet.ErrInsufficientFunds):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient funds"})
		case errors.Is(err, wallet.ErrUserNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		default:
			serviceError(c, err)
		}
	}
}
