package api

import (
	"errors"   // Error matching
	"net/http" // HTTP status codes

	"controlplane/internal/wallet" // Wallet service

	"github.com/gin-gonic/gin" // Gin web framework
)

// AdjustRequest represents a master credit or debit
type AdjustRequest struct {
	Username       string `json:"username" binding:"required"`          // Target username
	AmountCents    int64  `json:"amount_cents" binding:"required,gt=0"` // Amount in cents
	IdempotencyKey string `json:"idempotency_key"`                      // Optional replay guard
}

// BalanceHandler returns the authenticated user's balance
func BalanceHandler(ws *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetString("username") // Set by the session middleware
		ctx, cancel := requestContext(c)
		defer cancel()
		balance, err := ws.GetBalance(ctx, username)
		if err != nil {
			serviceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balance_cents": balance})
	}
}

// CreditHandler adds funds to any user's wallet (master only)
func CreditHandler(ws *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AdjustRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()
		balance, err := ws.Credit(ctx, req.Username, req.AmountCents, req.IdempotencyKey)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"username": req.Username, "balance_cents": balance})
		case errors.Is(err, wallet.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Amount must be positive"})
		default:
			serviceError(c, err)
		}
	}
}

// DebitHandler removes funds from any user's wallet (master only).
// A balance that cannot cover the debit is reported precisely.
func DebitHandler(ws *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AdjustRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()
		balance, err := ws.Debit(ctx, req.Username, req.AmountCents, req.IdempotencyKey)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"username": req.Username, "balance_cents": balance})
		case errors.Is(err, wallet.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Amount must be positive"})
		case errors.Is(err, wallet.ErrInsufficientFunds):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Insufficient funds"})
		default:
			serviceError(c, err)
		}
	}
}

// TransactionHistoryHandler returns the authenticated user's journal
func TransactionHistoryHandler(ws *wallet.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		username := c.GetString("username") // Set by the session middleware
		ctx, cancel := requestContext(c)
		defer cancel()
		txs, err := ws.ListTransactions(ctx, username)
		if err != nil {
			serviceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": txs})
	}
}
