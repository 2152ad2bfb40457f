package api

import (
	"errors"   // Error matching
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Expiry parsing and cache TTLs

	"controlplane/internal/auth"       // Access controller
	"controlplane/internal/domain"     // Importing domain models
	"controlplane/internal/middleware" // Token extraction
	"controlplane/internal/utils"      // Redis cache helpers

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library
)

// SponsorRequest names the user whose sponsorship changes
type SponsorRequest struct {
	Username string `json:"username" binding:"required"` // Username must be provided
}

// SetPricingRequest represents an admin-assigned price quote
type SetPricingRequest struct {
	Username   string `json:"username" binding:"required"` // Priced user
	PriceCents int64  `json:"price_cents"`                 // Price in cents
	Tier       string `json:"tier"`                        // Pricing tier label
	ExpiresAt  string `json:"expires_at"`                  // RFC 3339 expiry, optional
}

// SponsorHandler flags a user as sponsored (master only), recording
// which master account granted it.
func SponsorHandler(access *auth.AccessController, sessions *auth.SessionAuthority) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SponsorRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()
		// Attribute the grant to the master's session subject when one
		// was used; the control token is recorded as "control".
		addedBy := "control"
		if subject, err := sessions.Verify(ctx, middleware.TokenFromRequest(c)); err == nil {
			addedBy = subject
		}
		err := access.Sponsor(ctx, req.Username, addedBy)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"sponsored": req.Username})
		case errors.Is(err, auth.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		default:
			serviceError(c, err)
		}
	}
}

// UnsponsorHandler clears a user's sponsorship flag (master only)
func UnsponsorHandler(access *auth.AccessController) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SponsorRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		ctx, cancel := requestContext(c)
		defer cancel()
		err := access.Unsponsor(ctx, req.Username)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"unsponsored": req.Username})
		case errors.Is(err, auth.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		default:
			serviceError(c, err)
		}
	}
}

// SponsoredListHandler returns every sponsored user
func SponsoredListHandler(access *auth.AccessController) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()
		users, err := access.ListSponsored(ctx)
		if err != nil {
			serviceError(c, err)
			return
		}
		out := make([]gin.H, 0, len(users))
		for _, u := range users {
			out = append(out, gin.H{"username": u.Username, "added_by": u.SponsoredBy})
		}
		c.JSON(http.StatusOK, gin.H{"sponsored": out})
	}
}

// CheckAccessHandler reports whether a user may use a feature
// (master only, pure read).
func CheckAccessHandler(access *auth.AccessController) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()
		decision, err := access.CheckAccess(ctx, c.Param("username"), c.Param("feature"))
		if err != nil {
			serviceError(c, err)
			return
		}
		c.JSON(http.StatusOK, decision)
	}
}

// SetPricingHandler records a price quote for a user (master only)
func SetPricingHandler(access *auth.AccessController) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SetPricingRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		var expiresAt *time.Time
		if req.ExpiresAt != "" {
			t, err := time.Parse(time.RFC3339, req.ExpiresAt)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "expires_at must be RFC 3339"})
				return
			}
			expiresAt = &t
		}
		tier := req.Tier
		if tier == "" {
			tier = "custom"
		}
		ctx, cancel := requestContext(c)
		defer cancel()
		if err := access.SetPricing(ctx, req.Username, req.PriceCents, tier, expiresAt); err != nil {
			serviceError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"username": req.Username, "price_cents": req.PriceCents, "tier": tier})
	}
}

// UserAdminResponse represents the user data returned to masters
type UserAdminResponse struct {
	Username  string          `json:"username"`          // Username
	Sponsored bool            `json:"sponsored"`         // Sponsorship flag
	CreatedAt time.Time       `json:"created_at"`        // Signup timestamp
	Pricing   *domain.Pricing `json:"pricing,omitempty"` // Assigned pricing, if any
}

// ListUsersHandler returns all users with sponsorship and pricing info
// (master only), paginated and briefly cached.
func ListUsersHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := requestContext(c)
		defer cancel()
		// Create a cache key based on pagination parameters
		cacheKey := "admin:users:page=" + c.DefaultQuery("page", "1") + ":size=" + c.DefaultQuery("page_size", "20")
		if rdb != nil {
			var cached gin.H
			if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
				cached["cached"] = true
				c.JSON(http.StatusOK, cached)
				return
			}
		}
		page := 1      // Default page number
		pageSize := 20 // Default page size
		if p := c.Query("page"); p != "" {
			if v, err := strconv.Atoi(p); err == nil && v > 0 {
				page = v // Set page if valid
			}
		}
		// Check and set page size within limits
		if ps := c.Query("page_size"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
				pageSize = v // Set page size
			}
		}
		offset := (page - 1) * pageSize // Calculate offset for pagination
		var total int64                 // Total user count
		if err := db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error; err != nil {
			serviceError(c, err)
			return
		}
		var users []domain.User // Slice to hold users
		if err := db.WithContext(ctx).Offset(offset).Limit(pageSize).Find(&users).Error; err != nil {
			serviceError(c, err)
			return
		}
		// Join the pricing table in one pass
		var pricings []domain.Pricing
		if err := db.WithContext(ctx).Find(&pricings).Error; err != nil {
			serviceError(c, err)
			return
		}
		priced := make(map[string]*domain.Pricing, len(pricings))
		for i := range pricings {
			priced[pricings[i].Username] = &pricings[i]
		}
		resp := make([]UserAdminResponse, len(users))
		for i, u := range users {
			resp[i] = UserAdminResponse{
				Username:  u.Username,
				Sponsored: u.Sponsored,
				CreatedAt: u.CreatedAt,
				Pricing:   priced[u.Username],
			}
		}
		respData := gin.H{
			"users":       resp,
			"page":        page,
			"page_size":   pageSize,
			"total":       total,
			"total_pages": (int(total) + pageSize - 1) / pageSize,
			"cached":      false,
		}
		if rdb != nil {
			// Cache the response for future requests
			_ = utils.SetCache(ctx, rdb, cacheKey, respData, 60*time.Second)
		}
		c.JSON(http.StatusOK, respData)
	}
}
