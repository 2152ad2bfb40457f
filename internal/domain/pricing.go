package domain

import "time"

// Pricing Model: per-user feature pricing consulted by access checks.
// Written by the admin set-pricing operation and snapshotted on purchase.
type Pricing struct {
	ID            uint   `gorm:"primaryKey"`  // Primary key
	Username      string `gorm:"uniqueIndex"` // Priced user
	PriceCents    int64  // Quoted price in cents; 0 grants access
	Tier          string // Pricing tier label (custom, deal, sponsored, ...)
	ExpiresAt     *time.Time // Subscription expiry; access while in the future
	AutoGenerated bool       // Set when written by a purchase rather than an admin
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
