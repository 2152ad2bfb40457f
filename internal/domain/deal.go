package domain

import "time"

// Deal Model: a purchasable offer created by a master account.
// The price is snapshotted into the transaction at purchase time.
type Deal struct {
	ID          string `gorm:"primaryKey;size:64"` // Deal id
	Title       string `gorm:"not null"`           // Display title
	Description string // Optional description
	PriceCents  int64  `gorm:"not null;default:0"` // Price in integer cents, >= 0
	Active      bool   `gorm:"default:true"`       // Inactive deals cannot be purchased
	Metadata    string // Free-form JSON blob
	CreatedAt   time.Time
}
