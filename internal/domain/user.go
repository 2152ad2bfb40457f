package domain

import "time"

// User Model
type User struct {
	ID          uint      `gorm:"primaryKey"`      // Primary key
	Username    string    `gorm:"unique;not null"` // Unique username, stored lowercase
	Password    string    `gorm:"not null"`        // Bcrypt hash, never plaintext
	Sponsored   bool      `gorm:"default:false"`   // Sponsorship flag: paid deals are free
	SponsoredBy string    // Master account that granted sponsorship
	CreatedAt   time.Time // Timestamp of signup
}
