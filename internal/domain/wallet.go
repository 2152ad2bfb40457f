package domain

// Wallet Model
type Wallet struct {
	ID           uint   `gorm:"primaryKey"`         // Primary key
	Username     string `gorm:"uniqueIndex"`        // Owner username
	BalanceCents int64  `gorm:"not null;default:0"` // Balance in integer cents, never negative
}
