package domain

import "time"

// Transaction kinds
const (
	TxCredit   = "credit"
	TxDebit    = "debit"
	TxPurchase = "purchase"
)

// Transaction statuses
const (
	TxSettled = "settled"
	TxPending = "pending"
)

// Transaction Model: append-only journal entry, immutable once settled.
type Transaction struct {
	ID             string  `gorm:"primaryKey;size:64"`   // Transaction id (uuid)
	Username       string  `gorm:"index;not null"`       // Wallet owner
	AmountCents    int64   // Signed amount: positive credit, negative debit/purchase
	Kind           string  `gorm:"not null"`             // credit, debit or purchase
	DealID         *string `gorm:"size:64"`              // Related deal for purchases
	Status         string  `gorm:"not null"`             // settled or pending
	IdempotencyKey *string `gorm:"uniqueIndex;size:128"` // Caller-supplied replay guard, optional
	CreatedAt      time.Time
	SettledAt      *time.Time
}
