package domain

import "time"

// RevokedToken Model: one revocation entry. Either the compact JTI or
// a SHA-256 digest of the legacy raw token is set, never both; the
// unused column stays NULL so the unique indexes only compare real
// values. The digest keeps the index key fixed-width regardless of
// token length. The legacy column remains so tokens revoked before
// the JTI migration stay revoked.
type RevokedToken struct {
	ID        uint    `gorm:"primaryKey"`                            // Primary key
	TokenHash *string `gorm:"uniqueIndex;size:64;column:token_hash"` // SHA-256 hex of the legacy raw token
	JTI       *string `gorm:"uniqueIndex;size:64;column:jti"`        // Compact token identifier
	CreatedAt time.Time
}
