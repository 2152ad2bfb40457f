package domain

import "time"

// Credential Model: one registered WebAuthn authenticator.
// A user may own several (multi-device).
type Credential struct {
	ID              uint   `gorm:"primaryKey"`               // Primary key
	Username        string `gorm:"index;not null"`           // Owner username
	CredentialID    []byte `gorm:"uniqueIndex;size:1024"`    // Opaque credential id from the authenticator
	PublicKey       []byte // COSE public-key material
	AttestationType string // Attestation format reported at registration
	Transports      string // Comma-separated authenticator transports
	UserPresent     bool   // Authenticator flags captured at registration
	UserVerified    bool
	BackupEligible  bool
	BackupState     bool
	AAGUID          []byte    // Authenticator model identifier
	SignCount       uint32    // Must never decrease across logins (clone detection)
	CreatedAt       time.Time // Timestamp of registration
}
