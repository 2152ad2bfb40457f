package auth

import (
	"context"       // Context for bounded DB calls
	"crypto/sha256" // Fixed-width digests of raw tokens
	"encoding/hex"  // Digest encoding
	"time"          // Token lifetime

	"controlplane/internal/domain" // Importing domain models

	"github.com/golang-jwt/jwt/v5" // JWT library
	"github.com/google/uuid"       // Fresh jti values
	"gorm.io/gorm"                 // GORM ORM library
	"gorm.io/gorm/clause"          // Conflict clauses for idempotent revocation
)

// SessionTTL is the lifetime of an issued session token
const SessionTTL = 7 * 24 * time.Hour

// RevocationChecker answers whether a session token has been revoked.
// It evaluates two backing predicates in sequence: the legacy
// raw-token list first, then the compact jti set. The legacy predicate
// exists so tokens revoked before the jti migration stay revoked; a
// future cleanup can drop it without touching callers.
type RevocationChecker struct {
	db *gorm.DB // Database handle
}

// Revoked returns true if either revocation path matches the token
func (r *RevocationChecker) Revoked(ctx context.Context, rawToken, jti string) (bool, error) {
	var count int64
	// Legacy path: whole-token blacklist, matched by digest
	if err := r.db.WithContext(ctx).Model(&domain.RevokedToken{}).
		Where("token_hash = ?", hashToken(rawToken)).Count(&count).Error; err != nil {
		return false, err
	}
	if count > 0 {
		return true, nil
	}
	// Compact path: jti blacklist
	if jti == "" {
		return false, nil
	}
	if err := r.db.WithContext(ctx).Model(&domain.RevokedToken{}).
		Where("jti = ?", jti).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// SessionAuthority issues, verifies and revokes signed session tokens
type SessionAuthority struct {
	secret  []byte             // Process-wide signing secret, fixed at startup
	ttl     time.Duration      // Token lifetime
	now     func() time.Time   // Clock, injectable for tests
	checker *RevocationChecker // Dual-path revocation lookups
	db      *gorm.DB           // Database handle for revocation writes
}

// NewSessionAuthority creates a session authority with the default
// seven-day token lifetime.
func NewSessionAuthority(db *gorm.DB, secret string) *SessionAuthority {
	return &SessionAuthority{
		secret:  []byte(secret),
		ttl:     SessionTTL,
		now:     time.Now,
		checker: &RevocationChecker{db: db},
		db:      db,
	}
}

// Issue creates a signed token {sub, iat, exp, jti} for the given user
func (s *SessionAuthority) Issue(username string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        uuid.NewString(), // Fresh jti, the compact revocation handle
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates signature, expiry and revocation state, returning
// the token subject. Every failure collapses to ErrUnauthorized.
func (s *SessionAuthority) Verify(ctx context.Context, tokenStr string) (string, error) {
	claims, err := s.parse(tokenStr)
	if err != nil {
		return "", ErrUnauthorized
	}
	revoked, err := s.checker.Revoked(ctx, tokenStr, claims.ID)
	if err != nil {
		return "", err // Storage failure, not an auth verdict
	}
	if revoked {
		return "", ErrUnauthorized
	}
	return claims.Subject, nil
}

// Revoked reports whether the token matches either revocation path
func (s *SessionAuthority) Revoked(ctx context.Context, tokenStr string) (bool, error) {
	jti := ""
	if claims, err := s.parse(tokenStr); err == nil {
		jti = claims.ID
	}
	return s.checker.Revoked(ctx, tokenStr, jti)
}

// Revoke records the token's jti when the token parses, otherwise the
// raw token string, so logout always succeeds from the caller's
// perspective even when bookkeeping degrades to the legacy mode.
// Revoking the same token twice is a no-op.
func (s *SessionAuthority) Revoke(ctx context.Context, tokenStr string) error {
	entry := domain.RevokedToken{}
	if claims, err := s.parse(tokenStr); err == nil && claims.ID != "" {
		jti := claims.ID
		entry.JTI = &jti
	} else {
		digest := hashToken(tokenStr) // Legacy fallback for unparseable tokens
		entry.TokenHash = &digest
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entry).Error
}

// hashToken digests a raw token so the legacy revocation column stays
// fixed-width however long the token is.
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// parse validates the signature and standard claims of a token
func (s *SessionAuthority) parse(tokenStr string) (*jwt.RegisteredClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}
