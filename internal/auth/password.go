package auth

import (
	"context" // Context for bounded DB calls
	"errors"  // Sentinel errors
	"regexp"  // Username validation
	"strings" // String manipulation

	"controlplane/internal/domain" // Importing domain models

	"golang.org/x/crypto/bcrypt" // Password hashing
	"gorm.io/gorm"               // GORM ORM library
)

// Sentinel errors returned by the password authority
var (
	ErrConflict        = errors.New("username already exists")
	ErrUnauthorized    = errors.New("invalid credentials")
	ErrInvalidUsername = errors.New("username must be alphabetic only")
	ErrInvalidPassword = errors.New("password must be 8-64 characters")
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z]+$`)

// PasswordAuthority handles username/password registration and verification.
// Session issuance is a separate step performed by the caller.
type PasswordAuthority struct {
	db *gorm.DB // Database handle
}

// NewPasswordAuthority creates a password authority over the given database
func NewPasswordAuthority(db *gorm.DB) *PasswordAuthority {
	return &PasswordAuthority{db: db}
}

// Register creates a new user with a salted password hash and a
// zero-balance wallet in one transaction. Fails with ErrConflict when
// the username is already taken.
func (a *PasswordAuthority) Register(ctx context.Context, username, password string) error {
	// Validate username and password
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	if len(password) < 8 || len(password) > 64 {
		return ErrInvalidPassword
	}
	// Hash the password
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	// Store with lowercase username to ensure uniqueness
	user := domain.User{Username: strings.ToLower(username), Password: string(hash)}
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			// Duplicate username surfaces as a unique-index violation
			if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateErr(err) {
				return ErrConflict
			}
			return err
		}
		// Every user owns exactly one wallet starting at zero
		return tx.Create(&domain.Wallet{Username: user.Username}).Error
	})
}

// Authenticate verifies a username/password pair and returns the
// canonical (lowercase) username for session issuance. Unknown users
// and wrong passwords are indistinguishable: both yield ErrUnauthorized.
func (a *PasswordAuthority) Authenticate(ctx context.Context, username, password string) (string, error) {
	canonical := strings.ToLower(username)
	var user domain.User
	err := a.db.WithContext(ctx).Where("username = ?", canonical).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUnauthorized
		}
		return "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return "", ErrUnauthorized
	}
	return canonical, nil
}

// isDuplicateErr catches duplicate-key violations the driver does not
// translate into gorm.ErrDuplicatedKey.
func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
