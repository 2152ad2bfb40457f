package auth

import (
	"context" // Context for bounded DB calls
	"errors"  // Sentinel errors
	"strings" // Allow-list parsing
	"time"    // Pricing expiry checks

	"controlplane/internal/domain" // Importing domain models

	"gorm.io/gorm"        // GORM ORM library
	"gorm.io/gorm/clause" // Upsert clauses
)

// ErrUserNotFound is returned when an operation targets an unknown user
var ErrUserNotFound = errors.New("user not found")

// AccessDecision is the result of a feature access check. Pure data,
// produced without side effects.
type AccessDecision struct {
	Granted    bool       `json:"access"`                // Whether access is granted
	Reason     string     `json:"reason,omitempty"`      // sponsored, free, subscription_active, no_pricing, priced
	PriceCents int64      `json:"price_cents,omitempty"` // Quoted price when access is denied
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`  // Subscription expiry when relevant
}

// AccessController gates privileged and fee-free operations: master
// checks for credit/debit/deal administration, sponsorship for free
// purchases, and pricing reads for administrative introspection.
type AccessController struct {
	db           *gorm.DB         // Database handle
	masters      map[string]bool  // Master username allow-list
	controlToken string           // Out-of-band master credential
	sessions     *SessionAuthority
	now          func() time.Time // Clock, injectable for tests
}

// NewAccessController builds an access controller. The masters string
// is a comma-separated allow-list of usernames.
func NewAccessController(db *gorm.DB, sessions *SessionAuthority, masters, controlToken string) *AccessController {
	allow := make(map[string]bool)
	for _, m := range strings.Split(masters, ",") {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			allow[m] = true
		}
	}
	return &AccessController{
		db:           db,
		masters:      allow,
		controlToken: controlToken,
		sessions:     sessions,
		now:          time.Now,
	}
}

// IsMaster reports whether the username is on the master allow-list
func (a *AccessController) IsMaster(username string) bool {
	return a.masters[strings.ToLower(username)]
}

// IsMasterToken accepts either the control token or a valid session
// token whose subject is a master account.
func (a *AccessController) IsMasterToken(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	if token == a.controlToken {
		return true
	}
	subject, err := a.sessions.Verify(ctx, token)
	return err == nil && a.IsMaster(subject)
}

// CheckAccess determines whether a user may use a paid feature. Pure
// read: sponsored users always pass, then pricing is consulted (zero
// price or a live subscription grants access).
func (a *AccessController) CheckAccess(ctx context.Context, username, feature string) (AccessDecision, error) {
	var user domain.User
	err := a.db.WithContext(ctx).Where("username = ?", strings.ToLower(username)).First(&user).Error
	if err == nil && user.Sponsored {
		return AccessDecision{Granted: true, Reason: "sponsored"}, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return AccessDecision{}, err
	}
	var pricing domain.Pricing
	err = a.db.WithContext(ctx).Where("username = ?", strings.ToLower(username)).First(&pricing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AccessDecision{Reason: "no_pricing"}, nil
		}
		return AccessDecision{}, err
	}
	if pricing.PriceCents == 0 {
		return AccessDecision{Granted: true, Reason: "free"}, nil
	}
	if pricing.ExpiresAt != nil && pricing.ExpiresAt.After(a.now()) {
		return AccessDecision{Granted: true, Reason: "subscription_active", ExpiresAt: pricing.ExpiresAt}, nil
	}
	return AccessDecision{Reason: "priced", PriceCents: pricing.PriceCents}, nil
}

// Sponsor flags a user as sponsored, recording who granted it.
// Fails with ErrUserNotFound for unknown users.
func (a *AccessController) Sponsor(ctx context.Context, username, addedBy string) error {
	return a.setSponsored(ctx, username, addedBy, true)
}

// Unsponsor clears a user's sponsorship flag
func (a *AccessController) Unsponsor(ctx context.Context, username string) error {
	return a.setSponsored(ctx, username, "", false)
}

func (a *AccessController) setSponsored(ctx context.Context, username, addedBy string, sponsored bool) error {
	res := a.db.WithContext(ctx).Model(&domain.User{}).
		Where("username = ?", strings.ToLower(username)).
		Updates(map[string]any{"sponsored": sponsored, "sponsored_by": addedBy})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ListSponsored returns every sponsored user
func (a *AccessController) ListSponsored(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := a.db.WithContext(ctx).Where("sponsored = ?", true).Find(&users).Error
	return users, err
}

// SetPricing records an admin-assigned price quote for a user
func (a *AccessController) SetPricing(ctx context.Context, username string, priceCents int64, tier string, expiresAt *time.Time) error {
	pricing := domain.Pricing{
		Username:   strings.ToLower(username),
		PriceCents: priceCents,
		Tier:       tier,
		ExpiresAt:  expiresAt,
	}
	return a.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			UpdateAll: true,
		}).
		Create(&pricing).Error
}
