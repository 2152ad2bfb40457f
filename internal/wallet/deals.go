package wallet

import (
	"context" // Context for bounded DB calls
	"errors"  // Sentinel error matching

	"controlplane/internal/domain" // Importing domain models
	"controlplane/internal/utils"  // Redis cache helpers

	"github.com/google/uuid"     // Generated deal ids
	"github.com/sirupsen/logrus" // Logging library
	"gorm.io/gorm"               // GORM ORM library
	"gorm.io/gorm/clause"        // Upsert clauses
)

const dealsCacheKey = "deals:list"

// CreateDeal stores a purchasable deal, generating an id when the
// caller supplies none. Creating an existing id overwrites it.
func (s *Service) CreateDeal(ctx context.Context, id, title, description string, priceCents int64, metadata string) (string, error) {
	if title == "" {
		return "", ErrInvalidDeal
	}
	if priceCents < 0 {
		return "", ErrInvalidAmount
	}
	if id == "" {
		id = "deal-" + uuid.NewString()
	}
	deal := domain.Deal{
		ID:          id,
		Title:       title,
		Description: description,
		PriceCents:  priceCents,
		Active:      true,
		Metadata:    metadata,
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&deal).Error
	if err != nil {
		return "", err
	}
	s.invalidateDeals(ctx)
	logrus.WithFields(logrus.Fields{
		"deal_id":     id,
		"title":       title,
		"price_cents": priceCents,
	}).Info("Deal created")
	return id, nil
}

// ListDeals returns every deal, active or not, cached briefly
func (s *Service) ListDeals(ctx context.Context) ([]domain.Deal, error) {
	if s.rdb != nil {
		var cached []domain.Deal
		if found, err := utils.GetCache(ctx, s.rdb, dealsCacheKey, &cached); err == nil && found {
			return cached, nil
		}
	}
	var deals []domain.Deal
	if err := s.db.WithContext(ctx).Order("created_at desc").Find(&deals).Error; err != nil {
		return nil, err
	}
	if s.rdb != nil {
		_ = utils.SetCache(ctx, s.rdb, dealsCacheKey, deals, cacheTTL)
	}
	return deals, nil
}

// GetDeal fetches one deal by id
func (s *Service) GetDeal(ctx context.Context, id string) (*domain.Deal, error) {
	var deal domain.Deal
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&deal).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDealNotFound
		}
		return nil, err
	}
	return &deal, nil
}

// SetDealActive toggles whether a deal can be purchased
func (s *Service) SetDealActive(ctx context.Context, id string, active bool) error {
	res := s.db.WithContext(ctx).Model(&domain.Deal{}).
		Where("id = ?", id).
		Update("active", active)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrDealNotFound
	}
	s.invalidateDeals(ctx)
	return nil
}

// invalidateDeals drops the cached deal list after a mutation
func (s *Service) invalidateDeals(ctx context.Context) {
	if s.rdb != nil {
		_ = utils.DeleteCache(ctx, s.rdb, dealsCacheKey)
	}
}
