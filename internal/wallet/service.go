// Package wallet orchestrates balance queries, credits, debits and
// sponsorship-aware deal purchases over the durable ledger. Every
// balance mutation and its journal entry commit as one unit; mutations
// for a single username are serialized.
package wallet

import (
	"context" // Context for bounded DB calls
	"errors"  // Sentinel errors
	"strings" // Duplicate-key detection
	"sync"    // Per-username mutual exclusion
	"time"    // Settlement timestamps and cache TTLs

	"controlplane/internal/domain" // Importing domain models
	"controlplane/internal/utils"  // Redis cache helpers

	"github.com/google/uuid"       // Transaction and deal ids
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
	"gorm.io/gorm"                 // GORM ORM library
	"gorm.io/gorm/clause"          // Upsert clauses
)

// Sentinel errors returned by the wallet service
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrDealNotFound      = errors.New("deal not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInvalidDeal       = errors.New("deal title is required")
)

const cacheTTL = 60 * time.Second

// Service combines the wallet, ledger and deal stores
type Service struct {
	db  *gorm.DB      // Durable store
	rdb *redis.Client // Optional read cache, nil disables caching

	mu    sync.Mutex             // Guards locks
	locks map[string]*sync.Mutex // Per-username mutation locks
}

// NewService creates a wallet service. rdb may be nil.
func NewService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{db: db, rdb: rdb, locks: make(map[string]*sync.Mutex)}
}

// lockFor returns the mutation lock for a username, creating it on
// first use. Mutations for one user are serialized; different users
// proceed fully in parallel.
func (s *Service) lockFor(username string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[username]
	if !ok {
		l = &sync.Mutex{}
		s.locks[username] = l
	}
	return l
}

// GetBalance returns the current balance in cents. Users without a
// wallet row read as zero.
func (s *Service) GetBalance(ctx context.Context, username string) (int64, error) {
	username = strings.ToLower(username) // Wallets are keyed by canonical username
	cacheKey := "wallet:user:" + username
	if s.rdb != nil {
		var cached int64
		if found, err := utils.GetCache(ctx, s.rdb, cacheKey, &cached); err == nil && found {
			return cached, nil
		}
	}
	var w domain.Wallet
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if s.rdb != nil {
		_ = utils.SetCache(ctx, s.rdb, cacheKey, w.BalanceCents, cacheTTL)
	}
	return w.BalanceCents, nil
}

// Credit adds amountCents to the user's wallet and journals a settled
// credit transaction, returning the new balance. A repeated
// idempotency key returns the balance without re-applying.
func (s *Service) Credit(ctx context.Context, username string, amountCents int64, idemKey string) (int64, error) {
	return s.adjust(ctx, username, amountCents, domain.TxCredit, idemKey)
}

// Debit subtracts amountCents, failing with ErrInsufficientFunds when
// the balance cannot cover it, and journals a settled debit.
func (s *Service) Debit(ctx context.Context, username string, amountCents int64, idemKey string) (int64, error) {
	return s.adjust(ctx, username, -amountCents, domain.TxDebit, idemKey)
}

// adjust applies a signed balance delta plus its journal entry as one
// atomic unit under the user's mutation lock.
func (s *Service) adjust(ctx context.Context, username string, deltaCents int64, kind string, idemKey string) (int64, error) {
	if (kind == domain.TxCredit && deltaCents <= 0) || (kind == domain.TxDebit && deltaCents >= 0) {
		return 0, ErrInvalidAmount
	}
	username = strings.ToLower(username)
	lock := s.lockFor(username)
	lock.Lock()
	defer lock.Unlock()
	// Replayed write: report the outcome without applying again
	if prior, err := s.priorTransaction(ctx, idemKey); err != nil {
		return 0, err
	} else if prior != nil {
		return s.readBalance(ctx, username)
	}
	var newBalance int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureWallet(tx, username); err != nil {
			return err
		}
		if deltaCents < 0 {
			// Conditional update so the balance can never go negative
			res := tx.Model(&domain.Wallet{}).
				Where("username = ? AND balance_cents >= ?", username, -deltaCents).
				Update("balance_cents", gorm.Expr("balance_cents + ?", deltaCents))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrInsufficientFunds
			}
		} else {
			if err := tx.Model(&domain.Wallet{}).
				Where("username = ?", username).
				Update("balance_cents", gorm.Expr("balance_cents + ?", deltaCents)).Error; err != nil {
				return err
			}
		}
		if err := journal(tx, username, deltaCents, kind, nil, idemKey); err != nil {
			return err
		}
		var w domain.Wallet
		if err := tx.Where("username = ?", username).First(&w).Error; err != nil {
			return err
		}
		newBalance = w.BalanceCents
		return nil
	})
	if err != nil {
		// A concurrent process may have applied the same idempotency key
		// between our check and commit; the unique index rejects the
		// second apply and we report the settled outcome.
		if idemKey != "" && isDuplicateErr(err) {
			return s.readBalance(ctx, username)
		}
		if !errors.Is(err, ErrInsufficientFunds) {
			logrus.WithFields(logrus.Fields{
				"username": username,
				"amount":   deltaCents,
				"kind":     kind,
				"error":    err.Error(),
			}).Error("Wallet adjustment failed")
		}
		return 0, err
	}
	s.invalidateBalance(ctx, username)
	logrus.WithFields(logrus.Fields{
		"username": username,
		"amount":   deltaCents,
		"kind":     kind,
		"balance":  newBalance,
	}).Info("Wallet transaction")
	return newBalance, nil
}

// Purchase buys a deal for the user. Sponsored users pay nothing and
// get a zero-amount journal entry; everyone else pays the deal's
// snapshotted price atomically. Missing and inactive deals both
// surface as ErrDealNotFound.
func (s *Service) Purchase(ctx context.Context, username, dealID, idemKey string) (string, error) {
	username = strings.ToLower(username)
	var user domain.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	lock := s.lockFor(username)
	lock.Lock()
	defer lock.Unlock()
	// Replayed purchase: return the recorded transaction
	if prior, err := s.priorTransaction(ctx, idemKey); err != nil {
		return "", err
	} else if prior != nil {
		return prior.ID, nil
	}
	txID := uuid.NewString()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var deal domain.Deal
		if err := tx.Where("id = ?", dealID).First(&deal).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDealNotFound
			}
			return err
		}
		if !deal.Active {
			return ErrDealNotFound
		}
		if user.Sponsored {
			// Sponsorship waives the price entirely; no balance mutation
			if err := journalID(tx, txID, username, 0, domain.TxPurchase, &deal.ID, idemKey); err != nil {
				return err
			}
			return upsertPricing(tx, username, 0, "sponsored", false)
		}
		if deal.PriceCents > 0 {
			if err := ensureWallet(tx, username); err != nil {
				return err
			}
			res := tx.Model(&domain.Wallet{}).
				Where("username = ? AND balance_cents >= ?", username, deal.PriceCents).
				Update("balance_cents", gorm.Expr("balance_cents - ?", deal.PriceCents))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return ErrInsufficientFunds
			}
		}
		if err := journalID(tx, txID, username, -deal.PriceCents, domain.TxPurchase, &deal.ID, idemKey); err != nil {
			return err
		}
		return upsertPricing(tx, username, deal.PriceCents, "deal", true)
	})
	if err != nil {
		if idemKey != "" && isDuplicateErr(err) {
			if prior, perr := s.priorTransaction(ctx, idemKey); perr == nil && prior != nil {
				return prior.ID, nil
			}
		}
		if !errors.Is(err, ErrInsufficientFunds) && !errors.Is(err, ErrDealNotFound) {
			logrus.WithFields(logrus.Fields{
				"username": username,
				"deal_id":  dealID,
				"error":    err.Error(),
			}).Error("Purchase failed")
		}
		return "", err
	}
	s.invalidateBalance(ctx, username)
	logrus.WithFields(logrus.Fields{
		"username":       username,
		"deal_id":        dealID,
		"transaction_id": txID,
		"sponsored":      user.Sponsored,
	}).Info("Purchase settled")
	return txID, nil
}

// ListTransactions returns a user's journal, newest first
func (s *Service) ListTransactions(ctx context.Context, username string) ([]domain.Transaction, error) {
	username = strings.ToLower(username)
	var txs []domain.Transaction
	err := s.db.WithContext(ctx).
		Where("username = ?", username).
		Order("created_at desc").
		Find(&txs).Error
	return txs, err
}

// priorTransaction looks up a journal entry by idempotency key.
// An empty key never matches.
func (s *Service) priorTransaction(ctx context.Context, idemKey string) (*domain.Transaction, error) {
	if idemKey == "" {
		return nil, nil
	}
	var prior domain.Transaction
	err := s.db.WithContext(ctx).Where("idempotency_key = ?", idemKey).First(&prior).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &prior, nil
}

// readBalance bypasses the cache for post-replay reads
func (s *Service) readBalance(ctx context.Context, username string) (int64, error) {
	var w domain.Wallet
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return w.BalanceCents, nil
}

// invalidateBalance drops the cached balance after a mutation
func (s *Service) invalidateBalance(ctx context.Context, username string) {
	if s.rdb != nil {
		_ = utils.DeleteCache(ctx, s.rdb, "wallet:user:"+username)
	}
}

// ensureWallet creates the zero-balance wallet row if absent
func ensureWallet(tx *gorm.DB, username string) error {
	var w domain.Wallet
	return tx.Where(domain.Wallet{Username: username}).FirstOrCreate(&w).Error
}

// journal appends a settled transaction with a fresh id
func journal(tx *gorm.DB, username string, amountCents int64, kind string, dealID *string, idemKey string) error {
	return journalID(tx, uuid.NewString(), username, amountCents, kind, dealID, idemKey)
}

// journalID appends a settled transaction under the given id
func journalID(tx *gorm.DB, id, username string, amountCents int64, kind string, dealID *string, idemKey string) error {
	now := time.Now()
	entry := domain.Transaction{
		ID:          id,
		Username:    username,
		AmountCents: amountCents,
		Kind:        kind,
		DealID:      dealID,
		Status:      domain.TxSettled,
		SettledAt:   &now,
	}
	if idemKey != "" {
		entry.IdempotencyKey = &idemKey
	}
	return tx.Create(&entry).Error
}

// upsertPricing snapshots the effective price for a user at purchase
func upsertPricing(tx *gorm.DB, username string, priceCents int64, tier string, autoGenerated bool) error {
	pricing := domain.Pricing{
		Username:      username,
		PriceCents:    priceCents,
		Tier:          tier,
		AutoGenerated: autoGenerated,
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		UpdateAll: true,
	}).Create(&pricing).Error
}

// isDuplicateErr catches unique-index violations across drivers
func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
