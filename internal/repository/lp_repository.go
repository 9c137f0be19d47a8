package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/csschan/unitpay-sub001/internal/models"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

// ErrLPNotFound no LP registered for the given id/address.
var ErrLPNotFound = errors.New("lp not found")

// ErrLPExists wallet address already registered as an LP.
var ErrLPExists = errors.New("wallet address already registered as LP")

// ErrQuotaExceeded the guarded quota update matched no row: either the
// amount exceeds the remaining capacity or the LP is inactive.
var ErrQuotaExceeded = errors.New("quota update rejected")

const pqUniqueViolation = "23505"

// LPRepository defines data access for liquidity providers. The three quota
// columns are mutated exclusively through the guarded Lock/Unlock updates.
type LPRepository interface {
	Create(ctx context.Context, lp *models.LP) error
	GetByID(ctx context.Context, id string) (*models.LP, error)
	GetByWalletAddress(ctx context.Context, walletAddress string) (*models.LP, error)
	FindActive(ctx context.Context) ([]*models.LP, error)
	UpdateQuotaLimits(ctx context.Context, walletAddress string, totalQuota, perTransactionQuota float64) (*models.LP, error)

	// LockQuota atomically moves amount from available to locked. The WHERE
	// clause enforces both quota ceilings; no row updated means rejection,
	// never partial state.
	LockQuota(ctx context.Context, lpID string, amount float64) error

	// UnlockQuota moves amount back from locked to available, floored at
	// zero against double-release.
	UnlockQuota(ctx context.Context, lpID string, amount float64) error
}

type lpRepository struct {
	db *gorm.DB
}

// NewLPRepository creates an LPRepository instance.
func NewLPRepository(db *gorm.DB) LPRepository {
	return &lpRepository{db: db}
}

func (r *lpRepository) Create(ctx context.Context, lp *models.LP) error {
	if err := r.db.WithContext(ctx).Create(lp).Error; err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return ErrLPExists
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrLPExists
		}
		return err
	}
	return nil
}

func (r *lpRepository) GetByID(ctx context.Context, id string) (*models.LP, error) {
	var lp models.LP
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&lp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLPNotFound
		}
		return nil, err
	}
	return &lp, nil
}

func (r *lpRepository) GetByWalletAddress(ctx context.Context, walletAddress string) (*models.LP, error) {
	var lp models.LP
	err := r.db.WithContext(ctx).Where("wallet_address = ?", walletAddress).First(&lp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLPNotFound
		}
		return nil, err
	}
	return &lp, nil
}

func (r *lpRepository) FindActive(ctx context.Context) ([]*models.LP, error) {
	var lps []*models.LP
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("fee_rate ASC").
		Find(&lps).Error
	return lps, err
}

func (r *lpRepository) UpdateQuotaLimits(ctx context.Context, walletAddress string, totalQuota, perTransactionQuota float64) (*models.LP, error) {
	result := r.db.WithContext(ctx).
		Model(&models.LP{}).
		Where("wallet_address = ?", walletAddress).
		Updates(map[string]interface{}{
			"total_quota":           totalQuota,
			"per_transaction_quota": perTransactionQuota,
			"available_quota":       gorm.Expr("? - locked_quota", totalQuota),
			"updated_at":            time.Now(),
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrLPNotFound
	}
	return r.GetByWalletAddress(ctx, walletAddress)
}

func (r *lpRepository) LockQuota(ctx context.Context, lpID string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("lock amount must be positive, got %f", amount)
	}

	result := r.db.WithContext(ctx).
		Model(&models.LP{}).
		Where("id = ? AND is_active = ? AND total_quota - locked_quota >= ? AND per_transaction_quota >= ?",
			lpID, true, amount, amount).
		Updates(map[string]interface{}{
			"locked_quota":    gorm.Expr("locked_quota + ?", amount),
			"available_quota": gorm.Expr("total_quota - (locked_quota + ?)", amount),
			"updated_at":      time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to lock quota: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrQuotaExceeded
	}
	return nil
}

func (r *lpRepository) UnlockQuota(ctx context.Context, lpID string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("unlock amount must be positive, got %f", amount)
	}

	// Common path: enough locked quota to subtract outright.
	result := r.db.WithContext(ctx).
		Model(&models.LP{}).
		Where("id = ? AND locked_quota >= ?", lpID, amount).
		Updates(map[string]interface{}{
			"locked_quota":    gorm.Expr("locked_quota - ?", amount),
			"available_quota": gorm.Expr("total_quota - (locked_quota - ?)", amount),
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to unlock quota: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// Floor at zero: less locked than requested (quota limits were lowered
	// administratively mid-claim). Clamp rather than go negative.
	result = r.db.WithContext(ctx).
		Model(&models.LP{}).
		Where("id = ? AND locked_quota < ?", lpID, amount).
		Updates(map[string]interface{}{
			"locked_quota":    0,
			"available_quota": gorm.Expr("total_quota"),
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to clamp locked quota: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrLPNotFound
	}
	log.Printf("⚠️ [LPRepo] Locked quota clamped to zero for LP %s (release of %.2f exceeded balance)", lpID, amount)
	return nil
}
