package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/csschan/unitpay-sub001/internal/models"

	"gorm.io/gorm"
)

// ErrStaleState concurrent modification detected by the status CAS. The
// caller should re-fetch and re-decide; it may retry automatically once.
var ErrStaleState = errors.New("payment intent modified concurrently")

// ErrIntentNotFound no payment intent with the given id.
var ErrIntentNotFound = errors.New("payment intent not found")

// TransitionPatch optional fields applied together with a status transition.
type TransitionPatch struct {
	LPWalletAddress  *string
	LPID             *string
	ExpiresAt        *time.Time
	Proof            *models.PaymentProof
	SettlementTxHash string
	ErrorDetails     string
	ReclaimCount     *int
	Note             string
	TxHash           string

	// ClearClaim nulls the LP binding and expiry, returning the intent to
	// the open pool.
	ClearClaim bool
}

// TaskPoolFilter filters for the LP task pool query.
type TaskPoolFilter struct {
	Platform  models.PaymentPlatform
	MinAmount *float64
	MaxAmount *float64
}

// PaymentIntentRepository defines data access for payment intents. The
// Transition CAS is the only way an intent's status changes.
type PaymentIntentRepository interface {
	Create(ctx context.Context, intent *models.PaymentIntent) error
	GetByID(ctx context.Context, id string) (*models.PaymentIntent, error)
	FindByUser(ctx context.Context, walletAddress string) ([]*models.PaymentIntent, error)
	FindByLP(ctx context.Context, walletAddress string) ([]*models.PaymentIntent, error)

	// TaskPool returns claimable intents plus the LP's own in-flight ones.
	TaskPool(ctx context.Context, lpWalletAddress string, filter TaskPoolFilter) ([]*models.PaymentIntent, error)

	// Transition is a compare-and-swap on status: it fails with ErrStaleState
	// unless the intent's status still equals from at the moment of the
	// write. Exactly one history entry is appended per successful call.
	Transition(ctx context.Context, id string, from, to models.PaymentIntentStatus, patch TransitionPatch) (*models.PaymentIntent, error)

	// FindExpiredClaimed returns claimed intents whose expires_at passed.
	FindExpiredClaimed(ctx context.Context, now time.Time) ([]*models.PaymentIntent, error)
}

type paymentIntentRepository struct {
	db *gorm.DB
}

// NewPaymentIntentRepository creates a PaymentIntentRepository instance.
func NewPaymentIntentRepository(db *gorm.DB) PaymentIntentRepository {
	return &paymentIntentRepository{db: db}
}

func (r *paymentIntentRepository) Create(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).Create(intent).Error
}

func (r *paymentIntentRepository) GetByID(ctx context.Context, id string) (*models.PaymentIntent, error) {
	var intent models.PaymentIntent
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&intent).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, err
	}
	return &intent, nil
}

func (r *paymentIntentRepository) FindByUser(ctx context.Context, walletAddress string) ([]*models.PaymentIntent, error) {
	var intents []*models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("user_wallet_address = ?", walletAddress).
		Order("created_at DESC").
		Find(&intents).Error
	return intents, err
}

func (r *paymentIntentRepository) FindByLP(ctx context.Context, walletAddress string) ([]*models.PaymentIntent, error) {
	var intents []*models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("lp_wallet_address = ?", walletAddress).
		Order("created_at DESC").
		Find(&intents).Error
	return intents, err
}

func (r *paymentIntentRepository) TaskPool(ctx context.Context, lpWalletAddress string, filter TaskPoolFilter) ([]*models.PaymentIntent, error) {
	claimable := r.db.WithContext(ctx).
		Where("status = ?", models.PaymentIntentStatusCreated)
	mine := r.db.WithContext(ctx).
		Where("lp_wallet_address = ? AND status IN ?", lpWalletAddress, []models.PaymentIntentStatus{
			models.PaymentIntentStatusClaimed,
			models.PaymentIntentStatusPaid,
			models.PaymentIntentStatusConfirmed,
			models.PaymentIntentStatusUserConfirmed,
			models.PaymentIntentStatusProcessing,
			models.PaymentIntentStatusSettled,
		})

	for _, q := range []*gorm.DB{claimable, mine} {
		if filter.Platform != "" {
			q.Where("platform = ?", filter.Platform)
		}
		if filter.MinAmount != nil {
			q.Where("amount >= ?", *filter.MinAmount)
		}
		if filter.MaxAmount != nil {
			q.Where("amount <= ?", *filter.MaxAmount)
		}
	}

	var pool []*models.PaymentIntent
	if err := claimable.Order("created_at DESC").Find(&pool).Error; err != nil {
		return nil, err
	}
	var own []*models.PaymentIntent
	if err := mine.Order("created_at DESC").Find(&own).Error; err != nil {
		return nil, err
	}
	return append(pool, own...), nil
}

func (r *paymentIntentRepository) Transition(ctx context.Context, id string, from, to models.PaymentIntentStatus, patch TransitionPatch) (*models.PaymentIntent, error) {
	intent, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if intent.Status != from {
		return nil, ErrStaleState
	}

	record := models.TransitionRecord{
		Status:    to,
		Timestamp: time.Now(),
		Note:      patch.Note,
		TxHash:    patch.TxHash,
		Proof:     patch.Proof,
	}
	history := append(append(models.StatusHistory{}, intent.StatusHistory...), record)
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status history: %w", err)
	}

	// JSON columns are marshaled by hand: gorm serializers cover struct
	// writes, not map-based Updates.
	updates := map[string]interface{}{
		"status":         to,
		"version":        intent.Version + 1,
		"status_history": string(historyJSON),
		"updated_at":     time.Now(),
	}
	if patch.LPWalletAddress != nil {
		updates["lp_wallet_address"] = *patch.LPWalletAddress
	}
	if patch.LPID != nil {
		updates["lp_id"] = *patch.LPID
	}
	if patch.ExpiresAt != nil {
		updates["expires_at"] = *patch.ExpiresAt
	}
	if patch.Proof != nil {
		proofJSON, err := json.Marshal(patch.Proof)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payment proof: %w", err)
		}
		updates["payment_proof"] = string(proofJSON)
	}
	if patch.SettlementTxHash != "" {
		updates["settlement_tx_hash"] = patch.SettlementTxHash
	}
	if patch.ErrorDetails != "" {
		updates["error_details"] = patch.ErrorDetails
	}
	if patch.ReclaimCount != nil {
		updates["reclaim_count"] = *patch.ReclaimCount
	}
	if patch.ClearClaim {
		updates["lp_wallet_address"] = nil
		updates["lp_id"] = nil
		updates["expires_at"] = nil
	}

	// The WHERE clause is the CAS: status and version must both still match
	// the copy we read. Zero rows affected means another caller won the race.
	result := r.db.WithContext(ctx).
		Model(&models.PaymentIntent{}).
		Where("id = ? AND status = ? AND version = ?", id, from, intent.Version).
		Updates(updates)

	if result.Error != nil {
		return nil, fmt.Errorf("failed to transition payment intent: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		log.Printf("⚠️ [IntentRepo] CAS lost for intent %s (%s -> %s)", id, from, to)
		return nil, ErrStaleState
	}

	return r.GetByID(ctx, id)
}

func (r *paymentIntentRepository) FindExpiredClaimed(ctx context.Context, now time.Time) ([]*models.PaymentIntent, error) {
	var intents []*models.PaymentIntent
	err := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.PaymentIntentStatusClaimed, now).
		Find(&intents).Error
	return intents, err
}
