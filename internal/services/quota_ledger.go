package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/csschan/unitpay-sub001/internal/metrics"
	"github.com/csschan/unitpay-sub001/internal/models"
	"github.com/csschan/unitpay-sub001/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuotaLedger per-LP exposure accounting. Reserve and Release are the only
// paths that touch an LP's quota columns; the guarded SQL updates in the LP
// repository make each call atomic, so no read-after-write verification is
// needed and concurrent reserves can never together exceed the total quota.
type QuotaLedger struct {
	db     *gorm.DB
	lpRepo repository.LPRepository
}

// NewQuotaLedger creates a QuotaLedger.
func NewQuotaLedger(db *gorm.DB, lpRepo repository.LPRepository) *QuotaLedger {
	return &QuotaLedger{db: db, lpRepo: lpRepo}
}

// Reserve locks amount of the LP's credit line for one payment intent and
// returns the reservation token. Fails with ErrInsufficientQuota when the
// amount exceeds the available or per-transaction quota.
func (l *QuotaLedger) Reserve(ctx context.Context, lpID, paymentIntentID string, amount float64) (*models.QuotaReservation, error) {
	if amount <= 0 {
		return nil, NewValidationError("amount", "must be positive")
	}

	if err := l.lpRepo.LockQuota(ctx, lpID, amount); err != nil {
		if errors.Is(err, repository.ErrQuotaExceeded) {
			return nil, ErrInsufficientQuota
		}
		return nil, fmt.Errorf("failed to reserve quota: %w", err)
	}

	reservation := &models.QuotaReservation{
		ID:              uuid.New().String(),
		LPID:            lpID,
		PaymentIntentID: paymentIntentID,
		Amount:          amount,
		Status:          models.ReservationStatusHeld,
	}
	if err := l.db.WithContext(ctx).Create(reservation).Error; err != nil {
		// The quota is locked but the token failed to persist; undo the lock
		// so the ledger stays consistent.
		if unlockErr := l.lpRepo.UnlockQuota(ctx, lpID, amount); unlockErr != nil {
			log.Printf("❌ [QuotaLedger] Failed to roll back quota lock for LP %s: %v", lpID, unlockErr)
		}
		return nil, fmt.Errorf("failed to persist reservation: %w", err)
	}

	metrics.QuotaReservationsTotal.WithLabelValues("reserved").Inc()
	l.observeLockedQuota(ctx, lpID)
	log.Printf("✅ [QuotaLedger] Reserved %.2f for LP %s (intent %s, reservation %s)",
		amount, lpID, paymentIntentID, reservation.ID)
	return reservation, nil
}

// Release returns a reservation's amount to the LP's available quota.
// Idempotent: the held->released flip is guarded, so the timeout sweeper and
// the normal completion path can race without double-crediting.
func (l *QuotaLedger) Release(ctx context.Context, reservationID string) error {
	var reservation models.QuotaReservation
	if err := l.db.WithContext(ctx).Where("id = ?", reservationID).First(&reservation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("reservation %s not found", reservationID)
		}
		return err
	}

	now := time.Now()
	result := l.db.WithContext(ctx).
		Model(&models.QuotaReservation{}).
		Where("id = ? AND status = ?", reservationID, models.ReservationStatusHeld).
		Updates(map[string]interface{}{
			"status":      models.ReservationStatusReleased,
			"released_at": now,
			"updated_at":  now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to release reservation: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Already released by the racing path; nothing left to do.
		return nil
	}

	if err := l.lpRepo.UnlockQuota(ctx, reservation.LPID, reservation.Amount); err != nil {
		return fmt.Errorf("failed to unlock quota: %w", err)
	}

	metrics.QuotaReservationsTotal.WithLabelValues("released").Inc()
	l.observeLockedQuota(ctx, reservation.LPID)
	log.Printf("✅ [QuotaLedger] Released %.2f for LP %s (reservation %s)",
		reservation.Amount, reservation.LPID, reservationID)
	return nil
}

func (l *QuotaLedger) observeLockedQuota(ctx context.Context, lpID string) {
	lp, err := l.lpRepo.GetByID(ctx, lpID)
	if err != nil {
		return
	}
	metrics.LPLockedQuota.WithLabelValues(lp.WalletAddress).Set(lp.LockedQuota)
}

// ReleaseByIntent releases the held reservation bound to a payment intent,
// if any. Used by the timeout sweeper and cancellation, which know the
// intent but not the reservation token.
func (l *QuotaLedger) ReleaseByIntent(ctx context.Context, paymentIntentID string) error {
	var reservation models.QuotaReservation
	err := l.db.WithContext(ctx).
		Where("payment_intent_id = ? AND status = ?", paymentIntentID, models.ReservationStatusHeld).
		First(&reservation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}
	return l.Release(ctx, reservation.ID)
}

// Committed returns the LP's current locked quota.
func (l *QuotaLedger) Committed(ctx context.Context, lpID string) (float64, error) {
	lp, err := l.lpRepo.GetByID(ctx, lpID)
	if err != nil {
		return 0, err
	}
	return lp.LockedQuota, nil
}
