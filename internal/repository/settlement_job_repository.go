package repository

import (
	"context"
	"errors"
	"time"

	"github.com/csschan/unitpay-sub001/internal/models"

	"gorm.io/gorm"
)

// ErrJobNotFound no settlement job with the given id/intent.
var ErrJobNotFound = errors.New("settlement job not found")

// SettlementJobRepository defines data access for the settlement queue.
type SettlementJobRepository interface {
	Enqueue(ctx context.Context, job *models.SettlementJob) error
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.SettlementJob, error)

	// ClaimNext flips the oldest due pending job to processing and returns
	// it. The guarded update makes each job consumable by exactly one
	// worker; nil job means the queue is drained.
	ClaimNext(ctx context.Context, now time.Time) (*models.SettlementJob, error)

	MarkSubmitted(ctx context.Context, id, txHash string) error
	MarkCompleted(ctx context.Context, id, txHash string) error

	// Requeue schedules a retry at nextRetryAt, recording the error.
	Requeue(ctx context.Context, id string, retryCount int, nextRetryAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id, lastError string) error

	// FindProcessing returns all jobs currently in processing. The sweeper
	// applies each job's own processing timeout.
	FindProcessing(ctx context.Context) ([]*models.SettlementJob, error)
}

type settlementJobRepository struct {
	db *gorm.DB
}

// NewSettlementJobRepository creates a SettlementJobRepository instance.
func NewSettlementJobRepository(db *gorm.DB) SettlementJobRepository {
	return &settlementJobRepository{db: db}
}

func (r *settlementJobRepository) Enqueue(ctx context.Context, job *models.SettlementJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *settlementJobRepository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.SettlementJob, error) {
	var job models.SettlementJob
	err := r.db.WithContext(ctx).Where("payment_intent_id = ?", paymentIntentID).First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *settlementJobRepository) ClaimNext(ctx context.Context, now time.Time) (*models.SettlementJob, error) {
	var job models.SettlementJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND (next_retry_at IS NULL OR next_retry_at <= ?)", models.SettlementJobStatusPending, now).
		Order("created_at ASC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	result := r.db.WithContext(ctx).
		Model(&models.SettlementJob{}).
		Where("id = ? AND status = ?", job.ID, models.SettlementJobStatusPending).
		Updates(map[string]interface{}{
			"status":     models.SettlementJobStatusProcessing,
			"started_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		// Another worker took it; caller loops and tries the next one.
		return nil, nil
	}

	job.Status = models.SettlementJobStatusProcessing
	job.StartedAt = &now
	return &job, nil
}

func (r *settlementJobRepository) MarkSubmitted(ctx context.Context, id, txHash string) error {
	return r.db.WithContext(ctx).
		Model(&models.SettlementJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.SettlementJobStatusSubmitted,
			"tx_hash":    txHash,
			"updated_at": time.Now(),
		}).Error
}

func (r *settlementJobRepository) MarkCompleted(ctx context.Context, id, txHash string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.SettlementJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.SettlementJobStatusCompleted,
			"tx_hash":      txHash,
			"completed_at": now,
			"updated_at":   now,
		}).Error
}

func (r *settlementJobRepository) Requeue(ctx context.Context, id string, retryCount int, nextRetryAt time.Time, lastError string) error {
	return r.db.WithContext(ctx).
		Model(&models.SettlementJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        models.SettlementJobStatusPending,
			"retry_count":   retryCount,
			"next_retry_at": nextRetryAt,
			"started_at":    nil,
			"last_error":    lastError,
			"updated_at":    time.Now(),
		}).Error
}

func (r *settlementJobRepository) MarkFailed(ctx context.Context, id, lastError string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.SettlementJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.SettlementJobStatusFailed,
			"last_error":   lastError,
			"completed_at": now,
			"updated_at":   now,
		}).Error
}

func (r *settlementJobRepository) FindProcessing(ctx context.Context) ([]*models.SettlementJob, error) {
	var jobs []*models.SettlementJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND started_at IS NOT NULL", models.SettlementJobStatusProcessing).
		Find(&jobs).Error
	return jobs, err
}
