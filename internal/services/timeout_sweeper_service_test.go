package services

import (
	"context"
	"testing"
	"time"

	"github.com/csschan/unitpay-sub001/internal/models"

	"github.com/stretchr/testify/assert"
)

func (e *testEnv) sweeper() *TimeoutSweeperService {
	return NewTimeoutSweeperService(e.intentRepo, e.jobRepo, e.ledger, e.emitter)
}

// expireClaim backdates a claimed intent's payment window.
func expireClaim(t *testing.T, e *testEnv, intentID string) {
	t.Helper()
	past := time.Now().Add(-time.Minute)
	assert.NoError(t, e.db.Model(&models.PaymentIntent{}).
		Where("id = ?", intentID).Update("expires_at", past).Error)
}

func TestSweepExpiredClaims(t *testing.T) {
	env := newTestEnv(t)
	coordinator := env.coordinator()
	sweeper := env.sweeper().WithMaxReclaims(2)
	ctx := context.Background()
	lp := seedLP(t, env, testLPWallet, models.PlatformGCash)

	t.Run("Expired Claim Returns To Pool", func(t *testing.T) {
		intent := seedIntent(t, env, models.PaymentIntentStatusCreated, 200)
		_, err := coordinator.Claim(ctx, intent.ID, testLPWallet)
		assert.NoError(t, err)
		expireClaim(t, env, intent.ID)

		sweeper.SweepOnce(ctx)

		reclaimed, err := env.intentRepo.GetByID(ctx, intent.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.PaymentIntentStatusCreated, reclaimed.Status)
		assert.Nil(t, reclaimed.LPWalletAddress)
		assert.Nil(t, reclaimed.ExpiresAt)
		assert.Equal(t, 1, reclaimed.ReclaimCount)

		committed, err := env.ledger.Committed(ctx, lp.ID)
		assert.NoError(t, err)
		assert.Equal(t, 0.0, committed, "quota released on reclaim")
		assert.True(t, env.emitter.has(EventPaymentIntentReclaimed))
	})

	t.Run("Reclaim Limit Cancels The Intent", func(t *testing.T) {
		intent := seedIntent(t, env, models.PaymentIntentStatusCreated, 100)
		assert.NoError(t, env.db.Model(&models.PaymentIntent{}).
			Where("id = ?", intent.ID).Update("reclaim_count", 2).Error)
		_, err := coordinator.Claim(ctx, intent.ID, testLPWallet)
		assert.NoError(t, err)
		expireClaim(t, env, intent.ID)

		sweeper.SweepOnce(ctx)

		cancelled, err := env.intentRepo.GetByID(ctx, intent.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.PaymentIntentStatusCancelled, cancelled.Status)
		assert.True(t, env.emitter.has(EventPaymentIntentCancelled))

		committed, err := env.ledger.Committed(ctx, lp.ID)
		assert.NoError(t, err)
		assert.Equal(t, 0.0, committed)
	})

	t.Run("Live Claims Untouched", func(t *testing.T) {
		intent := seedIntent(t, env, models.PaymentIntentStatusCreated, 50)
		_, err := coordinator.Claim(ctx, intent.ID, testLPWallet)
		assert.NoError(t, err)

		sweeper.SweepOnce(ctx)

		current, err := env.intentRepo.GetByID(ctx, intent.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.PaymentIntentStatusClaimed, current.Status)
		assert.Equal(t, 0, current.ReclaimCount)
	})
}

func TestSweepStuckJobs(t *testing.T) {
	env := newTestEnv(t)
	sweeper := env.sweeper()
	ctx := context.Background()

	stickJob := func(t *testing.T, intent *models.PaymentIntent, retryCount int) *models.SettlementJob {
		t.Helper()
		queue := env.queue(&fakeSubmitter{})
		enqueued, err := queue.EnqueueForIntent(ctx, intent.ID)
		assert.NoError(t, err)
		started := time.Now().Add(-time.Hour)
		assert.NoError(t, env.db.Model(&models.SettlementJob{}).
			Where("id = ?", enqueued.ID).Updates(map[string]interface{}{
			"status":      models.SettlementJobStatusProcessing,
			"started_at":  started,
			"retry_count": retryCount,
		}).Error)
		return enqueued
	}

	t.Run("Stuck Job Requeued", func(t *testing.T) {
		intent := claimedIntent(t, env, models.PaymentIntentStatusConfirmed, 100)
		job := stickJob(t, intent, 0)

		sweeper.SweepOnce(ctx)

		got, err := env.jobRepo.GetByPaymentIntentID(ctx, job.PaymentIntentID)
		assert.NoError(t, err)
		assert.Equal(t, models.SettlementJobStatusPending, got.Status)
		assert.Equal(t, 1, got.RetryCount)
		assert.Contains(t, got.LastError, "processing timeout")

		current, err := env.intentRepo.GetByID(ctx, intent.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.PaymentIntentStatusProcessing, current.Status)
	})

	t.Run("Exhausted Stuck Job Fails Terminally", func(t *testing.T) {
		intent := claimedIntent(t, env, models.PaymentIntentStatusConfirmed, 100)
		job := stickJob(t, intent, 3)

		sweeper.SweepOnce(ctx)

		got, err := env.jobRepo.GetByPaymentIntentID(ctx, job.PaymentIntentID)
		assert.NoError(t, err)
		assert.Equal(t, models.SettlementJobStatusFailed, got.Status)

		current, err := env.intentRepo.GetByID(ctx, intent.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.PaymentIntentStatusFailed, current.Status)
		assert.True(t, env.emitter.has(EventPaymentIntentFailed))
	})

	t.Run("Fresh Processing Job Untouched", func(t *testing.T) {
		intent := claimedIntent(t, env, models.PaymentIntentStatusConfirmed, 100)
		queue := env.queue(&fakeSubmitter{})
		enqueued, err := queue.EnqueueForIntent(ctx, intent.ID)
		assert.NoError(t, err)
		assert.NoError(t, env.db.Model(&models.SettlementJob{}).
			Where("id = ?", enqueued.ID).Updates(map[string]interface{}{
			"status":     models.SettlementJobStatusProcessing,
			"started_at": time.Now(),
		}).Error)

		sweeper.SweepOnce(ctx)

		got, err := env.jobRepo.GetByPaymentIntentID(ctx, intent.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.SettlementJobStatusProcessing, got.Status)
	})
}

func TestSweeperStartStop(t *testing.T) {
	env := newTestEnv(t)
	sweeper := env.sweeper().WithInterval(10 * time.Millisecond)

	sweeper.Start()
	sweeper.Start() // no-op
	time.Sleep(30 * time.Millisecond)
	sweeper.Stop()
	sweeper.Stop() // no-op
}
