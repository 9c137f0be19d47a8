package services

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"

	"github.com/csschan/unitpay-sub001/internal/models"
)

// fakeSubmitter stands in for the chain client.
type fakeSubmitter struct {
	mu          sync.Mutex
	submitted   []*big.Int
	submitErr   error
	receiptErr  error
	nextTxHash  string
	receiptWait time.Duration
}

func (f *fakeSubmitter) SubmitSettlement(ctx context.Context, to string, amount *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, amount)
	if f.nextTxHash == "" {
		return "0xfaketx", nil
	}
	return f.nextTxHash, nil
}

func (f *fakeSubmitter) WaitForReceipt(ctx context.Context, txHash string) (*ethtypes.Receipt, error) {
	if f.receiptWait > 0 {
		select {
		case <-time.After(f.receiptWait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, BlockNumber: big.NewInt(1)}, nil
}

func (e *testEnv) queue(submitter SettlementSubmitter) *SettlementQueueService {
	return NewSettlementQueueService(e.jobRepo, e.intentRepo, submitter, e.emitter)
}

func claimedIntent(t *testing.T, e *testEnv, status models.PaymentIntentStatus, amount float64) *models.PaymentIntent {
	t.Helper()

	intent := seedIntent(t, e, status, amount)
	wallet := testLPWallet
	assert.NoError(t, e.db.Model(&models.PaymentIntent{}).
		Where("id = ?", intent.ID).Update("lp_wallet_address", wallet).Error)
	intent.LPWalletAddress = &wallet
	return intent
}

func TestEnqueueForIntent(t *testing.T) {
	env := newTestEnv(t)
	queue := env.queue(&fakeSubmitter{})
	ctx := context.Background()

	t.Run("Confirmed Intent Enqueues And Flips To Processing", func(t *testing.T) {
		intent := claimedIntent(t, env, models.PaymentIntentStatusConfirmed, 120)

		job, err := queue.EnqueueForIntent(ctx, intent.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.SettlementJobStatusPending, job.Status)
		assert.Equal(t, intent.ID, job.PaymentIntentID)
		assert.Equal(t, testLPWallet, job.LPAddress)
		assert.Equal(t, 3, job.MaxRetries)

		current, err := env.intentRepo.GetByID(ctx, intent.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.PaymentIntentStatusProcessing, current.Status)
	})

	t.Run("User Confirmed Also Accepted", func(t *testing.T) {
		intent := claimedIntent(t, env, models.PaymentIntentStatusUserConfirmed, 80)
		_, err := queue.EnqueueForIntent(ctx, intent.ID)
		assert.NoError(t, err)
	})

	t.Run("Configured Retry Budget Is Stamped", func(t *testing.T) {
		tuned := env.queue(&fakeSubmitter{}).WithMaxRetries(7)
		intent := claimedIntent(t, env, models.PaymentIntentStatusConfirmed, 45)

		job, err := tuned.EnqueueForIntent(ctx, intent.ID)
		assert.NoError(t, err)
		assert.Equal(t, 7, job.MaxRetries)
	})

	t.Run("Double Enqueue Returns Existing Job", func(t *testing.T) {
		intent := claimedIntent(t, env, models.PaymentIntentStatusConfirmed, 60)

		first, err := queue.EnqueueForIntent(ctx, intent.ID)
		assert.NoError(t, err)

		// re-confirm wouldn't happen in practice; simulate a duplicate request
		// racing before the intent flipped by resetting the status
		assert.NoError(t, env.db.Model(&models.PaymentIntent{}).
			Where("id = ?", intent.ID).Update("status", models.PaymentIntentStatusConfirmed).Error)

		second, err := queue.EnqueueForIntent(ctx, intent.ID)
		assert.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
	})

	t.Run("Wrong Status Rejected", func(t *testing.T) {
		intent := claimedIntent(t, env, models.PaymentIntentStatusPaid, 40)
		_, err := queue.EnqueueForIntent(ctx, intent.ID)
		var serr *InvalidStateTransitionError
		assert.ErrorAs(t, err, &serr)
	})

	t.Run("No LP Rejected", func(t *testing.T) {
		intent := seedIntent(t, env, models.PaymentIntentStatusConfirmed, 40)
		_, err := queue.EnqueueForIntent(ctx, intent.ID)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	})
}

func TestProcessJobSettles(t *testing.T) {
	env := newTestEnv(t)
	submitter := &fakeSubmitter{}
	queue := env.queue(submitter)
	ctx := context.Background()

	intent := claimedIntent(t, env, models.PaymentIntentStatusConfirmed, 150)
	_, err := queue.EnqueueForIntent(ctx, intent.ID)
	assert.NoError(t, err)

	job, err := env.jobRepo.ClaimNext(ctx, time.Now())
	assert.NoError(t, err)
	assert.NotNil(t, job)

	queue.processJob(ctx, 0, job)

	settled, err := env.intentRepo.GetByID(ctx, intent.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentIntentStatusSettled, settled.Status)
	assert.Equal(t, "0xfaketx", settled.SettlementTxHash)

	done, err := env.jobRepo.GetByPaymentIntentID(ctx, intent.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.SettlementJobStatusCompleted, done.Status)

	// 150 fiat units settle as 150e6 token units
	assert.Len(t, submitter.submitted, 1)
	assert.Equal(t, big.NewInt(150_000_000), submitter.submitted[0])
	assert.True(t, env.emitter.has(EventPaymentIntentSettled))
}

func TestProcessJobIdempotence(t *testing.T) {
	env := newTestEnv(t)
	submitter := &fakeSubmitter{}
	queue := env.queue(submitter)
	ctx := context.Background()

	intent := claimedIntent(t, env, models.PaymentIntentStatusConfirmed, 90)
	_, err := queue.EnqueueForIntent(ctx, intent.ID)
	assert.NoError(t, err)

	// the intent already settled elsewhere (crash replay scenario)
	assert.NoError(t, env.db.Model(&models.PaymentIntent{}).
		Where("id = ?", intent.ID).Updates(map[string]interface{}{
		"status":             models.PaymentIntentStatusSettled,
		"settlement_tx_hash": "0xearlier",
	}).Error)

	job, err := env.jobRepo.ClaimNext(ctx, time.Now())
	assert.NoError(t, err)
	queue.processJob(ctx, 0, job)

	assert.Empty(t, submitter.submitted, "no second settlement submitted")

	done, err := env.jobRepo.GetByPaymentIntentID(ctx, intent.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.SettlementJobStatusCompleted, done.Status)
	assert.Equal(t, "0xearlier", done.TxHash)
}

func TestProcessJobResumesSubmittedTx(t *testing.T) {
	env := newTestEnv(t)
	submitter := &fakeSubmitter{}
	queue := env.queue(submitter)
	ctx := context.Background()

	intent := claimedIntent(t, env, models.PaymentIntentStatusConfirmed, 70)
	enqueued, err := queue.EnqueueForIntent(ctx, intent.ID)
	assert.NoError(t, err)

	// a previous attempt submitted but crashed before the receipt
	assert.NoError(t, env.jobRepo.MarkSubmitted(ctx, enqueued.ID, "0xinflight"))
	assert.NoError(t, env.db.Model(&models.SettlementJob{}).
		Where("id = ?", enqueued.ID).Update("status", models.SettlementJobStatusPending).Error)

	job, err := env.jobRepo.ClaimNext(ctx, time.Now())
	assert.NoError(t, err)
	queue.processJob(ctx, 0, job)

	assert.Empty(t, submitter.submitted, "existing tx is awaited, not resubmitted")

	settled, err := env.intentRepo.GetByID(ctx, intent.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.PaymentIntentStatusSettled, settled.Status)
	assert.Equal(t, "0xinflight", settled.SettlementTxHash)
}

func TestRetryOrFail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	t.Run("Transient Failure Requeues With Backoff", func(t *testing.T) {
		submitter := &fakeSubmitter{submitErr: errors.New("rpc unavailable")}
		queue := env.queue(submitter)

		intent := claimedIntent(t, env, models.PaymentIntentStatusConfirmed, 30)
		_, err := queue.EnqueueForIntent(ctx, intent.ID)
		assert.NoError(t, err)

		job, err := env.jobRepo.ClaimNext(ctx, time.Now())
		assert.NoError(t, err)
		queue.processJob(ctx, 0, job)

		requeued, err := env.jobRepo.GetByPaymentIntentID(ctx, intent.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.SettlementJobStatusPending, requeued.Status)
		assert.Equal(t, 1, requeued.RetryCount)
		assert.NotNil(t, requeued.NextRetryAt)
		assert.WithinDuration(t, time.Now().Add(30*time.Second), *requeued.NextRetryAt, 5*time.Second)
		assert.Contains(t, requeued.LastError, "rpc unavailable")

		// the intent stays in processing until the retry budget is spent
		current, err := env.intentRepo.GetByID(ctx, intent.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.PaymentIntentStatusProcessing, current.Status)
	})

	t.Run("Exhausted Budget Fails Job And Intent", func(t *testing.T) {
		submitter := &fakeSubmitter{receiptErr: errors.New("transaction reverted")}
		queue := env.queue(submitter)

		intent := claimedIntent(t, env, models.PaymentIntentStatusConfirmed, 20)
		enqueued, err := queue.EnqueueForIntent(ctx, intent.ID)
		assert.NoError(t, err)
		assert.NoError(t, env.db.Model(&models.SettlementJob{}).
			Where("id = ?", enqueued.ID).Update("retry_count", enqueued.MaxRetries).Error)

		job, err := env.jobRepo.ClaimNext(ctx, time.Now())
		assert.NoError(t, err)
		queue.processJob(ctx, 0, job)

		failed, err := env.jobRepo.GetByPaymentIntentID(ctx, intent.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.SettlementJobStatusFailed, failed.Status)

		current, err := env.intentRepo.GetByID(ctx, intent.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.PaymentIntentStatusFailed, current.Status)
		assert.Contains(t, current.ErrorDetails, "terminal")
		assert.True(t, env.emitter.has(EventPaymentIntentFailed))
	})
}

func TestSettlementStartStop(t *testing.T) {
	env := newTestEnv(t)
	queue := env.queue(&fakeSubmitter{}).WithWorkers(2).WithPollInterval(10 * time.Millisecond)

	queue.Start()
	queue.Start() // second start is a no-op
	time.Sleep(30 * time.Millisecond)
	queue.Stop()
	queue.Stop() // second stop is a no-op
}
