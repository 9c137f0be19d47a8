package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/csschan/unitpay-sub001/internal/metrics"
	"github.com/csschan/unitpay-sub001/internal/models"
	"github.com/csschan/unitpay-sub001/internal/repository"
)

const (
	defaultSettlementWorkers   = 3
	defaultSettlementPollEvery = 5 * time.Second
	defaultProcessingTimeout   = 5 * time.Minute
	defaultReceiptTimeout      = 2 * time.Minute
	defaultMaxRetries          = 3

	retryBackoffBase = 30 * time.Second
	retryBackoffCap  = 10 * time.Minute
)

// SettlementSubmitter is the on-chain boundary of the settlement queue.
// Satisfied by clients.ChainClient; tests swap in a fake.
type SettlementSubmitter interface {
	SubmitSettlement(ctx context.Context, to string, amount *big.Int) (string, error)
	WaitForReceipt(ctx context.Context, txHash string) (*ethtypes.Receipt, error)
}

// SettlementQueueService drains the durable settlement job table with a
// fixed worker pool. Each job is claimed with a guarded status flip, checked
// against the intent's current status before submitting, and retried with
// exponential backoff on transient chain errors.
type SettlementQueueService struct {
	jobRepo    repository.SettlementJobRepository
	intentRepo repository.PaymentIntentRepository
	submitter  SettlementSubmitter
	emitter    NotificationEmitter

	workers        int
	pollInterval   time.Duration
	receiptTimeout time.Duration
	maxRetries     int

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

func NewSettlementQueueService(
	jobRepo repository.SettlementJobRepository,
	intentRepo repository.PaymentIntentRepository,
	submitter SettlementSubmitter,
	emitter NotificationEmitter,
) *SettlementQueueService {
	return &SettlementQueueService{
		jobRepo:        jobRepo,
		intentRepo:     intentRepo,
		submitter:      submitter,
		emitter:        emitter,
		workers:        defaultSettlementWorkers,
		pollInterval:   defaultSettlementPollEvery,
		receiptTimeout: defaultReceiptTimeout,
		maxRetries:     defaultMaxRetries,
		stopChan:       make(chan struct{}),
	}
}

// WithWorkers sets the worker pool size. Must be called before Start.
func (s *SettlementQueueService) WithWorkers(n int) *SettlementQueueService {
	if n > 0 {
		s.workers = n
	}
	return s
}

// WithPollInterval sets how often idle workers re-check the queue.
func (s *SettlementQueueService) WithPollInterval(d time.Duration) *SettlementQueueService {
	if d > 0 {
		s.pollInterval = d
	}
	return s
}

// WithMaxRetries sets the retry budget stamped onto new jobs.
func (s *SettlementQueueService) WithMaxRetries(n int) *SettlementQueueService {
	if n > 0 {
		s.maxRetries = n
	}
	return s
}

// WithReceiptTimeout bounds how long a worker waits for a tx receipt.
func (s *SettlementQueueService) WithReceiptTimeout(d time.Duration) *SettlementQueueService {
	if d > 0 {
		s.receiptTimeout = d
	}
	return s
}

// Start launches the worker pool.
func (s *SettlementQueueService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	log.Printf("🚀 [SettlementQueue] Starting %d settlement workers (poll every %s)", s.workers, s.pollInterval)
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}
}

// Stop signals the workers and waits for in-flight jobs to finish.
func (s *SettlementQueueService) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	log.Printf("🛑 [SettlementQueue] Stopping settlement workers...")
	close(s.stopChan)
	s.wg.Wait()
	log.Printf("🛑 [SettlementQueue] Settlement workers stopped")
}

// EnqueueForIntent creates the durable job for a confirmed intent and flips
// the intent into processing. The unique index on payment_intent_id makes a
// double enqueue fail loudly instead of settling twice.
func (s *SettlementQueueService) EnqueueForIntent(ctx context.Context, intentID string) (*models.SettlementJob, error) {
	intent, err := s.intentRepo.GetByID(ctx, intentID)
	if err != nil {
		return nil, err
	}

	if intent.Status != models.PaymentIntentStatusConfirmed && intent.Status != models.PaymentIntentStatusUserConfirmed {
		return nil, &InvalidStateTransitionError{
			IntentID: intentID,
			Current:  intent.Status,
			Expected: []models.PaymentIntentStatus{models.PaymentIntentStatusConfirmed, models.PaymentIntentStatusUserConfirmed},
		}
	}
	if intent.LPWalletAddress == nil {
		return nil, NewValidationError("lpWalletAddress", "intent has no claiming LP")
	}

	if existing, err := s.jobRepo.GetByPaymentIntentID(ctx, intentID); err == nil {
		// Settlement already started; hand back the existing job.
		return existing, nil
	} else if !errors.Is(err, repository.ErrJobNotFound) {
		return nil, err
	}

	job := &models.SettlementJob{
		ID:                uuid.New().String(),
		PaymentIntentID:   intent.ID,
		Amount:            intent.Amount,
		UserAddress:       intent.UserWalletAddress,
		LPAddress:         *intent.LPWalletAddress,
		Network:           intent.Network,
		Status:            models.SettlementJobStatusPending,
		MaxRetries:        s.maxRetries,
		ProcessingTimeout: defaultProcessingTimeout,
	}
	if err := s.jobRepo.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue settlement job: %w", err)
	}

	if _, err := s.intentRepo.Transition(ctx, intent.ID,
		intent.Status, models.PaymentIntentStatusProcessing,
		repository.TransitionPatch{Note: "settlement started"}); err != nil {
		return nil, err
	}

	metrics.IntentTransitions.WithLabelValues(string(intent.Status), "processing").Inc()
	metrics.SettlementQueueDepth.Inc()
	log.Printf("📤 [SettlementQueue] Enqueued settlement job %s for intent %s (%.2f to %s on %s)",
		job.ID, intent.ID, job.Amount, job.LPAddress, job.Network)
	return job, nil
}

// Status returns the settlement job for an intent.
func (s *SettlementQueueService) Status(ctx context.Context, intentID string) (*models.SettlementJob, error) {
	return s.jobRepo.GetByPaymentIntentID(ctx, intentID)
}

func (s *SettlementQueueService) workerLoop(id int) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.drainOnce(id)
		}
	}
}

// drainOnce claims and processes jobs until the queue is empty.
func (s *SettlementQueueService) drainOnce(workerID int) {
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		ctx := context.Background()
		job, err := s.jobRepo.ClaimNext(ctx, time.Now())
		if err != nil {
			log.Printf("❌ [SettlementQueue] worker %d failed to claim job: %v", workerID, err)
			return
		}
		if job == nil {
			return
		}
		s.processJob(ctx, workerID, job)
	}
}

func (s *SettlementQueueService) processJob(ctx context.Context, workerID int, job *models.SettlementJob) {
	start := time.Now()
	metrics.SettlementQueueDepth.Dec()
	log.Printf("🔄 [SettlementQueue] worker %d processing job %s (intent %s, attempt %d/%d)",
		workerID, job.ID, job.PaymentIntentID, job.RetryCount+1, job.MaxRetries+1)

	intent, err := s.intentRepo.GetByID(ctx, job.PaymentIntentID)
	if err != nil {
		s.retryOrFail(ctx, job, fmt.Errorf("failed to load intent: %w", err))
		return
	}

	// Idempotence gate: a job re-run after a crash or sweeper reset must
	// not settle an intent that already left processing.
	switch intent.Status {
	case models.PaymentIntentStatusProcessing:
	case models.PaymentIntentStatusSettled:
		log.Printf("⚠️ [SettlementQueue] intent %s already settled, completing job %s without submitting",
			intent.ID, job.ID)
		if err := s.jobRepo.MarkCompleted(ctx, job.ID, intent.SettlementTxHash); err != nil {
			log.Printf("❌ [SettlementQueue] failed to complete job %s: %v", job.ID, err)
		}
		metrics.SettlementJobsProcessed.WithLabelValues("skipped").Inc()
		return
	default:
		log.Printf("⚠️ [SettlementQueue] intent %s is %s, failing job %s", intent.ID, intent.Status, job.ID)
		if err := s.jobRepo.MarkFailed(ctx, job.ID, fmt.Sprintf("intent in unexpected status %s", intent.Status)); err != nil {
			log.Printf("❌ [SettlementQueue] failed to fail job %s: %v", job.ID, err)
		}
		metrics.SettlementJobsProcessed.WithLabelValues("skipped").Inc()
		return
	}

	txHash := job.TxHash
	if txHash == "" {
		amount := settlementAmountUnits(job.Amount)
		txHash, err = s.submitter.SubmitSettlement(ctx, job.LPAddress, amount)
		if err != nil {
			s.retryOrFail(ctx, job, fmt.Errorf("submit failed: %w", err))
			return
		}
		if err := s.jobRepo.MarkSubmitted(ctx, job.ID, txHash); err != nil {
			log.Printf("❌ [SettlementQueue] failed to record tx hash for job %s: %v", job.ID, err)
		}
	} else {
		log.Printf("🔍 [SettlementQueue] job %s already has tx %s, waiting for its receipt", job.ID, txHash)
	}

	receiptCtx, cancel := context.WithTimeout(ctx, s.receiptTimeout)
	defer cancel()
	if _, err := s.submitter.WaitForReceipt(receiptCtx, txHash); err != nil {
		s.retryOrFail(ctx, job, fmt.Errorf("receipt wait failed: %w", err))
		return
	}

	settled, err := s.intentRepo.Transition(ctx, intent.ID,
		models.PaymentIntentStatusProcessing, models.PaymentIntentStatusSettled,
		repository.TransitionPatch{
			SettlementTxHash: txHash,
			TxHash:           txHash,
			Note:             "settlement transaction confirmed",
		})
	if err != nil {
		if errors.Is(err, repository.ErrStaleState) {
			// Someone else finished the intent; the job is done either way.
			log.Printf("⚠️ [SettlementQueue] intent %s left processing concurrently, completing job %s", intent.ID, job.ID)
			if mcErr := s.jobRepo.MarkCompleted(ctx, job.ID, txHash); mcErr != nil {
				log.Printf("❌ [SettlementQueue] failed to complete job %s: %v", job.ID, mcErr)
			}
			metrics.SettlementJobsProcessed.WithLabelValues("skipped").Inc()
			return
		}
		s.retryOrFail(ctx, job, fmt.Errorf("failed to mark intent settled: %w", err))
		return
	}

	if err := s.jobRepo.MarkCompleted(ctx, job.ID, txHash); err != nil {
		log.Printf("❌ [SettlementQueue] failed to complete job %s: %v", job.ID, err)
	}

	metrics.SettlementJobsProcessed.WithLabelValues("settled").Inc()
	metrics.IntentTransitions.WithLabelValues("processing", "settled").Inc()
	metrics.SettlementDuration.Observe(time.Since(start).Seconds())
	log.Printf("✅ [SettlementQueue] intent %s settled, tx %s", intent.ID, txHash)

	s.emitter.Emit(EventPaymentIntentSettled, PayloadForIntent(settled))
}

// retryOrFail reschedules a transient failure with exponential backoff, or
// fails the job and the intent terminally once the retry budget is spent.
func (s *SettlementQueueService) retryOrFail(ctx context.Context, job *models.SettlementJob, cause error) {
	log.Printf("❌ [SettlementQueue] job %s attempt failed: %v", job.ID, cause)

	if job.RetryCount >= job.MaxRetries {
		if err := s.jobRepo.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
			log.Printf("❌ [SettlementQueue] failed to mark job %s failed: %v", job.ID, err)
		}
		s.failIntent(ctx, job, cause)
		metrics.SettlementJobsProcessed.WithLabelValues("failed").Inc()
		return
	}

	retryCount := job.RetryCount + 1
	backoff := retryBackoffBase * time.Duration(1<<uint(job.RetryCount))
	if backoff > retryBackoffCap {
		backoff = retryBackoffCap
	}
	nextRetryAt := time.Now().Add(backoff)

	if err := s.jobRepo.Requeue(ctx, job.ID, retryCount, nextRetryAt, cause.Error()); err != nil {
		log.Printf("❌ [SettlementQueue] failed to requeue job %s: %v", job.ID, err)
		return
	}

	metrics.SettlementJobsProcessed.WithLabelValues("retried").Inc()
	metrics.SettlementQueueDepth.Inc()
	log.Printf("⏰ [SettlementQueue] job %s scheduled for retry %d/%d at %s",
		job.ID, retryCount, job.MaxRetries, nextRetryAt.Format(time.RFC3339))
}

func (s *SettlementQueueService) failIntent(ctx context.Context, job *models.SettlementJob, cause error) {
	settlementErr := &SettlementError{PaymentIntentID: job.PaymentIntentID, Terminal: true, Err: cause}
	failed, err := s.intentRepo.Transition(ctx, job.PaymentIntentID,
		models.PaymentIntentStatusProcessing, models.PaymentIntentStatusFailed,
		repository.TransitionPatch{
			ErrorDetails: settlementErr.Error(),
			Note:         "settlement failed after retries",
		})
	if err != nil {
		log.Printf("❌ [SettlementQueue] failed to mark intent %s failed: %v", job.PaymentIntentID, err)
		return
	}
	metrics.IntentTransitions.WithLabelValues("processing", "failed").Inc()
	s.emitter.Emit(EventPaymentIntentFailed, PayloadForIntent(failed))
}

// settlementAmountUnits converts the fiat-denominated amount into the
// 6-decimal token units used on chain.
func settlementAmountUnits(amount float64) *big.Int {
	units := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(1e6))
	out, _ := units.Int(nil)
	return out
}
