package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/csschan/unitpay-sub001/internal/metrics"
	"github.com/csschan/unitpay-sub001/internal/models"
	"github.com/csschan/unitpay-sub001/internal/repository"
)

const defaultSweepInterval = time.Minute

// TimeoutSweeperService is the single authority over time-based reclaims.
// It returns expired claims to the pool (or cancels them past the reclaim
// cap) and resets settlement jobs stuck in processing. Everything it does
// goes through the same guarded updates as the foreground paths, so racing
// a live request is safe.
type TimeoutSweeperService struct {
	intentRepo repository.PaymentIntentRepository
	jobRepo    repository.SettlementJobRepository
	ledger     *QuotaLedger
	emitter    NotificationEmitter

	interval    time.Duration
	maxReclaims int

	stopChan chan struct{}
	wg       sync.WaitGroup
	started  bool
	mu       sync.Mutex
}

func NewTimeoutSweeperService(
	intentRepo repository.PaymentIntentRepository,
	jobRepo repository.SettlementJobRepository,
	ledger *QuotaLedger,
	emitter NotificationEmitter,
) *TimeoutSweeperService {
	return &TimeoutSweeperService{
		intentRepo:  intentRepo,
		jobRepo:     jobRepo,
		ledger:      ledger,
		emitter:     emitter,
		interval:    defaultSweepInterval,
		maxReclaims: DefaultMaxReclaims,
		stopChan:    make(chan struct{}),
	}
}

// WithInterval overrides the sweep cadence. Must be called before Start.
func (s *TimeoutSweeperService) WithInterval(d time.Duration) *TimeoutSweeperService {
	if d > 0 {
		s.interval = d
	}
	return s
}

// WithMaxReclaims overrides the reclaim cap.
func (s *TimeoutSweeperService) WithMaxReclaims(max int) *TimeoutSweeperService {
	if max > 0 {
		s.maxReclaims = max
	}
	return s
}

// Start launches the background sweep loop.
func (s *TimeoutSweeperService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	log.Printf("🚀 [TimeoutSweeper] Starting, sweeping every %s", s.interval)
	s.wg.Add(1)
	go s.loop()
}

// Stop halts the sweep loop and waits for an in-flight sweep to finish.
func (s *TimeoutSweeperService) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopChan)
	s.wg.Wait()
	log.Printf("🛑 [TimeoutSweeper] Stopped")
}

func (s *TimeoutSweeperService) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.SweepOnce(context.Background())
		}
	}
}

// SweepOnce runs a full sweep pass. Exposed so tests and admin tooling can
// trigger it deterministically.
func (s *TimeoutSweeperService) SweepOnce(ctx context.Context) {
	now := time.Now()
	s.sweepExpiredClaims(ctx, now)
	s.sweepStuckJobs(ctx, now)
}

// sweepExpiredClaims handles LPs that claimed but never paid inside the
// payment window. The quota comes back first; the CAS then either returns
// the intent to the pool or cancels it once the reclaim budget is spent.
func (s *TimeoutSweeperService) sweepExpiredClaims(ctx context.Context, now time.Time) {
	expired, err := s.intentRepo.FindExpiredClaimed(ctx, now)
	if err != nil {
		log.Printf("❌ [TimeoutSweeper] failed to query expired claims: %v", err)
		return
	}
	if len(expired) == 0 {
		return
	}
	log.Printf("⏰ [TimeoutSweeper] found %d expired claims", len(expired))

	for _, intent := range expired {
		if err := s.reclaimIntent(ctx, intent); err != nil {
			if errors.Is(err, repository.ErrStaleState) {
				// The LP finished paying between the query and the CAS.
				continue
			}
			log.Printf("❌ [TimeoutSweeper] failed to reclaim intent %s: %v", intent.ID, err)
		}
	}
}

func (s *TimeoutSweeperService) reclaimIntent(ctx context.Context, intent *models.PaymentIntent) error {
	if err := s.ledger.ReleaseByIntent(ctx, intent.ID); err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}

	lpAddr := ""
	if intent.LPWalletAddress != nil {
		lpAddr = *intent.LPWalletAddress
	}

	if intent.ReclaimCount >= s.maxReclaims {
		cancelled, err := s.intentRepo.Transition(ctx, intent.ID,
			models.PaymentIntentStatusClaimed, models.PaymentIntentStatusCancelled,
			repository.TransitionPatch{
				Note: fmt.Sprintf("claim by %s expired, reclaim limit %d reached", lpAddr, s.maxReclaims),
			})
		if err != nil {
			return err
		}
		metrics.SweeperReclaims.WithLabelValues("cancelled").Inc()
		metrics.IntentTransitions.WithLabelValues("claimed", "cancelled").Inc()
		log.Printf("🛑 [TimeoutSweeper] intent %s cancelled after %d expired claims", intent.ID, intent.ReclaimCount)
		s.emitter.Emit(EventPaymentIntentCancelled, PayloadForIntent(cancelled))
		return nil
	}

	reclaimCount := intent.ReclaimCount + 1
	reclaimed, err := s.intentRepo.Transition(ctx, intent.ID,
		models.PaymentIntentStatusClaimed, models.PaymentIntentStatusCreated,
		repository.TransitionPatch{
			ReclaimCount: &reclaimCount,
			ClearClaim:   true,
			Note:         fmt.Sprintf("claim by %s expired, returned to pool (reclaim %d/%d)", lpAddr, reclaimCount, s.maxReclaims),
		})
	if err != nil {
		return err
	}

	metrics.SweeperReclaims.WithLabelValues("reclaimed").Inc()
	metrics.IntentTransitions.WithLabelValues("claimed", "created").Inc()
	log.Printf("🔄 [TimeoutSweeper] intent %s returned to pool (reclaim %d/%d, was claimed by %s)",
		intent.ID, reclaimCount, s.maxReclaims, lpAddr)
	s.emitter.Emit(EventPaymentIntentReclaimed, PayloadForIntent(reclaimed))
	return nil
}

// sweepStuckJobs resets settlement jobs whose worker died mid-attempt. Each
// job carries its own processing timeout; within budget it goes back to
// pending for another worker, past budget it fails terminally.
func (s *TimeoutSweeperService) sweepStuckJobs(ctx context.Context, now time.Time) {
	jobs, err := s.jobRepo.FindProcessing(ctx)
	if err != nil {
		log.Printf("❌ [TimeoutSweeper] failed to query processing jobs: %v", err)
		return
	}

	for _, job := range jobs {
		timeout := job.ProcessingTimeout
		if timeout <= 0 {
			timeout = defaultProcessingTimeout
		}
		if job.StartedAt == nil || now.Sub(*job.StartedAt) < timeout {
			continue
		}

		log.Printf("⏰ [TimeoutSweeper] settlement job %s stuck in processing for %s", job.ID, now.Sub(*job.StartedAt))

		if job.RetryCount >= job.MaxRetries {
			if err := s.jobRepo.MarkFailed(ctx, job.ID, "processing timeout, retry limit reached"); err != nil {
				log.Printf("❌ [TimeoutSweeper] failed to fail job %s: %v", job.ID, err)
				continue
			}
			s.failIntentForJob(ctx, job)
			metrics.SweeperReclaims.WithLabelValues("job_failed").Inc()
			continue
		}

		if err := s.jobRepo.Requeue(ctx, job.ID, job.RetryCount+1, now, "processing timeout"); err != nil {
			log.Printf("❌ [TimeoutSweeper] failed to requeue job %s: %v", job.ID, err)
			continue
		}
		metrics.SweeperReclaims.WithLabelValues("job_retried").Inc()
		metrics.SettlementQueueDepth.Inc()
		log.Printf("🔄 [TimeoutSweeper] settlement job %s returned to pending (retry %d/%d)",
			job.ID, job.RetryCount+1, job.MaxRetries)
	}
}

func (s *TimeoutSweeperService) failIntentForJob(ctx context.Context, job *models.SettlementJob) {
	failed, err := s.intentRepo.Transition(ctx, job.PaymentIntentID,
		models.PaymentIntentStatusProcessing, models.PaymentIntentStatusFailed,
		repository.TransitionPatch{
			ErrorDetails: "settlement timed out after retries",
			Note:         "settlement processing timeout",
		})
	if err != nil {
		if !errors.Is(err, repository.ErrStaleState) {
			log.Printf("❌ [TimeoutSweeper] failed to mark intent %s failed: %v", job.PaymentIntentID, err)
		}
		return
	}
	metrics.IntentTransitions.WithLabelValues("processing", "failed").Inc()
	s.emitter.Emit(EventPaymentIntentFailed, PayloadForIntent(failed))
}
