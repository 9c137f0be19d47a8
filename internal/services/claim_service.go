package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/csschan/unitpay-sub001/internal/metrics"
	"github.com/csschan/unitpay-sub001/internal/models"
	"github.com/csschan/unitpay-sub001/internal/repository"
	"github.com/csschan/unitpay-sub001/internal/types"
)

const (
	// DefaultClaimTTL is the payment window an LP gets after claiming.
	DefaultClaimTTL = 30 * time.Minute

	// DefaultMaxReclaims caps how many times an expired claim returns the
	// intent to the pool before it is cancelled outright.
	DefaultMaxReclaims = 3

	defaultFeeRate = 0.5 // percent, applied when no LP sets a rate
)

// CreateIntentParams carries the validated creation request.
type CreateIntentParams struct {
	Amount              float64
	Currency            string
	Platform            models.PaymentPlatform
	UserWalletAddress   string
	Description         string
	MerchantPaypalEmail string
	Network             string
	AutoMatchLP         bool
}

// ClaimCoordinator drives the payment intent state machine. All status
// changes funnel through the repository CAS, and quota is always reserved
// before an intent becomes claimed.
type ClaimCoordinator struct {
	intentRepo repository.PaymentIntentRepository
	lpRepo     repository.LPRepository
	ledger     *QuotaLedger
	matcher    *LPMatchingService
	verifier   ProofVerifier
	emitter    NotificationEmitter

	claimTTL    time.Duration
	maxReclaims int
}

func NewClaimCoordinator(
	intentRepo repository.PaymentIntentRepository,
	lpRepo repository.LPRepository,
	ledger *QuotaLedger,
	matcher *LPMatchingService,
	verifier ProofVerifier,
	emitter NotificationEmitter,
) *ClaimCoordinator {
	return &ClaimCoordinator{
		intentRepo:  intentRepo,
		lpRepo:      lpRepo,
		ledger:      ledger,
		matcher:     matcher,
		verifier:    verifier,
		emitter:     emitter,
		claimTTL:    DefaultClaimTTL,
		maxReclaims: DefaultMaxReclaims,
	}
}

// WithClaimTTL overrides the claim payment window. Used by tests and config.
func (c *ClaimCoordinator) WithClaimTTL(ttl time.Duration) *ClaimCoordinator {
	if ttl > 0 {
		c.claimTTL = ttl
	}
	return c
}

// WithMaxReclaims overrides the reclaim cap.
func (c *ClaimCoordinator) WithMaxReclaims(max int) *ClaimCoordinator {
	if max > 0 {
		c.maxReclaims = max
	}
	return c
}

// MaxReclaims returns the configured reclaim cap. The timeout sweeper uses
// it to decide between returning an expired claim to the pool and
// cancelling the intent.
func (c *ClaimCoordinator) MaxReclaims() int { return c.maxReclaims }

// CreateIntent validates the request and persists a new intent in status
// created. The returned LP, when non-nil, is the advisory auto-match: it is
// reported to the caller but not bound until it claims.
func (c *ClaimCoordinator) CreateIntent(ctx context.Context, params CreateIntentParams) (*models.PaymentIntent, *models.LP, error) {
	if params.Amount <= 0 {
		return nil, nil, NewValidationError("amount", "must be positive")
	}
	if !models.IsSupportedPlatform(params.Platform) {
		return nil, nil, NewValidationError("platform", fmt.Sprintf("unsupported platform %s", params.Platform))
	}
	network := params.Network
	if network == "" {
		network = "eth"
	}
	userAddr, err := types.ParseAddressForNetwork(params.UserWalletAddress, network)
	if err != nil {
		return nil, nil, NewValidationError("userWalletAddress", err.Error())
	}
	if params.Platform == models.PlatformPayPal {
		if params.MerchantPaypalEmail == "" {
			return nil, nil, NewValidationError("merchantPaypalEmail", "is required for PayPal intents")
		}
		if IsPersonalPaypalEmail(params.MerchantPaypalEmail) {
			return nil, nil, NewValidationError("merchantPaypalEmail", "personal PayPal accounts cannot receive merchant payments")
		}
	}

	var matched *models.LP
	feeRate := defaultFeeRate
	if params.AutoMatchLP {
		matched, err = c.matcher.FindBestLP(ctx, params.Platform, params.Amount)
		if err != nil {
			return nil, nil, fmt.Errorf("lp matching failed: %w", err)
		}
		if matched != nil {
			feeRate = matched.FeeRate
		}
	}

	feeAmount := params.Amount * feeRate / 100
	now := time.Now()
	currency := params.Currency
	if currency == "" {
		currency = "USD"
	}

	intent := &models.PaymentIntent{
		ID:                  uuid.New().String(),
		Amount:              params.Amount,
		Currency:            currency,
		Platform:            params.Platform,
		Status:              models.PaymentIntentStatusCreated,
		UserWalletAddress:   userAddr.String(),
		Description:         params.Description,
		MerchantPaypalEmail: params.MerchantPaypalEmail,
		Network:             network,
		FeeRate:             feeRate,
		FeeAmount:           feeAmount,
		TotalAmount:         params.Amount + feeAmount,
		StatusHistory: models.StatusHistory{{
			Status:    models.PaymentIntentStatusCreated,
			Timestamp: now,
			Note:      "payment intent created",
		}},
	}

	if err := c.intentRepo.Create(ctx, intent); err != nil {
		return nil, nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	metrics.PaymentIntentsCreated.WithLabelValues(string(params.Platform)).Inc()
	log.Printf("✅ [ClaimCoordinator] Created payment intent %s (%.2f %s via %s, user %s)",
		intent.ID, intent.Amount, intent.Currency, intent.Platform, intent.UserWalletAddress)

	c.emitter.Emit(EventPaymentCreated, PayloadForIntent(intent))
	return intent, matched, nil
}

// Claim reserves the LP's quota, then atomically flips the intent
// created->claimed. Losing the CAS race releases the reservation that was
// just taken, so a failed claim never leaves quota locked.
func (c *ClaimCoordinator) Claim(ctx context.Context, intentID, lpWalletAddress string) (*models.PaymentIntent, error) {
	intent, err := c.intentRepo.GetByID(ctx, intentID)
	if err != nil {
		return nil, err
	}

	addr, err := types.ParseAddressForNetwork(lpWalletAddress, intent.Network)
	if err != nil {
		return nil, NewValidationError("lpWalletAddress", err.Error())
	}
	lp, err := c.lpRepo.GetByWalletAddress(ctx, addr.String())
	if err != nil {
		return nil, err
	}

	if intent.Status != models.PaymentIntentStatusCreated {
		metrics.ClaimAttempts.WithLabelValues("rejected").Inc()
		return nil, &InvalidStateTransitionError{
			IntentID: intentID,
			Current:  intent.Status,
			Expected: []models.PaymentIntentStatus{models.PaymentIntentStatusCreated},
		}
	}
	if !lp.SupportsPlatform(intent.Platform) {
		metrics.ClaimAttempts.WithLabelValues("rejected").Inc()
		return nil, NewValidationError("platform", fmt.Sprintf("LP does not support %s", intent.Platform))
	}

	// Reserve before the transition. The intent only ever reaches claimed
	// with quota already held against it.
	reservation, err := c.ledger.Reserve(ctx, lp.ID, intent.ID, intent.Amount)
	if err != nil {
		if errors.Is(err, ErrInsufficientQuota) {
			metrics.ClaimAttempts.WithLabelValues("insufficient_quota").Inc()
		}
		return nil, err
	}

	expiresAt := time.Now().Add(c.claimTTL)
	claimed, err := c.intentRepo.Transition(ctx, intent.ID,
		models.PaymentIntentStatusCreated, models.PaymentIntentStatusClaimed,
		repository.TransitionPatch{
			LPWalletAddress: &lp.WalletAddress,
			LPID:            &lp.ID,
			ExpiresAt:       &expiresAt,
			Note:            fmt.Sprintf("claimed by LP %s", lp.WalletAddress),
		})
	if err != nil {
		// Another LP won the race. Put the quota back.
		if releaseErr := c.ledger.Release(ctx, reservation.ID); releaseErr != nil {
			log.Printf("❌ [ClaimCoordinator] Failed to release reservation %s after lost claim race: %v",
				reservation.ID, releaseErr)
		}
		if errors.Is(err, repository.ErrStaleState) {
			metrics.ClaimAttempts.WithLabelValues("stale").Inc()
			return nil, &InvalidStateTransitionError{
				IntentID: intentID,
				Current:  models.PaymentIntentStatusClaimed,
				Expected: []models.PaymentIntentStatus{models.PaymentIntentStatusCreated},
			}
		}
		return nil, err
	}

	metrics.ClaimAttempts.WithLabelValues("claimed").Inc()
	metrics.IntentTransitions.WithLabelValues("created", "claimed").Inc()
	log.Printf("✅ [ClaimCoordinator] Intent %s claimed by LP %s, payment due by %s",
		intent.ID, lp.WalletAddress, expiresAt.Format(time.RFC3339))

	c.emitter.Emit(EventPaymentIntentClaimed, PayloadForIntent(claimed))
	return claimed, nil
}

// MarkPaid records the LP's off-chain payment proof and flips the intent
// claimed->paid. The quota reservation is released once paid lands: the LP
// has fronted the fiat and the hold has done its job.
func (c *ClaimCoordinator) MarkPaid(ctx context.Context, intentID, lpWalletAddress string, proof *models.PaymentProof) (*models.PaymentIntent, error) {
	intent, err := c.intentRepo.GetByID(ctx, intentID)
	if err != nil {
		return nil, err
	}

	if intent.Status != models.PaymentIntentStatusClaimed {
		return nil, &InvalidStateTransitionError{
			IntentID: intentID,
			Current:  intent.Status,
			Expected: []models.PaymentIntentStatus{models.PaymentIntentStatusClaimed},
		}
	}
	addr, err := types.ParseAddressForNetwork(lpWalletAddress, intent.Network)
	if err != nil {
		return nil, NewValidationError("lpWalletAddress", err.Error())
	}
	if intent.LPWalletAddress == nil || *intent.LPWalletAddress != addr.String() {
		return nil, NewValidationError("lpWalletAddress", "intent is claimed by a different LP")
	}

	// Re-check the per-transaction ceiling: an admin may have lowered the
	// LP's limits after the claim was taken.
	lp, err := c.lpRepo.GetByWalletAddress(ctx, addr.String())
	if err != nil {
		return nil, err
	}
	if intent.Amount > lp.PerTransactionQuota {
		return nil, fmt.Errorf("amount %.2f exceeds LP per-transaction quota %.2f: %w",
			intent.Amount, lp.PerTransactionQuota, ErrInsufficientQuota)
	}

	if err := c.verifier.Verify(ctx, intent, proof); err != nil {
		return nil, err
	}

	paid, err := c.intentRepo.Transition(ctx, intent.ID,
		models.PaymentIntentStatusClaimed, models.PaymentIntentStatusPaid,
		repository.TransitionPatch{
			Proof: proof,
			Note:  fmt.Sprintf("off-chain payment confirmed via %s", proof.Platform),
		})
	if err != nil {
		return nil, err
	}

	if err := c.ledger.ReleaseByIntent(ctx, intent.ID); err != nil {
		log.Printf("⚠️ [ClaimCoordinator] Failed to release reservation for paid intent %s: %v", intent.ID, err)
	}

	metrics.IntentTransitions.WithLabelValues("claimed", "paid").Inc()
	log.Printf("✅ [ClaimCoordinator] Intent %s marked paid by LP %s (%s proof %s)",
		intent.ID, addr.String(), proof.Platform, proof.TransactionID)

	c.emitter.Emit(EventPaymentIntentPaid, PayloadForIntent(paid))
	return paid, nil
}

// Confirm is the system-side confirmation, paid->confirmed. Settlement
// accepts intents in confirmed or user_confirmed.
func (c *ClaimCoordinator) Confirm(ctx context.Context, intentID string) (*models.PaymentIntent, error) {
	return c.confirmAs(ctx, intentID, models.PaymentIntentStatusConfirmed, "payment confirmed")
}

// UserConfirm records the paying user's receipt confirmation,
// paid->user_confirmed. Only the intent's own user may confirm.
func (c *ClaimCoordinator) UserConfirm(ctx context.Context, intentID, userWalletAddress string) (*models.PaymentIntent, error) {
	intent, err := c.intentRepo.GetByID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	addr, err := types.ParseAddressForNetwork(userWalletAddress, intent.Network)
	if err != nil {
		return nil, NewValidationError("userWalletAddress", err.Error())
	}
	if intent.UserWalletAddress != addr.String() {
		return nil, NewValidationError("userWalletAddress", "only the intent's user can confirm receipt")
	}
	return c.confirmAs(ctx, intentID, models.PaymentIntentStatusUserConfirmed, "user confirmed receipt")
}

func (c *ClaimCoordinator) confirmAs(ctx context.Context, intentID string, to models.PaymentIntentStatus, note string) (*models.PaymentIntent, error) {
	intent, err := c.intentRepo.GetByID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != models.PaymentIntentStatusPaid {
		return nil, &InvalidStateTransitionError{
			IntentID: intentID,
			Current:  intent.Status,
			Expected: []models.PaymentIntentStatus{models.PaymentIntentStatusPaid},
		}
	}

	confirmed, err := c.intentRepo.Transition(ctx, intentID,
		models.PaymentIntentStatusPaid, to,
		repository.TransitionPatch{Note: note})
	if err != nil {
		return nil, err
	}

	metrics.IntentTransitions.WithLabelValues("paid", string(to)).Inc()
	log.Printf("✅ [ClaimCoordinator] Intent %s confirmed (%s)", intentID, to)

	c.emitter.Emit(EventPaymentIntentConfirmed, PayloadForIntent(confirmed))
	return confirmed, nil
}

// Cancel aborts an intent before any off-chain payment happened. Allowed
// from created and claimed; cancelling a claimed intent releases its
// reservation.
func (c *ClaimCoordinator) Cancel(ctx context.Context, intentID, callerWalletAddress string) (*models.PaymentIntent, error) {
	intent, err := c.intentRepo.GetByID(ctx, intentID)
	if err != nil {
		return nil, err
	}
	addr, err := types.ParseAddressForNetwork(callerWalletAddress, intent.Network)
	if err != nil {
		return nil, NewValidationError("walletAddress", err.Error())
	}
	if intent.UserWalletAddress != addr.String() {
		return nil, NewValidationError("walletAddress", "only the intent's user can cancel")
	}

	from := intent.Status
	if from != models.PaymentIntentStatusCreated && from != models.PaymentIntentStatusClaimed {
		return nil, &InvalidStateTransitionError{
			IntentID: intentID,
			Current:  from,
			Expected: []models.PaymentIntentStatus{models.PaymentIntentStatusCreated, models.PaymentIntentStatusClaimed},
		}
	}

	cancelled, err := c.intentRepo.Transition(ctx, intentID,
		from, models.PaymentIntentStatusCancelled,
		repository.TransitionPatch{Note: "cancelled by user"})
	if err != nil {
		return nil, err
	}

	if from == models.PaymentIntentStatusClaimed {
		if err := c.ledger.ReleaseByIntent(ctx, intentID); err != nil {
			log.Printf("⚠️ [ClaimCoordinator] Failed to release reservation for cancelled intent %s: %v", intentID, err)
		}
	}

	metrics.IntentTransitions.WithLabelValues(string(from), "cancelled").Inc()
	log.Printf("🛑 [ClaimCoordinator] Intent %s cancelled from %s", intentID, from)

	c.emitter.Emit(EventPaymentIntentCancelled, PayloadForIntent(cancelled))
	return cancelled, nil
}
