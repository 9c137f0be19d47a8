package services

import (
	"context"
	"log"
	"sort"

	"github.com/csschan/unitpay-sub001/internal/models"
	"github.com/csschan/unitpay-sub001/internal/repository"
)

// LPMatchingService picks a liquidity provider for a new payment intent.
// Matching is advisory: the quota ledger is still the authority at claim
// time, so a matched LP can lose the quota before claiming.
type LPMatchingService struct {
	lpRepo repository.LPRepository
}

func NewLPMatchingService(lpRepo repository.LPRepository) *LPMatchingService {
	return &LPMatchingService{lpRepo: lpRepo}
}

// FindBestLP returns the cheapest active LP that supports the platform and
// can cover amount within both quota ceilings, or nil when none qualifies.
func (s *LPMatchingService) FindBestLP(ctx context.Context, platform models.PaymentPlatform, amount float64) (*models.LP, error) {
	lps, err := s.lpRepo.FindActive(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]*models.LP, 0, len(lps))
	for _, lp := range lps {
		if !lp.SupportsPlatform(platform) {
			continue
		}
		if lp.AvailableQuota < amount || lp.PerTransactionQuota < amount {
			continue
		}
		candidates = append(candidates, lp)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].FeeRate != candidates[j].FeeRate {
			return candidates[i].FeeRate < candidates[j].FeeRate
		}
		// equal fees: prefer the LP with more headroom
		return candidates[i].AvailableQuota > candidates[j].AvailableQuota
	})

	best := candidates[0]
	log.Printf("🔍 [LPMatching] matched LP %s (fee %.2f%%, available %.2f) for %s/%.2f",
		best.WalletAddress, best.FeeRate, best.AvailableQuota, platform, amount)
	return best, nil
}

// AvailableLPs lists active LPs that could take an intent on the platform,
// for the creation UI. Amount 0 skips the quota filter.
func (s *LPMatchingService) AvailableLPs(ctx context.Context, platform models.PaymentPlatform, amount float64) ([]*models.LP, error) {
	lps, err := s.lpRepo.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.LP, 0, len(lps))
	for _, lp := range lps {
		if platform != "" && !lp.SupportsPlatform(platform) {
			continue
		}
		if amount > 0 && (lp.AvailableQuota < amount || lp.PerTransactionQuota < amount) {
			continue
		}
		out = append(out, lp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeeRate < out[j].FeeRate })
	return out, nil
}
