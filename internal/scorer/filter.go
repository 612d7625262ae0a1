package scorer

import (
	"context"
	"fmt"

	"signal-trader/internal/interfaces"
	"signal-trader/internal/types"
)

// Filter is the admission gate in front of the engine: it scores a
// signal and rejects it when the traded volume is too small, the venue
// is already busy, or the estimated profit is not positive.
type Filter struct {
	scorer             interfaces.Scorer
	volumeThresholdUSD float64
	venueBusy          func(venue string) bool
}

func NewFilter(s interfaces.Scorer, volumeThresholdUSD float64, venueBusy func(string) bool) *Filter {
	return &Filter{
		scorer:             s,
		volumeThresholdUSD: volumeThresholdUSD,
		venueBusy:          venueBusy,
	}
}

// Admit scores the signal and decides whether it should be traded.
// On rejection the returned reason says why.
func (f *Filter) Admit(ctx context.Context, sig types.Signal) (types.Signal, bool, string) {
	volumeUSD := sig.BuyVolumeBTC * sig.BPI
	if volumeUSD < f.volumeThresholdUSD {
		return sig, false, fmt.Sprintf("volume %.2f$ below threshold %.2f$", volumeUSD, f.volumeThresholdUSD)
	}
	if f.venueBusy != nil && f.venueBusy(sig.Venue) {
		return sig, false, fmt.Sprintf("venue %s is busy", sig.Venue)
	}
	profit, err := f.scorer.Score(ctx, sig)
	if err != nil {
		return sig, false, fmt.Sprintf("scoring failed: %v", err)
	}
	if profit <= 0 {
		return sig, false, fmt.Sprintf("estimated profit %.2f%% is not positive", profit)
	}
	sig.EstimatedProfit = profit
	return sig, true, ""
}
