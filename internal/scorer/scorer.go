package scorer

import (
	"context"

	"signal-trader/internal/types"
)

// Static returns a fixed profit estimate for every signal. It stands in
// for a trained model behind the Scorer interface; the engine treats the
// score as opaque either way.
type Static struct {
	profit float64
}

func NewStatic(profitPct float64) *Static {
	return &Static{profit: profitPct}
}

func (s *Static) Score(_ context.Context, _ types.Signal) (float64, error) {
	return s.profit, nil
}
