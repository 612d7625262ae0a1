package interfaces

import (
	"context"
	"time"

	"signal-trader/internal/types"
)

// Binding is the capability set for one trading venue. A binding is safe
// for concurrent use across different venues; calls against the same
// venue are serialized by the engine's lock table, not by the binding.
type Binding interface {
	Name() string
	FetchBalance(ctx context.Context, category string) (map[string]float64, error)
	FetchTicker(ctx context.Context, pair string) (types.Ticker, error)
	CreateOrder(ctx context.Context, pair, side string, qty, price float64) (string, error)
	CancelOrder(ctx context.Context, id, pair string) error
	FetchOrder(ctx context.Context, id, pair string) (types.Order, error)
	AmountToPrecision(pair string, qty float64) float64
	FeeRate() float64
	MinCallInterval() time.Duration
}

// Engine supervises the trade worker population.
type Engine interface {
	Submit(ctx context.Context, sig types.Signal) (string, error)
	Restore(ctx context.Context) (bool, error)
	VenueBusy(venue string) bool
	Report(ctx context.Context) (*types.EngineReport, error)
}

// Notifier delivers fire-and-forget messages to the outbound channel.
// Delivery failures are the channel's problem, never the caller's.
type Notifier interface {
	Notify(ctx context.Context, msg string)
}

// Ledger is the append-only record of terminal trade outcomes.
type Ledger interface {
	Record(ctx context.Context, rec *types.TradeRecord) error
}

// CheckpointStore persists in-flight trade records so a trade survives a
// process restart.
type CheckpointStore interface {
	Save(rec *types.TradeRecord) error
	LoadAll() ([]*types.TradeRecord, error)
	Delete(rec *types.TradeRecord) error
}

// Scorer estimates the achievable profit of a signal, in percent. The
// model behind it is opaque to the engine.
type Scorer interface {
	Score(ctx context.Context, sig types.Signal) (float64, error)
}
