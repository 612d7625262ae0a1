package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"signal-trader/internal/interfaces"
	"signal-trader/internal/locks"
	"signal-trader/internal/logger"
	"signal-trader/internal/retry"
	"signal-trader/internal/types"
	"signal-trader/internal/worker"
)

var (
	// ErrVenueBusy means a trade already owns the signal's venue.
	ErrVenueBusy = errors.New("venue is busy")
	// ErrUnknownVenue means no binding is configured for the venue.
	ErrUnknownVenue = errors.New("unknown venue")
)

// Config holds engine-level trade parameters.
type Config struct {
	QuoteAsset       string
	BudgetUSD        float64
	TimeBudgetSecs   float64
	PendingOrderSecs float64
	StopLossPct      float64
	MaxAPIAttempts   int
}

// Engine supervises the trade worker population: it admits signals,
// restores checkpointed trades at startup, and reaps finished workers.
// The lock table and registry are engine-owned; workers get handles at
// construction.
type Engine struct {
	cfg         Config
	bindings    map[string]interfaces.Binding
	lockTable   *locks.Table
	checkpoints interfaces.CheckpointStore
	ledger      interfaces.Ledger
	notifier    interfaces.Notifier
	refPrice    func(ctx context.Context) (float64, error)

	mu      sync.Mutex
	workers []*worker.Worker
}

// New builds an engine over the given venue bindings. refPrice supplies
// the BTC/USD reference for reports; nil disables the USD figure.
func New(
	cfg Config,
	bindings map[string]interfaces.Binding,
	checkpoints interfaces.CheckpointStore,
	ledger interfaces.Ledger,
	notifier interfaces.Notifier,
	refPrice func(ctx context.Context) (float64, error),
) *Engine {
	venues := make([]string, 0, len(bindings))
	for name := range bindings {
		venues = append(venues, name)
	}
	return &Engine{
		cfg:         cfg,
		bindings:    bindings,
		lockTable:   locks.NewTable(venues),
		checkpoints: checkpoints,
		ledger:      ledger,
		notifier:    notifier,
		refPrice:    refPrice,
	}
}

// Submit admits a signal: it claims the venue through the lock table's
// compare-and-set, seeds a trade record, and starts a worker. Returns
// the job id of the new trade.
func (e *Engine) Submit(_ context.Context, sig types.Signal) (string, error) {
	b, ok := e.bindings[sig.Venue]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownVenue, sig.Venue)
	}
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.Date.IsZero() {
		sig.Date = time.Now().UTC()
	}

	if !e.lockTable.TryAcquire(sig.Venue) {
		return "", fmt.Errorf("%w: %s", ErrVenueBusy, sig.Venue)
	}

	rec := types.NewTradeRecord(sig, e.cfg.QuoteAsset, e.cfg.BudgetUSD, e.cfg.TimeBudgetSecs, iterationSecs(b))
	e.start(rec, b)
	return rec.JobID, nil
}

// Restore scans the checkpoint store and resumes every recoverable
// trade. Checkpoints are restored in deterministic order; when two
// target the same venue only the first is admitted, the rest stay on
// disk for a later restart. Returns whether anything was restored.
func (e *Engine) Restore(ctx context.Context) (bool, error) {
	recs, err := e.checkpoints.LoadAll()
	if err != nil {
		return false, fmt.Errorf("failed to load checkpoints: %w", err)
	}

	restored := false
	for _, rec := range recs {
		b, ok := e.bindings[rec.Venue]
		if !ok {
			logger.Warn(ctx, "Checkpoint for unconfigured venue left on disk",
				"job_id", rec.JobID, "venue", rec.Venue)
			continue
		}
		if !e.lockTable.TryAcquire(rec.Venue) {
			e.notifier.Notify(ctx, fmt.Sprintf(
				"skipping restore of trade %s: venue %s is busy", rec.JobID, rec.Venue))
			continue
		}
		if rec.IterationSecs == 0 {
			rec.IterationSecs = iterationSecs(b)
		}
		logger.Info(ctx, "Restoring trade from checkpoint",
			"job_id", rec.JobID, "venue", rec.Venue, "pair", rec.Pair,
			"placed_buy_order", rec.PlacedBuyOrder, "bought", rec.Bought,
			"placed_sell_order", rec.PlacedSellOrder)
		e.start(rec, b)
		restored = true
	}
	return restored, nil
}

// start registers a worker for a record whose venue lock is held.
func (e *Engine) start(rec *types.TradeRecord, b interfaces.Binding) {
	caller := retry.NewCaller(b, e.notifier, rec, e.cfg.MaxAPIAttempts)
	w := worker.New(rec, b, caller, e.lockTable, e.checkpoints, e.ledger, e.notifier, worker.Config{
		PendingOrderSecs: e.cfg.PendingOrderSecs,
		StopLossPct:      e.cfg.StopLossPct,
	})

	e.mu.Lock()
	e.workers = append(e.workers, w)
	e.mu.Unlock()

	// Workers outlive the submitting request; shutdown is abrupt by
	// design and checkpoints make that safe.
	go w.Run(context.Background())
}

// VenueBusy reports whether a trade currently owns the venue.
func (e *Engine) VenueBusy(venue string) bool {
	return e.lockTable.Busy(venue)
}

// StartHousekeeping reaps finished workers from the registry on a fixed
// period until ctx is cancelled.
func (e *Engine) StartHousekeeping(ctx context.Context, period time.Duration) {
	go func() {
		tick := time.NewTicker(period)
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				reaped := e.Reap()
				if reaped > 0 {
					logger.Info(ctx, "Reaped finished trade workers", "count", reaped)
				}
			}
		}
	}()
}

// Reap removes finished workers from the registry and returns how many
// were dropped. Safe to run concurrently with submissions.
func (e *Engine) Reap() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.workers[:0]
	for _, w := range e.workers {
		if !w.Done() {
			kept = append(kept, w)
		}
	}
	reaped := len(e.workers) - len(kept)
	e.workers = kept
	return reaped
}

// LiveWorkers returns the number of registered, unfinished workers.
func (e *Engine) LiveWorkers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, w := range e.workers {
		if !w.Done() {
			n++
		}
	}
	return n
}

// Report aggregates per-venue balances and live trade snapshots. It is
// best-effort: a venue that fails to answer is skipped with a warning,
// and trade snapshots reflect each worker's last checkpoint.
func (e *Engine) Report(ctx context.Context) (*types.EngineReport, error) {
	report := &types.EngineReport{
		GeneratedAt: time.Now().UTC(),
		Balances:    make(map[string]types.VenueBalances, len(e.bindings)),
	}

	if e.refPrice != nil {
		if usd, err := e.refPrice(ctx); err == nil {
			report.ReferenceUSD = usd
		} else {
			logger.Warn(ctx, "Failed to fetch BTC reference price for report", "error", err)
		}
	}

	for name, b := range e.bindings {
		free, err := b.FetchBalance(ctx, types.BalanceFree)
		if err != nil {
			logger.Warn(ctx, "Skipping venue in report", "venue", name, "error", err)
			continue
		}
		used, err := b.FetchBalance(ctx, types.BalanceUsed)
		if err != nil {
			logger.Warn(ctx, "Skipping used balance in report", "venue", name, "error", err)
			used = map[string]float64{}
		}
		report.Balances[name] = types.VenueBalances{
			Free: pruneZero(free),
			Used: pruneZero(used),
		}
	}

	e.mu.Lock()
	workers := make([]*worker.Worker, len(e.workers))
	copy(workers, e.workers)
	e.mu.Unlock()

	for _, w := range workers {
		if w.Done() {
			continue
		}
		report.Trades = append(report.Trades, w.Snapshot())
	}
	return report, nil
}

func pruneZero(balances map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(balances))
	for asset, qty := range balances {
		if qty == 0 {
			continue
		}
		out[asset] = qty
	}
	return out
}

// iterationSecs derives the fixed pacing interval for a trade from the
// venue's minimum call spacing plus a small margin.
func iterationSecs(b interfaces.Binding) float64 {
	return b.MinCallInterval().Seconds() + 0.1
}
