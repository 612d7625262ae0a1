package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"signal-trader/internal/interfaces"
	"signal-trader/internal/locks"
	"signal-trader/internal/logger"
	"signal-trader/internal/retry"
	"signal-trader/internal/types"
)

// Config holds the thresholds driving the state machine.
type Config struct {
	// PendingOrderSecs is how long an unfilled limit order may stay open
	// before it is cancelled and re-priced.
	PendingOrderSecs float64
	// StopLossPct is the negative price-change threshold that forces an
	// exit, e.g. -5 for a 5% drop.
	StopLossPct float64
}

// Worker drives one trade through its buy/hold/sell state machine. It
// owns its TradeRecord exclusively while running; the engine reads
// progress through Snapshot, which returns the copy published at the
// last checkpoint.
type Worker struct {
	rec         *types.TradeRecord
	binding     interfaces.Binding
	caller      *retry.Caller
	locks       *locks.Table
	checkpoints interfaces.CheckpointStore
	ledger      interfaces.Ledger
	notifier    interfaces.Notifier
	cfg         Config

	done atomic.Bool
	snap atomic.Pointer[types.TradeRecord]
}

// New builds a worker around a record whose venue lock is already held
// by the caller. The worker releases the lock when it finishes.
func New(
	rec *types.TradeRecord,
	binding interfaces.Binding,
	caller *retry.Caller,
	lockTable *locks.Table,
	checkpoints interfaces.CheckpointStore,
	ledger interfaces.Ledger,
	notifier interfaces.Notifier,
	cfg Config,
) *Worker {
	w := &Worker{
		rec:         rec,
		binding:     binding,
		caller:      caller,
		locks:       lockTable,
		checkpoints: checkpoints,
		ledger:      ledger,
		notifier:    notifier,
		cfg:         cfg,
	}
	w.publish()
	return w
}

// Done reports whether the worker has finished and released its venue.
func (w *Worker) Done() bool { return w.done.Load() }

// Snapshot returns the record as of the last checkpoint. Safe to call
// from any goroutine while the worker runs.
func (w *Worker) Snapshot() types.TradeRecord { return *w.snap.Load() }

// Run executes the trade to a terminal state and finalizes. It never
// panics out: faults are reported and the venue lock is released on
// every exit path.
func (w *Worker) Run(ctx context.Context) {
	defer w.finalize(ctx)
	w.loop(ctx)
}

// loop re-evaluates which phase applies from the record's progress
// flags, so a restored worker resumes exactly where the checkpoint left
// off. Each pass writes a checkpoint before acting.
func (w *Worker) loop(ctx context.Context) {
	rec := w.rec
	for {
		w.checkpoint(ctx)
		if ctx.Err() != nil {
			// Shutdown: leave the record non-terminal so the checkpoint
			// survives for restore.
			return
		}

		switch {
		case !rec.PlacedBuyOrder:
			if w.entryPricing(ctx) {
				return
			}
		case !rec.Bought:
			if w.awaitFill(ctx, types.SideBuy) {
				return
			}
		case !rec.PlacedSellOrder:
			if w.exitPricing(ctx) {
				return
			}
		case !rec.Sold:
			if w.awaitFill(ctx, types.SideSell) {
				return
			}
		default:
			profit := (rec.SellPrice/rec.BuyPrice - 1) * 100
			rec.RealProfit = &profit
			logger.Trade(ctx, rec.JobID, rec.Pair, rec.Venue, "settled",
				"real_profit", profit, "sell_reason", rec.SellReason)
			return
		}
	}
}

// entryPricing sizes the position, guards against the price having
// already moved past the estimated profit, and places the limit buy.
// Returns true when the trade is over.
func (w *Worker) entryPricing(ctx context.Context) bool {
	rec := w.rec

	quoteBalance, err := w.caller.FetchBalance(ctx, types.BalanceFree, rec.QuoteAsset())
	if err != nil {
		return w.failPhase(err, types.CancelQuoteBalance)
	}
	committed := rec.Budget / rec.ReferencePrice
	if quoteBalance < committed {
		committed = quoteBalance
	}

	tick, err := w.caller.FetchTicker(ctx, rec.Pair)
	if err != nil {
		return w.failPhase(err, types.CancelTickerBuy)
	}

	priceIncrease := (tick.Last/rec.SignalPrice - 1) * 100
	if priceIncrease > rec.EstimatedProfit {
		rec.CancelReason = types.CancelPriceMoved
		logger.Trade(ctx, rec.JobID, rec.Pair, rec.Venue, "entry_rejected",
			"price_increase", priceIncrease, "estimated_profit", rec.EstimatedProfit)
		return true
	}
	// The achievable margin shrinks by whatever drift already happened.
	rec.EstimatedProfit -= priceIncrease
	w.checkpoint(ctx)

	commission := w.binding.FeeRate() * committed
	qty := w.binding.AmountToPrecision(rec.Pair, (committed-commission)/tick.Ask)

	id, err := w.caller.PlaceOrder(ctx, rec.Pair, types.SideBuy, qty, tick.Ask)
	if err != nil {
		return w.failPhase(err, types.CancelPlaceBuy)
	}
	rec.BuyOrderID = id
	rec.PlacedBuyOrder = true
	w.checkpoint(ctx)
	return false
}

// awaitFill polls one side's order. An order open past the pending
// threshold is cancelled and the worker loops back to the pricing phase
// for that side.
func (w *Worker) awaitFill(ctx context.Context, side string) bool {
	rec := w.rec
	id := rec.BuyOrderID
	if side == types.SideSell {
		id = rec.SellOrderID
	}

	ord, err := w.caller.FetchOrder(ctx, id, rec.Pair, side)
	if err != nil {
		if side == types.SideBuy {
			return w.failPhase(err, types.CancelFetchBuyOrder)
		}
		return w.failPhase(err, types.CancelFetchSellOrder)
	}

	if rec.OrderOpenSecs > w.cfg.PendingOrderSecs {
		rec.OrderOpenSecs = 0
		if ord.Status == types.OrderOpen {
			if err := w.caller.CancelOrder(ctx, id, rec.Pair, side); err != nil {
				if side == types.SideBuy {
					return w.failPhase(err, types.CancelCancelBuy)
				}
				return w.failPhase(err, types.CancelCancelSell)
			}
			// Back to pricing: re-price and re-place instead of waiting
			// on a stale limit.
			if side == types.SideBuy {
				rec.BuyOrderID = ""
				rec.PlacedBuyOrder = false
			} else {
				rec.SellOrderID = ""
				rec.PlacedSellOrder = false
			}
			logger.Trade(ctx, rec.JobID, rec.Pair, rec.Venue, side+"_order_repriced")
			return false
		}
		w.markFilled(ctx, side, ord.Price)
		return false
	}

	if ord.Status == types.OrderOpen {
		return false
	}
	rec.OrderOpenSecs = 0
	w.markFilled(ctx, side, ord.Price)
	return false
}

// exitPricing evaluates the exit triggers in fixed priority: stop-loss,
// take-profit, then timeout. Without a trigger it keeps polling, paced
// by the retry caller's sleeps. On a trigger it sells the full held
// balance at the bid.
func (w *Worker) exitPricing(ctx context.Context) bool {
	rec := w.rec

	tick, err := w.caller.FetchTicker(ctx, rec.Pair)
	if err != nil {
		return w.failPhase(err, types.CancelTickerSell)
	}

	priceChange := (tick.Bid/rec.BuyPrice - 1) * 100
	switch {
	case priceChange < w.cfg.StopLossPct:
		rec.SellReason = types.SellStopLoss
	case priceChange >= rec.EstimatedProfit:
		rec.SellReason = types.SellTakeProfit
	case rec.WorkTimeSecs > rec.TradeTimeSecs:
		rec.SellReason = types.SellTimeout
	default:
		return false
	}
	logger.Trade(ctx, rec.JobID, rec.Pair, rec.Venue, "exit_triggered",
		"sell_reason", rec.SellReason, "price_change", priceChange)

	baseBalance, err := w.caller.FetchBalance(ctx, types.BalanceFree, rec.BaseAsset())
	if err != nil {
		return w.failPhase(err, types.CancelBaseBalance)
	}

	id, err := w.caller.PlaceOrder(ctx, rec.Pair, types.SideSell, baseBalance, tick.Bid)
	if err != nil {
		return w.failPhase(err, types.CancelPlaceSell)
	}
	rec.SellOrderID = id
	rec.PlacedSellOrder = true
	w.checkpoint(ctx)
	return false
}

func (w *Worker) markFilled(ctx context.Context, side string, price float64) {
	rec := w.rec
	if side == types.SideBuy {
		rec.Bought = true
		rec.BuyPrice = price
		w.notifier.Notify(ctx, fmt.Sprintf("Bought %s on %s", rec.Pair, rec.Venue))
	} else {
		rec.Sold = true
		rec.SellPrice = price
		w.notifier.Notify(ctx, fmt.Sprintf("Sold %s on %s", rec.Pair, rec.Venue))
	}
	logger.Trade(ctx, rec.JobID, rec.Pair, rec.Venue, side+"_filled", "price", price)
	w.checkpoint(ctx)
}

// failPhase records a hard phase abort. Context cancellation is not an
// abort: the record stays non-terminal so its checkpoint survives for
// restore.
func (w *Worker) failPhase(err error, reason string) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	w.rec.CancelReason = reason
	return true
}

// finalize runs exactly once on every exit path, panic included: final
// checkpoint, venue lock release, ledger append, checkpoint delete.
func (w *Worker) finalize(ctx context.Context) {
	rec := w.rec
	if r := recover(); r != nil {
		logger.Error(ctx, "Worker fault", "job_id", rec.JobID, "venue", rec.Venue,
			"panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		w.notifier.Notify(ctx, fmt.Sprintf("something wrong happened in trade %s: %v", rec.JobID, r))
		if !rec.Terminal() {
			rec.CancelReason = fmt.Sprintf("worker fault: %v", r)
		}
	}

	w.checkpoint(ctx)
	w.locks.Release(rec.Venue)

	if rec.Terminal() {
		if err := w.ledger.Record(ctx, rec); err != nil {
			logger.ErrorWithErr(ctx, "Failed to append trade to ledger", err, "job_id", rec.JobID)
		}
		if err := w.checkpoints.Delete(rec); err != nil {
			logger.Warn(ctx, "Failed to delete checkpoint", "job_id", rec.JobID, "error", err)
		}
	}

	w.publish()
	w.done.Store(true)
}

func (w *Worker) checkpoint(ctx context.Context) {
	if err := w.checkpoints.Save(w.rec); err != nil {
		logger.Warn(ctx, "Failed to write checkpoint", "job_id", w.rec.JobID, "error", err)
	}
	w.publish()
}

func (w *Worker) publish() {
	snap := *w.rec
	w.snap.Store(&snap)
}
