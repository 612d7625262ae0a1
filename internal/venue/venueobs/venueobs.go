package venueobs

import (
	"context"
	"time"

	"signal-trader/internal/interfaces"
	"signal-trader/internal/logger"
	"signal-trader/internal/trace"
	"signal-trader/internal/types"
)

type observableBinding struct {
	binding interfaces.Binding
}

var _ interfaces.Binding = (*observableBinding)(nil)

// Wrap adds tracing and debug logging to every venue call.
func Wrap(b interfaces.Binding) interfaces.Binding {
	return &observableBinding{binding: b}
}

func (ob *observableBinding) Name() string                   { return ob.binding.Name() }
func (ob *observableBinding) FeeRate() float64               { return ob.binding.FeeRate() }
func (ob *observableBinding) MinCallInterval() time.Duration { return ob.binding.MinCallInterval() }

func (ob *observableBinding) AmountToPrecision(pair string, qty float64) float64 {
	return ob.binding.AmountToPrecision(pair, qty)
}

func (ob *observableBinding) FetchBalance(ctx context.Context, category string) (map[string]float64, error) {
	ctx, span := trace.StartSpan(ctx, "venue.FetchBalance")
	defer span.End()

	balances, err := ob.binding.FetchBalance(ctx, category)
	if err != nil {
		logger.Warn(ctx, "Venue balance fetch failed", "venue", ob.binding.Name(), "category", category, "error", err)
		return nil, err
	}
	logger.Debug(ctx, "Venue balance fetched", "venue", ob.binding.Name(), "category", category, "assets", len(balances))
	return balances, nil
}

func (ob *observableBinding) FetchTicker(ctx context.Context, pair string) (types.Ticker, error) {
	ctx, span := trace.StartSpan(ctx, "venue.FetchTicker")
	defer span.End()

	t, err := ob.binding.FetchTicker(ctx, pair)
	if err != nil {
		logger.Warn(ctx, "Venue ticker fetch failed", "venue", ob.binding.Name(), "pair", pair, "error", err)
		return t, err
	}
	logger.Debug(ctx, "Venue ticker fetched", "venue", ob.binding.Name(), "pair", pair, "last", t.Last, "bid", t.Bid, "ask", t.Ask)
	return t, nil
}

func (ob *observableBinding) CreateOrder(ctx context.Context, pair, side string, qty, price float64) (string, error) {
	ctx, span := trace.StartSpan(ctx, "venue.CreateOrder")
	defer span.End()

	start := time.Now()
	id, err := ob.binding.CreateOrder(ctx, pair, side, qty, price)
	if err != nil {
		logger.Warn(ctx, "Venue order placement failed",
			"venue", ob.binding.Name(), "pair", pair, "side", side, "qty", qty, "price", price, "error", err)
		return "", err
	}
	logger.Info(ctx, "Venue order placed",
		"venue", ob.binding.Name(), "pair", pair, "side", side, "qty", qty, "price", price,
		"order_id", id, "duration_ms", time.Since(start).Milliseconds())
	return id, nil
}

func (ob *observableBinding) CancelOrder(ctx context.Context, id, pair string) error {
	ctx, span := trace.StartSpan(ctx, "venue.CancelOrder")
	defer span.End()

	if err := ob.binding.CancelOrder(ctx, id, pair); err != nil {
		logger.Warn(ctx, "Venue order cancel failed", "venue", ob.binding.Name(), "order_id", id, "error", err)
		return err
	}
	logger.Info(ctx, "Venue order cancelled", "venue", ob.binding.Name(), "order_id", id, "pair", pair)
	return nil
}

func (ob *observableBinding) FetchOrder(ctx context.Context, id, pair string) (types.Order, error) {
	ctx, span := trace.StartSpan(ctx, "venue.FetchOrder")
	defer span.End()

	ord, err := ob.binding.FetchOrder(ctx, id, pair)
	if err != nil {
		logger.Warn(ctx, "Venue order fetch failed", "venue", ob.binding.Name(), "order_id", id, "error", err)
		return ord, err
	}
	logger.Debug(ctx, "Venue order fetched", "venue", ob.binding.Name(), "order_id", id, "status", ord.Status)
	return ord, nil
}
