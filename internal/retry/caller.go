package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"signal-trader/internal/interfaces"
	"signal-trader/internal/types"
)

// ErrExhausted is returned when a venue call fails more times than the
// configured cap. Callers treat it as a hard abort for the current
// phase, never as a retryable condition.
var ErrExhausted = errors.New("venue call attempts exhausted")

// Caller wraps every venue operation for one trade with fixed-interval
// retry. It sleeps the record's iteration interval before each attempt,
// which also paces the busy-poll loops of the trade state machine. The
// consecutive-failure counter lives on the record and is shared across
// all operations of the trade, so failures anywhere within a phase
// accumulate toward the same cap.
type Caller struct {
	binding     interfaces.Binding
	notifier    interfaces.Notifier
	rec         *types.TradeRecord
	maxAttempts int
}

func NewCaller(b interfaces.Binding, n interfaces.Notifier, rec *types.TradeRecord, maxAttempts int) *Caller {
	return &Caller{binding: b, notifier: n, rec: rec, maxAttempts: maxAttempts}
}

// PlaceOrder places a limit order and returns the venue's order id.
func (c *Caller) PlaceOrder(ctx context.Context, pair, side string, qty, price float64) (string, error) {
	var id string
	err := c.do(ctx, fmt.Sprintf("place %s order", side), false, func(ctx context.Context) error {
		var err error
		id, err = c.binding.CreateOrder(ctx, pair, side, qty, price)
		return err
	})
	return id, err
}

// CancelOrder cancels an open order.
func (c *Caller) CancelOrder(ctx context.Context, id, pair, side string) error {
	return c.do(ctx, fmt.Sprintf("cancel %s order", side), false, func(ctx context.Context) error {
		return c.binding.CancelOrder(ctx, id, pair)
	})
}

// FetchOrder polls an order's status. Each attempt counts toward the
// order's open time, which drives the pending-order cancel threshold.
func (c *Caller) FetchOrder(ctx context.Context, id, pair, side string) (types.Order, error) {
	var ord types.Order
	err := c.do(ctx, fmt.Sprintf("fetch %s order info", side), true, func(ctx context.Context) error {
		var err error
		ord, err = c.binding.FetchOrder(ctx, id, pair)
		return err
	})
	return ord, err
}

// FetchBalance returns the balance of one asset in the given category.
// An asset absent from the venue's response is a zero balance.
func (c *Caller) FetchBalance(ctx context.Context, category, asset string) (float64, error) {
	var qty float64
	err := c.do(ctx, fmt.Sprintf("fetch %s %s balance", category, asset), false, func(ctx context.Context) error {
		balances, err := c.binding.FetchBalance(ctx, category)
		if err != nil {
			return err
		}
		qty = balances[asset]
		return nil
	})
	return qty, err
}

// FetchTicker returns the current market view of the pair.
func (c *Caller) FetchTicker(ctx context.Context, pair string) (types.Ticker, error) {
	var t types.Ticker
	err := c.do(ctx, "fetch ticker info", false, func(ctx context.Context) error {
		var err error
		t, err = c.binding.FetchTicker(ctx, pair)
		return err
	})
	return t, err
}

func (c *Caller) do(ctx context.Context, label string, trackOrderOpen bool, fn func(context.Context) error) error {
	var lastErr error
	for {
		if c.rec.APIFailures > c.maxAttempts {
			c.notifier.Notify(ctx, fmt.Sprintf("number of attempts to %s exceeded: %v", label, lastErr))
			c.rec.APIFailures = 0
			return fmt.Errorf("%s: %w", label, ErrExhausted)
		}
		if err := c.pause(ctx, trackOrderOpen); err != nil {
			return err
		}
		if err := fn(ctx); err != nil {
			lastErr = err
			c.rec.APIFailures++
			continue
		}
		c.rec.APIFailures = 0
		return nil
	}
}

// pause sleeps the record's iteration interval and charges it to the
// trade's elapsed work time. The interval is fixed per trade, so the
// time accounting stays deterministic and checkpoint round-trips exact.
func (c *Caller) pause(ctx context.Context, trackOrderOpen bool) error {
	d := time.Duration(c.rec.IterationSecs * float64(time.Second))
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	c.rec.WorkTimeSecs += c.rec.IterationSecs
	if trackOrderOpen {
		c.rec.OrderOpenSecs += c.rec.IterationSecs
	}
	return nil
}
