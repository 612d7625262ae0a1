package venue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trader/internal/types"
)

func newTestPaper() *PaperBinding {
	return NewPaperBinding(PaperConfig{
		Name:            "paper",
		FeeRate:         0.01,
		AmountPrecision: 4,
		Balances:        map[string]float64{"BTC": 1},
		Tickers: map[string]types.Ticker{
			"XRP/BTC": {Last: 0.05, Bid: 0.049, Ask: 0.051},
		},
	})
}

func TestPaperBuyReservesQuoteBalance(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	id, err := p.CreateOrder(ctx, "XRP/BTC", types.SideBuy, 10, 0.05)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	free, err := p.FetchBalance(ctx, types.BalanceFree)
	require.NoError(t, err)
	used, err := p.FetchBalance(ctx, types.BalanceUsed)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, free["BTC"], 1e-9)
	assert.InDelta(t, 0.5, used["BTC"], 1e-9)
}

func TestPaperOrderFillsOnSecondPoll(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	id, err := p.CreateOrder(ctx, "XRP/BTC", types.SideBuy, 10, 0.05)
	require.NoError(t, err)

	ord, err := p.FetchOrder(ctx, id, "XRP/BTC")
	require.NoError(t, err)
	assert.Equal(t, types.OrderOpen, ord.Status)

	ord, err = p.FetchOrder(ctx, id, "XRP/BTC")
	require.NoError(t, err)
	assert.Equal(t, types.OrderClosed, ord.Status)
	assert.Equal(t, 0.05, ord.Price)

	free, err := p.FetchBalance(ctx, types.BalanceFree)
	require.NoError(t, err)
	assert.InDelta(t, 10, free["XRP"], 1e-9)
	used, err := p.FetchBalance(ctx, types.BalanceUsed)
	require.NoError(t, err)
	assert.NotContains(t, used, "BTC", "settled reservation is released")
}

func TestPaperSellCreditsQuoteMinusFee(t *testing.T) {
	p := NewPaperBinding(PaperConfig{
		Name:     "paper",
		FeeRate:  0.01,
		Balances: map[string]float64{"XRP": 10},
	})
	ctx := context.Background()

	id, err := p.CreateOrder(ctx, "XRP/BTC", types.SideSell, 10, 0.06)
	require.NoError(t, err)

	_, err = p.FetchOrder(ctx, id, "XRP/BTC")
	require.NoError(t, err)
	ord, err := p.FetchOrder(ctx, id, "XRP/BTC")
	require.NoError(t, err)
	require.Equal(t, types.OrderClosed, ord.Status)

	free, err := p.FetchBalance(ctx, types.BalanceFree)
	require.NoError(t, err)
	assert.InDelta(t, 0.594, free["BTC"], 1e-9)
	assert.NotContains(t, free, "XRP")
}

func TestPaperCancelRefundsReservation(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	id, err := p.CreateOrder(ctx, "XRP/BTC", types.SideBuy, 10, 0.05)
	require.NoError(t, err)
	require.NoError(t, p.CancelOrder(ctx, id, "XRP/BTC"))

	free, err := p.FetchBalance(ctx, types.BalanceFree)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, free["BTC"], 1e-9)

	_, err = p.FetchOrder(ctx, id, "XRP/BTC")
	assert.Error(t, err, "cancelled orders disappear")
}

func TestPaperRejectsUnfundedOrders(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	_, err := p.CreateOrder(ctx, "XRP/BTC", types.SideBuy, 100, 0.05)
	assert.Error(t, err)

	_, err = p.CreateOrder(ctx, "XRP/BTC", types.SideSell, 1, 0.05)
	assert.Error(t, err)

	_, err = p.CreateOrder(ctx, "XRP/BTC", types.SideBuy, 0, 0.05)
	assert.Error(t, err)
}

func TestPaperUnknownPairAndOrder(t *testing.T) {
	p := newTestPaper()
	ctx := context.Background()

	_, err := p.FetchTicker(ctx, "DOGE/BTC")
	assert.Error(t, err)

	_, err = p.FetchOrder(ctx, "nope", "XRP/BTC")
	assert.Error(t, err)

	assert.Error(t, p.CancelOrder(ctx, "nope", "XRP/BTC"))
}

func TestPaperSetTicker(t *testing.T) {
	p := newTestPaper()
	p.SetTicker("LTC/BTC", types.Ticker{Last: 0.002, Bid: 0.0019, Ask: 0.0021})

	tick, err := p.FetchTicker(context.Background(), "LTC/BTC")
	require.NoError(t, err)
	assert.Equal(t, 0.002, tick.Last)
}

func TestPaperAmountToPrecisionTruncates(t *testing.T) {
	p := newTestPaper()
	assert.Equal(t, 0.1234, p.AmountToPrecision("XRP/BTC", 0.12349999))
}

func TestCallLimiterEnforcesSpacing(t *testing.T) {
	l := newCallLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.wait(ctx))
	require.NoError(t, l.wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestCallLimiterCancelled(t *testing.T) {
	l := newCallLimiter(time.Hour)
	ctx := context.Background()
	require.NoError(t, l.wait(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, l.wait(cancelled))
}
