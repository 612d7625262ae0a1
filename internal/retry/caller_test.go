package retry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signal-trader/internal/types"
)

// flakyBinding fails each operation a scripted number of times before
// succeeding. failures < 0 means fail forever.
type flakyBinding struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (b *flakyBinding) attempt() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.failures < 0 {
		return errors.New("venue down")
	}
	if b.failures > 0 {
		b.failures--
		return errors.New("venue down")
	}
	return nil
}

func (b *flakyBinding) Name() string                               { return "paymium" }
func (b *flakyBinding) FeeRate() float64                           { return 0 }
func (b *flakyBinding) MinCallInterval() time.Duration             { return 0 }
func (b *flakyBinding) AmountToPrecision(_ string, q float64) float64 { return q }

func (b *flakyBinding) FetchBalance(_ context.Context, _ string) (map[string]float64, error) {
	if err := b.attempt(); err != nil {
		return nil, err
	}
	return map[string]float64{"BTC": 1.5}, nil
}

func (b *flakyBinding) FetchTicker(_ context.Context, _ string) (types.Ticker, error) {
	if err := b.attempt(); err != nil {
		return types.Ticker{}, err
	}
	return types.Ticker{Last: 100, Bid: 99, Ask: 101}, nil
}

func (b *flakyBinding) CreateOrder(_ context.Context, _, _ string, _, _ float64) (string, error) {
	if err := b.attempt(); err != nil {
		return "", err
	}
	return "ord-1", nil
}

func (b *flakyBinding) CancelOrder(_ context.Context, _, _ string) error {
	return b.attempt()
}

func (b *flakyBinding) FetchOrder(_ context.Context, id, _ string) (types.Order, error) {
	if err := b.attempt(); err != nil {
		return types.Order{}, err
	}
	return types.Order{ID: id, Status: types.OrderClosed, Price: 100}, nil
}

type recordingNotifier struct {
	msgs []string
}

func (n *recordingNotifier) Notify(_ context.Context, msg string) {
	n.msgs = append(n.msgs, msg)
}

func newTestCaller(b *flakyBinding, rec *types.TradeRecord, maxAttempts int) (*Caller, *recordingNotifier) {
	n := &recordingNotifier{}
	return NewCaller(b, n, rec, maxAttempts), n
}

func TestPlaceOrderRetriesUntilSuccess(t *testing.T) {
	b := &flakyBinding{failures: 3}
	rec := &types.TradeRecord{JobID: "job-1"}
	c, n := newTestCaller(b, rec, 10)

	id, err := c.PlaceOrder(context.Background(), "XRP/BTC", types.SideBuy, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", id)
	assert.Equal(t, 4, b.calls)
	assert.Equal(t, 0, rec.APIFailures, "counter resets on success")
	assert.Empty(t, n.msgs)
}

func TestExhaustionNotifiesOnceAndResets(t *testing.T) {
	b := &flakyBinding{failures: -1}
	rec := &types.TradeRecord{JobID: "job-1"}
	c, n := newTestCaller(b, rec, 3)

	_, err := c.PlaceOrder(context.Background(), "XRP/BTC", types.SideBuy, 1, 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))

	// One attempt past the cap, then a single notification.
	assert.Equal(t, 4, b.calls)
	require.Len(t, n.msgs, 1)
	assert.Equal(t, "number of attempts to place buy order exceeded: venue down", n.msgs[0])
	assert.Equal(t, 0, rec.APIFailures)
}

func TestFailureCounterIsSharedAcrossOperations(t *testing.T) {
	// Failures accumulated by earlier calls count toward the cap of the
	// next one: a counter already past the cap aborts before any attempt.
	b := &flakyBinding{}
	rec := &types.TradeRecord{JobID: "job-1", APIFailures: 4}
	c, n := newTestCaller(b, rec, 3)

	_, err := c.FetchTicker(context.Background(), "XRP/BTC")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))
	assert.Equal(t, 0, b.calls)
	require.Len(t, n.msgs, 1)
	assert.Contains(t, n.msgs[0], "fetch ticker info")
	assert.Equal(t, 0, rec.APIFailures)
}

func TestTimeAccountingPerAttempt(t *testing.T) {
	b := &flakyBinding{}
	rec := &types.TradeRecord{JobID: "job-1", IterationSecs: 0.001}
	c, _ := newTestCaller(b, rec, 10)

	_, err := c.FetchOrder(context.Background(), "ord-1", "XRP/BTC", types.SideBuy)
	require.NoError(t, err)
	assert.InDelta(t, 0.001, rec.WorkTimeSecs, 1e-9)
	assert.InDelta(t, 0.001, rec.OrderOpenSecs, 1e-9)

	// Only order polls accrue open time.
	_, err = c.FetchTicker(context.Background(), "XRP/BTC")
	require.NoError(t, err)
	assert.InDelta(t, 0.002, rec.WorkTimeSecs, 1e-9)
	assert.InDelta(t, 0.001, rec.OrderOpenSecs, 1e-9)
}

func TestContextCancellationStopsPause(t *testing.T) {
	b := &flakyBinding{}
	rec := &types.TradeRecord{JobID: "job-1", IterationSecs: 60}
	c, n := newTestCaller(b, rec, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := c.FetchTicker(ctx, "XRP/BTC")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 0, b.calls)
	assert.Empty(t, n.msgs)
}

func TestFetchBalanceMissingAssetIsZero(t *testing.T) {
	b := &flakyBinding{}
	rec := &types.TradeRecord{JobID: "job-1"}
	c, _ := newTestCaller(b, rec, 10)

	qty, err := c.FetchBalance(context.Background(), types.BalanceFree, "XRP")
	require.NoError(t, err)
	assert.Equal(t, 0.0, qty)

	qty, err = c.FetchBalance(context.Background(), types.BalanceFree, "BTC")
	require.NoError(t, err)
	assert.Equal(t, 1.5, qty)
}
