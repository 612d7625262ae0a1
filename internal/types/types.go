package types

import (
	"strings"
	"time"
)

// Signal is a scored trading opportunity received from the ingestion
// channel. It is consumed once to seed a TradeRecord and never mutated.
type Signal struct {
	ID              string    `json:"id"`
	Date            time.Time `json:"date"`
	Ticker          string    `json:"ticker"`
	Venue           string    `json:"venue"`
	PriceBTC        float64   `json:"price_btc"`
	BPI             float64   `json:"bpi"`
	BuyVolumeBTC    float64   `json:"buy_vol_btc"`
	EstimatedProfit float64   `json:"estimated_profit"`
}

// Order side constants, matching the wire values venues expect.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order status values reported by venues.
const (
	OrderOpen   = "open"
	OrderClosed = "closed"
)

// Balance categories.
const (
	BalanceFree = "free"
	BalanceUsed = "used"
)

// Ticker is a venue's current market view of a pair.
type Ticker struct {
	Last float64 `json:"last"`
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
}

// Order is the venue's view of a placed order.
type Order struct {
	ID     string  `json:"id"`
	Status string  `json:"status"`
	Price  float64 `json:"price"`
}

// Cancel reasons set when a trade aborts before completion.
const (
	CancelQuoteBalance   = "unable to fetch quote balance before placing buy order"
	CancelTickerBuy      = "unable to fetch ticker before placing buy order"
	CancelPriceMoved     = "price increase is already higher than estimated profit"
	CancelPlaceBuy       = "unable to place buy order"
	CancelFetchBuyOrder  = "unable to fetch order info after placing buy order"
	CancelCancelBuy      = "unable to cancel buy order"
	CancelTickerSell     = "unable to fetch ticker before placing sell order"
	CancelBaseBalance    = "unable to fetch base balance before placing sell order"
	CancelPlaceSell      = "unable to place sell order"
	CancelFetchSellOrder = "unable to fetch order info after placing sell order"
	CancelCancelSell     = "unable to cancel sell order"
)

// Sell reasons, the three exit triggers evaluated in this priority order.
const (
	SellStopLoss   = "price decreased past stop loss"
	SellTakeProfit = "price reached estimated value"
	SellTimeout    = "trade time exceeded"
)

// TradeRecord is the mutable state of one trade job. While the trade is
// active it is owned exclusively by its worker; checkpoints and report
// snapshots work on copies.
type TradeRecord struct {
	JobID string    `json:"job_id"`
	Date  time.Time `json:"date"`
	Pair  string    `json:"pair"`
	Venue string    `json:"venue"`

	SignalPrice     float64  `json:"signal_price"`
	ReferencePrice  float64  `json:"bpi"`
	Budget          float64  `json:"budget"`
	TradeTimeSecs   float64  `json:"trade_time_secs"`
	EstimatedProfit float64  `json:"estimated_profit"`
	RealProfit      *float64 `json:"real_profit,omitempty"`

	BuyOrderID  string  `json:"buy_order_id,omitempty"`
	SellOrderID string  `json:"sell_order_id,omitempty"`
	BuyPrice    float64 `json:"buy_price,omitempty"`
	SellPrice   float64 `json:"sell_price,omitempty"`

	PlacedBuyOrder  bool `json:"placed_buy_order"`
	Bought          bool `json:"bought"`
	PlacedSellOrder bool `json:"placed_sell_order"`
	Sold            bool `json:"sold"`

	CancelReason string `json:"cancel_reason,omitempty"`
	SellReason   string `json:"sell_reason,omitempty"`

	APIFailures   int     `json:"api_failures"`
	WorkTimeSecs  float64 `json:"work_time_secs"`
	OrderOpenSecs float64 `json:"order_open_secs"`
	IterationSecs float64 `json:"iteration_secs"`
}

// NewTradeRecord seeds a record from a signal. iterationSecs is the
// venue's minimum call spacing plus margin; it paces every venue call
// made for this trade.
func NewTradeRecord(sig Signal, quoteAsset string, budget, tradeTimeSecs, iterationSecs float64) *TradeRecord {
	return &TradeRecord{
		JobID:           sig.ID,
		Date:            sig.Date,
		Pair:            sig.Ticker + "/" + quoteAsset,
		Venue:           sig.Venue,
		SignalPrice:     sig.PriceBTC,
		ReferencePrice:  sig.BPI,
		Budget:          budget,
		TradeTimeSecs:   tradeTimeSecs,
		EstimatedProfit: sig.EstimatedProfit,
		IterationSecs:   iterationSecs,
	}
}

// BaseAsset returns the traded asset, e.g. "XRP" for "XRP/BTC".
func (r *TradeRecord) BaseAsset() string {
	if i := strings.IndexByte(r.Pair, '/'); i >= 0 {
		return r.Pair[:i]
	}
	return r.Pair
}

// QuoteAsset returns the funding asset, e.g. "BTC" for "XRP/BTC".
func (r *TradeRecord) QuoteAsset() string {
	if i := strings.IndexByte(r.Pair, '/'); i >= 0 {
		return r.Pair[i+1:]
	}
	return ""
}

// Terminal reports whether the trade reached an end state: either the
// position was sold or the trade was cancelled.
func (r *TradeRecord) Terminal() bool {
	return r.Sold || r.CancelReason != ""
}

// VenueBalances holds one venue's free and used balances by asset.
type VenueBalances struct {
	Free map[string]float64 `json:"free"`
	Used map[string]float64 `json:"used"`
}

// EngineReport is a best-effort snapshot of venue balances and live
// trades for operator visibility.
type EngineReport struct {
	GeneratedAt  time.Time                `json:"generated_at"`
	ReferenceUSD float64                  `json:"btc_usd,omitempty"`
	Balances     map[string]VenueBalances `json:"balances"`
	Trades       []TradeRecord            `json:"trades"`
}
