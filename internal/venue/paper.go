package venue

import (
	"context"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"signal-trader/internal/types"
)

// PaperBinding simulates a venue in memory so the whole engine can run
// in DRY_RUN mode without credentials. Limit orders fill on the next
// status poll at their limit price.
type PaperBinding struct {
	mu        sync.Mutex
	name      string
	feeRate   float64
	precision int32
	interval  time.Duration
	free      map[string]float64
	used      map[string]float64
	tickers   map[string]types.Ticker
	orders    map[string]*paperOrder
	nextID    int
}

type paperOrder struct {
	pair  string
	side  string
	qty   float64
	price float64
	open  bool
	polls int
}

// PaperConfig seeds a paper venue.
type PaperConfig struct {
	Name            string
	FeeRate         float64
	AmountPrecision int32
	MinCallInterval time.Duration
	Balances        map[string]float64
	Tickers         map[string]types.Ticker
}

func NewPaperBinding(cfg PaperConfig) *PaperBinding {
	free := make(map[string]float64, len(cfg.Balances))
	maps.Copy(free, cfg.Balances)
	tickers := make(map[string]types.Ticker, len(cfg.Tickers))
	maps.Copy(tickers, cfg.Tickers)
	return &PaperBinding{
		name:      cfg.Name,
		feeRate:   cfg.FeeRate,
		precision: cfg.AmountPrecision,
		interval:  cfg.MinCallInterval,
		free:      free,
		used:      map[string]float64{},
		tickers:   tickers,
		orders:    map[string]*paperOrder{},
	}
}

func (p *PaperBinding) Name() string                   { return p.name }
func (p *PaperBinding) FeeRate() float64               { return p.feeRate }
func (p *PaperBinding) MinCallInterval() time.Duration { return p.interval }

func (p *PaperBinding) AmountToPrecision(_ string, qty float64) float64 {
	v, _ := decimal.NewFromFloat(qty).RoundDown(p.precision).Float64()
	return v
}

// SetTicker updates the simulated market view of a pair.
func (p *PaperBinding) SetTicker(pair string, t types.Ticker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tickers[pair] = t
}

func (p *PaperBinding) FetchBalance(_ context.Context, category string) (map[string]float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	src := p.free
	if category == types.BalanceUsed {
		src = p.used
	}
	out := make(map[string]float64, len(src))
	for asset, qty := range src {
		if qty == 0 {
			continue
		}
		out[asset] = qty
	}
	return out, nil
}

func (p *PaperBinding) FetchTicker(_ context.Context, pair string) (types.Ticker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tickers[pair]
	if !ok {
		return types.Ticker{}, fmt.Errorf("%s: unknown pair %s", p.name, pair)
	}
	return t, nil
}

func (p *PaperBinding) CreateOrder(_ context.Context, pair, side string, qty, price float64) (string, error) {
	if qty <= 0 || price <= 0 {
		return "", fmt.Errorf("%s: rejected %s order: qty=%v price=%v", p.name, side, qty, price)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	base, quote := splitPair(pair)
	if side == types.SideBuy {
		cost := qty * price
		if p.free[quote] < cost {
			return "", fmt.Errorf("%s: insufficient %s balance for buy", p.name, quote)
		}
		p.free[quote] -= cost
		p.used[quote] += cost
	} else {
		if p.free[base] < qty {
			return "", fmt.Errorf("%s: insufficient %s balance for sell", p.name, base)
		}
		p.free[base] -= qty
		p.used[base] += qty
	}

	p.nextID++
	id := fmt.Sprintf("%s-%d", p.name, p.nextID)
	p.orders[id] = &paperOrder{pair: pair, side: side, qty: qty, price: price, open: true}
	return id, nil
}

func (p *PaperBinding) CancelOrder(_ context.Context, id, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	ord, ok := p.orders[id]
	if !ok {
		return fmt.Errorf("%s: unknown order %s", p.name, id)
	}
	if !ord.open {
		return fmt.Errorf("%s: order %s already filled", p.name, id)
	}
	base, quote := splitPair(ord.pair)
	if ord.side == types.SideBuy {
		cost := ord.qty * ord.price
		p.used[quote] -= cost
		p.free[quote] += cost
	} else {
		p.used[base] -= ord.qty
		p.free[base] += ord.qty
	}
	delete(p.orders, id)
	return nil
}

func (p *PaperBinding) FetchOrder(_ context.Context, id, _ string) (types.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ord, ok := p.orders[id]
	if !ok {
		return types.Order{}, fmt.Errorf("%s: unknown order %s", p.name, id)
	}
	// First poll still reports open so the awaiting-fill loop is
	// exercised; the order settles on the next one.
	if ord.open {
		ord.polls++
		if ord.polls >= 2 {
			p.fill(ord)
		}
	}
	status := types.OrderClosed
	if ord.open {
		status = types.OrderOpen
	}
	return types.Order{ID: id, Status: status, Price: ord.price}, nil
}

// fill settles an open order at its limit price.
func (p *PaperBinding) fill(ord *paperOrder) {
	base, quote := splitPair(ord.pair)
	if ord.side == types.SideBuy {
		cost := ord.qty * ord.price
		p.used[quote] -= cost
		p.free[base] += ord.qty
	} else {
		p.used[base] -= ord.qty
		p.free[quote] += ord.qty * ord.price * (1 - p.feeRate)
	}
	ord.open = false
}

func splitPair(pair string) (base, quote string) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '/' {
			return pair[:i], pair[i+1:]
		}
	}
	return pair, ""
}
