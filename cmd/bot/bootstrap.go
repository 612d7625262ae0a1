package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"signal-trader/internal/bpi"
	"signal-trader/internal/checkpoint"
	"signal-trader/internal/engine"
	"signal-trader/internal/engine/engineobs"
	"signal-trader/internal/interfaces"
	"signal-trader/internal/ledger"
	"signal-trader/internal/logger"
	"signal-trader/internal/notify"
	"signal-trader/internal/scorer"
	"signal-trader/internal/store"
	"signal-trader/internal/types"
	"signal-trader/internal/venue"
	"signal-trader/internal/venue/venueobs"
)

// system bundles everything main needs after wiring.
type system struct {
	cfg    *store.Config
	engine interfaces.Engine
	core   *engine.Engine
	filter *scorer.Filter
	papers map[string]*venue.PaperBinding
}

func buildSystem(ctx context.Context, cfg *store.Config) (*system, error) {
	bindings := make(map[string]interfaces.Binding, len(cfg.Venues))
	papers := map[string]*venue.PaperBinding{}

	for _, vc := range cfg.Venues {
		b, paper, err := buildBinding(cfg.Mode, vc)
		if err != nil {
			return nil, err
		}
		if paper != nil {
			papers[vc.Name] = paper
		}
		bindings[vc.Name] = venueobs.Wrap(b)
	}

	var notifier interfaces.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.Notify.WebhookURL)
	} else {
		notifier = notify.NewLogNotifier()
		logger.Info(ctx, "No webhook configured, notifications go to the log")
	}

	priceClient := bpi.NewClient(cfg.BPI.URL)

	core := engine.New(
		engine.Config{
			QuoteAsset:       cfg.Trade.QuoteAsset,
			BudgetUSD:        cfg.Trade.BudgetUSD,
			TimeBudgetSecs:   cfg.Trade.TimeBudgetSecs,
			PendingOrderSecs: cfg.Trade.PendingOrderSecs,
			StopLossPct:      cfg.Trade.StopLossPct,
			MaxAPIAttempts:   cfg.Trade.MaxAPIAttempts,
		},
		bindings,
		checkpoint.NewStore(cfg.Paths.CheckpointDir),
		ledger.New(cfg.Paths.LedgerDir),
		notifier,
		priceClient.Current,
	)
	eng := engineobs.Wrap(core)

	filter := scorer.NewFilter(
		scorer.NewStatic(cfg.Admission.StaticProfitPct),
		cfg.Admission.VolumeThresholdUSD,
		core.VenueBusy,
	)

	return &system{cfg: cfg, engine: eng, core: core, filter: filter, papers: papers}, nil
}

func buildBinding(mode string, vc store.VenueConfig) (interfaces.Binding, *venue.PaperBinding, error) {
	interval := time.Duration(vc.MinCallIntervalMS) * time.Millisecond

	if mode == "DRY_RUN" {
		paper := venue.NewPaperBinding(venue.PaperConfig{
			Name:            vc.Name,
			FeeRate:         vc.FeeRate,
			AmountPrecision: vc.AmountPrecision,
			MinCallInterval: interval,
			Balances:        map[string]float64{"BTC": 0.01},
		})
		return paper, paper, nil
	}

	apiKey := os.Getenv(vc.KeyEnv)
	apiSecret := os.Getenv(vc.SecretEnv)
	if apiKey == "" || apiSecret == "" {
		return nil, nil, fmt.Errorf("venue %s: missing credentials in %s/%s", vc.Name, vc.KeyEnv, vc.SecretEnv)
	}
	return venue.NewRESTBinding(venue.RESTConfig{
		Name:            vc.Name,
		BaseURL:         vc.BaseURL,
		APIKey:          apiKey,
		APISecret:       apiSecret,
		FeeRate:         vc.FeeRate,
		AmountPrecision: vc.AmountPrecision,
		MinCallInterval: interval,
	}), nil, nil
}

// primePaperTicker seeds a DRY_RUN venue with a market derived from the
// signal, so simulated trades have something to poll.
func (s *system) primePaperTicker(sig types.Signal) {
	paper, ok := s.papers[sig.Venue]
	if !ok {
		return
	}
	paper.SetTicker(sig.Ticker+"/"+s.cfg.Trade.QuoteAsset, types.Ticker{
		Last: sig.PriceBTC,
		Bid:  sig.PriceBTC * 0.999,
		Ask:  sig.PriceBTC * 1.001,
	})
}
