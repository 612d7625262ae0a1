package engineobs

import (
	"context"
	"time"

	"signal-trader/internal/interfaces"
	"signal-trader/internal/logger"
	"signal-trader/internal/trace"
	"signal-trader/internal/types"
)

type observableEngine struct {
	engine interfaces.Engine
}

var _ interfaces.Engine = (*observableEngine)(nil)

// Wrap adds tracing and logging around engine operations.
func Wrap(eng interfaces.Engine) interfaces.Engine {
	return &observableEngine{engine: eng}
}

func (oe *observableEngine) Submit(ctx context.Context, sig types.Signal) (string, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Submit")
	defer span.End()

	jobID, err := oe.engine.Submit(ctx, sig)
	if err != nil {
		logger.Warn(ctx, "Signal rejected",
			"signal_id", sig.ID, "ticker", sig.Ticker, "venue", sig.Venue, "error", err)
		return "", err
	}
	logger.Info(ctx, "Trade admitted",
		"job_id", jobID, "ticker", sig.Ticker, "venue", sig.Venue,
		"signal_price", sig.PriceBTC, "estimated_profit", sig.EstimatedProfit)
	return jobID, nil
}

func (oe *observableEngine) Restore(ctx context.Context) (bool, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Restore")
	defer span.End()

	start := time.Now()
	restored, err := oe.engine.Restore(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Checkpoint recovery failed", err)
		return false, err
	}
	logger.Info(ctx, "Checkpoint recovery finished",
		"restored", restored, "duration_ms", time.Since(start).Milliseconds())
	return restored, nil
}

func (oe *observableEngine) VenueBusy(venue string) bool {
	return oe.engine.VenueBusy(venue)
}

func (oe *observableEngine) Report(ctx context.Context) (*types.EngineReport, error) {
	ctx, span := trace.StartSpan(ctx, "engine.Report")
	defer span.End()

	report, err := oe.engine.Report(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Report generation failed", err)
		return nil, err
	}
	logger.Debug(ctx, "Report generated",
		"venues", len(report.Balances), "live_trades", len(report.Trades))
	return report, nil
}
