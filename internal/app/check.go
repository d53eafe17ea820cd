package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"coinwatch/internal/alerting"
	"coinwatch/internal/observability"
	"coinwatch/internal/service"
)

// CheckOptions configure a one-shot evaluation.
type CheckOptions struct {
	// Notify sends real Telegram notifications; otherwise triggers are only logged.
	Notify bool
	Out    io.Writer
}

// Check 手动执行一次评估（与调度循环逻辑一致）。
func (a *App) Check(ctx context.Context, opts CheckOptions) error {
	backend, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	var notifier alerting.Notifier = alerting.NewLogNotifier(a.Logger)
	if opts.Notify {
		tg, err := a.newTelegramClient()
		if err != nil {
			return err
		}
		notifier = alerting.NewTelegramNotifier(tg, a.Logger)
	}

	evaluator := service.New(service.Options{
		Store:       backend.Store,
		Quotes:      a.newQuoteSource(),
		Notifier:    notifier,
		Metrics:     observability.NewMetrics(a.Config.Metrics.Namespace),
		LockKey:     a.Config.Scheduler.AdvisoryLockKey,
		Concurrency: a.Config.Scheduler.Concurrency,
	}, a.Logger)

	summary, err := evaluator.ProcessTick(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	if summary.Skipped {
		fmt.Fprintln(opts.Out, "skipped: another process is evaluating")
		return nil
	}

	fmt.Fprintf(opts.Out, "active=%d assets=%d failed_assets=%d triggered=%d notified=%d\n",
		summary.Active, summary.Assets, summary.FailedAssets, summary.Triggered, summary.Notified)
	if summary.FailedAssets > 0 {
		return fmt.Errorf("%d asset quote(s) failed, see log", summary.FailedAssets)
	}
	return nil
}
