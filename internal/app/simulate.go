package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"coinwatch/internal/alerting"
	"coinwatch/internal/fetcher"
	"coinwatch/internal/service"
	"coinwatch/internal/storage"
)

// SimulateOptions describe a synthetic watch and the price it sees.
type SimulateOptions struct {
	Owner     string
	Symbol    string
	Direction string
	Target    string
	Price     string
	// Telegram delivers the notification to Owner's chat instead of the log.
	Telegram bool
	Out      io.Writer
}

// SimulateTrigger 使用内存存储和固定报价跑一次完整的触发流程。
func (a *App) SimulateTrigger(ctx context.Context, opts SimulateOptions) error {
	price, err := service.ParseTarget(opts.Price)
	if err != nil {
		return fmt.Errorf("--price: %w", err)
	}

	catalog, err := a.newCatalog()
	if err != nil {
		return err
	}

	var notifier alerting.Notifier = alerting.NewLogNotifier(a.Logger)
	if opts.Telegram {
		if opts.Owner == "" {
			return errors.New("--owner (chat id) is required with --telegram")
		}
		tg, err := a.newTelegramClient()
		if err != nil {
			return err
		}
		notifier = alerting.NewTelegramNotifier(tg, a.Logger)
	}
	if opts.Owner == "" {
		opts.Owner = "simulation"
	}

	store := storage.NewMemoryStore()
	watches := service.NewWatches(store, catalog, nil, a.Logger)
	w, err := watches.Create(ctx, service.CreateRequest{
		Owner:     opts.Owner,
		Symbol:    opts.Symbol,
		Direction: opts.Direction,
		Target:    opts.Target,
	})
	if err != nil {
		return err
	}

	evaluator := service.New(service.Options{
		Store:    store,
		Quotes:   &staticQuoteSource{price: price},
		Notifier: notifier,
	}, a.Logger)

	summary, err := evaluator.ProcessTick(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	if summary.Triggered == 0 {
		fmt.Fprintf(opts.Out, "watch #%d (%s %s %s) not triggered at %s\n", w.ID, w.Symbol, w.Direction, w.Target, price)
		return nil
	}
	fmt.Fprintf(opts.Out, "watch #%d triggered at %s, notified=%t\n", w.ID, price, summary.Notified == 1)
	return nil
}

// staticQuoteSource answers every asset with the same USD price.
type staticQuoteSource struct {
	price decimal.Decimal
}

func (s *staticQuoteSource) FetchQuote(_ context.Context, assetRef string) (fetcher.Quote, error) {
	return fetcher.Quote{
		AssetRef: assetRef,
		PriceUSD: s.price,
		AsOf:     time.Now().UTC(),
	}, nil
}

var _ fetcher.QuoteSource = (*staticQuoteSource)(nil)
