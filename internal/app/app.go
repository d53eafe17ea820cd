package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"coinwatch/internal/alerting"
	"coinwatch/internal/assets"
	"coinwatch/internal/bot"
	"coinwatch/internal/config"
	"coinwatch/internal/fetcher"
	"coinwatch/internal/httpapi"
	"coinwatch/internal/news"
	"coinwatch/internal/observability"
	"coinwatch/internal/scheduler"
	"coinwatch/internal/service"
	"coinwatch/internal/storage"
	"coinwatch/internal/telegram"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newCatalog() (*assets.Catalog, error) {
	return assets.NewCatalog(a.Config.Quotes.Provider, a.Config.Assets)
}

func (a *App) newQuoteSource() fetcher.QuoteSource {
	q := a.Config.Quotes
	if q.Provider == assets.ProviderChainlink {
		return fetcher.NewChainlink(fetcher.ChainlinkOptions{
			RPCURL:      q.Chainlink.RPCURL,
			FXFeed:      q.Chainlink.FXFeed,
			AltCurrency: q.AltCurrency,
			Timeout:     q.Timeout,
		}, a.Logger)
	}
	return fetcher.NewCoinGecko(fetcher.CoinGeckoOptions{
		BaseURL:     q.CoinGecko.BaseURL,
		APIKey:      q.CoinGecko.APIKey,
		AltCurrency: q.AltCurrency,
		Timeout:     q.Timeout,
		UserAgent:   q.UserAgent,
	}, a.Logger)
}

func (a *App) newSentimentSource() fetcher.SentimentSource {
	return fetcher.NewFearGreed(fetcher.FearGreedOptions{
		BaseURL:   a.Config.Sentiment.BaseURL,
		Timeout:   a.Config.Sentiment.Timeout,
		UserAgent: a.Config.Quotes.UserAgent,
	}, a.Logger)
}

func (a *App) newAggregator() *news.Aggregator {
	n := a.Config.News
	return news.New(news.Options{
		Primary:   news.Feed{Label: n.Primary.Label, URLs: n.Primary.URLs},
		Secondary: news.Feed{Label: n.Secondary.Label, URLs: n.Secondary.URLs},
		Keywords:  n.Keywords,
		Timeout:   n.Timeout,
		UserAgent: a.Config.Quotes.UserAgent,
	}, a.Logger)
}

func (a *App) newTelegramClient() (*telegram.Client, error) {
	if err := a.Config.RequireBotToken(); err != nil {
		return nil, err
	}
	t := a.Config.Telegram
	return telegram.NewClient(telegram.Options{
		Token:          t.BotToken,
		APIBase:        t.APIBase,
		RequestTimeout: t.RequestTimeout,
		PollTimeout:    t.PollTimeout,
	}, a.Logger), nil
}

func (a *App) newScheduler() (*scheduler.Scheduler, error) {
	return scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToInterval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Backend, error) {
	backend, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug().Str("driver", a.Config.Database.Driver).Msg("watch store opened")
	return backend, nil
}

// Run executes the long-running service: evaluation loop, Telegram bot and HTTP surface.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	catalog, err := a.newCatalog()
	if err != nil {
		return err
	}

	backend, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	sched, err := a.newScheduler()
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics(a.Config.Metrics.Namespace)
	quotes := a.newQuoteSource()
	sentiment := a.newSentimentSource()
	aggregator := a.newAggregator()
	watches := service.NewWatches(backend.Store, catalog, metrics, a.Logger)

	var (
		tg       *telegram.Client
		notifier alerting.Notifier
	)
	if a.Config.Telegram.Enabled {
		tg, err = a.newTelegramClient()
		if err != nil {
			return err
		}
		notifier = alerting.NewTelegramNotifier(tg, a.Logger)
	} else {
		a.Logger.Warn().Msg("telegram disabled; triggered alerts are only logged")
		notifier = alerting.NewLogNotifier(a.Logger)
	}

	evaluator := service.New(service.Options{
		Store:       backend.Store,
		Quotes:      quotes,
		Notifier:    notifier,
		Scheduler:   sched,
		Metrics:     metrics,
		LockKey:     a.Config.Scheduler.AdvisoryLockKey,
		Concurrency: a.Config.Scheduler.Concurrency,
	}, a.Logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return evaluator.Run(gctx) })

	if tg != nil {
		chat := bot.New(bot.Options{
			Messenger:   tg,
			Watches:     watches,
			Catalog:     catalog,
			Quotes:      quotes,
			Sentiment:   sentiment,
			News:        aggregator,
			Metrics:     metrics,
			SessionTTL:  a.Config.Telegram.SessionTTL,
			NewsPerFeed: a.Config.News.PerFeedLimit,
			NewsFinal:   a.Config.News.FinalLimit,
		}, a.Logger)
		g.Go(func() error { return chat.Run(gctx) })
	}

	if a.Config.HTTP.Enabled {
		srv := httpapi.New(httpapi.Options{
			ListenAddr:  a.Config.HTTP.ListenAddr,
			APIToken:    a.Config.HTTP.APIToken,
			Watches:     watches,
			Catalog:     catalog,
			Quotes:      quotes,
			Sentiment:   sentiment,
			News:        aggregator,
			Metrics:     metrics,
			NewsPerFeed: a.Config.News.PerFeedLimit,
			NewsFinal:   a.Config.News.FinalLimit,
		}, a.Logger)
		g.Go(func() error { return srv.Run(gctx) })
	}

	a.Logger.Info().
		Str("provider", catalog.Provider()).
		Strs("assets", catalog.Symbols()).
		Bool("telegram", tg != nil).
		Bool("http", a.Config.HTTP.Enabled).
		Msg("starting coinwatch")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("coinwatch stopped")
	return nil
}
