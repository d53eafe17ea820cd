package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"coinwatch/internal/alerting"
	"coinwatch/internal/errs"
	"coinwatch/internal/fetcher"
	"coinwatch/internal/observability"
	"coinwatch/internal/scheduler"
	"coinwatch/internal/storage"
)

// ErrTickInProgress is returned when another tick holds the in-process lock.
var ErrTickInProgress = errors.New("evaluation tick already in progress")

// Options wire the evaluator's collaborators.
type Options struct {
	Store     storage.WatchStore
	Quotes    fetcher.QuoteSource
	Notifier  alerting.Notifier
	Scheduler *scheduler.Scheduler
	Metrics   *observability.Metrics
	// LockKey enables the cross-process advisory lock when the store supports it.
	LockKey int64
	// Concurrency bounds parallel quote fetches within a tick.
	Concurrency int
}

// TickSummary describes what one tick did.
type TickSummary struct {
	At           time.Time
	Active       int
	Assets       int
	FailedAssets int
	Triggered    int
	Notified     int
	Skipped      bool
}

// Evaluator polls quotes for active watches and fires each watch at most once.
type Evaluator struct {
	opts   Options
	locker storage.AdvisoryLocker
	logger zerolog.Logger

	mu sync.Mutex
}

// New constructs the evaluation loop.
func New(opts Options, logger zerolog.Logger) *Evaluator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	var locker storage.AdvisoryLocker
	if l, ok := opts.Store.(storage.AdvisoryLocker); ok && opts.LockKey != 0 {
		locker = l
	}

	return &Evaluator{
		opts:   opts,
		locker: locker,
		logger: logger.With().Str("component", "evaluator").Logger(),
	}
}

// Run drives ProcessTick from the scheduler until ctx is cancelled.
func (e *Evaluator) Run(ctx context.Context) error {
	if e.opts.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return e.opts.Scheduler.Run(ctx, func(ctx context.Context, at time.Time) error {
		_, err := e.ProcessTick(ctx, at)
		if errors.Is(err, ErrTickInProgress) {
			return nil
		}
		return err
	})
}

// ProcessTick 执行一次评估：拉取报价、判断阈值、认领并通知。
func (e *Evaluator) ProcessTick(ctx context.Context, at time.Time) (TickSummary, error) {
	started := time.Now()
	summary := TickSummary{At: at}

	if !e.mu.TryLock() {
		e.opts.Metrics.RecordTick("skipped", started)
		return TickSummary{At: at, Skipped: true}, ErrTickInProgress
	}
	defer e.mu.Unlock()

	unlock, proceed, err := e.acquireLock(ctx)
	if err != nil {
		e.opts.Metrics.RecordTick("error", started)
		return summary, err
	}
	if !proceed {
		e.logger.Debug().Time("at", at).Msg("skip tick because advisory lock held elsewhere")
		e.opts.Metrics.RecordTick("skipped", started)
		summary.Skipped = true
		return summary, nil
	}
	if unlock != nil {
		defer unlock()
	}

	if err := e.evaluate(ctx, at, &summary); err != nil {
		e.opts.Metrics.RecordTick("error", started)
		return summary, err
	}
	e.opts.Metrics.RecordTick("ok", started)

	if summary.Active > 0 {
		e.logger.Info().Time("at", at).
			Int("active", summary.Active).
			Int("assets", summary.Assets).
			Int("failed_assets", summary.FailedAssets).
			Int("triggered", summary.Triggered).
			Msg("tick evaluated")
	}
	return summary, nil
}

func (e *Evaluator) evaluate(ctx context.Context, at time.Time, summary *TickSummary) error {
	watches, err := e.opts.Store.ListActiveWatches(ctx)
	if err != nil {
		return fmt.Errorf("list active watches: %w", err)
	}
	summary.Active = len(watches)
	e.opts.Metrics.SetActiveWatches(len(watches))
	if len(watches) == 0 {
		return nil
	}

	groups := groupByAsset(watches)
	summary.Assets = len(groups)

	quotes := e.fetchQuotes(ctx, groups)
	summary.FailedAssets = len(groups) - len(quotes)

	for _, ref := range sortedRefs(groups) {
		quote, ok := quotes[ref]
		if !ok {
			continue
		}
		for _, w := range groups[ref] {
			if !Triggered(w, quote.PriceUSD) {
				continue
			}
			claimed, notified, err := e.fire(ctx, w, quote, at)
			if err != nil {
				e.logger.Error().Err(err).Int64("watch_id", w.ID).Msg("failed to claim watch")
				continue
			}
			if claimed {
				summary.Triggered++
			}
			if notified {
				summary.Notified++
			}
		}
	}
	return nil
}

// fire claims w and, only if the claim succeeded, notifies its owner.
func (e *Evaluator) fire(ctx context.Context, w storage.Watch, quote fetcher.Quote, at time.Time) (claimed, notified bool, err error) {
	claimed, err = e.opts.Store.ClaimTrigger(ctx, w.ID, quote.PriceUSD, at)
	if err != nil {
		return false, false, err
	}
	if !claimed {
		e.opts.Metrics.RecordClaimLost()
		e.logger.Debug().Int64("watch_id", w.ID).Msg("watch already inactive, claim lost")
		return false, false, nil
	}

	if e.opts.Notifier == nil {
		e.opts.Metrics.RecordTrigger(false)
		return true, false, nil
	}

	note := alerting.Notification{
		Destination: w.Owner,
		WatchID:     w.ID,
		Symbol:      w.Symbol,
		Direction:   w.Direction,
		Target:      w.Target,
		Quote:       quote,
	}
	if err := e.opts.Notifier.Notify(ctx, note); err != nil {
		e.opts.Metrics.RecordTrigger(false)
		e.logger.Error().Err(err).Int64("watch_id", w.ID).Str("owner", w.Owner).Msg("failed to dispatch alert")
		return true, false, nil
	}
	e.opts.Metrics.RecordTrigger(true)
	return true, true, nil
}

// fetchQuotes fetches each asset once; failed assets are absent from the result.
func (e *Evaluator) fetchQuotes(ctx context.Context, groups map[string][]storage.Watch) map[string]fetcher.Quote {
	var (
		mu     sync.Mutex
		quotes = make(map[string]fetcher.Quote, len(groups))
		g      errgroup.Group
	)
	g.SetLimit(e.opts.Concurrency)

	for ref := range groups {
		g.Go(func() error {
			quote, err := e.opts.Quotes.FetchQuote(ctx, ref)
			if err != nil {
				e.opts.Metrics.RecordQuoteError(kindLabel(err))
				e.logger.Warn().Err(err).Str("asset_ref", ref).Int("watches", len(groups[ref])).Msg("quote fetch failed, skipping asset this tick")
				return nil
			}
			mu.Lock()
			quotes[ref] = quote
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return quotes
}

// Triggered reports whether price crosses the watch's target (inclusive).
func Triggered(w storage.Watch, price decimal.Decimal) bool {
	switch w.Direction {
	case storage.DirectionAbove:
		return price.GreaterThanOrEqual(w.Target)
	case storage.DirectionBelow:
		return price.LessThanOrEqual(w.Target)
	default:
		return false
	}
}

func groupByAsset(watches []storage.Watch) map[string][]storage.Watch {
	groups := make(map[string][]storage.Watch)
	for _, w := range watches {
		groups[w.AssetRef] = append(groups[w.AssetRef], w)
	}
	for _, ws := range groups {
		sort.Slice(ws, func(i, j int) bool { return ws[i].ID < ws[j].ID })
	}
	return groups
}

func sortedRefs(groups map[string][]storage.Watch) []string {
	refs := make([]string, 0, len(groups))
	for ref := range groups {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	return refs
}

func kindLabel(err error) string {
	switch errs.KindOf(err) {
	case errs.ErrNotFound:
		return "not_found"
	case errs.ErrTransient:
		return "transient"
	default:
		return "other"
	}
}

func (e *Evaluator) acquireLock(ctx context.Context) (func(), bool, error) {
	if e.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := e.locker.TryAdvisoryLock(ctx, e.opts.LockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
