package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinwatch/internal/alerting"
	"coinwatch/internal/errs"
	"coinwatch/internal/fetcher"
	"coinwatch/internal/observability"
	"coinwatch/internal/scheduler"
	"coinwatch/internal/storage"
)

type stubQuotes struct {
	mu     sync.Mutex
	prices map[string]string
	fail   map[string]error
	calls  map[string]int
}

func newStubQuotes(prices map[string]string) *stubQuotes {
	return &stubQuotes{prices: prices, fail: map[string]error{}, calls: map[string]int{}}
}

func (s *stubQuotes) FetchQuote(_ context.Context, ref string) (fetcher.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[ref]++
	if err := s.fail[ref]; err != nil {
		return fetcher.Quote{}, err
	}
	price, ok := s.prices[ref]
	if !ok {
		return fetcher.Quote{}, errs.NotFound("quote", ref)
	}
	return fetcher.Quote{
		AssetRef:    ref,
		PriceUSD:    decimal.RequireFromString(price),
		PriceAlt:    decimal.RequireFromString(price).Mul(decimal.NewFromInt(16000)),
		AltCurrency: "idr",
	}, nil
}

func (s *stubQuotes) setPrice(ref, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[ref] = price
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []alerting.Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, note alerting.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, note)
	return r.err
}

func (r *recordingNotifier) sent() []alerting.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alerting.Notification(nil), r.notes...)
}

// racingStore loses every claim, as if another process deactivated the watch first.
type racingStore struct {
	*storage.MemoryStore
}

func (s racingStore) ClaimTrigger(ctx context.Context, id int64, price decimal.Decimal, at time.Time) (bool, error) {
	if err := s.MemoryStore.DeactivateWatch(ctx, id); err != nil {
		return false, err
	}
	return s.MemoryStore.ClaimTrigger(ctx, id, price, at)
}

func createWatch(t *testing.T, store storage.WatchStore, owner, symbol, ref string, dir storage.Direction, target string) int64 {
	t.Helper()
	id, err := store.CreateWatch(context.Background(), storage.NewWatch{
		Owner:     owner,
		Symbol:    symbol,
		AssetRef:  ref,
		Direction: dir,
		Target:    decimal.RequireFromString(target),
	})
	require.NoError(t, err)
	return id
}

func newEvaluator(store storage.WatchStore, quotes fetcher.QuoteSource, notifier alerting.Notifier) *Evaluator {
	return New(Options{Store: store, Quotes: quotes, Notifier: notifier, Concurrency: 2}, zerolog.Nop())
}

func TestTriggered(t *testing.T) {
	above := storage.Watch{Direction: storage.DirectionAbove, Target: decimal.NewFromInt(50000)}
	below := storage.Watch{Direction: storage.DirectionBelow, Target: decimal.NewFromInt(2000)}

	assert.False(t, Triggered(above, decimal.NewFromInt(49999)))
	assert.True(t, Triggered(above, decimal.NewFromInt(50000)))
	assert.True(t, Triggered(above, decimal.NewFromInt(50001)))
	assert.False(t, Triggered(below, decimal.RequireFromString("2000.01")))
	assert.True(t, Triggered(below, decimal.NewFromInt(2000)))
	assert.False(t, Triggered(storage.Watch{Direction: "sideways", Target: decimal.NewFromInt(1)}, decimal.NewFromInt(1)))
}

func TestProcessTickTriggersExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	quotes := newStubQuotes(map[string]string{"bitcoin": "49999"})
	notifier := &recordingNotifier{}
	eval := newEvaluator(store, quotes, notifier)

	id := createWatch(t, store, "100", "BTC", "bitcoin", storage.DirectionAbove, "50000")

	summary, err := eval.ProcessTick(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Triggered)
	assert.Empty(t, notifier.sent())

	quotes.setPrice("bitcoin", "50000")
	summary, err = eval.ProcessTick(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Triggered)
	assert.Equal(t, 1, summary.Notified)

	sent := notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "100", sent[0].Destination)
	assert.Equal(t, id, sent[0].WatchID)
	assert.True(t, sent[0].Quote.PriceUSD.Equal(decimal.NewFromInt(50000)))

	// already inactive: no second notification
	summary, err = eval.ProcessTick(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Active)
	assert.Len(t, notifier.sent(), 1)

	watches, err := store.ListWatchesForOwner(ctx, "100")
	require.NoError(t, err)
	require.Len(t, watches, 1)
	assert.False(t, watches[0].Active)
	require.NotNil(t, watches[0].TriggeredAt)
	assert.True(t, watches[0].TriggeredPrice.Valid)
}

func TestProcessTickFetchesEachAssetOnce(t *testing.T) {
	store := storage.NewMemoryStore()
	quotes := newStubQuotes(map[string]string{"bitcoin": "60000", "ethereum": "3000"})
	notifier := &recordingNotifier{}
	eval := newEvaluator(store, quotes, notifier)

	createWatch(t, store, "1", "BTC", "bitcoin", storage.DirectionAbove, "50000")
	createWatch(t, store, "2", "BTC", "bitcoin", storage.DirectionBelow, "40000")
	createWatch(t, store, "3", "ETH", "ethereum", storage.DirectionBelow, "3500")

	summary, err := eval.ProcessTick(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Active)
	assert.Equal(t, 2, summary.Assets)
	assert.Equal(t, 2, summary.Triggered)
	assert.Equal(t, 1, quotes.calls["bitcoin"])
	assert.Equal(t, 1, quotes.calls["ethereum"])

	owners := []string{}
	for _, n := range notifier.sent() {
		owners = append(owners, n.Destination)
	}
	assert.ElementsMatch(t, []string{"1", "3"}, owners)
}

func TestProcessTickIsolatesFailedAsset(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	quotes := newStubQuotes(map[string]string{"bitcoin": "60000", "ethereum": "1000"})
	quotes.fail["ethereum"] = errs.Transient("quote ethereum", errors.New("timeout"))
	notifier := &recordingNotifier{}
	metrics := observability.NewMetrics("test")
	eval := New(Options{Store: store, Quotes: quotes, Notifier: notifier, Metrics: metrics}, zerolog.Nop())

	createWatch(t, store, "1", "BTC", "bitcoin", storage.DirectionAbove, "50000")
	ethID := createWatch(t, store, "1", "ETH", "ethereum", storage.DirectionBelow, "2000")

	summary, err := eval.ProcessTick(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.FailedAssets)
	assert.Equal(t, 1, summary.Triggered)
	require.Len(t, notifier.sent(), 1)
	assert.Equal(t, "BTC", notifier.sent()[0].Symbol)

	active, err := store.ListActiveWatches(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, ethID, active[0].ID)
}

func TestProcessTickLostClaimSendsNothing(t *testing.T) {
	store := racingStore{storage.NewMemoryStore()}
	quotes := newStubQuotes(map[string]string{"bitcoin": "60000"})
	notifier := &recordingNotifier{}
	eval := newEvaluator(store, quotes, notifier)

	createWatch(t, store, "1", "BTC", "bitcoin", storage.DirectionAbove, "50000")

	summary, err := eval.ProcessTick(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Triggered)
	assert.Empty(t, notifier.sent())
}

func TestProcessTickNotifyFailureStillDeactivates(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	quotes := newStubQuotes(map[string]string{"bitcoin": "60000"})
	notifier := &recordingNotifier{err: errors.New("chat unreachable")}
	eval := newEvaluator(store, quotes, notifier)

	createWatch(t, store, "1", "BTC", "bitcoin", storage.DirectionAbove, "50000")

	summary, err := eval.ProcessTick(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Triggered)
	assert.Equal(t, 0, summary.Notified)

	active, err := store.ListActiveWatches(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Len(t, notifier.sent(), 1)
}

func TestProcessTickNoWatchesSkipsFetch(t *testing.T) {
	quotes := newStubQuotes(map[string]string{})
	eval := newEvaluator(storage.NewMemoryStore(), quotes, &recordingNotifier{})

	summary, err := eval.ProcessTick(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Active)
	assert.Empty(t, quotes.calls)
}

func TestProcessTickSkipsWhenBusy(t *testing.T) {
	eval := newEvaluator(storage.NewMemoryStore(), newStubQuotes(nil), &recordingNotifier{})
	eval.mu.Lock()
	defer eval.mu.Unlock()

	summary, err := eval.ProcessTick(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrTickInProgress)
	assert.True(t, summary.Skipped)
}

func TestRunEvaluatesOnSchedule(t *testing.T) {
	store := storage.NewMemoryStore()
	quotes := newStubQuotes(map[string]string{"bitcoin": "60000"})
	notifier := &recordingNotifier{}
	createWatch(t, store, "1", "BTC", "bitcoin", storage.DirectionAbove, "50000")

	sched, err := scheduler.New(scheduler.Options{Interval: 10 * time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)
	eval := New(Options{Store: store, Quotes: quotes, Notifier: notifier, Scheduler: sched}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err = eval.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, notifier.sent(), 1)
}

func TestRunRequiresScheduler(t *testing.T) {
	eval := newEvaluator(storage.NewMemoryStore(), newStubQuotes(nil), nil)
	assert.Error(t, eval.Run(context.Background()))
}
