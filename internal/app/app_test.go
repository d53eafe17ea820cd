package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinwatch/internal/assets"
	"coinwatch/internal/config"
	"coinwatch/internal/errs"
	"coinwatch/internal/storage"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.DatabaseConfig{
			Driver: config.DriverSQLite,
			DSN:    filepath.Join(t.TempDir(), "watches.db"),
		},
		Quotes: config.QuotesConfig{
			Provider:    assets.ProviderCoinGecko,
			AltCurrency: "idr",
			Timeout:     time.Second,
			UserAgent:   "test",
		},
		News:    config.NewsConfig{PerFeedLimit: 5, FinalLimit: 3},
		Assets:  assets.DefaultAssets,
		Metrics: config.MetricsConfig{Namespace: "app_test"},
	}
}

func seedWatches(t *testing.T, dsn string) {
	t.Helper()
	store, err := storage.NewSQLiteStore(dsn)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	for _, nw := range []storage.NewWatch{
		{Owner: "100", Symbol: "BTC", AssetRef: "bitcoin", Direction: storage.DirectionAbove, Target: decimal.NewFromInt(50000)},
		{Owner: "100", Symbol: "ETH", AssetRef: "ethereum", Direction: storage.DirectionBelow, Target: decimal.RequireFromString("2500.5")},
		{Owner: "200", Symbol: "SOL", AssetRef: "solana", Direction: storage.DirectionAbove, Target: decimal.NewFromInt(300)},
	} {
		_, err := store.CreateWatch(ctx, nw)
		require.NoError(t, err)
	}
	_, err = store.ClaimTrigger(ctx, 1, decimal.NewFromInt(50100), time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)
}

func TestSimulateTrigger(t *testing.T) {
	a := NewApp(testConfig(t), zerolog.Nop())

	var out bytes.Buffer
	err := a.SimulateTrigger(context.Background(), SimulateOptions{
		Symbol: "btc", Direction: "above", Target: "50000", Price: "50000", Out: &out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "watch #1 triggered at 50000, notified=true")

	out.Reset()
	err = a.SimulateTrigger(context.Background(), SimulateOptions{
		Symbol: "BTC", Direction: "above", Target: "50000", Price: "49999", Out: &out,
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "not triggered")
}

func TestSimulateTriggerRejectsBadInput(t *testing.T) {
	a := NewApp(testConfig(t), zerolog.Nop())

	err := a.SimulateTrigger(context.Background(), SimulateOptions{
		Symbol: "BTC", Direction: "above", Target: "50000", Price: "abc", Out: &bytes.Buffer{},
	})
	assert.ErrorIs(t, err, errs.ErrValidation)

	err = a.SimulateTrigger(context.Background(), SimulateOptions{
		Symbol: "SHIB", Direction: "above", Target: "1", Price: "1", Out: &bytes.Buffer{},
	})
	assert.ErrorIs(t, err, errs.ErrValidation)
}

func TestListWatches(t *testing.T) {
	cfg := testConfig(t)
	seedWatches(t, cfg.Database.DSN)
	a := NewApp(cfg, zerolog.Nop())

	var out bytes.Buffer
	require.NoError(t, a.ListWatches(context.Background(), ListOptions{Owner: "100", Out: &out}))
	text := out.String()
	assert.Contains(t, text, "Target (USD)")
	assert.Contains(t, text, "2500.50")
	assert.Contains(t, text, "2026-01-02T03:04:05Z")
	assert.NotContains(t, text, "SOL")

	out.Reset()
	require.NoError(t, a.ListWatches(context.Background(), ListOptions{Out: &out}))
	assert.Contains(t, out.String(), "SOL")
	assert.NotContains(t, out.String(), "50000.00")

	out.Reset()
	require.NoError(t, a.ListWatches(context.Background(), ListOptions{Owner: "nobody", Out: &out}))
	assert.Equal(t, "no watches found\n", out.String())
}

func TestExportWatchesCSV(t *testing.T) {
	cfg := testConfig(t)
	seedWatches(t, cfg.Database.DSN)
	a := NewApp(cfg, zerolog.Nop())

	path := filepath.Join(t.TempDir(), "nested", "watches.csv")
	require.NoError(t, a.ExportWatches(context.Background(), ExportOptions{Owner: "100", CSVPath: path}))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, "triggered_price_usd", records[0][9])

	byID := map[string][]string{}
	for _, r := range records[1:] {
		byID[r[0]] = r
	}
	assert.Equal(t, "false", byID["1"][6])
	assert.Equal(t, "50100", byID["1"][9])
	assert.Equal(t, "2500.5", byID["2"][5])
	assert.Equal(t, "", byID["2"][8])

	var out bytes.Buffer
	require.NoError(t, a.ExportWatches(context.Background(), ExportOptions{Owner: "100", ActiveOnly: true, CSVPath: "-", Out: &out}))
	records, err = csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestQuote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ethereum":{"usd":3000.5,"idr":48000000}}`))
	}))
	defer srv.Close()

	cfg := testConfig(t)
	cfg.Quotes.CoinGecko.BaseURL = srv.URL
	a := NewApp(cfg, zerolog.Nop())

	var out bytes.Buffer
	require.NoError(t, a.Quote(context.Background(), "eth", &out))
	assert.Contains(t, out.String(), "ETH: $3,000.50")
	assert.Contains(t, out.String(), "ETH: Rp48.000.000")

	err := a.Quote(context.Background(), "shib", &out)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMigrateRequiresPostgres(t *testing.T) {
	a := NewApp(testConfig(t), zerolog.Nop())
	err := a.Migrate(false, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver=postgres")
}
