package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinwatch/internal/errs"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func newTestCoinGecko(url string, timeout time.Duration) *CoinGecko {
	return NewCoinGecko(CoinGeckoOptions{
		BaseURL:     url,
		AltCurrency: "IDR",
		Timeout:     timeout,
		UserAgent:   "test",
	}, noopLogger())
}

func TestCoinGeckoFetchQuoteSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ids"); got != "bitcoin" {
			t.Fatalf("ids should be bitcoin, got %s", got)
		}
		if got := r.URL.Query().Get("vs_currencies"); got != "usd,idr" {
			t.Fatalf("vs_currencies should be usd,idr, got %s", got)
		}
		if r.Header.Get("User-Agent") != "test" {
			t.Fatalf("user agent not forwarded")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":42000.5,"idr":650000000}}`))
	}))
	defer srv.Close()

	quote, err := newTestCoinGecko(srv.URL, time.Second).FetchQuote(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, "bitcoin", quote.AssetRef)
	assert.True(t, quote.PriceUSD.Equal(decimal.RequireFromString("42000.5")))
	assert.True(t, quote.PriceAlt.Equal(decimal.NewFromInt(650000000)))
	assert.Equal(t, "idr", quote.AltCurrency)
	assert.True(t, quote.HasAlt())
}

func TestCoinGeckoMissingAssetIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestCoinGecko(srv.URL, time.Second).FetchQuote(context.Background(), "notacoin")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCoinGeckoMissingCurrencyIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":42000}}`))
	}))
	defer srv.Close()

	_, err := newTestCoinGecko(srv.URL, time.Second).FetchQuote(context.Background(), "bitcoin")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCoinGeckoServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`upstream exploded`))
	}))
	defer srv.Close()

	_, err := newTestCoinGecko(srv.URL, time.Second).FetchQuote(context.Background(), "bitcoin")
	assert.ErrorIs(t, err, errs.ErrTransient)
	assert.Contains(t, err.Error(), "500")
}

func TestCoinGeckoMalformedBodyIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>rate limited</html>`))
	}))
	defer srv.Close()

	_, err := newTestCoinGecko(srv.URL, time.Second).FetchQuote(context.Background(), "bitcoin")
	assert.ErrorIs(t, err, errs.ErrTransient)
}

func TestCoinGeckoTimeoutIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		_, _ = w.Write([]byte(`{"bitcoin":{"usd":1,"idr":1}}`))
	}))
	defer srv.Close()

	_, err := newTestCoinGecko(srv.URL, 50*time.Millisecond).FetchQuote(context.Background(), "bitcoin")
	assert.ErrorIs(t, err, errs.ErrTransient)
}

func TestCoinGeckoEmptyRef(t *testing.T) {
	_, err := newTestCoinGecko("http://127.0.0.1:1", time.Second).FetchQuote(context.Background(), "  ")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestCoinGeckoUSDOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("vs_currencies"); got != "usd" {
			t.Fatalf("vs_currencies should be usd, got %s", got)
		}
		_, _ = w.Write([]byte(`{"ethereum":{"usd":"2500.25"}}`))
	}))
	defer srv.Close()

	cg := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, AltCurrency: "usd", Timeout: time.Second}, noopLogger())
	quote, err := cg.FetchQuote(context.Background(), "ethereum")
	require.NoError(t, err)
	assert.False(t, quote.HasAlt())
	assert.Equal(t, "2500.25", quote.PriceUSD.String())
}
