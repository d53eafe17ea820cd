package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinwatch/internal/errs"
)

func TestFearGreedSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fng/" || r.URL.Query().Get("limit") != "1" {
			t.Fatalf("unexpected request %s", r.URL.String())
		}
		_, _ = w.Write([]byte(`{"name":"Fear and Greed Index","data":[{"value":"72","value_classification":"Greed","timestamp":"1700000000"}]}`))
	}))
	defer srv.Close()

	fg := NewFearGreed(FearGreedOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	reading, err := fg.FetchSentiment(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 72, reading.Value)
	assert.Equal(t, "Greed", reading.Classification)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), reading.AsOf)
}

func TestFearGreedEmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	_, err := NewFearGreed(FearGreedOptions{BaseURL: srv.URL}, noopLogger()).FetchSentiment(context.Background())
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestFearGreedUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewFearGreed(FearGreedOptions{BaseURL: srv.URL}, noopLogger()).FetchSentiment(context.Background())
	assert.ErrorIs(t, err, errs.ErrTransient)
}

func TestFearGreedBadValue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"value":"n/a","value_classification":"?"}]}`))
	}))
	defer srv.Close()

	_, err := NewFearGreed(FearGreedOptions{BaseURL: srv.URL}, noopLogger()).FetchSentiment(context.Background())
	assert.ErrorIs(t, err, errs.ErrTransient)
}
