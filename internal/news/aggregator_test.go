package news

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinwatch/internal/errs"
)

type rssEntry struct {
	title string
	link  string
	date  string
}

func rssDocument(entries ...rssEntry) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>t</title>`)
	for _, e := range entries {
		b.WriteString("<item>")
		fmt.Fprintf(&b, "<title>%s</title>", e.title)
		if e.link != "" {
			fmt.Fprintf(&b, "<link>%s</link>", e.link)
		}
		if e.date != "" {
			fmt.Fprintf(&b, "<pubDate>%s</pubDate>", e.date)
		}
		b.WriteString("</item>")
	}
	b.WriteString("</channel></rss>")
	return b.String()
}

func serveFeed(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestAggregator(primary, secondary []string) *Aggregator {
	return New(Options{
		Primary:   Feed{Label: "Investing.com", URLs: primary},
		Secondary: Feed{Label: "CNBC", URLs: secondary},
		Timeout:   2 * time.Second,
	}, zerolog.Nop())
}

func TestCryptoNewsMergesDedupsAndRanks(t *testing.T) {
	primary := serveFeed(t, rssDocument(
		rssEntry{"Bitcoin hits record", "https://x/a", "Mon, 04 Mar 2024 10:00:00 GMT"},
		rssEntry{"Ether upgrade ships", "https://x/b", "Mon, 04 Mar 2024 08:00:00 GMT"},
		rssEntry{"Undated crypto piece", "https://x/c", ""},
	), http.StatusOK)
	secondary := serveFeed(t, rssDocument(
		rssEntry{"Stocks rally on earnings", "https://y/1", "Mon, 04 Mar 2024 11:00:00 GMT"},
		rssEntry{"Bitcoin ETF inflows surge", "https://y/2", "Mon, 04 Mar 2024 09:00:00 GMT"},
		rssEntry{"Bitcoin hits record, analysts say", "https://x/a", "Mon, 04 Mar 2024 07:00:00 GMT"},
	), http.StatusOK)

	items, err := newTestAggregator([]string{primary.URL}, []string{secondary.URL}).CryptoNews(context.Background(), 15, 8)
	require.NoError(t, err)

	titles := make([]string, 0, len(items))
	for _, item := range items {
		titles = append(titles, item.Title)
	}
	assert.Equal(t, []string{
		"Bitcoin hits record",
		"Bitcoin ETF inflows surge",
		"Ether upgrade ships",
		"Undated crypto piece",
	}, titles)
	assert.NotContains(t, titles, "Bitcoin hits record, analysts say")
	assert.Equal(t, "Investing.com", items[0].Source)
	assert.Equal(t, "CNBC", items[1].Source)
	assert.True(t, items[3].PublishedAt.IsZero())
}

func TestCryptoNewsFinalLimit(t *testing.T) {
	entries := make([]rssEntry, 0, 12)
	for i := 0; i < 12; i++ {
		entries = append(entries, rssEntry{
			title: fmt.Sprintf("crypto story %d", i),
			link:  fmt.Sprintf("https://x/%d", i),
			date:  time.Date(2024, 3, 1, i, 0, 0, 0, time.UTC).Format(time.RFC1123Z),
		})
	}
	primary := serveFeed(t, rssDocument(entries...), http.StatusOK)

	items, err := newTestAggregator([]string{primary.URL}, nil).CryptoNews(context.Background(), 15, 8)
	require.NoError(t, err)
	require.Len(t, items, 8)
	assert.Equal(t, "crypto story 11", items[0].Title)
	assert.Equal(t, "crypto story 4", items[7].Title)
}

func TestCryptoNewsSecondaryFailureIgnored(t *testing.T) {
	primary := serveFeed(t, rssDocument(rssEntry{"Solana outage", "https://x/s", "Mon, 04 Mar 2024 10:00:00 GMT"}), http.StatusOK)
	broken := serveFeed(t, "nope", http.StatusServiceUnavailable)

	items, err := newTestAggregator([]string{primary.URL}, []string{broken.URL}).CryptoNews(context.Background(), 15, 8)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Solana outage", items[0].Title)
}

func TestCryptoNewsPrimaryFailureIsTransient(t *testing.T) {
	broken := serveFeed(t, "nope", http.StatusInternalServerError)
	secondary := serveFeed(t, rssDocument(rssEntry{"Bitcoin", "https://y/b", ""}), http.StatusOK)

	_, err := newTestAggregator([]string{broken.URL}, []string{secondary.URL}).CryptoNews(context.Background(), 15, 8)
	assert.ErrorIs(t, err, errs.ErrTransient)
}

func TestCryptoNewsSecondaryFallbackURL(t *testing.T) {
	primary := serveFeed(t, rssDocument(), http.StatusOK)
	broken := serveFeed(t, "not xml at all", http.StatusOK)
	alternate := serveFeed(t, rssDocument(
		rssEntry{"Tether mints more USDT", "https://y/t", "Mon, 04 Mar 2024 10:00:00 GMT"},
		rssEntry{"Fed holds rates", "https://y/f", "Mon, 04 Mar 2024 09:00:00 GMT"},
	), http.StatusOK)

	items, err := newTestAggregator([]string{primary.URL}, []string{broken.URL, alternate.URL}).CryptoNews(context.Background(), 15, 8)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Tether mints more USDT", items[0].Title)
}

func TestSecondaryTruncatesBeforeFiltering(t *testing.T) {
	primary := serveFeed(t, rssDocument(), http.StatusOK)
	secondary := serveFeed(t, rssDocument(
		rssEntry{"Oil prices climb", "https://y/1", "Mon, 04 Mar 2024 12:00:00 GMT"},
		rssEntry{"Retail sales slip", "https://y/2", "Mon, 04 Mar 2024 11:00:00 GMT"},
		rssEntry{"Bitcoin miners expand", "https://y/3", "Mon, 04 Mar 2024 10:00:00 GMT"},
	), http.StatusOK)

	items, err := newTestAggregator([]string{primary.URL}, []string{secondary.URL}).CryptoNews(context.Background(), 2, 8)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRankDropsKeylessAndDuplicateTitles(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	items := Rank([]Item{
		{Title: "  ", Link: ""},
		{Title: "Bitcoin Rally", PublishedAt: t0},
		{Title: "bitcoin rally ", PublishedAt: t0.Add(-time.Hour)},
		{Title: "Other", Link: " https://z/1 ", PublishedAt: t0.Add(-2 * time.Hour)},
	}, 8)

	require.Len(t, items, 2)
	assert.Equal(t, "Bitcoin Rally", items[0].Title)
	assert.Equal(t, "https://z/1", items[1].Key())
}

func TestRankLimitLargerThanInput(t *testing.T) {
	items := Rank([]Item{
		{Title: "a", Link: "https://z/a"},
		{Title: "b", Link: "https://z/b"},
	}, 1<<40)

	require.Len(t, items, 2)
	assert.Equal(t, 2, cap(items))
}
