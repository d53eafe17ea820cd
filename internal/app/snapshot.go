package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"coinwatch/internal/alerting"
	"coinwatch/internal/assets"
	"coinwatch/internal/errs"
	"coinwatch/internal/fetcher"
	"coinwatch/internal/news"
)

// Quote prints the current price of one supported asset.
func (a *App) Quote(ctx context.Context, symbol string, out io.Writer) error {
	catalog, err := a.newCatalog()
	if err != nil {
		return err
	}
	asset, ok := catalog.Lookup(symbol)
	if !ok {
		return errs.NotFound("quote", fmt.Sprintf("unsupported asset %q", assets.NormalizeSymbol(symbol)))
	}
	ref, _ := catalog.RefFor(asset.Symbol)

	quote, err := a.newQuoteSource().FetchQuote(ctx, ref)
	if err != nil {
		return err
	}
	return writeQuote(out, asset.Symbol, quote)
}

// Sentiment prints the latest Fear & Greed reading.
func (a *App) Sentiment(ctx context.Context, out io.Writer) error {
	reading, err := a.newSentimentSource().FetchSentiment(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Fear & Greed: %d (%s)\n", reading.Value, reading.Classification)
	if !reading.AsOf.IsZero() {
		fmt.Fprintf(out, "as of %s\n", reading.AsOf.UTC().Format(time.RFC3339))
	}
	return nil
}

// News prints the ranked headline list; limit <= 0 uses the configured default.
func (a *App) News(ctx context.Context, limit int, out io.Writer) error {
	if limit <= 0 {
		limit = a.Config.News.FinalLimit
	}
	items, err := a.newAggregator().CryptoNews(ctx, a.Config.News.PerFeedLimit, limit)
	if err != nil {
		return err
	}
	writeNews(out, items)
	return nil
}

func writeQuote(out io.Writer, symbol string, q fetcher.Quote) error {
	if _, err := fmt.Fprintf(out, "%s: %s\n", symbol, alerting.FormatUSD(q.PriceUSD)); err != nil {
		return err
	}
	if q.HasAlt() {
		fmt.Fprintf(out, "%s: %s\n", symbol, alerting.FormatAlt(q.PriceAlt, q.AltCurrency))
	}
	if !q.AsOf.IsZero() {
		fmt.Fprintf(out, "as of %s\n", q.AsOf.UTC().Format(time.RFC3339))
	}
	return nil
}

func writeNews(out io.Writer, items []news.Item) {
	if len(items) == 0 {
		fmt.Fprintln(out, "no headlines found")
		return
	}
	for i, item := range items {
		fmt.Fprintf(out, "%d. [%s] %s\n   %s\n", i+1, item.Source, sanitizeInline(item.Title), item.Link)
	}
}
