package fetcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

const (
	defaultTimeout   = 20 * time.Second
	defaultUserAgent = "Mozilla/5.0 (TelegramBot; +https://t.me/)"
)

// Quote is a spot price in USD plus one local currency.
type Quote struct {
	AssetRef    string
	PriceUSD    decimal.Decimal
	PriceAlt    decimal.Decimal
	AltCurrency string
	AsOf        time.Time
}

// HasAlt reports whether the quote carries a local-currency price.
func (q Quote) HasAlt() bool {
	return q.AltCurrency != "" && !q.PriceAlt.IsZero()
}

// SentimentReading is one Fear & Greed observation.
type SentimentReading struct {
	Value          int
	Classification string
	AsOf           time.Time
}

// QuoteSource retrieves the current price of an asset.
type QuoteSource interface {
	FetchQuote(ctx context.Context, assetRef string) (Quote, error)
}

// SentimentSource retrieves the latest market sentiment index.
type SentimentSource interface {
	FetchSentiment(ctx context.Context) (SentimentReading, error)
}

func newRESTClient(baseURL string, timeout time.Duration, userAgent string) *resty.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if strings.TrimSpace(userAgent) == "" {
		userAgent = defaultUserAgent
	}
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)
}

func httpStatusError(resp *resty.Response) error {
	body := strings.TrimSpace(string(resp.Body()))
	if len(body) > 200 {
		body = body[:200]
	}
	if body == "" {
		return fmt.Errorf("http status %d", resp.StatusCode())
	}
	return fmt.Errorf("http status %d: %s", resp.StatusCode(), body)
}
