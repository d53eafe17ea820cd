package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"coinwatch/internal/errs"
)

const (
	coinGeckoPricePath = "/simple/price"
	coinGeckoOp        = "coingecko"
)

// CoinGeckoOptions parameterise the CoinGecko quote source.
type CoinGeckoOptions struct {
	BaseURL     string
	APIKey      string
	AltCurrency string
	Timeout     time.Duration
	UserAgent   string
}

// CoinGecko fetches spot prices from the CoinGecko simple/price API.
type CoinGecko struct {
	opts   CoinGeckoOptions
	logger zerolog.Logger
	client *resty.Client
}

// NewCoinGecko constructs a CoinGecko quote source.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}
	opts.AltCurrency = strings.ToLower(strings.TrimSpace(opts.AltCurrency))

	client := newRESTClient(baseURL, opts.Timeout, opts.UserAgent)
	if opts.APIKey != "" {
		client.SetHeader("x-cg-demo-api-key", opts.APIKey)
	}

	return &CoinGecko{
		opts:   opts,
		logger: logger.With().Str("component", "coingecko_quotes").Logger(),
		client: client,
	}
}

// FetchQuote retrieves the USD and local-currency price of the CoinGecko id assetRef.
func (c *CoinGecko) FetchQuote(ctx context.Context, assetRef string) (Quote, error) {
	ref := strings.TrimSpace(assetRef)
	if ref == "" {
		return Quote{}, errs.NotFound(coinGeckoOp, "empty asset reference")
	}

	currencies := "usd"
	if c.opts.AltCurrency != "" && c.opts.AltCurrency != "usd" {
		currencies += "," + c.opts.AltCurrency
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":           ref,
			"vs_currencies": currencies,
		}).
		Get(coinGeckoPricePath)
	if err != nil {
		return Quote{}, errs.Transient(coinGeckoOp, err)
	}
	if resp.IsError() {
		return Quote{}, errs.Transient(coinGeckoOp, httpStatusError(resp))
	}

	var payload map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return Quote{}, errs.Transient(coinGeckoOp, fmt.Errorf("decode price response: %w", err))
	}

	prices, ok := payload[ref]
	if !ok {
		return Quote{}, errs.NotFound(coinGeckoOp, fmt.Sprintf("asset %s missing", ref))
	}
	usd, ok := prices["usd"]
	if !ok {
		return Quote{}, errs.NotFound(coinGeckoOp, fmt.Sprintf("asset %s has no usd price", ref))
	}

	quote := Quote{
		AssetRef: ref,
		PriceUSD: usd,
		AsOf:     time.Now().UTC(),
	}
	if strings.Contains(currencies, ",") {
		alt, ok := prices[c.opts.AltCurrency]
		if !ok {
			return Quote{}, errs.NotFound(coinGeckoOp, fmt.Sprintf("asset %s has no %s price", ref, c.opts.AltCurrency))
		}
		quote.PriceAlt = alt
		quote.AltCurrency = c.opts.AltCurrency
	}

	c.logger.Debug().Str("asset_ref", ref).Str("usd", usd.String()).Msg("quote fetched")
	return quote, nil
}

var _ QuoteSource = (*CoinGecko)(nil)
