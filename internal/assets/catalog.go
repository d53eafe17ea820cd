package assets

import (
	"fmt"
	"regexp"
	"strings"
)

// Quote provider names understood by Asset.Ref.
const (
	ProviderCoinGecko = "coingecko"
	ProviderChainlink = "chainlink"
)

var nonSymbolChars = regexp.MustCompile(`[^A-Z0-9]`)

// Asset maps a ticker to the identifiers each quote provider resolves.
type Asset struct {
	Symbol        string `mapstructure:"symbol"`
	CoinGeckoID   string `mapstructure:"coingecko_id"`
	ChainlinkFeed string `mapstructure:"chainlink_feed"`
}

// Ref returns the asset reference for the given provider, or "" if unsupported.
func (a Asset) Ref(provider string) string {
	switch provider {
	case ProviderChainlink:
		return a.ChainlinkFeed
	default:
		return a.CoinGeckoID
	}
}

// DefaultAssets is used when configuration does not list any assets.
// Chainlink feeds are Ethereum mainnet USD aggregators.
var DefaultAssets = []Asset{
	{Symbol: "BTC", CoinGeckoID: "bitcoin", ChainlinkFeed: "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c"},
	{Symbol: "ETH", CoinGeckoID: "ethereum", ChainlinkFeed: "0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"},
	{Symbol: "SOL", CoinGeckoID: "solana", ChainlinkFeed: "0x4ffC43a60e009B551865A93d232E33Fce9f01507"},
	{Symbol: "BNB", CoinGeckoID: "binancecoin", ChainlinkFeed: "0x14e613AC84a31f709eadbdF89C6CC390fDc9540A"},
	{Symbol: "XRP", CoinGeckoID: "ripple"},
	{Symbol: "DOGE", CoinGeckoID: "dogecoin", ChainlinkFeed: "0x2465CefD3b488BE410b941b1d4b2767088e2A028"},
}

// Catalog is an ordered, read-only symbol lookup.
type Catalog struct {
	provider string
	order    []string
	bySymbol map[string]Asset
}

// NewCatalog builds a catalog for the given quote provider. Assets without a
// reference for that provider are skipped.
func NewCatalog(provider string, list []Asset) (*Catalog, error) {
	if len(list) == 0 {
		list = DefaultAssets
	}
	c := &Catalog{provider: provider, bySymbol: make(map[string]Asset, len(list))}
	for _, asset := range list {
		asset.Symbol = NormalizeSymbol(asset.Symbol)
		if asset.Symbol == "" {
			return nil, fmt.Errorf("asset with empty symbol")
		}
		if _, dup := c.bySymbol[asset.Symbol]; dup {
			return nil, fmt.Errorf("duplicate asset symbol %s", asset.Symbol)
		}
		if asset.Ref(provider) == "" {
			continue
		}
		c.order = append(c.order, asset.Symbol)
		c.bySymbol[asset.Symbol] = asset
	}
	if len(c.order) == 0 {
		return nil, fmt.Errorf("no assets resolvable by quote provider %q", provider)
	}
	return c, nil
}

// Lookup finds an asset by (un-normalized) symbol.
func (c *Catalog) Lookup(symbol string) (Asset, bool) {
	asset, ok := c.bySymbol[NormalizeSymbol(symbol)]
	return asset, ok
}

// RefFor returns the provider reference of symbol.
func (c *Catalog) RefFor(symbol string) (string, bool) {
	asset, ok := c.Lookup(symbol)
	if !ok {
		return "", false
	}
	return asset.Ref(c.provider), true
}

// Symbols lists the catalog symbols in configuration order.
func (c *Catalog) Symbols() []string {
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Provider is the quote provider the catalog resolves references for.
func (c *Catalog) Provider() string {
	return c.provider
}

// NormalizeSymbol uppercases and strips everything outside [A-Z0-9].
func NormalizeSymbol(text string) string {
	return nonSymbolChars.ReplaceAllString(strings.ToUpper(strings.TrimSpace(text)), "")
}
