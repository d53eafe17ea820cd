package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := map[string]string{
		"btc":     "BTC",
		" $eth ":  "ETH",
		"Doge-1!": "DOGE1",
		"":        "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeSymbol(in), "input %q", in)
	}
}

func TestCatalogDefaults(t *testing.T) {
	c, err := NewCatalog(ProviderCoinGecko, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC", "ETH", "SOL", "BNB", "XRP", "DOGE"}, c.Symbols())

	ref, ok := c.RefFor("btc")
	require.True(t, ok)
	assert.Equal(t, "bitcoin", ref)

	_, ok = c.Lookup("LTC")
	assert.False(t, ok)
}

func TestCatalogSkipsAssetsWithoutProviderRef(t *testing.T) {
	c, err := NewCatalog(ProviderChainlink, nil)
	require.NoError(t, err)

	_, ok := c.Lookup("XRP")
	assert.False(t, ok)
	assert.NotContains(t, c.Symbols(), "XRP")
}

func TestCatalogRejectsDuplicates(t *testing.T) {
	_, err := NewCatalog(ProviderCoinGecko, []Asset{
		{Symbol: "btc", CoinGeckoID: "bitcoin"},
		{Symbol: "BTC", CoinGeckoID: "bitcoin"},
	})
	assert.Error(t, err)
}
