package fetcher

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinwatch/internal/errs"
)

const (
	btcFeed = "0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c"
	fxFeed  = "0x000000000000000000000000000000000000beef"
)

type fakeFeed struct {
	decimals uint8
	answer   *big.Int
}

// fakeChain answers aggregator calls from an in-memory table of feeds.
type fakeChain struct {
	feeds   map[common.Address]fakeFeed
	callErr error
}

func (f *fakeChain) CodeAt(_ context.Context, account common.Address, _ *big.Int) ([]byte, error) {
	if _, ok := f.feeds[account]; ok {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

func (f *fakeChain) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.callErr != nil {
		return nil, f.callErr
	}
	feed := f.feeds[*call.To]
	method, err := aggregatorABI.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "decimals":
		return method.Outputs.Pack(feed.decimals)
	case "latestRoundData":
		return method.Outputs.Pack(big.NewInt(7), feed.answer, big.NewInt(1700000000), big.NewInt(1700000060), big.NewInt(7))
	}
	return nil, errors.New("unknown method")
}

func newTestChainlink(chain *fakeChain, fx string) *Chainlink {
	c := NewChainlink(ChainlinkOptions{FXFeed: fx, AltCurrency: "EUR"}, noopLogger())
	c.client = chain
	return c
}

func TestChainlinkFetchQuote(t *testing.T) {
	chain := &fakeChain{feeds: map[common.Address]fakeFeed{
		common.HexToAddress(btcFeed): {decimals: 8, answer: big.NewInt(4200050000000)},
		common.HexToAddress(fxFeed):  {decimals: 8, answer: big.NewInt(125000000)},
	}}

	quote, err := newTestChainlink(chain, fxFeed).FetchQuote(context.Background(), btcFeed)
	require.NoError(t, err)
	assert.True(t, quote.PriceUSD.Equal(decimal.RequireFromString("42000.5")), quote.PriceUSD.String())
	assert.True(t, quote.PriceAlt.Equal(decimal.RequireFromString("33600.4")), quote.PriceAlt.String())
	assert.Equal(t, "eur", quote.AltCurrency)
	assert.Equal(t, int64(1700000060), quote.AsOf.Unix())
}

func TestChainlinkWithoutFXFeed(t *testing.T) {
	chain := &fakeChain{feeds: map[common.Address]fakeFeed{
		common.HexToAddress(btcFeed): {decimals: 8, answer: big.NewInt(100000000)},
	}}

	quote, err := newTestChainlink(chain, "").FetchQuote(context.Background(), btcFeed)
	require.NoError(t, err)
	assert.True(t, quote.PriceUSD.Equal(decimal.NewFromInt(1)))
	assert.False(t, quote.HasAlt())
}

func TestChainlinkInvalidAddressIsNotFound(t *testing.T) {
	_, err := newTestChainlink(&fakeChain{}, "").FetchQuote(context.Background(), "bitcoin")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestChainlinkNoCodeIsNotFound(t *testing.T) {
	_, err := newTestChainlink(&fakeChain{feeds: map[common.Address]fakeFeed{}}, "").FetchQuote(context.Background(), btcFeed)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestChainlinkCallFailureIsTransient(t *testing.T) {
	chain := &fakeChain{
		feeds:   map[common.Address]fakeFeed{common.HexToAddress(btcFeed): {decimals: 8, answer: big.NewInt(1)}},
		callErr: errors.New("connection reset"),
	}
	_, err := newTestChainlink(chain, "").FetchQuote(context.Background(), btcFeed)
	assert.ErrorIs(t, err, errs.ErrTransient)
}

func TestChainlinkMissingRPC(t *testing.T) {
	c := NewChainlink(ChainlinkOptions{}, noopLogger())
	_, err := c.FetchQuote(context.Background(), btcFeed)
	assert.Error(t, err)
}
