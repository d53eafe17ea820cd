package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"coinwatch/internal/errs"
)

const (
	aggregatorABIJSON = `[
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`
	chainlinkOp = "chainlink"
)

var (
	aggregatorABI abi.ABI
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// contractCaller is the subset of ethclient.Client used for feed reads.
type contractCaller interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// ChainlinkOptions parameterise the on-chain quote source.
type ChainlinkOptions struct {
	RPCURL      string
	FXFeed      string
	AltCurrency string
	Timeout     time.Duration
}

// Chainlink reads USD prices from Chainlink aggregators via Ethereum RPC.
// The asset reference is the aggregator address.
type Chainlink struct {
	opts      ChainlinkOptions
	logger    zerolog.Logger
	client    contractCaller
	clientMux sync.Mutex
}

// NewChainlink builds a new on-chain quote source.
func NewChainlink(opts ChainlinkOptions, logger zerolog.Logger) *Chainlink {
	return &Chainlink{opts: opts, logger: logger.With().Str("component", "chainlink_quotes").Logger()}
}

// FetchQuote reads latestRoundData of the aggregator at assetRef.
func (c *Chainlink) FetchQuote(ctx context.Context, assetRef string) (Quote, error) {
	if !common.IsHexAddress(assetRef) {
		return Quote{}, errs.NotFound(chainlinkOp, fmt.Sprintf("invalid aggregator address %q", assetRef))
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return Quote{}, err
	}

	usd, updatedAt, err := c.readFeed(ctx, client, common.HexToAddress(assetRef))
	if err != nil {
		return Quote{}, err
	}

	quote := Quote{AssetRef: assetRef, PriceUSD: usd, AsOf: updatedAt}
	if c.opts.FXFeed != "" && c.opts.AltCurrency != "" {
		fx, _, err := c.readFeed(ctx, client, common.HexToAddress(c.opts.FXFeed))
		if err != nil {
			return Quote{}, err
		}
		quote.PriceAlt = usd.Div(fx)
		quote.AltCurrency = strings.ToLower(c.opts.AltCurrency)
	}
	return quote, nil
}

// readFeed returns the scaled answer and its update time.
func (c *Chainlink) readFeed(ctx context.Context, client contractCaller, addr common.Address) (decimal.Decimal, time.Time, error) {
	code, err := client.CodeAt(ctx, addr, nil)
	if err != nil {
		return decimal.Decimal{}, time.Time{}, errs.Transient(chainlinkOp, fmt.Errorf("code at %s: %w", addr.Hex(), err))
	}
	if len(code) == 0 {
		return decimal.Decimal{}, time.Time{}, errs.NotFound(chainlinkOp, fmt.Sprintf("no contract at %s", addr.Hex()))
	}

	decOut, err := c.call(ctx, client, addr, "decimals")
	if err != nil {
		return decimal.Decimal{}, time.Time{}, err
	}
	decimals, ok := decOut[0].(uint8)
	if !ok {
		return decimal.Decimal{}, time.Time{}, errs.Transient(chainlinkOp, errors.New("failed to decode decimals output"))
	}

	roundOut, err := c.call(ctx, client, addr, "latestRoundData")
	if err != nil {
		return decimal.Decimal{}, time.Time{}, err
	}
	if len(roundOut) != 5 {
		return decimal.Decimal{}, time.Time{}, errs.Transient(chainlinkOp, errors.New("unexpected latestRoundData response"))
	}
	answer, ok := roundOut[1].(*big.Int)
	if !ok || answer.Sign() <= 0 {
		return decimal.Decimal{}, time.Time{}, errs.Transient(chainlinkOp, errors.New("aggregator returned a non-positive answer"))
	}
	var updatedAt time.Time
	if ts, ok := roundOut[3].(*big.Int); ok && ts.IsInt64() {
		updatedAt = time.Unix(ts.Int64(), 0).UTC()
	}

	return decimal.NewFromBigInt(answer, -int32(decimals)), updatedAt, nil
}

func (c *Chainlink) call(ctx context.Context, client contractCaller, addr common.Address, method string) ([]interface{}, error) {
	payload, err := aggregatorABI.Pack(method)
	if err != nil {
		return nil, err
	}

	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return nil, errs.Transient(chainlinkOp, fmt.Errorf("call %s: %w", method, err))
	}

	outputs, err := aggregatorABI.Unpack(method, res)
	if err != nil {
		return nil, errs.Transient(chainlinkOp, fmt.Errorf("unpack %s: %w", method, err))
	}
	if len(outputs) == 0 {
		return nil, errs.Transient(chainlinkOp, fmt.Errorf("empty %s response", method))
	}
	return outputs, nil
}

func (c *Chainlink) getClient(ctx context.Context) (contractCaller, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	if c.opts.RPCURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, errs.Transient(chainlinkOp, fmt.Errorf("dial rpc: %w", err))
	}
	c.client = client
	return client, nil
}

var _ QuoteSource = (*Chainlink)(nil)
