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
)

const (
	erc20ABIJSON = `[
{"inputs":[{"internalType":"address","name":"account","type":"address"}],"name":"balanceOf","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`
)

var (
	erc20ABI abi.ABI
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic("failed to parse ERC-20 ABI: " + err.Error())
	}
	erc20ABI = parsed
}

// contractCaller is the subset of ethclient used for balance reads.
type contractCaller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// ChainOptions parameterise the on-chain balance fetcher.
type ChainOptions struct {
	RPCURL       string
	NativeSymbol string
	// Tokens maps symbol to ERC-20 contract address.
	Tokens  map[string]string
	Timeout time.Duration
}

// Chain reads native and ERC-20 balances over JSON-RPC.
type Chain struct {
	opts      ChainOptions
	logger    zerolog.Logger
	client    contractCaller
	clientMux sync.Mutex
	decimals  map[common.Address]int32
}

// NewChain builds a new balance fetcher.
func NewChain(opts ChainOptions, logger zerolog.Logger) *Chain {
	if opts.NativeSymbol == "" {
		opts.NativeSymbol = "BNB"
	}
	return &Chain{
		opts:     opts,
		logger:   logger.With().Str("component", "chain_balances").Logger(),
		decimals: make(map[common.Address]int32),
	}
}

// FetchBalances returns the native balance plus every configured token balance.
func (c *Chain) FetchBalances(ctx context.Context, address string) (map[string]decimal.Decimal, error) {
	if c.opts.RPCURL == "" {
		return nil, errors.New("ethereum rpc url not configured")
	}
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid address %q", address)
	}

	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var cancel context.CancelFunc
	ctx, cancel = context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	owner := common.HexToAddress(address)
	balances := make(map[string]decimal.Decimal, len(c.opts.Tokens)+1)

	wei, err := client.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("native balance: %w", err)
	}
	balances[strings.ToUpper(c.opts.NativeSymbol)] = decimal.NewFromBigInt(wei, -nativeDecimals)

	for symbol, contract := range c.opts.Tokens {
		if !common.IsHexAddress(contract) {
			return nil, fmt.Errorf("token %s: invalid contract address %q", symbol, contract)
		}
		amount, err := c.tokenBalance(ctx, client, common.HexToAddress(contract), owner)
		if err != nil {
			return nil, fmt.Errorf("token %s balance: %w", symbol, err)
		}
		balances[strings.ToUpper(symbol)] = amount
	}

	return balances, nil
}

func (c *Chain) tokenBalance(ctx context.Context, client contractCaller, token, owner common.Address) (decimal.Decimal, error) {
	places, err := c.tokenDecimals(ctx, client, token)
	if err != nil {
		return decimal.Decimal{}, err
	}

	payload, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return decimal.Decimal{}, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: payload}, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	outputs, err := erc20ABI.Unpack("balanceOf", res)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(outputs) != 1 {
		return decimal.Decimal{}, errors.New("unexpected balanceOf response")
	}
	raw, ok := outputs[0].(*big.Int)
	if !ok {
		return decimal.Decimal{}, errors.New("failed to decode balanceOf output")
	}
	return decimal.NewFromBigInt(raw, -places), nil
}

func (c *Chain) tokenDecimals(ctx context.Context, client contractCaller, token common.Address) (int32, error) {
	c.clientMux.Lock()
	places, ok := c.decimals[token]
	c.clientMux.Unlock()
	if ok {
		return places, nil
	}

	payload, err := erc20ABI.Pack("decimals")
	if err != nil {
		return 0, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &token, Data: payload}, nil)
	if err != nil {
		return 0, err
	}
	outputs, err := erc20ABI.Unpack("decimals", res)
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, errors.New("unexpected decimals response")
	}
	value, ok := outputs[0].(uint8)
	if !ok {
		return 0, errors.New("failed to decode decimals output")
	}

	c.clientMux.Lock()
	c.decimals[token] = int32(value)
	c.clientMux.Unlock()
	return int32(value), nil
}

func (c *Chain) getClient(ctx context.Context) (contractCaller, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

var _ BalanceFetcher = (*Chain)(nil)
