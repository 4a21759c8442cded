package fetcher

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type fakeCaller struct {
	native   *big.Int
	balances map[common.Address]*big.Int
	decimals map[common.Address]uint8
	calls    int
}

func (f *fakeCaller) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return f.native, nil
}

func (f *fakeCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls++
	method, err := erc20ABI.MethodById(call.Data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "decimals":
		return method.Outputs.Pack(f.decimals[*call.To])
	case "balanceOf":
		bal, ok := f.balances[*call.To]
		if !ok {
			return nil, errors.New("execution reverted")
		}
		return method.Outputs.Pack(bal)
	}
	return nil, errors.New("unexpected method")
}

func TestChainMissingConfig(t *testing.T) {
	c := NewChain(ChainOptions{}, noopLogger())
	if _, err := c.FetchBalances(context.Background(), testOwner); err == nil {
		t.Fatal("未配置 RPC 时应报错")
	}

	c = NewChain(ChainOptions{RPCURL: "http://localhost"}, noopLogger())
	if _, err := c.FetchBalances(context.Background(), "0x123"); err == nil {
		t.Fatal("非法地址应报错")
	}
}

func TestChainFetchBalances(t *testing.T) {
	usdt := common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	fake := &fakeCaller{
		native:   new(big.Int).Mul(big.NewInt(15), new(big.Int).Exp(big.NewInt(10), big.NewInt(17), nil)),
		balances: map[common.Address]*big.Int{usdt: big.NewInt(1_350_500_000)},
		decimals: map[common.Address]uint8{usdt: 6},
	}

	c := NewChain(ChainOptions{
		RPCURL:       "http://localhost",
		NativeSymbol: "bnb",
		Tokens:       map[string]string{"usdt": usdt.Hex()},
	}, noopLogger())
	c.client = fake

	balances, err := c.FetchBalances(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("读取余额失败: %v", err)
	}
	if !balances["BNB"].Equal(decimal.RequireFromString("1.5")) {
		t.Fatalf("BNB 应为 1.5, 实际 %s", balances["BNB"])
	}
	if !balances["USDT"].Equal(decimal.RequireFromString("1350.5")) {
		t.Fatalf("USDT 应为 1350.5, 实际 %s", balances["USDT"])
	}

	// decimals is cached after the first read.
	before := fake.calls
	if _, err := c.FetchBalances(context.Background(), testOwner); err != nil {
		t.Fatal(err)
	}
	if fake.calls-before != 1 {
		t.Fatalf("第二次只应调用 balanceOf, 实际调用 %d 次", fake.calls-before)
	}
}

func TestChainTokenError(t *testing.T) {
	token := common.HexToAddress("0x0000000000000000000000000000000000000abc")
	fake := &fakeCaller{native: big.NewInt(0), decimals: map[common.Address]uint8{token: 18}}

	c := NewChain(ChainOptions{RPCURL: "http://localhost", Tokens: map[string]string{"ABC": token.Hex()}}, noopLogger())
	c.client = fake

	if _, err := c.FetchBalances(context.Background(), testOwner); err == nil {
		t.Fatal("合约调用失败应报错")
	}
}
