// Package polygonutil reads wallet balances from a Polygon RPC node.
package polygonutil

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

const (
	USDCTokenDecimals = 6
	POLDecimals       = 18
)

var USDCTokenAddress = common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174")

var (
	erc20BalanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
	erc20AllowanceSelector = crypto.Keccak256([]byte("allowance(address,address)"))[:4]
)

// ChainReader is the part of *ethclient.Client the balance reader needs.
type ChainReader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Balances reads the owner's USDC (quote) balance and the gas owner's POL
// balance at the latest block. The gas owner defaults to the owner. It is
// safe for concurrent use when the reader is.
type Balances struct {
	chain    ChainReader
	owner    common.Address
	gasOwner common.Address
	usdc     common.Address
}

func NewBalances(chain ChainReader, owner, usdc common.Address) (*Balances, error) {
	if chain == nil {
		return nil, fmt.Errorf("chain reader required")
	}
	if (owner == common.Address{}) {
		return nil, fmt.Errorf("owner address missing")
	}
	if (usdc == common.Address{}) {
		usdc = USDCTokenAddress
	}
	return &Balances{chain: chain, owner: owner, gasOwner: owner, usdc: usdc}, nil
}

// WithGasOwner returns a copy reading POL from gasOwner. Proxy and safe
// wallets hold the USDC while the signing EOA pays gas.
func (b *Balances) WithGasOwner(gasOwner common.Address) *Balances {
	out := *b
	if (gasOwner != common.Address{}) {
		out.gasOwner = gasOwner
	}
	return &out
}

func (b *Balances) Owner() common.Address    { return b.owner }
func (b *Balances) GasOwner() common.Address { return b.gasOwner }

func (b *Balances) QuoteBalance(ctx context.Context) (decimal.Decimal, error) {
	raw, err := b.callUint256(ctx, erc20Call(erc20BalanceOfSelector, b.owner))
	if err != nil {
		return decimal.Zero, fmt.Errorf("usdc balanceOf(%s): %w", b.owner.Hex(), err)
	}
	return ToDecimal(raw, USDCTokenDecimals), nil
}

func (b *Balances) GasBalance(ctx context.Context) (decimal.Decimal, error) {
	wei, err := b.chain.BalanceAt(ctx, b.gasOwner, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("pol balance(%s): %w", b.gasOwner.Hex(), err)
	}
	return ToDecimal(wei, POLDecimals), nil
}

// Allowances returns the owner's USDC allowance for each distinct spender.
func (b *Balances) Allowances(ctx context.Context, spenders []common.Address) (map[common.Address]decimal.Decimal, error) {
	out := make(map[common.Address]decimal.Decimal, len(spenders))
	for _, sp := range spenders {
		if (sp == common.Address{}) {
			continue
		}
		if _, ok := out[sp]; ok {
			continue
		}
		raw, err := b.callUint256(ctx, erc20Call(erc20AllowanceSelector, b.owner, sp))
		if err != nil {
			return nil, fmt.Errorf("usdc allowance(%s,%s): %w", b.owner.Hex(), sp.Hex(), err)
		}
		out[sp] = ToDecimal(raw, USDCTokenDecimals)
	}
	return out, nil
}

func (b *Balances) callUint256(ctx context.Context, data []byte) (*big.Int, error) {
	to := b.usdc
	out, err := b.chain.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty result")
	}
	return new(big.Int).SetBytes(out), nil
}

func erc20Call(selector []byte, args ...common.Address) []byte {
	data := make([]byte, 0, 4+32*len(args))
	data = append(data, selector...)
	for _, a := range args {
		data = append(data, common.LeftPadBytes(a.Bytes(), 32)...)
	}
	return data
}

// ToDecimal scales an integer token amount down by decimals.
func ToDecimal(v *big.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v, -decimals)
}

// ValidateRPCURL rejects unset, non-RPC and placeholder URLs.
func ValidateRPCURL(rpcURL string) error {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return fmt.Errorf("RPC_URL required")
	}
	if !strings.HasPrefix(rpcURL, "ws") && !strings.HasPrefix(rpcURL, "http") {
		return fmt.Errorf("polygon RPC URL must be ws(s)://... or http(s)://..., got %q", rpcURL)
	}
	if strings.Contains(rpcURL, "YOUR_KEY") {
		return fmt.Errorf("polygon RPC URL still contains placeholder YOUR_KEY")
	}
	return nil
}
