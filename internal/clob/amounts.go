package clob

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const collateralTokenDecimals = 6

// Price decimals allowed per tick size.
var priceDecimalsByTickSize = map[string]int{
	"0.1":    1,
	"0.01":   2,
	"0.001":  3,
	"0.0001": 4,
}

const (
	// The CLOB rejects market-style orders with more precision than this:
	// "market buy orders maker amount supports a max accuracy of 2 decimals, taker amount a max of 4 decimals"
	marketMakerMaxDecimals = 2
	marketTakerMaxDecimals = 4
)

var unitStep [collateralTokenDecimals + 1]*big.Int

func init() {
	for keep := 0; keep <= collateralTokenDecimals; keep++ {
		unitStep[keep] = new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(collateralTokenDecimals-keep)), nil)
	}
}

func tickScaleFromTickSize(tickSize string) (*big.Int, int, error) {
	priceDecimals, ok := priceDecimalsByTickSize[strings.TrimSpace(tickSize)]
	if !ok {
		return nil, 0, fmt.Errorf("unsupported tickSize %q", tickSize)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(priceDecimals)), nil)
	return scale, priceDecimals, nil
}

// toUnits converts d to an integer with the given decimals, truncating extra
// precision.
func toUnits(d decimal.Decimal, decimals int) *big.Int {
	return d.Shift(int32(decimals)).Truncate(0).BigInt()
}

func roundDownUnits(units *big.Int, keepDecimals int) *big.Int {
	if units == nil {
		return nil
	}
	if keepDecimals >= collateralTokenDecimals {
		return new(big.Int).Set(units)
	}
	if keepDecimals < 0 {
		keepDecimals = 0
	}
	step := unitStep[keepDecimals]
	q := new(big.Int).Div(units, step)
	return q.Mul(q, step)
}

func roundNearestUnits(units *big.Int, keepDecimals int) *big.Int {
	if units == nil {
		return nil
	}
	if keepDecimals >= collateralTokenDecimals {
		return new(big.Int).Set(units)
	}
	if keepDecimals < 0 {
		keepDecimals = 0
	}
	step := unitStep[keepDecimals]
	q := new(big.Int).Add(units, new(big.Int).Rsh(step, 1))
	q.Div(q, step)
	return q.Mul(q, step)
}

// orderAmountsAtPrice derives maker and taker amounts (1e6 units) for an
// order at priceTicks/priceScale. makerUnits is collateral for BUY and shares
// for SELL; share legs are never rounded up.
func orderAmountsAtPrice(side Side, makerUnits, priceTicks, priceScale *big.Int) (*big.Int, *big.Int, error) {
	if makerUnits == nil || makerUnits.Sign() <= 0 {
		return nil, nil, fmt.Errorf("maker amount must be > 0")
	}
	if priceTicks == nil || priceTicks.Sign() <= 0 {
		return nil, nil, fmt.Errorf("priceTicks must be > 0")
	}
	if priceScale == nil || priceScale.Sign() <= 0 {
		return nil, nil, fmt.Errorf("priceScale must be > 0")
	}

	var maker, taker *big.Int
	switch side {
	case SideBuy:
		maker = roundNearestUnits(makerUnits, marketMakerMaxDecimals)
		if maker.Sign() <= 0 {
			return nil, nil, fmt.Errorf("maker amount rounds to 0")
		}
		shares := new(big.Int).Mul(maker, priceScale)
		shares.Div(shares, priceTicks)
		taker = roundDownUnits(shares, marketTakerMaxDecimals)
	case SideSell:
		maker = roundDownUnits(makerUnits, marketMakerMaxDecimals)
		if maker.Sign() <= 0 {
			return nil, nil, fmt.Errorf("maker amount rounds to 0")
		}
		dollars := new(big.Int).Mul(maker, priceTicks)
		dollars.Div(dollars, priceScale)
		taker = roundDownUnits(dollars, marketTakerMaxDecimals)
	default:
		return nil, nil, fmt.Errorf("invalid side %q", side)
	}
	if taker.Sign() <= 0 {
		return nil, nil, fmt.Errorf("taker amount rounds to 0")
	}
	return maker, taker, nil
}

func formatDecimalUnits(units *big.Int, decimals int) string {
	if units == nil {
		return "0"
	}
	return decimal.NewFromBigInt(units, -int32(decimals)).String()
}
