package frontrun

import "github.com/shopspring/decimal"

// FrontrunSize scales the observed trade size by the configured multiplier,
// which config validation keeps in (0, 1].
func FrontrunSize(targetSizeUSD, multiplier decimal.Decimal) decimal.Decimal {
	return targetSizeUSD.Mul(multiplier)
}

// CheckBalances is the pre-flight solvency check. Buys need enough USDC for
// the whole frontrun size; every order needs the minimum POL balance.
func CheckBalances(size decimal.Decimal, side Side, snap BalanceSnapshot, minGas decimal.Decimal) error {
	if side == SideBuy && snap.Quote.LessThan(size) {
		return &InsufficientQuoteBalanceError{Required: size, Available: snap.Quote}
	}
	if snap.Gas.LessThan(minGas) {
		return &InsufficientGasBalanceError{Required: minGas, Available: snap.Gas}
	}
	return nil
}
