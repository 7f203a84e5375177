package frontrun

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrMarketClosed marks venue failures caused by a closed or resolved market.
	ErrMarketClosed = errors.New("market closed or resolved")
	// ErrInsufficientFunds marks venue rejections for missing balance or allowance.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

type FailureKind int

const (
	FailureTransient FailureKind = iota
	FailureTerminal
)

func (k FailureKind) String() string {
	switch k {
	case FailureTerminal:
		return "terminal"
	default:
		return "transient"
	}
}

// ExchangeError is produced once at the exchange boundary. The walker only
// looks at Kind; Reason (when set) is one of the sentinel errors above.
type ExchangeError struct {
	Op     string
	Kind   FailureKind
	Reason error
	Err    error
}

func (e *ExchangeError) Error() string {
	if e.Reason != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Op, e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ExchangeError) Unwrap() []error {
	if e.Reason != nil {
		return []error{e.Reason, e.Err}
	}
	return []error{e.Err}
}

// IsTerminal reports whether err must stop the fill loop. Errors that were not
// classified at the boundary are treated as transient.
func IsTerminal(err error) bool {
	var xe *ExchangeError
	if errors.As(err, &xe) {
		return xe.Kind == FailureTerminal
	}
	var me *MarketValidationError
	if errors.As(err, &me) {
		return true
	}
	return errors.Is(err, ErrMarketClosed) || errors.Is(err, ErrInsufficientFunds)
}

type MarketValidationError struct {
	MarketID string
	Err      error
}

func (e *MarketValidationError) Error() string {
	return fmt.Sprintf("market validation failed for %s: %v", e.MarketID, e.Err)
}

func (e *MarketValidationError) Unwrap() error { return e.Err }

type NoLiquidityError struct {
	TokenID string
	Side    Side
}

func (e *NoLiquidityError) Error() string {
	side := "bids"
	if e.Side == SideBuy {
		side = "asks"
	}
	return fmt.Sprintf("no %s available for token %s", side, e.TokenID)
}

type PriceProtectionError struct {
	Side       Side
	BestPrice  decimal.Decimal
	WorstPrice decimal.Decimal
}

func (e *PriceProtectionError) Error() string {
	return fmt.Sprintf("price protection: best %s price %s is worse than limit %s", e.Side, e.BestPrice, e.WorstPrice)
}

// RetryExhaustedError is returned when the fill loop ran out of retries. Any
// amount already filled stands.
type RetryExhaustedError struct {
	Attempts  int
	Remaining decimal.Decimal
	LastErr   error
}

func (e *RetryExhaustedError) Error() string {
	if e.LastErr == nil {
		return fmt.Sprintf("retries exhausted after %d attempts (remaining %s USD)", e.Attempts, e.Remaining.StringFixed(2))
	}
	return fmt.Sprintf("retries exhausted after %d attempts (remaining %s USD): %v", e.Attempts, e.Remaining.StringFixed(2), e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error { return e.LastErr }

type InsufficientQuoteBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientQuoteBalanceError) Error() string {
	return fmt.Sprintf("insufficient USDC balance: required %s, available %s", e.Required.StringFixed(2), e.Available.StringFixed(2))
}

type InsufficientGasBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientGasBalanceError) Error() string {
	return fmt.Sprintf("insufficient POL balance for gas: required %s, available %s", e.Required.String(), e.Available.StringFixed(4))
}
