// Package frontrun turns detected trade signals into exchange orders.
//
// An Engine owns the shared state of all in-flight executions (the balance
// cache and the duplicate-execution guard) and runs one pipeline per signal:
// dedup, balance snapshot, sizing, solvency check, and the order walk.
package frontrun

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Outcome is the binary outcome label of the traded token.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// TradeSignal identifies one detected external trade. Values are never
// mutated after the listener produces them.
type TradeSignal struct {
	MarketID   string
	TokenID    string
	Outcome    Outcome
	Side       Side
	SizeUSD    decimal.Decimal
	DetectedAt time.Time

	// TargetGasPrice is the gas price of the observed transaction, when known.
	TargetGasPrice *big.Int

	Trader common.Address
	TxHash common.Hash
	Source string
}

// Key derives the active-execution key. It depends on signal identity only,
// so two signals on the same token with different timestamps do not collide.
func (s TradeSignal) Key() string {
	return fmt.Sprintf("%s-%s-%d", s.TokenID, s.Side, s.DetectedAt.UnixMilli())
}

type BookLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBook holds both sides ordered best-first: asks ascending, bids descending.
type OrderBook struct {
	TokenID string
	Asks    []BookLevel
	Bids    []BookLevel
}

// Levels returns the side a taker order of the given direction consumes.
func (b *OrderBook) Levels(side Side) []BookLevel {
	if b == nil {
		return nil
	}
	if side == SideBuy {
		return b.Asks
	}
	return b.Bids
}

func (b *OrderBook) best(side Side) (BookLevel, bool) {
	levels := b.Levels(side)
	if len(levels) == 0 {
		return BookLevel{}, false
	}
	return levels[0], true
}

type Market struct {
	ID       string
	Question string
	Active   bool
	Closed   bool
}

// OrderArgs describes a single fill-or-kill order at one price level.
// Size is denominated in outcome shares.
type OrderArgs struct {
	TokenID string
	Side    Side
	Size    decimal.Decimal
	Price   decimal.Decimal
}

// SignedOrder is an order ready for submission. Its contents are owned by the
// Exchange implementation that produced it.
type SignedOrder interface{}

type PostResult struct {
	Success  bool
	OrderID  string
	Status   string
	ErrorMsg string
}

// Exchange is the venue surface the order walker needs.
type Exchange interface {
	GetMarket(ctx context.Context, marketID string) (*Market, error)
	GetOrderBook(ctx context.Context, tokenID string) (*OrderBook, error)
	CreateOrder(ctx context.Context, args OrderArgs) (SignedOrder, error)
	// PostOrder submits with fill-or-kill semantics.
	PostOrder(ctx context.Context, order SignedOrder) (*PostResult, error)
}

// BalanceSource reads the wallet balances backing the balance cache.
type BalanceSource interface {
	QuoteBalance(ctx context.Context) (decimal.Decimal, error)
	GasBalance(ctx context.Context) (decimal.Decimal, error)
}
