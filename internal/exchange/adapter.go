// Package exchange binds the frontrun engine to the Polymarket CLOB client.
package exchange

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sort"
	"sync"
	"time"

	ordermodel "github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"

	"poly-frontrun/internal/clob"
	"poly-frontrun/internal/frontrun"
)

// Client is the slice of *clob.Client the adapter uses.
type Client interface {
	GetMarket(ctx context.Context, conditionID string) (*clob.Market, error)
	GetOrderBook(ctx context.Context, tokenID string) (*clob.OrderBookSummary, error)
	CreateSignedOrderAtPrice(ctx context.Context, tokenID string, side clob.Side, size, price decimal.Decimal, saltGenerator func() int64) (*clob.OrderResult, error)
	PostOrder(ctx context.Context, order *ordermodel.SignedOrder, orderType clob.OrderType, useServerTime bool) (*clob.PostOrderResponse, error)
}

type Adapter struct {
	client        Client
	useServerTime bool

	rngMu sync.Mutex
	rng   *rand.Rand
}

var _ frontrun.Exchange = (*Adapter)(nil)

func New(client Client, useServerTime bool) *Adapter {
	seed := uint64(time.Now().UnixNano())
	return &Adapter{
		client:        client,
		useServerTime: useServerTime,
		rng:           rand.New(rand.NewPCG(seed, seed>>1)),
	}
}

func (a *Adapter) salt() int64 {
	a.rngMu.Lock()
	defer a.rngMu.Unlock()
	return int64(a.rng.Uint64() & 0x7fffffffffffffff)
}

// GetMarket returns nil without error when the venue does not know the market.
func (a *Adapter) GetMarket(ctx context.Context, marketID string) (*frontrun.Market, error) {
	m, err := a.client.GetMarket(ctx, marketID)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, Classify("get market", err)
	}
	return &frontrun.Market{
		ID:       m.ConditionID,
		Question: m.Question,
		Active:   m.Active,
		Closed:   m.Closed || m.Archived || m.Resolved(),
	}, nil
}

// GetOrderBook returns the book with both sides ordered best-first.
func (a *Adapter) GetOrderBook(ctx context.Context, tokenID string) (*frontrun.OrderBook, error) {
	raw, err := a.client.GetOrderBook(ctx, tokenID)
	if err != nil {
		return nil, Classify("get order book", err)
	}
	asks, err := parseLevels(raw.Asks)
	if err != nil {
		return nil, fmt.Errorf("asks: %w", err)
	}
	bids, err := parseLevels(raw.Bids)
	if err != nil {
		return nil, fmt.Errorf("bids: %w", err)
	}
	sort.SliceStable(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	return &frontrun.OrderBook{TokenID: tokenID, Asks: asks, Bids: bids}, nil
}

func parseLevels(in []clob.OrderSummary) ([]frontrun.BookLevel, error) {
	out := make([]frontrun.BookLevel, 0, len(in))
	for _, l := range in {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			return nil, fmt.Errorf("parse price %q: %w", l.Price, err)
		}
		size, err := decimal.NewFromString(l.Size)
		if err != nil {
			return nil, fmt.Errorf("parse size %q: %w", l.Size, err)
		}
		out = append(out, frontrun.BookLevel{Price: price, Size: size})
	}
	return out, nil
}

func (a *Adapter) CreateOrder(ctx context.Context, args frontrun.OrderArgs) (frontrun.SignedOrder, error) {
	side := clob.SideBuy
	if args.Side == frontrun.SideSell {
		side = clob.SideSell
	}
	res, err := a.client.CreateSignedOrderAtPrice(ctx, args.TokenID, side, args.Size, args.Price, a.salt)
	if err != nil {
		return nil, Classify("create order", err)
	}
	return res, nil
}

// PostOrder submits with fill-or-kill. A killed order is an unsuccessful
// result, not an error; rejections naming a terminal cause become errors.
func (a *Adapter) PostOrder(ctx context.Context, order frontrun.SignedOrder) (*frontrun.PostResult, error) {
	signed, ok := order.(*clob.OrderResult)
	if !ok || signed == nil {
		return nil, fmt.Errorf("post order: unexpected order type %T", order)
	}

	resp, err := a.client.PostOrder(ctx, signed.SignedOrder, clob.OrderTypeFOK, a.useServerTime)
	if resp != nil && resp.ErrorMsg != "" {
		if xe := classifyMessage("post order", resp.ErrorMsg, err); xe != nil && xe.Kind == frontrun.FailureTerminal {
			return nil, xe
		}
		return &frontrun.PostResult{Success: false, OrderID: resp.OrderID, Status: resp.Status, ErrorMsg: resp.ErrorMsg}, nil
	}
	if err != nil {
		return nil, Classify("post order", err)
	}
	return &frontrun.PostResult{
		Success:  resp.Filled(),
		OrderID:  resp.OrderID,
		Status:   resp.Status,
		ErrorMsg: resp.ErrorMsg,
	}, nil
}
