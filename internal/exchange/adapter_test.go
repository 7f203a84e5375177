package exchange

import (
	"context"
	"errors"
	"net/http"
	"testing"

	ordermodel "github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poly-frontrun/internal/clob"
	"poly-frontrun/internal/frontrun"
)

type fakeClient struct {
	market    *clob.Market
	marketErr error
	book      *clob.OrderBookSummary
	bookErr   error
	created   []decimal.Decimal
	createErr error
	postResp  *clob.PostOrderResponse
	postErr   error
	posted    int
}

func (f *fakeClient) GetMarket(ctx context.Context, conditionID string) (*clob.Market, error) {
	return f.market, f.marketErr
}

func (f *fakeClient) GetOrderBook(ctx context.Context, tokenID string) (*clob.OrderBookSummary, error) {
	return f.book, f.bookErr
}

func (f *fakeClient) CreateSignedOrderAtPrice(ctx context.Context, tokenID string, side clob.Side, size, price decimal.Decimal, saltGenerator func() int64) (*clob.OrderResult, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, size, price)
	if saltGenerator() < 0 {
		return nil, errors.New("negative salt")
	}
	return &clob.OrderResult{SignedOrder: &ordermodel.SignedOrder{}}, nil
}

func (f *fakeClient) PostOrder(ctx context.Context, order *ordermodel.SignedOrder, orderType clob.OrderType, useServerTime bool) (*clob.PostOrderResponse, error) {
	f.posted++
	if orderType != clob.OrderTypeFOK {
		return nil, errors.New("expected FOK")
	}
	return f.postResp, f.postErr
}

func TestGetOrderBook_NormalizesBestFirst(t *testing.T) {
	fc := &fakeClient{book: &clob.OrderBookSummary{
		// Venue order: asks descending, bids ascending.
		Asks: []clob.OrderSummary{{Price: "0.60", Size: "10"}, {Price: "0.55", Size: "20"}, {Price: "0.52", Size: "30"}},
		Bids: []clob.OrderSummary{{Price: "0.40", Size: "5"}, {Price: "0.45", Size: "6"}, {Price: "0.48", Size: "7"}},
	}}
	a := New(fc, false)

	book, err := a.GetOrderBook(context.Background(), "tok")
	require.NoError(t, err)
	require.Len(t, book.Asks, 3)
	assert.Equal(t, "0.52", book.Asks[0].Price.String())
	assert.Equal(t, "0.6", book.Asks[2].Price.String())
	assert.Equal(t, "0.48", book.Bids[0].Price.String())
	assert.Equal(t, "7", book.Bids[0].Size.String())
	assert.Equal(t, book.Asks, book.Levels(frontrun.SideBuy))
}

func TestGetOrderBook_BadLevel(t *testing.T) {
	fc := &fakeClient{book: &clob.OrderBookSummary{Asks: []clob.OrderSummary{{Price: "abc", Size: "1"}}}}
	_, err := New(fc, false).GetOrderBook(context.Background(), "tok")
	require.Error(t, err)
}

func TestGetOrderBook_NoOrderbookIsMarketClosed(t *testing.T) {
	fc := &fakeClient{bookErr: &clob.APIError{Method: "GET", Path: "/book", StatusCode: 404, Body: `{"error":"No orderbook exists for the requested token id"}`}}
	_, err := New(fc, false).GetOrderBook(context.Background(), "tok")
	require.ErrorIs(t, err, frontrun.ErrMarketClosed)
	assert.True(t, frontrun.IsTerminal(err))
}

func TestGetMarket(t *testing.T) {
	fc := &fakeClient{market: &clob.Market{ConditionID: "0xabc", Question: "q", Active: true,
		Tokens: []clob.MarketToken{{TokenID: "1", Winner: true}}}}
	m, err := New(fc, false).GetMarket(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", m.ID)
	assert.True(t, m.Closed, "a declared winner means resolved")

	fc = &fakeClient{marketErr: &clob.APIError{StatusCode: http.StatusNotFound, Body: "not found"}}
	m, err = New(fc, false).GetMarket(context.Background(), "0xabc")
	require.NoError(t, err)
	assert.Nil(t, m)

	fc = &fakeClient{marketErr: &clob.APIError{StatusCode: http.StatusBadGateway, Body: "upstream"}}
	_, err = New(fc, false).GetMarket(context.Background(), "0xabc")
	require.Error(t, err)
	assert.False(t, frontrun.IsTerminal(err))
}

func TestPostOrder_Outcomes(t *testing.T) {
	ctx := context.Background()
	order := &clob.OrderResult{SignedOrder: &ordermodel.SignedOrder{}}

	fc := &fakeClient{postResp: &clob.PostOrderResponse{Success: true, OrderID: "0x1", Status: "matched"}}
	res, err := New(fc, false).PostOrder(ctx, order)
	require.NoError(t, err)
	assert.True(t, res.Success)

	// Killed FOK answered with success=true: not a fill, not an error.
	fc = &fakeClient{postResp: &clob.PostOrderResponse{Success: true, ErrorMsg: "order couldn't be fully filled. FOK orders are fully filled or killed."}}
	res, err = New(fc, false).PostOrder(ctx, order)
	require.NoError(t, err)
	assert.False(t, res.Success)

	// Killed FOK answered with a 400.
	fc = &fakeClient{
		postResp: &clob.PostOrderResponse{ErrorMsg: "order couldn't be fully filled. FOK orders are fully filled or killed."},
		postErr:  &clob.APIError{StatusCode: 400, Body: "..."},
	}
	res, err = New(fc, false).PostOrder(ctx, order)
	require.NoError(t, err)
	assert.False(t, res.Success)

	fc = &fakeClient{
		postResp: &clob.PostOrderResponse{ErrorMsg: "not enough balance / allowance"},
		postErr:  &clob.APIError{StatusCode: 400, Body: `{"errorMsg":"not enough balance / allowance"}`},
	}
	_, err = New(fc, false).PostOrder(ctx, order)
	require.ErrorIs(t, err, frontrun.ErrInsufficientFunds)
	assert.True(t, frontrun.IsTerminal(err))

	fc = &fakeClient{postErr: errors.New("connection reset by peer")}
	_, err = New(fc, false).PostOrder(ctx, order)
	require.Error(t, err)
	assert.False(t, frontrun.IsTerminal(err))

	_, err = New(fc, false).PostOrder(ctx, "not an order")
	require.Error(t, err)
}

func TestCreateOrder(t *testing.T) {
	fc := &fakeClient{}
	a := New(fc, false)
	so, err := a.CreateOrder(context.Background(), frontrun.OrderArgs{TokenID: "1", Side: frontrun.SideSell, Size: decimal.NewFromInt(10), Price: decimal.RequireFromString("0.4")})
	require.NoError(t, err)
	require.IsType(t, &clob.OrderResult{}, so)
	require.Len(t, fc.created, 2)

	fc.createErr = &clob.APIError{StatusCode: 503, Body: "unavailable"}
	_, err = a.CreateOrder(context.Background(), frontrun.OrderArgs{TokenID: "1", Side: frontrun.SideBuy, Size: decimal.NewFromInt(1), Price: decimal.RequireFromString("0.4")})
	var xe *frontrun.ExchangeError
	require.ErrorAs(t, err, &xe)
	assert.Equal(t, frontrun.FailureTransient, xe.Kind)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, Classify("op", nil))

	cases := []struct {
		name     string
		err      error
		terminal bool
		reason   error
	}{
		{"rate limited", &clob.APIError{StatusCode: 429, Body: "slow down"}, false, nil},
		{"server error", &clob.APIError{StatusCode: 500, Body: "oops"}, false, nil},
		{"unauthorized", &clob.APIError{StatusCode: 401, Body: "Unauthorized/Invalid api key"}, true, nil},
		{"closed market", &clob.APIError{StatusCode: 400, Body: `{"error":"market is closed"}`}, true, frontrun.ErrMarketClosed},
		{"funds", &clob.APIError{StatusCode: 400, Body: `{"error":"not enough balance / allowance"}`}, true, frontrun.ErrInsufficientFunds},
		{"fok kill", &clob.APIError{StatusCode: 400, Body: `{"errorMsg":"FOK orders are fully filled or killed"}`}, false, nil},
		{"network", errors.New("dial tcp: i/o timeout"), false, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Classify("op", tc.err)
			var xe *frontrun.ExchangeError
			require.ErrorAs(t, err, &xe)
			assert.Equal(t, tc.terminal, frontrun.IsTerminal(err))
			if tc.reason != nil {
				assert.ErrorIs(t, err, tc.reason)
			}
			assert.ErrorIs(t, err, tc.err)
		})
	}
}
