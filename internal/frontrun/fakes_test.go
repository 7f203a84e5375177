package frontrun

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func book(asks ...BookLevel) *OrderBook {
	return &OrderBook{TokenID: "tok", Asks: asks}
}

func lvl(price, size string) BookLevel {
	return BookLevel{Price: d(price), Size: d(size)}
}

type postStep struct {
	res *PostResult
	err error
}

type fakeExchange struct {
	mu sync.Mutex

	market    *Market
	marketErr error

	// books are served in order; the last one repeats.
	books    []*OrderBook
	bookErrs []error
	posts    []postStep

	marketCalls int
	bookCalls   int
	created     []OrderArgs
}

func (f *fakeExchange) GetMarket(ctx context.Context, marketID string) (*Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marketCalls++
	if f.marketErr != nil {
		return nil, f.marketErr
	}
	return f.market, nil
}

func (f *fakeExchange) GetOrderBook(ctx context.Context, tokenID string) (*OrderBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.bookCalls
	f.bookCalls++
	if i < len(f.bookErrs) && f.bookErrs[i] != nil {
		return nil, f.bookErrs[i]
	}
	if len(f.books) == 0 {
		return &OrderBook{TokenID: tokenID}, nil
	}
	if i >= len(f.books) {
		i = len(f.books) - 1
	}
	return f.books[i], nil
}

func (f *fakeExchange) CreateOrder(ctx context.Context, args OrderArgs) (SignedOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, args)
	return args, nil
}

func (f *fakeExchange) PostOrder(ctx context.Context, order SignedOrder) (*PostResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := len(f.created) - 1
	if i < len(f.posts) {
		return f.posts[i].res, f.posts[i].err
	}
	return &PostResult{Success: true, OrderID: "ord", Status: "matched"}, nil
}

func (f *fakeExchange) createdOrders() []OrderArgs {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]OrderArgs(nil), f.created...)
}

func (f *fakeExchange) bookFetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bookCalls
}

func accepted() postStep {
	return postStep{res: &PostResult{Success: true, OrderID: "ord", Status: "matched"}}
}

func killed() postStep {
	return postStep{res: &PostResult{Success: false, ErrorMsg: "order couldn't be fully filled, FOK orders are fully filled or killed"}}
}

func terminal(sentinel error) postStep {
	return postStep{err: &ExchangeError{Op: "post order", Kind: FailureTerminal, Reason: sentinel, Err: errors.New("not enough balance / allowance")}}
}

type fakeBalances struct {
	mu         sync.Mutex
	quote, gas decimal.Decimal
	err        error
	quoteCalls int
	gasCalls   int
}

func (f *fakeBalances) QuoteBalance(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quoteCalls++
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.quote, nil
}

func (f *fakeBalances) GasBalance(ctx context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gasCalls++
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.gas, nil
}

func (f *fakeBalances) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quoteCalls, f.gasCalls
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(dur time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(dur)
}

type sleepRecorder struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, dur time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sleeps = append(s.sleeps, dur)
	return nil
}

func testWalker(ex Exchange, cfg WalkerConfig) (*Walker, *sleepRecorder) {
	rec := &sleepRecorder{}
	w := NewWalker(ex, cfg, zerolog.Nop())
	w.sleep = rec.sleep
	return w, rec
}

var errBoom = errors.New("boom")
