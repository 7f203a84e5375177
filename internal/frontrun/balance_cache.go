package frontrun

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const DefaultBalanceTTL = 5 * time.Second

type BalanceSnapshot struct {
	Quote       decimal.Decimal
	Gas         decimal.Decimal
	RefreshedAt time.Time
}

type BalanceAsset string

const (
	AssetQuote BalanceAsset = "usdc"
	AssetGas   BalanceAsset = "pol"
)

// BalanceCache keeps the wallet's quote and gas balances for a TTL.
//
// Both balances share one refresh timestamp: refreshing either one makes the
// other look fresh too. Fetches run outside the lock, so two concurrent misses
// may both hit the source. A fetch that started before an Invalidate is
// returned to its caller but not stored.
type BalanceCache struct {
	src BalanceSource
	ttl time.Duration
	now func() time.Time

	// OnRefresh, when set, is called after every successful source fetch.
	OnRefresh func(asset BalanceAsset)

	mu          sync.Mutex
	quote       *decimal.Decimal
	gas         *decimal.Decimal
	refreshedAt time.Time
	// gen is bumped by Invalidate.
	gen uint64
}

func NewBalanceCache(src BalanceSource, ttl time.Duration) *BalanceCache {
	if ttl <= 0 {
		ttl = DefaultBalanceTTL
	}
	return &BalanceCache{src: src, ttl: ttl, now: time.Now}
}

func (c *BalanceCache) QuoteBalance(ctx context.Context) (decimal.Decimal, error) {
	return c.get(ctx, AssetQuote)
}

func (c *BalanceCache) GasBalance(ctx context.Context) (decimal.Decimal, error) {
	return c.get(ctx, AssetGas)
}

func (c *BalanceCache) get(ctx context.Context, asset BalanceAsset) (decimal.Decimal, error) {
	c.mu.Lock()
	slot := c.slotLocked(asset)
	if *slot != nil && c.now().Sub(c.refreshedAt) <= c.ttl {
		v := **slot
		c.mu.Unlock()
		return v, nil
	}
	gen := c.gen
	c.mu.Unlock()

	var (
		v   decimal.Decimal
		err error
	)
	switch asset {
	case AssetQuote:
		v, err = c.src.QuoteBalance(ctx)
	default:
		v, err = c.src.GasBalance(ctx)
	}
	if err != nil {
		return decimal.Zero, err
	}

	c.mu.Lock()
	if c.gen == gen {
		*c.slotLocked(asset) = &v
		c.refreshedAt = c.now()
	}
	c.mu.Unlock()

	if c.OnRefresh != nil {
		c.OnRefresh(asset)
	}
	return v, nil
}

func (c *BalanceCache) slotLocked(asset BalanceAsset) **decimal.Decimal {
	if asset == AssetQuote {
		return &c.quote
	}
	return &c.gas
}

// Snapshot reads both balances concurrently.
func (c *BalanceCache) Snapshot(ctx context.Context) (BalanceSnapshot, error) {
	var snap BalanceSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := c.QuoteBalance(gctx)
		snap.Quote = v
		return err
	})
	g.Go(func() error {
		v, err := c.GasBalance(gctx)
		snap.Gas = v
		return err
	})
	if err := g.Wait(); err != nil {
		return BalanceSnapshot{}, err
	}

	c.mu.Lock()
	snap.RefreshedAt = c.refreshedAt
	c.mu.Unlock()
	return snap, nil
}

// Invalidate drops both cached balances and the shared timestamp.
func (c *BalanceCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quote = nil
	c.gas = nil
	c.refreshedAt = time.Time{}
	c.gen++
}
