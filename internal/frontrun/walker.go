package frontrun

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultMaxRetries  = 3
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = 5 * time.Second
)

var DefaultMinRemainingUSD = decimal.NewFromInt(1)

type WalkerConfig struct {
	MaxRetries int
	// MinRemaining is the dust threshold in USD below which the walk stops.
	MinRemaining decimal.Decimal
	BackoffBase  time.Duration
	BackoffMax   time.Duration
}

func (c WalkerConfig) withDefaults() WalkerConfig {
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.MinRemaining.IsNegative() {
		c.MinRemaining = decimal.Zero
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = DefaultBackoffBase
	}
	if c.BackoffMax < c.BackoffBase {
		c.BackoffMax = DefaultBackoffMax
	}
	return c
}

// OrderRequest is one walk: spend (or sell for) AmountUSD of TokenID.
type OrderRequest struct {
	TokenID   string
	Side      Side
	AmountUSD decimal.Decimal
	// MarketID enables the existence check when non-empty.
	MarketID string
	// WorstPrice is the highest acceptable buy price or lowest acceptable sell price.
	WorstPrice *decimal.Decimal
	// PriorityGasPrice is informational; CLOB orders settle off this process's gas.
	PriorityGasPrice *big.Int
}

type FillOutcome string

const (
	OutcomeFilled              FillOutcome = "filled"
	OutcomePartial             FillOutcome = "partial"
	OutcomeAborted             FillOutcome = "aborted"
	OutcomeAbortedAfterPartial FillOutcome = "aborted_after_partial"
)

type FillReport struct {
	Requested decimal.Decimal
	Filled    decimal.Decimal
	Remaining decimal.Decimal
	// Orders counts accepted fills; Attempts counts every submission.
	Orders   int
	Attempts int
	Outcome  FillOutcome
}

// Walker fills an order request against the best level of the book, one
// fill-or-kill order at a time, refreshing the book between passes.
type Walker struct {
	ex  Exchange
	cfg WalkerConfig
	log zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error

	// OnSubmit, when set, observes every submission result.
	OnSubmit func(side Side, accepted bool)
}

func NewWalker(ex Exchange, cfg WalkerConfig, log zerolog.Logger) *Walker {
	return &Walker{
		ex:    ex,
		cfg:   cfg.withDefaults(),
		log:   log.With().Str("component", "walker").Logger(),
		sleep: sleepWithContext,
	}
}

// Backoff returns the wait after the given consecutive failure count:
// base doubled per retry, capped at max.
func Backoff(retry int, base, max time.Duration) time.Duration {
	d := base
	for i := 0; i < retry && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}

func (w *Walker) Walk(ctx context.Context, req OrderRequest) (rep FillReport, err error) {
	rep = FillReport{Requested: req.AmountUSD, Remaining: req.AmountUSD}
	// A panic mid-walk keeps the fills already made.
	defer func() {
		if r := recover(); r != nil {
			rep, err = w.finish(rep, fmt.Errorf("walker panic: %v", r))
		}
	}()
	if !req.Side.Valid() {
		return w.finish(rep, fmt.Errorf("invalid side %q", req.Side))
	}
	if !req.AmountUSD.IsPositive() {
		return w.finish(rep, fmt.Errorf("order amount must be > 0, got %s", req.AmountUSD))
	}
	log := w.log.With().Str("token_id", req.TokenID).Str("side", string(req.Side)).Logger()

	if req.MarketID != "" {
		if err := w.validateMarket(ctx, req.MarketID); err != nil {
			return w.finish(rep, err)
		}
		log.Debug().Str("market_id", req.MarketID).Msg("market validated")
	}

	book, err := w.ex.GetOrderBook(ctx, req.TokenID)
	if err != nil {
		return w.finish(rep, fmt.Errorf("fetch order book: %w", err))
	}
	best, ok := book.best(req.Side)
	if !ok {
		return w.finish(rep, &NoLiquidityError{TokenID: req.TokenID, Side: req.Side})
	}
	log.Debug().Int("levels", len(book.Levels(req.Side))).Str("best_price", best.Price.String()).Msg("order book fetched")
	if req.WorstPrice != nil && worseThan(req.Side, best.Price, *req.WorstPrice) {
		return w.finish(rep, &PriceProtectionError{Side: req.Side, BestPrice: best.Price, WorstPrice: *req.WorstPrice})
	}

	retries := 0
	var lastErr error
	for rep.Remaining.GreaterThan(w.cfg.MinRemaining) && retries < w.cfg.MaxRetries {
		if err := ctx.Err(); err != nil {
			return w.finish(rep, err)
		}

		if book == nil {
			book, err = w.ex.GetOrderBook(ctx, req.TokenID)
			if err != nil {
				retries++
				lastErr = err
				if IsTerminal(err) {
					return w.finish(rep, fmt.Errorf("refresh order book: %w", err))
				}
				log.Warn().Err(err).Int("retry", retries).Msg("order book refresh failed")
				if err := w.backoff(ctx, retries); err != nil {
					return w.finish(rep, err)
				}
				continue
			}
		}

		level, ok := book.best(req.Side)
		if !ok {
			log.Info().Str("remaining_usd", rep.Remaining.StringFixed(2)).Msg("book side emptied; accepting partial fill")
			break
		}
		if !level.Price.IsPositive() || !level.Size.IsPositive() {
			retries++
			book = nil
			lastErr = fmt.Errorf("invalid best level price=%s size=%s", level.Price, level.Size)
			continue
		}

		levelValue := level.Size.Mul(level.Price)
		orderValue := decimal.Min(rep.Remaining, levelValue)
		orderSize := orderValue.Div(level.Price)
		if !orderSize.IsPositive() || !orderValue.IsPositive() {
			break
		}

		rep.Attempts++
		res, err := w.submit(ctx, OrderArgs{TokenID: req.TokenID, Side: req.Side, Size: orderSize, Price: level.Price})
		// The post-trade book is stale either way.
		book = nil
		if err == nil && res.Success {
			rep.Remaining = rep.Remaining.Sub(orderValue)
			rep.Filled = rep.Filled.Add(orderValue)
			rep.Orders++
			retries = 0
			lastErr = nil
			log.Info().
				Str("price", level.Price.String()).
				Str("size", orderSize.StringFixed(4)).
				Str("value_usd", orderValue.StringFixed(2)).
				Str("remaining_usd", rep.Remaining.StringFixed(2)).
				Str("order_id", res.OrderID).
				Msg("order filled")
			continue
		}
		if err == nil {
			err = &ExchangeError{Op: "post order", Kind: FailureTransient, Err: fmt.Errorf("order rejected: %s", res.ErrorMsg)}
		}

		retries++
		lastErr = err
		if IsTerminal(err) {
			log.Warn().Err(err).Str("filled_usd", rep.Filled.StringFixed(2)).Msg("terminal order failure")
			return w.finish(rep, err)
		}
		log.Warn().Err(err).Int("retry", retries).Msg("order attempt failed")
		if err := w.backoff(ctx, retries); err != nil {
			return w.finish(rep, err)
		}
	}

	if retries >= w.cfg.MaxRetries && rep.Remaining.GreaterThan(w.cfg.MinRemaining) {
		return w.finish(rep, &RetryExhaustedError{Attempts: retries, Remaining: rep.Remaining, LastErr: lastErr})
	}
	return w.finish(rep, nil)
}

func (w *Walker) validateMarket(ctx context.Context, marketID string) error {
	m, err := w.ex.GetMarket(ctx, marketID)
	switch {
	case err != nil:
		return &MarketValidationError{MarketID: marketID, Err: err}
	case m == nil:
		return &MarketValidationError{MarketID: marketID, Err: errors.New("market not found")}
	case m.Closed:
		return &MarketValidationError{MarketID: marketID, Err: ErrMarketClosed}
	}
	return nil
}

func (w *Walker) submit(ctx context.Context, args OrderArgs) (*PostResult, error) {
	signed, err := w.ex.CreateOrder(ctx, args)
	if err != nil {
		w.observe(args.Side, false)
		return nil, fmt.Errorf("create order: %w", err)
	}
	res, err := w.ex.PostOrder(ctx, signed)
	if err == nil && res == nil {
		err = errors.New("post order: empty response")
	}
	w.observe(args.Side, err == nil && res.Success)
	return res, err
}

func (w *Walker) observe(side Side, accepted bool) {
	if w.OnSubmit != nil {
		w.OnSubmit(side, accepted)
	}
}

// backoff sleeps unless the retry budget is already spent.
func (w *Walker) backoff(ctx context.Context, retries int) error {
	if retries >= w.cfg.MaxRetries {
		return nil
	}
	return w.sleep(ctx, Backoff(retries, w.cfg.BackoffBase, w.cfg.BackoffMax))
}

func (w *Walker) finish(rep FillReport, err error) (FillReport, error) {
	var exhausted *RetryExhaustedError
	switch {
	case err == nil && !rep.Remaining.GreaterThan(w.cfg.MinRemaining):
		rep.Outcome = OutcomeFilled
	case err == nil:
		rep.Outcome = OutcomePartial
	case rep.Filled.IsZero():
		rep.Outcome = OutcomeAborted
	case errors.As(err, &exhausted):
		rep.Outcome = OutcomePartial
	default:
		rep.Outcome = OutcomeAbortedAfterPartial
	}
	return rep, err
}

func worseThan(side Side, best, limit decimal.Decimal) bool {
	if side == SideBuy {
		return best.GreaterThan(limit)
	}
	return best.LessThan(limit)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
