package frontrun

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"poly-frontrun/internal/eventlog"
	"poly-frontrun/internal/metrics"
)

const DefaultSweepInterval = 10 * time.Second

type Config struct {
	// SizeMultiplier scales the observed trade size, in (0, 1].
	SizeMultiplier decimal.Decimal
	// GasPriceMultiplier derives the priority gas price from the target's.
	GasPriceMultiplier decimal.Decimal
	MinGasBalance      decimal.Decimal
	// MinTradeSizeUSD drops smaller signals before they reach a pipeline.
	MinTradeSizeUSD  decimal.Decimal
	ExecutionEnabled bool

	BalanceTTL     time.Duration
	DedupRetention time.Duration
	SweepInterval  time.Duration
	Walker         WalkerConfig
}

// Result describes one finished pipeline.
type Result struct {
	Signal      TradeSignal
	Admitted    bool
	SizeUSD     decimal.Decimal
	PriorityGas *big.Int
	Report      FillReport
	Err         error
	Duration    time.Duration
}

type Engine struct {
	cfg      Config
	balances *BalanceCache
	dedup    *DedupGuard
	walker   *Walker
	log      zerolog.Logger
	events   *eventlog.Writer

	startedAt time.Time
	inFlight  atomic.Int64
}

func NewEngine(cfg Config, ex Exchange, src BalanceSource, log zerolog.Logger, events *eventlog.Writer) *Engine {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	balances := NewBalanceCache(src, cfg.BalanceTTL)
	balances.OnRefresh = func(asset BalanceAsset) {
		metrics.BalanceRefreshesTotal.WithLabelValues(string(asset)).Inc()
	}
	walker := NewWalker(ex, cfg.Walker, log)
	walker.OnSubmit = func(side Side, accepted bool) {
		metrics.OrdersTotal.WithLabelValues(string(side), metrics.OrderResult(accepted)).Inc()
	}

	return &Engine{
		cfg:       cfg,
		balances:  balances,
		dedup:     NewDedupGuard(cfg.DedupRetention),
		walker:    walker,
		log:       log.With().Str("component", "engine").Logger(),
		events:    events,
		startedAt: time.Now(),
	}
}

func (e *Engine) Balances() *BalanceCache { return e.balances }

func (e *Engine) InFlight() int64 { return e.inFlight.Load() }

// Run dispatches signals until ctx is cancelled or the channel closes.
// Each admitted signal runs on its own goroutine with a context detached from
// ctx; Run does not wait for those pipelines before returning.
func (e *Engine) Run(ctx context.Context, signals <-chan TradeSignal) error {
	sweep := time.NewTicker(e.cfg.SweepInterval)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			e.Dispatch(ctx, sig)
		case <-sweep.C:
			metrics.BlockedKeys.Set(float64(e.dedup.Sweep()))
		}
	}
}

// Dispatch applies the pre-pipeline filters and starts a pipeline for sig.
func (e *Engine) Dispatch(ctx context.Context, sig TradeSignal) {
	log := e.signalLogger(sig)
	if sig.SizeUSD.LessThan(e.cfg.MinTradeSizeUSD) {
		metrics.SignalsTotal.WithLabelValues("below_min").Inc()
		log.Debug().Str("min_usd", e.cfg.MinTradeSizeUSD.String()).Msg("trade below minimum size; skipping")
		return
	}
	if !e.cfg.ExecutionEnabled {
		metrics.SignalsTotal.WithLabelValues("monitor_only").Inc()
		log.Info().Msg("trade detected; execution disabled")
		e.record(eventlog.Event{Event: eventlog.EventMonitorOnly, Mode: eventlog.Mode(false)}, sig)
		return
	}
	metrics.SignalsTotal.WithLabelValues("dispatched").Inc()
	go e.Execute(context.WithoutCancel(ctx), sig)
}

// Execute runs one pipeline synchronously: admit, snapshot balances, size,
// check solvency, walk the book. The signal's key is released on every exit.
func (e *Engine) Execute(ctx context.Context, sig TradeSignal) (res Result) {
	res.Signal = sig
	key := sig.Key()
	log := e.signalLogger(sig)

	if !e.dedup.TryAdmit(key) {
		metrics.SignalsTotal.WithLabelValues("duplicate").Inc()
		log.Debug().Str("key", key).Msg("trade already being executed; skipping")
		return res
	}
	res.Admitted = true

	start := time.Now()
	e.inFlight.Add(1)
	metrics.PipelinesInFlight.Inc()
	defer func() {
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("pipeline panic: %v", r)
			if !res.Report.Filled.IsPositive() {
				res.Report.Outcome = OutcomeAborted
			}
			// Orders may have filled before the panic.
			e.balances.Invalidate()
		}
		e.dedup.Release(key)
		e.inFlight.Add(-1)
		metrics.PipelinesInFlight.Dec()

		res.Duration = time.Since(start)
		metrics.PipelineSeconds.Observe(res.Duration.Seconds())
		e.finish(log, res)
	}()

	snap, err := e.balances.Snapshot(ctx)
	if err != nil {
		res.Err = fmt.Errorf("read balances: %w", err)
		res.Report.Outcome = OutcomeAborted
		return res
	}
	log.Info().
		Str("usdc", snap.Quote.StringFixed(2)).
		Str("pol", snap.Gas.StringFixed(4)).
		Msg("balances")

	res.SizeUSD = FrontrunSize(sig.SizeUSD, e.cfg.SizeMultiplier)
	res.Report = FillReport{Requested: res.SizeUSD, Remaining: res.SizeUSD, Outcome: OutcomeAborted}
	res.PriorityGas = PriorityGasPrice(sig.TargetGasPrice, e.cfg.GasPriceMultiplier)
	if err := CheckBalances(res.SizeUSD, sig.Side, snap, e.cfg.MinGasBalance); err != nil {
		res.Err = err
		return res
	}

	ev := log.Info().Str("frontrun_usd", res.SizeUSD.StringFixed(2))
	if res.PriorityGas != nil {
		ev = ev.Str("priority_gas_wei", res.PriorityGas.String())
	}
	ev.Msg("executing frontrun")

	res.Report, res.Err = e.walker.Walk(ctx, OrderRequest{
		TokenID:          sig.TokenID,
		Side:             sig.Side,
		AmountUSD:        res.SizeUSD,
		MarketID:         sig.MarketID,
		PriorityGasPrice: res.PriorityGas,
	})
	if res.Report.Filled.IsPositive() {
		e.balances.Invalidate()
	}
	return res
}

func (e *Engine) finish(log zerolog.Logger, res Result) {
	metrics.ExecutionsTotal.WithLabelValues(string(res.Report.Outcome)).Inc()

	var (
		quoteErr *InsufficientQuoteBalanceError
		gasErr   *InsufficientGasBalanceError
	)
	switch {
	case res.Err == nil:
		log.Info().
			Str("outcome", string(res.Report.Outcome)).
			Str("filled_usd", res.Report.Filled.StringFixed(2)).
			Int("orders", res.Report.Orders).
			Dur("took", res.Duration).
			Msg("frontrun executed")
	case errors.Is(res.Err, ErrMarketClosed):
		log.Warn().Err(res.Err).Msg("skipping trade; market closed or resolved")
	case errors.As(res.Err, &quoteErr):
		log.Error().Str("required", quoteErr.Required.StringFixed(2)).Str("available", quoteErr.Available.StringFixed(2)).Msg("insufficient USDC balance")
	case errors.As(res.Err, &gasErr):
		log.Error().Str("required", gasErr.Required.String()).Str("available", gasErr.Available.String()).Msg("insufficient POL balance for gas")
	default:
		log.Error().Err(res.Err).
			Str("outcome", string(res.Report.Outcome)).
			Str("filled_usd", res.Report.Filled.StringFixed(2)).
			Msg("failed to frontrun trade")
	}

	ev := eventlog.Event{
		Event:        eventlog.EventExecution,
		Mode:         eventlog.Mode(true),
		FrontrunUSD:  res.SizeUSD.StringFixed(2),
		FilledUSD:    res.Report.Filled.StringFixed(2),
		RemainingUSD: res.Report.Remaining.StringFixed(2),
		Orders:       res.Report.Orders,
		Attempts:     res.Report.Attempts,
		Result:       string(res.Report.Outcome),
		Ok:           res.Err == nil,
		DurationMs:   res.Duration.Milliseconds(),
	}
	if res.PriorityGas != nil {
		ev.PriorityGas = res.PriorityGas.String()
	}
	if res.Err != nil {
		ev.Err = res.Err.Error()
	}
	e.record(ev, res.Signal)
}

func (e *Engine) record(ev eventlog.Event, sig TradeSignal) {
	if e.events == nil {
		return
	}
	ev.Source = sig.Source
	ev.MarketID = sig.MarketID
	ev.TokenID = sig.TokenID
	ev.Outcome = string(sig.Outcome)
	ev.Side = string(sig.Side)
	ev.TargetUSD = sig.SizeUSD.StringFixed(2)
	if sig.Trader != (common.Address{}) {
		ev.Trader = sig.Trader.Hex()
	}
	if sig.TxHash != (common.Hash{}) {
		ev.TxHash = sig.TxHash.Hex()
	}
	if sig.TargetGasPrice != nil {
		ev.TargetGas = sig.TargetGasPrice.String()
	}
	if !sig.DetectedAt.IsZero() {
		ev.DetectLagMs = time.Since(sig.DetectedAt).Milliseconds()
	}
	ev.UptimeMs = time.Since(e.startedAt).Milliseconds()
	if err := e.events.Record(ev); err != nil {
		e.log.Warn().Err(err).Msg("event log write failed")
	}
}

func (e *Engine) signalLogger(sig TradeSignal) zerolog.Logger {
	return e.log.With().
		Str("market_id", sig.MarketID).
		Str("token_id", sig.TokenID).
		Str("outcome", string(sig.Outcome)).
		Str("side", string(sig.Side)).
		Str("target_usd", sig.SizeUSD.StringFixed(2)).
		Logger()
}

// PriorityGasPrice returns target scaled by multiplier, or nil when the
// target's gas price is unknown.
func PriorityGasPrice(target *big.Int, multiplier decimal.Decimal) *big.Int {
	if target == nil || target.Sign() <= 0 {
		return nil
	}
	if !multiplier.IsPositive() {
		return new(big.Int).Set(target)
	}
	return decimal.NewFromBigInt(target, 0).Mul(multiplier).Ceil().BigInt()
}
