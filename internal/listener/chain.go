package listener

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"poly-frontrun/internal/ethutil"
	"poly-frontrun/internal/frontrun"
	"poly-frontrun/internal/gamma"
	"poly-frontrun/internal/polygonwatch"
)

const (
	gasLookupTimeout = 750 * time.Millisecond
	// DefaultTxQuiet is how long the consumer waits for more logs of the
	// same transaction before emitting its trades.
	DefaultTxQuiet = 25 * time.Millisecond
)

type FillStream interface {
	Run(ctx context.Context, out chan<- *polygonwatch.FillEvent) error
}

type TokenResolver interface {
	ResolveToken(ctx context.Context, tokenID string) (gamma.TokenMarket, error)
}

type TxReader interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// ChainSource emits one signal per target trade seen in OrderFilled logs.
// A taker order matched against several makers produces one log per maker in
// the same transaction; those legs are merged by (tx, taker, token, side)
// before emitting.
type ChainSource struct {
	Fills      FillStream
	Takers     []common.Address
	Collateral common.Address
	Markets    TokenResolver
	// Txs is optional; without it signals carry no target gas price.
	Txs TxReader
	// TxQuiet defaults to DefaultTxQuiet.
	TxQuiet time.Duration
	Log     zerolog.Logger

	now func() time.Time
}

func (s *ChainSource) Run(ctx context.Context, out chan<- frontrun.TradeSignal) error {
	if s.Fills == nil || s.Markets == nil {
		return errors.New("chain source: fill stream and market resolver required")
	}
	collateral := s.Collateral
	if (collateral == common.Address{}) {
		collateral = polygonwatch.CollateralUSDC
	}
	takers := ethutil.AddressSet(s.Takers)

	fills := make(chan *polygonwatch.FillEvent, 256)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(fills)
		return s.Fills.Run(gctx, fills)
	})
	g.Go(func() error {
		return s.consume(gctx, fills, takers, collateral, out)
	})
	return g.Wait()
}

// consume groups consecutive fills of one transaction into a txRun and
// emits the run when a fill from another transaction arrives, when no fill
// arrives for TxQuiet, or when the stream ends.
func (s *ChainSource) consume(ctx context.Context, fills <-chan *polygonwatch.FillEvent, takers map[common.Address]struct{}, collateral common.Address, out chan<- frontrun.TradeSignal) error {
	quietFor := s.TxQuiet
	if quietFor <= 0 {
		quietFor = DefaultTxQuiet
	}
	quiet := time.NewTimer(quietFor)
	quiet.Stop()
	defer quiet.Stop()

	var run *txRun
	flush := func() bool {
		if run == nil {
			return true
		}
		r := run
		run = nil
		for _, leg := range r.trades {
			sig, ok := s.signalFor(ctx, leg)
			if !ok {
				continue
			}
			if !emit(ctx, out, sig) {
				return false
			}
		}
		return true
	}

	for {
		var quietC <-chan time.Time
		if run != nil {
			quietC = quiet.C
		}
		select {
		case fill, ok := <-fills:
			if !ok {
				flush()
				return nil
			}
			trade, err := polygonwatch.ClassifyTakerFill(fill, takers, collateral)
			if err != nil {
				s.Log.Warn().Err(err).Str("tx", fill.TxHash.Hex()).Uint("log_index", fill.LogIndex).Msg("unclassifiable fill")
				continue
			}
			if trade == nil {
				continue
			}
			if run != nil && run.hash != fill.TxHash && !flush() {
				return nil
			}
			if run == nil {
				run = &txRun{hash: fill.TxHash}
			}
			run.add(fill, trade)
			quiet.Reset(quietFor)
		case <-quietC:
			if !flush() {
				return nil
			}
		}
	}
}

// txRun collects the target trades of one transaction.
type txRun struct {
	hash   common.Hash
	trades []*txTrade
}

type txTrade struct {
	first *polygonwatch.FillEvent
	trade polygonwatch.TakerTrade
	legs  int
}

func (r *txRun) add(fill *polygonwatch.FillEvent, trade *polygonwatch.TakerTrade) {
	for _, t := range r.trades {
		if t.trade.Trader == trade.Trader && t.trade.TokenID == trade.TokenID && t.trade.Side == trade.Side {
			t.trade.SizeUSD = t.trade.SizeUSD.Add(trade.SizeUSD)
			t.trade.Shares = t.trade.Shares.Add(trade.Shares)
			if t.trade.Shares.IsPositive() {
				t.trade.Price = t.trade.SizeUSD.DivRound(t.trade.Shares, 4)
			}
			t.legs++
			return
		}
	}
	r.trades = append(r.trades, &txTrade{first: fill, trade: *trade, legs: 1})
}

func (s *ChainSource) signalFor(ctx context.Context, leg *txTrade) (frontrun.TradeSignal, bool) {
	fill, trade := leg.first, leg.trade
	log := s.Log.With().Str("tx", fill.TxHash.Hex()).Int("legs", leg.legs).Logger()

	tm, err := s.Markets.ResolveToken(ctx, trade.TokenID)
	if err != nil {
		log.Warn().Err(err).Str("token_id", trade.TokenID).Msg("token market lookup failed, dropping fill")
		return frontrun.TradeSignal{}, false
	}

	detectedAt := s.clock()
	if fill.ReceivedAtMs > 0 {
		detectedAt = time.UnixMilli(fill.ReceivedAtMs)
	}
	sig := frontrun.TradeSignal{
		MarketID:       tm.ConditionID,
		TokenID:        trade.TokenID,
		Outcome:        outcomeOf(tm.Outcome, tm.OutcomeIndex),
		Side:           trade.Side,
		SizeUSD:        trade.SizeUSD,
		DetectedAt:     detectedAt,
		TargetGasPrice: s.gasPrice(ctx, fill.TxHash),
		Trader:         trade.Trader,
		TxHash:         fill.TxHash,
		Source:         SourceChain,
	}
	log.Info().
		Str("trader", trade.Trader.Hex()).
		Str("side", string(sig.Side)).
		Str("size_usd", sig.SizeUSD.StringFixed(2)).
		Str("price", trade.Price.String()).
		Str("market", tm.Question).
		Msg("target fill detected")
	return sig, true
}

func (s *ChainSource) gasPrice(ctx context.Context, hash common.Hash) *big.Int {
	if s.Txs == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, gasLookupTimeout)
	defer cancel()
	tx, _, err := s.Txs.TransactionByHash(ctx, hash)
	if err != nil || tx == nil {
		s.Log.Debug().Err(err).Str("tx", hash.Hex()).Msg("gas price unavailable")
		return nil
	}
	return tx.GasPrice()
}

func (s *ChainSource) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}
