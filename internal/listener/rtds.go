package listener

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"poly-frontrun/internal/ethutil"
	"poly-frontrun/internal/frontrun"
	"poly-frontrun/internal/rtds"
)

type streamFunc func(ctx context.Context, url string, subs []rtds.Subscription, opts rtds.Options) <-chan rtds.Message

// RTDSSource emits a signal for every public trade made by a target proxy
// wallet on the real-time data socket.
type RTDSSource struct {
	URL     string
	Wallets []common.Address
	Options rtds.Options
	Log     zerolog.Logger

	start streamFunc
	now   func() time.Time
}

func (s *RTDSSource) Run(ctx context.Context, out chan<- frontrun.TradeSignal) error {
	if len(s.Wallets) == 0 {
		return errors.New("rtds source: at least one wallet required")
	}
	start := s.start
	if start == nil {
		start = rtds.Start
	}
	opts := s.Options
	opts.Log = s.Log
	wallets := ethutil.AddressSet(s.Wallets)

	for m := range start(ctx, s.URL, []rtds.Subscription{rtds.ActivityTrades()}, opts) {
		tr, err := rtds.DecodeTrade(m)
		if err != nil {
			s.Log.Debug().Err(err).Msg("rtds trade skipped")
			continue
		}
		if tr == nil || !common.IsHexAddress(tr.ProxyWallet) {
			continue
		}
		trader := common.HexToAddress(tr.ProxyWallet)
		if _, ok := wallets[trader]; !ok {
			continue
		}
		sig, ok := s.signalFor(tr, trader)
		if !ok {
			continue
		}
		if !emit(ctx, out, sig) {
			return nil
		}
	}
	return nil
}

func (s *RTDSSource) signalFor(tr *rtds.Trade, trader common.Address) (frontrun.TradeSignal, bool) {
	side := frontrun.Side(strings.ToUpper(tr.Side))
	if !side.Valid() {
		s.Log.Warn().Str("side", tr.Side).Str("tx", tr.TransactionHash).Msg("rtds trade with unknown side")
		return frontrun.TradeSignal{}, false
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	sig := frontrun.TradeSignal{
		MarketID:   tr.ConditionID,
		TokenID:    tr.Asset,
		Outcome:    outcomeOf(tr.Outcome, tr.OutcomeIndex),
		Side:       side,
		SizeUSD:    tr.NotionalUSD(),
		DetectedAt: now(),
		Trader:     trader,
		TxHash:     common.HexToHash(tr.TransactionHash),
		Source:     SourceRTDS,
	}
	s.Log.Info().
		Str("trader", trader.Hex()).
		Str("side", string(sig.Side)).
		Str("size_usd", sig.SizeUSD.StringFixed(2)).
		Str("market", tr.Title).
		Msg("target trade detected")
	return sig, true
}
