package listener

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"poly-frontrun/internal/dataapi"
	"poly-frontrun/internal/frontrun"
)

const (
	DefaultPollInterval = time.Second
	pollPageSize        = 100
	// Rows this far behind the cursor can no longer be returned by a poll.
	seenHorizon = 60
)

type ActivityReader interface {
	GetActivity(ctx context.Context, params dataapi.ActivityParams) ([]dataapi.Activity, error)
}

// PollSource polls each target wallet's trade activity. The first poll only
// records what already happened; later polls emit rows not seen before.
type PollSource struct {
	Activity ActivityReader
	Wallets  []common.Address
	Interval time.Duration
	Log      zerolog.Logger

	now func() time.Time
}

type walletCursor struct {
	primed bool
	since  int64
	seen   map[string]int64
}

func (s *PollSource) Run(ctx context.Context, out chan<- frontrun.TradeSignal) error {
	if s.Activity == nil || len(s.Wallets) == 0 {
		return errors.New("poll source: activity reader and at least one wallet required")
	}
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	cursors := make(map[common.Address]*walletCursor, len(s.Wallets))
	for _, w := range s.Wallets {
		cursors[w] = &walletCursor{seen: make(map[string]int64)}
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		for _, w := range s.Wallets {
			if !s.pollWallet(ctx, w, cursors[w], out) {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

// pollWallet reports false once ctx is done.
func (s *PollSource) pollWallet(ctx context.Context, wallet common.Address, cur *walletCursor, out chan<- frontrun.TradeSignal) bool {
	rows, err := s.Activity.GetActivity(ctx, dataapi.ActivityParams{
		User:  strings.ToLower(wallet.Hex()),
		Type:  dataapi.ActivityTrade,
		Start: cur.since,
		Limit: pollPageSize,
	})
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		s.Log.Warn().Err(err).Str("wallet", wallet.Hex()).Msg("activity poll failed")
		return true
	}

	// Rows arrive newest first; emit in trade order.
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		key := row.Key()
		if _, ok := cur.seen[key]; ok {
			continue
		}
		cur.seen[key] = row.Timestamp
		if row.Timestamp > cur.since {
			cur.since = row.Timestamp
		}
		if !cur.primed {
			continue
		}
		sig, ok := s.signalFor(row, wallet)
		if !ok {
			continue
		}
		if !emit(ctx, out, sig) {
			return false
		}
	}
	if !cur.primed {
		cur.primed = true
		s.Log.Info().Str("wallet", wallet.Hex()).Int("history", len(rows)).Int64("since", cur.since).Msg("activity cursor primed")
	}
	for k, ts := range cur.seen {
		if ts < cur.since-seenHorizon {
			delete(cur.seen, k)
		}
	}
	return true
}

func (s *PollSource) signalFor(row dataapi.Activity, wallet common.Address) (frontrun.TradeSignal, bool) {
	side := frontrun.Side(strings.ToUpper(strings.TrimSpace(row.Side)))
	if !side.Valid() || row.Asset == "" {
		s.Log.Warn().Str("side", row.Side).Str("tx", row.TransactionHash).Msg("activity row skipped")
		return frontrun.TradeSignal{}, false
	}
	size := row.USDCSize
	if !size.IsPositive() {
		size = row.Size.Mul(row.Price)
	}
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	sig := frontrun.TradeSignal{
		MarketID:   row.ConditionID,
		TokenID:    row.Asset,
		Outcome:    outcomeOf(row.Outcome, row.OutcomeIndex),
		Side:       side,
		SizeUSD:    size,
		DetectedAt: now(),
		Trader:     wallet,
		TxHash:     common.HexToHash(row.TransactionHash),
		Source:     SourcePoll,
	}
	s.Log.Info().
		Str("trader", wallet.Hex()).
		Str("side", string(side)).
		Str("size_usd", size.StringFixed(2)).
		Int64("trade_ts", row.Timestamp).
		Str("market", row.Title).
		Msg("target trade detected")
	return sig, true
}
