package polygonwatch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"poly-frontrun/internal/ethutil"
)

// LogClient is the part of *ethclient.Client the watcher uses.
type LogClient interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

type DialFunc func(ctx context.Context, url string) (LogClient, error)

func DialEthclient(ctx context.Context, url string) (LogClient, error) {
	c, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Watcher streams OrderFilled logs whose taker is watched, reconnecting with
// jittered exponential backoff whenever the subscription drops.
type Watcher struct {
	URL       string
	Takers    []common.Address
	Dial      DialFunc
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Log       zerolog.Logger
}

// Run blocks until ctx is done. Decoded fills are sent to out; removed
// (reorged) logs are skipped.
func (w *Watcher) Run(ctx context.Context, out chan<- *FillEvent) error {
	if len(w.Takers) == 0 {
		return fmt.Errorf("at least one taker address required")
	}
	takerSet := ethutil.AddressSet(w.Takers)
	query := FilterQuery(w.Takers)

	for {
		client, head, err := w.dialWithBackoff(ctx)
		if err != nil {
			return nil
		}
		w.Log.Info().Uint64("head", head).Int("takers", len(w.Takers)).Msg("subscribed to OrderFilled logs")

		if err := w.session(ctx, client, query, takerSet, out); err != nil {
			w.Log.Warn().Err(err).Msg("log subscription dropped, reconnecting")
		}
		client.Close()
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (w *Watcher) session(ctx context.Context, client LogClient, q ethereum.FilterQuery, takers map[common.Address]struct{}, out chan<- *FillEvent) error {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logsCh := make(chan types.Log, 2048)
	sub, err := client.SubscribeFilterLogs(sessionCtx, q, logsCh)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			if err == nil {
				return fmt.Errorf("subscription ended")
			}
			return err
		case vLog := <-logsCh:
			if vLog.Removed || len(vLog.Topics) < 4 || vLog.Topics[0] != OrderFilledTopic {
				continue
			}
			// Fast taker filter before decoding.
			if _, ok := takers[common.BytesToAddress(vLog.Topics[3].Bytes())]; !ok {
				continue
			}
			rxMs := time.Now().UnixMilli()
			fill, err := DecodeOrderFilledLog(vLog)
			if err != nil {
				w.Log.Warn().Err(err).Str("tx", vLog.TxHash.Hex()).Msg("decode OrderFilled failed")
				continue
			}
			fill.ReceivedAtMs = rxMs
			select {
			case out <- fill:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (w *Watcher) dialWithBackoff(ctx context.Context) (LogClient, uint64, error) {
	dial := w.Dial
	if dial == nil {
		dial = DialEthclient
	}
	baseDelay, maxDelay := w.BaseDelay, w.MaxDelay
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	if maxDelay <= 0 {
		maxDelay = 30 * time.Second
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}

	delay := baseDelay
	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		client, err := dial(ctx, w.URL)
		if err == nil {
			head, headErr := client.BlockNumber(ctx)
			if headErr == nil {
				return client, head, nil
			}
			client.Close()
			err = fmt.Errorf("failed to fetch head: %w", headErr)
		}

		wait := jitterDuration(delay)
		w.Log.Warn().Err(err).Dur("retry_in", wait).Msg("polygon ws connect failed")
		if err := sleepWithContext(ctx, wait); err != nil {
			return nil, 0, err
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

// jitterDuration spreads d by ±20%.
func jitterDuration(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	j := int64(d) / 5
	if j <= 0 {
		return d
	}
	return time.Duration(int64(d) + rand.Int64N(2*j+1) - j)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
