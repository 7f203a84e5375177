// Command latency races the chain and RTDS signal sources against each other
// for the same target wallets and reports how much earlier each one sees a
// trade.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"poly-frontrun/internal/ethutil"
	"poly-frontrun/internal/frontrun"
	"poly-frontrun/internal/listener"
	"poly-frontrun/internal/logging"
	"poly-frontrun/internal/polygonutil"
	"poly-frontrun/internal/polygonwatch"
	"poly-frontrun/internal/rtds"
)

func main() {
	_ = godotenv.Load()

	var (
		targetsFlag = flag.String("targets", os.Getenv("TARGET_ADDRESSES"), "target wallet(s), comma separated (env: TARGET_ADDRESSES)")
		rpcFlag     = flag.String("rpc", os.Getenv("RPC_URL"), "Polygon websocket RPC (env: RPC_URL)")
		rtdsFlag    = flag.String("rtds", envOr("RTDS_URL", rtds.DefaultURL), "RTDS websocket URL (env: RTDS_URL)")
		dumpEvery   = flag.Duration("dump", 30*time.Second, "summary interval")
		duration    = flag.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
		levelFlag   = flag.String("log-level", "info", "log level")
	)
	flag.Parse()
	log := logging.New(logging.ParseLevel(*levelFlag))

	targets, err := ethutil.ParseAddressList(*targetsFlag)
	if err != nil || len(targets) == 0 {
		fmt.Fprintf(os.Stderr, "[fatal] -targets: need at least one address (%v)\n", err)
		os.Exit(2)
	}
	if err := polygonutil.ValidateRPCURL(*rpcFlag); err != nil || !strings.HasPrefix(*rpcFlag, "ws") {
		fmt.Fprintf(os.Stderr, "[fatal] -rpc: need a websocket RPC url, got %q\n", *rpcFlag)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	r := newRace()
	if err := run(ctx, log, r, targets, *rpcFlag, *rtdsFlag, *dumpEvery); err != nil &&
		!errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.Error().Err(err).Msg("latency race failed")
		dump(log, r)
		os.Exit(1)
	}
	dump(log, r)
}

func run(ctx context.Context, log zerolog.Logger, r *race, targets []common.Address, rpcURL, rtdsURL string, every time.Duration) error {
	log.Info().Str("targets", ethutil.JoinHex(targets)).Str("rpc", rpcURL).Str("rtds", rtdsURL).Msg("racing signal sources")

	fills := make(chan *polygonwatch.FillEvent, 1024)
	signals := make(chan frontrun.TradeSignal, 256)
	takers := ethutil.AddressSet(targets)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w := &polygonwatch.Watcher{URL: rpcURL, Takers: targets, Log: log.With().Str("source", sourceChain).Logger()}
		return w.Run(gctx, fills)
	})
	g.Go(func() error {
		src := &listener.RTDSSource{URL: rtdsURL, Wallets: targets, Log: log.With().Str("source", sourceRTDS).Logger()}
		return src.Run(gctx, signals)
	})
	g.Go(func() error {
		t := time.NewTicker(every)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-t.C:
				dump(log, r)
			case fill := <-fills:
				trade, err := polygonwatch.ClassifyTakerFill(fill, takers, polygonutil.USDCTokenAddress)
				if err != nil || trade == nil {
					continue
				}
				report(log, r, sourceChain, fill.TxHash, trade.Trader, time.UnixMilli(fill.ReceivedAtMs))
			case sig := <-signals:
				report(log, r, sourceRTDS, sig.TxHash, sig.Trader, sig.DetectedAt)
			}
		}
	})
	return g.Wait()
}

func report(log zerolog.Logger, r *race, source string, tx common.Hash, trader common.Address, at time.Time) {
	log.Debug().Str("source", source).Str("tx", tx.Hex()).Str("trader", trader.Hex()).Msg("sighting")
	if lead, ok := r.observe(source, tx, trader, at); ok {
		log.Info().Str("tx", tx.Hex()).Str("trader", trader.Hex()).Int64("chain_lead_ms", lead).Msg("trade seen by both sources")
	}
}

func dump(log zerolog.Logger, r *race) {
	st := summarize(r.snapshot())
	chainOnly, rtdsOnly := r.onlyIn()
	if st.n == 0 {
		log.Info().Int("chain_only", chainOnly).Int("rtds_only", rtdsOnly).Msg("no trade seen by both sources yet")
		return
	}
	log.Info().
		Int("n", st.n).
		Int("chain_first", st.chainFirst).
		Int64("min_ms", st.min).
		Int64("median_ms", st.median).
		Int64("p95_ms", st.p95).
		Int64("max_ms", st.max).
		Int("chain_only", chainOnly).
		Int("rtds_only", rtdsOnly).
		Msg("chain lead over rtds")
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
