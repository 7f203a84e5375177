package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"poly-frontrun/internal/clob"
	"poly-frontrun/internal/config"
	"poly-frontrun/internal/dataapi"
	"poly-frontrun/internal/ethutil"
	"poly-frontrun/internal/eventlog"
	"poly-frontrun/internal/exchange"
	"poly-frontrun/internal/frontrun"
	"poly-frontrun/internal/gamma"
	"poly-frontrun/internal/listener"
	"poly-frontrun/internal/logging"
	"poly-frontrun/internal/metrics"
	"poly-frontrun/internal/polygonutil"
	"poly-frontrun/internal/polygonwatch"
)

const signalBuffer = 256

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "[fatal] config: %v\n", err)
		os.Exit(2)
	}
	log := logging.New(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("frontrun stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	startedAt := time.Now()

	events := eventlog.New(cfg.EventLogFile)
	defer func() {
		if err := events.Close(); err != nil {
			log.Warn().Err(err).Msg("event log close")
		}
	}()

	if cfg.MetricsAddr != "" {
		srv, serveErrs, err := metrics.Serve(cfg.MetricsAddr)
		if err != nil {
			return err
		}
		log.Info().Str("addr", srv.Addr).Msg("metrics listening")
		go func() {
			for err := range serveErrs {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	eth, err := ethclient.DialContext(dialCtx, cfg.RPCURL)
	cancel()
	if err != nil {
		return fmt.Errorf("dial polygon rpc: %w", err)
	}
	defer eth.Close()

	funderBalances, err := polygonutil.NewBalances(eth, cfg.Funder, cfg.USDCAddress)
	if err != nil {
		return err
	}
	// USDC sits on the funder; the signing key pays gas.
	balances := funderBalances.WithGasOwner(cfg.Signer)
	logStartupBalances(ctx, log, balances, cfg)

	clobClient, err := clob.NewClient(cfg.CLOBURL, config.PolygonChainID, cfg.PrivateKey, cfg.Funder, cfg.SignatureType)
	if err != nil {
		return err
	}
	if err := ensureAPICreds(ctx, log, clobClient, cfg); err != nil {
		return err
	}

	source, err := newSource(cfg, eth, log)
	if err != nil {
		return err
	}

	engine := frontrun.NewEngine(cfg.Engine(), exchange.New(clobClient, true), balances, log, events)

	mode := eventlog.Mode(cfg.TradeExecutionEnabled)
	log.Info().
		Str("mode", mode).
		Str("source", cfg.SignalSource).
		Str("signer", cfg.Signer.Hex()).
		Str("funder", cfg.Funder.Hex()).
		Str("targets", ethutil.JoinHex(cfg.TargetAddresses)).
		Str("min_trade_usd", cfg.MinTradeSizeUSD.String()).
		Str("size_multiplier", cfg.FrontrunSizeMultiplier.String()).
		Str("event_log", events.Path()).
		Msg("frontrun starting")
	record(log, events, eventlog.Event{
		Event:   eventlog.EventStart,
		Mode:    mode,
		Source:  cfg.SignalSource,
		Targets: ethutil.HexStrings(cfg.TargetAddresses),
	})

	signals := make(chan frontrun.TradeSignal, signalBuffer)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(signals)
		return source.Run(gctx, signals)
	})
	g.Go(func() error {
		return engine.Run(gctx, signals)
	})
	err = g.Wait()

	// In-flight pipelines are not awaited; they may still be submitting.
	inFlight := engine.InFlight()
	log.Info().Int64("in_flight", inFlight).Dur("uptime", time.Since(startedAt)).Msg("frontrun shutting down")
	ev := eventlog.Event{Event: eventlog.EventShutdown, Mode: mode, UptimeMs: time.Since(startedAt).Milliseconds()}
	if err != nil {
		ev.Err = err.Error()
	}
	record(log, events, ev)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newSource(cfg *config.Config, eth *ethclient.Client, log zerolog.Logger) (listener.Source, error) {
	log = log.With().Str("component", "listener").Str("source", cfg.SignalSource).Logger()
	switch cfg.SignalSource {
	case config.SignalSourceRTDS:
		return &listener.RTDSSource{
			URL:     cfg.RTDSURL,
			Wallets: cfg.TargetAddresses,
			Log:     log,
		}, nil
	case config.SignalSourcePoll:
		activity, err := dataapi.NewClient(cfg.DataAPIURL)
		if err != nil {
			return nil, err
		}
		return &listener.PollSource{
			Activity: activity,
			Wallets:  cfg.TargetAddresses,
			Interval: cfg.FetchInterval,
			Log:      log,
		}, nil
	case config.SignalSourceChain:
		markets, err := gamma.NewClient(cfg.GammaURL)
		if err != nil {
			return nil, err
		}
		return &listener.ChainSource{
			Fills: &polygonwatch.Watcher{
				URL:    cfg.RPCURL,
				Takers: cfg.TargetAddresses,
				Log:    log,
			},
			Takers:     cfg.TargetAddresses,
			Collateral: cfg.USDCAddress,
			Markets:    markets,
			Txs:        eth,
			Log:        log,
		}, nil
	default:
		return nil, fmt.Errorf("unknown signal source %q", cfg.SignalSource)
	}
}

func ensureAPICreds(ctx context.Context, log zerolog.Logger, c *clob.Client, cfg *config.Config) error {
	if cfg.APICreds != nil {
		c.SetApiCreds(*cfg.APICreds)
		return nil
	}
	credCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	creds, err := c.CreateOrDeriveApiKey(credCtx, 0, true)
	if err != nil {
		if !cfg.TradeExecutionEnabled {
			log.Warn().Err(err).Msg("api key derivation failed; continuing in monitor mode")
			return nil
		}
		return fmt.Errorf("derive api key: %w", err)
	}
	c.SetApiCreds(creds)
	log.Info().Str("api_key", creds.Key).Msg("derived clob api key")
	return nil
}

func logStartupBalances(ctx context.Context, log zerolog.Logger, b *polygonutil.Balances, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	usdc, err := b.QuoteBalance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("startup usdc balance unavailable")
	}
	pol, err := b.GasBalance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("startup pol balance unavailable")
		return
	}
	log.Info().
		Str("owner", b.Owner().Hex()).
		Str("gas_owner", b.GasOwner().Hex()).
		Str("usdc", usdc.StringFixed(2)).
		Str("pol", pol.StringFixed(4)).
		Msg("wallet balances")
	if pol.LessThan(cfg.MinPOLBalance) {
		log.Warn().
			Str("pol", pol.String()).
			Str("min_pol", cfg.MinPOLBalance.String()).
			Msg("low POL balance; executions will be rejected until topped up")
	}
}

func record(log zerolog.Logger, events *eventlog.Writer, ev eventlog.Event) {
	if err := events.Record(ev); err != nil {
		log.Warn().Err(err).Str("event", ev.Event).Msg("event log write failed")
	}
}
