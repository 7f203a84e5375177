// Package config loads the frontrun service configuration.
//
// Values are layered: built-in defaults, then an optional YAML file, then the
// process environment (after loading .env), then command-line flags. Every
// layer is keyed by the environment variable name; YAML keys may be written in
// lower case.
package config

import (
	"crypto/ecdsa"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"poly-frontrun/internal/clob"
	"poly-frontrun/internal/dataapi"
	"poly-frontrun/internal/ethutil"
	"poly-frontrun/internal/frontrun"
	"poly-frontrun/internal/gamma"
	"poly-frontrun/internal/polygonutil"
	"poly-frontrun/internal/rtds"
)

const (
	SignalSourceChain = "chain"
	SignalSourceRTDS  = "rtds"
	SignalSourcePoll  = "poll"
)

// PolygonChainID is Polygon mainnet.
const PolygonChainID = 137

var defaults = map[string]string{
	"CLOB_URL":                 clob.DefaultHost,
	"GAMMA_URL":                gamma.DefaultURL,
	"RTDS_URL":                 rtds.DefaultURL,
	"DATA_API_URL":             dataapi.DefaultURL,
	"FETCH_INTERVAL":           "1",
	"SIGNAL_SOURCE":            SignalSourceChain,
	"SIGNATURE_TYPE":           "0",
	"MIN_TRADE_SIZE_USD":       "100",
	"FRONTRUN_SIZE_MULTIPLIER": "0.5",
	"GAS_PRICE_MULTIPLIER":     "1.2",
	"MIN_POL_BALANCE":          "0.1",
	"MAX_RETRIES":              "3",
	"BALANCE_CACHE_TTL":        "5s",
	"DEDUP_RETENTION":          "30s",
	"MIN_REMAINING_USD":        "1",
	"TRADE_EXECUTION_ENABLED":  "true",
	"USDC_CONTRACT_ADDRESS":    polygonutil.USDCTokenAddress.Hex(),
	"LOG_LEVEL":                "info",
	"EVENT_LOG_FILE":           "./out/frontrun.jsonl",
}

// Keys lists every recognised setting.
var Keys = []string{
	"TARGET_ADDRESSES", "PRIVATE_KEY", "PUBLIC_KEY", "RPC_URL",
	"CLOB_URL", "GAMMA_URL", "RTDS_URL", "DATA_API_URL", "SIGNAL_SOURCE", "SIGNATURE_TYPE",
	"FETCH_INTERVAL",
	"POLYMARKET_API_KEY", "POLYMARKET_API_SECRET", "POLYMARKET_API_PASSPHRASE",
	"MIN_TRADE_SIZE_USD", "FRONTRUN_SIZE_MULTIPLIER", "GAS_PRICE_MULTIPLIER",
	"MIN_POL_BALANCE", "MAX_RETRIES", "BALANCE_CACHE_TTL", "DEDUP_RETENTION",
	"MIN_REMAINING_USD", "TRADE_EXECUTION_ENABLED", "USDC_CONTRACT_ADDRESS",
	"LOG_LEVEL", "DEBUG", "VERBOSE", "METRICS_ADDR", "EVENT_LOG_FILE",
}

// aliases maps older key names onto their current key. The current key wins
// when both are set.
var aliases = map[string]string{
	"RETRY_LIMIT": "MAX_RETRIES",
}

type Config struct {
	TargetAddresses []common.Address

	PrivateKey *ecdsa.PrivateKey
	Signer     common.Address
	// Funder holds the collateral; it is the proxy wallet when PUBLIC_KEY is set.
	Funder        common.Address
	SignatureType int
	// APICreds is nil when the credentials should be derived at startup.
	APICreds *clob.ApiKeyCreds

	RPCURL       string
	CLOBURL      string
	GammaURL     string
	RTDSURL      string
	DataAPIURL   string
	SignalSource string
	// FetchInterval paces the poll source.
	FetchInterval time.Duration
	USDCAddress  common.Address

	MinTradeSizeUSD        decimal.Decimal
	FrontrunSizeMultiplier decimal.Decimal
	GasPriceMultiplier     decimal.Decimal
	MinPOLBalance          decimal.Decimal
	MinRemainingUSD        decimal.Decimal
	MaxRetries             int
	BalanceCacheTTL        time.Duration
	DedupRetention         time.Duration
	TradeExecutionEnabled  bool

	LogLevel     zerolog.Level
	MetricsAddr  string
	EventLogFile string
}

// Engine maps the settings onto the execution engine's configuration.
func (c *Config) Engine() frontrun.Config {
	return frontrun.Config{
		SizeMultiplier:     c.FrontrunSizeMultiplier,
		GasPriceMultiplier: c.GasPriceMultiplier,
		MinGasBalance:      c.MinPOLBalance,
		MinTradeSizeUSD:    c.MinTradeSizeUSD,
		ExecutionEnabled:   c.TradeExecutionEnabled,
		BalanceTTL:         c.BalanceCacheTTL,
		DedupRetention:     c.DedupRetention,
		Walker: frontrun.WalkerConfig{
			MaxRetries:   c.MaxRetries,
			MinRemaining: c.MinRemainingUSD,
		},
	}
}

// Load reads .env (if present) into the environment and resolves the
// configuration for the given command-line arguments.
func Load(args []string) (*Config, error) {
	envFile := ".env"
	for i, a := range args {
		if v, ok := strings.CutPrefix(a, "-env-file="); ok {
			envFile = v
		} else if v, ok := strings.CutPrefix(a, "--env-file="); ok {
			envFile = v
		} else if (a == "-env-file" || a == "--env-file") && i+1 < len(args) {
			envFile = args[i+1]
		}
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	return Parse(args, os.LookupEnv)
}

// Parse resolves the configuration from flags, lookup (the environment) and
// the YAML file named by -config or CONFIG_FILE.
func Parse(args []string, lookup func(string) (string, bool)) (*Config, error) {
	fs := flag.NewFlagSet("frontrun", flag.ContinueOnError)
	var (
		configFile  = fs.String("config", "", "YAML config file (env: CONFIG_FILE)")
		_           = fs.String("env-file", ".env", "dotenv file loaded before reading the environment")
		logLevel    = fs.String("log-level", "", "log level: debug, info, warn, error")
		metricsAddr = fs.String("metrics-addr", "", "serve prometheus metrics on this address")
		eventLog    = fs.String("event-log", "", "JSONL execution log path (empty disables)")
		source      = fs.String("signal-source", "", "signal source: chain, rtds or poll")
		monitorOnly = fs.Bool("monitor-only", false, "log signals without trading")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	values := make(map[string]string, len(defaults))
	for k, v := range defaults {
		values[k] = v
	}

	path := *configFile
	if path == "" {
		path, _ = lookup("CONFIG_FILE")
	}
	if path != "" {
		fileValues, err := readYAML(path)
		if err != nil {
			return nil, err
		}
		for alias, key := range aliases {
			if _, ok := fileValues[key]; !ok && fileValues[alias] != "" {
				fileValues[key] = fileValues[alias]
			}
		}
		for k, v := range fileValues {
			values[k] = v
		}
	}

	for _, k := range Keys {
		if v, ok := lookup(k); ok {
			values[k] = v
		}
	}
	for alias, key := range aliases {
		if _, ok := lookup(key); ok {
			continue
		}
		if v, ok := lookup(alias); ok {
			values[key] = v
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "log-level":
			values["LOG_LEVEL"] = *logLevel
		case "metrics-addr":
			values["METRICS_ADDR"] = *metricsAddr
		case "event-log":
			values["EVENT_LOG_FILE"] = *eventLog
		case "signal-source":
			values["SIGNAL_SOURCE"] = *source
		case "monitor-only":
			values["TRADE_EXECUTION_ENABLED"] = strconv.FormatBool(!*monitorOnly)
		}
	})

	return fromValues(values)
}

// readYAML flattens a YAML mapping of scalars (and lists, joined by commas)
// into upper-case keys.
func readYAML(path string) (map[string]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		key := strings.ToUpper(strings.TrimSpace(k))
		switch val := v.(type) {
		case nil:
			continue
		case []any:
			parts := make([]string, 0, len(val))
			for _, p := range val {
				parts = append(parts, fmt.Sprint(p))
			}
			out[key] = strings.Join(parts, ",")
		case map[string]any:
			return nil, fmt.Errorf("config %s: nested mappings are not supported", k)
		default:
			out[key] = fmt.Sprint(val)
		}
	}
	return out, nil
}

func fromValues(v map[string]string) (*Config, error) {
	var errs []error
	fail := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }
	get := func(k string) string { return strings.TrimSpace(v[k]) }

	cfg := &Config{
		CLOBURL:      get("CLOB_URL"),
		GammaURL:     get("GAMMA_URL"),
		RTDSURL:      get("RTDS_URL"),
		DataAPIURL:   get("DATA_API_URL"),
		RPCURL:       get("RPC_URL"),
		SignalSource: strings.ToLower(get("SIGNAL_SOURCE")),
		MetricsAddr:  get("METRICS_ADDR"),
		EventLogFile: get("EVENT_LOG_FILE"),
	}

	targets, err := ethutil.ParseAddressList(get("TARGET_ADDRESSES"))
	switch {
	case err != nil:
		fail("TARGET_ADDRESSES: %w", err)
	case len(targets) == 0:
		fail("TARGET_ADDRESSES must contain at least one trader address")
	}
	cfg.TargetAddresses = targets

	pk, signer, err := ethutil.ParsePrivateKey(get("PRIVATE_KEY"))
	if err != nil {
		fail("PRIVATE_KEY: %w", err)
	}
	cfg.PrivateKey, cfg.Signer, cfg.Funder = pk, signer, signer
	if s := get("PUBLIC_KEY"); s != "" {
		if !common.IsHexAddress(s) {
			fail("invalid PUBLIC_KEY address format: %s", s)
		} else {
			cfg.Funder = common.HexToAddress(s)
		}
	}

	if err := polygonutil.ValidateRPCURL(cfg.RPCURL); err != nil {
		fail("%w", err)
	}
	checkURL := func(key, raw string, schemes ...string) {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			fail("invalid %s: %q", key, raw)
			return
		}
		for _, s := range schemes {
			if u.Scheme == s {
				return
			}
		}
		fail("%s must use %s, got %q", key, strings.Join(schemes, "/"), raw)
	}
	checkURL("CLOB_URL", cfg.CLOBURL, "http", "https")
	checkURL("GAMMA_URL", cfg.GammaURL, "http", "https")
	checkURL("RTDS_URL", cfg.RTDSURL, "ws", "wss")
	checkURL("DATA_API_URL", cfg.DataAPIURL, "http", "https")

	switch cfg.SignalSource {
	case SignalSourceChain:
		if cfg.RPCURL != "" && !strings.HasPrefix(cfg.RPCURL, "ws") {
			fail("SIGNAL_SOURCE=chain needs a websocket RPC_URL, got %q", cfg.RPCURL)
		}
	case SignalSourceRTDS, SignalSourcePoll:
	default:
		fail("SIGNAL_SOURCE must be %q, %q or %q, got %q", SignalSourceChain, SignalSourceRTDS, SignalSourcePoll, cfg.SignalSource)
	}

	cfg.FetchInterval = positiveDuration(get("FETCH_INTERVAL"), "FETCH_INTERVAL", fail)
	if cfg.FetchInterval != 0 && (cfg.FetchInterval < 100*time.Millisecond || cfg.FetchInterval > time.Minute) {
		fail("FETCH_INTERVAL must be between 0.1 and 60 seconds, got %s", cfg.FetchInterval)
	}

	cfg.SignatureType = intIn(get("SIGNATURE_TYPE"), 0, 2, "SIGNATURE_TYPE", fail)
	cfg.MaxRetries = intIn(get("MAX_RETRIES"), 1, 10, "MAX_RETRIES", fail)

	key, secret, pass := get("POLYMARKET_API_KEY"), get("POLYMARKET_API_SECRET"), get("POLYMARKET_API_PASSPHRASE")
	switch {
	case key != "" && secret != "" && pass != "":
		cfg.APICreds = &clob.ApiKeyCreds{Key: key, Secret: secret, Passphrase: pass}
	case key != "" || secret != "" || pass != "":
		fail("POLYMARKET_API_KEY, POLYMARKET_API_SECRET and POLYMARKET_API_PASSPHRASE must be set together")
	}

	one, five, million := decimal.NewFromInt(1), decimal.NewFromInt(5), decimal.NewFromInt(1_000_000)
	cfg.MinTradeSizeUSD = decimalIn(get("MIN_TRADE_SIZE_USD"), "MIN_TRADE_SIZE_USD", fail, decimal.Zero, &million)
	cfg.FrontrunSizeMultiplier = decimalIn(get("FRONTRUN_SIZE_MULTIPLIER"), "FRONTRUN_SIZE_MULTIPLIER", fail, decimal.Zero, &one)
	if cfg.FrontrunSizeMultiplier.IsZero() {
		fail("FRONTRUN_SIZE_MULTIPLIER must be greater than 0")
	}
	cfg.GasPriceMultiplier = decimalIn(get("GAS_PRICE_MULTIPLIER"), "GAS_PRICE_MULTIPLIER", fail, one, &five)
	cfg.MinPOLBalance = decimalIn(get("MIN_POL_BALANCE"), "MIN_POL_BALANCE", fail, decimal.Zero, nil)
	cfg.MinRemainingUSD = decimalIn(get("MIN_REMAINING_USD"), "MIN_REMAINING_USD", fail, decimal.Zero, nil)

	cfg.BalanceCacheTTL = positiveDuration(get("BALANCE_CACHE_TTL"), "BALANCE_CACHE_TTL", fail)
	cfg.DedupRetention = positiveDuration(get("DEDUP_RETENTION"), "DEDUP_RETENTION", fail)

	enabled, err := strconv.ParseBool(get("TRADE_EXECUTION_ENABLED"))
	if err != nil {
		fail("TRADE_EXECUTION_ENABLED must be true or false, got %q", get("TRADE_EXECUTION_ENABLED"))
	}
	cfg.TradeExecutionEnabled = enabled

	if s := get("USDC_CONTRACT_ADDRESS"); !common.IsHexAddress(s) {
		fail("invalid USDC_CONTRACT_ADDRESS format: %s", s)
	} else {
		cfg.USDCAddress = common.HexToAddress(s)
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(get("LOG_LEVEL")))
	if err != nil {
		fail("LOG_LEVEL: %w", err)
	}
	if truthy(get("DEBUG")) || truthy(get("VERBOSE")) {
		lvl = zerolog.DebugLevel
	}
	cfg.LogLevel = lvl

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func intIn(raw string, lo, hi int, name string, fail func(string, ...any)) int {
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		fail("%s must be between %d and %d, got %q", name, lo, hi, raw)
	}
	return n
}

// decimalIn parses raw and checks lo <= value <= hi. A nil hi means no upper
// bound. Unparseable input yields zero.
func decimalIn(raw, name string, fail func(string, ...any), lo decimal.Decimal, hi *decimal.Decimal) decimal.Decimal {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		fail("%s must be a number, got %q", name, raw)
		return decimal.Zero
	}
	switch {
	case hi == nil && d.LessThan(lo):
		fail("%s must be at least %s, got %s", name, lo, d)
	case hi != nil && (d.LessThan(lo) || d.GreaterThan(*hi)):
		fail("%s must be between %s and %s, got %s", name, lo, hi, d)
	}
	return d
}

// positiveDuration accepts Go durations ("5s") or a bare number of seconds.
func positiveDuration(raw, name string, fail func(string, ...any)) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, ferr := strconv.ParseFloat(raw, 64)
		if ferr != nil {
			fail("%s must be a duration, got %q", name, raw)
			return 0
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d <= 0 {
		fail("%s must be positive, got %s", name, raw)
	}
	return d
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
