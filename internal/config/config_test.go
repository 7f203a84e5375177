package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func baseEnv() map[string]string {
	return map[string]string{
		"TARGET_ADDRESSES": "0x1111111111111111111111111111111111111111",
		"PRIVATE_KEY":      testKey,
		"RPC_URL":          "wss://polygon.example/ws",
	}
}

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil, lookupFrom(baseEnv()))
	require.NoError(t, err)

	assert.Len(t, cfg.TargetAddresses, 1)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), cfg.Signer)
	assert.Equal(t, cfg.Signer, cfg.Funder)
	assert.Nil(t, cfg.APICreds)
	assert.Equal(t, SignalSourceChain, cfg.SignalSource)
	assert.Equal(t, "100", cfg.MinTradeSizeUSD.String())
	assert.Equal(t, "0.5", cfg.FrontrunSizeMultiplier.String())
	assert.Equal(t, "1.2", cfg.GasPriceMultiplier.String())
	assert.Equal(t, "0.1", cfg.MinPOLBalance.String())
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.BalanceCacheTTL)
	assert.Equal(t, 30*time.Second, cfg.DedupRetention)
	assert.True(t, cfg.TradeExecutionEnabled)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.Equal(t, "./out/frontrun.jsonl", cfg.EventLogFile)
	assert.Equal(t, time.Second, cfg.FetchInterval)
	assert.Equal(t, "https://data-api.polymarket.com", cfg.DataAPIURL)

	ec := cfg.Engine()
	assert.Equal(t, 3, ec.Walker.MaxRetries)
	assert.Equal(t, "1", ec.Walker.MinRemaining.String())
	assert.True(t, ec.ExecutionEnabled)
}

func TestParse_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frontrun.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
min_trade_size_usd: 250
frontrun_size_multiplier: 0.25
max_retries: 5
target_addresses:
  - "0x2222222222222222222222222222222222222222"
  - "0x3333333333333333333333333333333333333333"
log_level: warn
`), 0o644))

	env := baseEnv()
	delete(env, "TARGET_ADDRESSES")
	env["CONFIG_FILE"] = path
	env["MAX_RETRIES"] = "7"
	env["LOG_LEVEL"] = "error"

	cfg, err := Parse([]string{"-log-level", "debug", "-monitor-only"}, lookupFrom(env))
	require.NoError(t, err)

	assert.Equal(t, "250", cfg.MinTradeSizeUSD.String(), "yaml over default")
	assert.Equal(t, "0.25", cfg.FrontrunSizeMultiplier.String())
	assert.Len(t, cfg.TargetAddresses, 2, "yaml list")
	assert.Equal(t, 7, cfg.MaxRetries, "env over yaml")
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel, "flag over env")
	assert.False(t, cfg.TradeExecutionEnabled)
}

func TestParse_RetryLimitAlias(t *testing.T) {
	env := baseEnv()
	env["RETRY_LIMIT"] = "6"
	cfg, err := Parse(nil, lookupFrom(env))
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.MaxRetries)

	env["MAX_RETRIES"] = "4"
	cfg, err = Parse(nil, lookupFrom(env))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.MaxRetries, "current key wins")

	env = baseEnv()
	env["RETRY_LIMIT"] = "11"
	_, err = Parse(nil, lookupFrom(env))
	require.ErrorContains(t, err, "MAX_RETRIES")
}

func TestParse_DebugForcesDebugLevel(t *testing.T) {
	env := baseEnv()
	env["VERBOSE"] = "1"
	cfg, err := Parse(nil, lookupFrom(env))
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel)
}

func TestParse_APICredsAndFunder(t *testing.T) {
	env := baseEnv()
	env["PUBLIC_KEY"] = "0x4444444444444444444444444444444444444444"
	env["POLYMARKET_API_KEY"] = "k"
	env["POLYMARKET_API_SECRET"] = "s"
	env["POLYMARKET_API_PASSPHRASE"] = "p"
	cfg, err := Parse(nil, lookupFrom(env))
	require.NoError(t, err)
	require.NotNil(t, cfg.APICreds)
	assert.Equal(t, "k", cfg.APICreds.Key)
	assert.Equal(t, common.HexToAddress("0x4444444444444444444444444444444444444444"), cfg.Funder)

	delete(env, "POLYMARKET_API_PASSPHRASE")
	_, err = Parse(nil, lookupFrom(env))
	require.ErrorContains(t, err, "must be set together")
}

func TestParse_Validation(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"missing targets", "TARGET_ADDRESSES", "", "at least one trader address"},
		{"bad target", "TARGET_ADDRESSES", "0x123", "invalid hex address"},
		{"bad key", "PRIVATE_KEY", "0xabc", "64 hex characters"},
		{"bad rpc", "RPC_URL", "ftp://node", "ws(s)"},
		{"http rpc for chain source", "RPC_URL", "https://polygon.example", "websocket RPC_URL"},
		{"bad source", "SIGNAL_SOURCE", "mempool", "SIGNAL_SOURCE"},
		{"size multiplier zero", "FRONTRUN_SIZE_MULTIPLIER", "0", "greater than 0"},
		{"size multiplier above one", "FRONTRUN_SIZE_MULTIPLIER", "1.5", "between 0 and 1"},
		{"gas multiplier", "GAS_PRICE_MULTIPLIER", "0.9", "between 1 and 5"},
		{"min trade size", "MIN_TRADE_SIZE_USD", "-1", "MIN_TRADE_SIZE_USD"},
		{"retries", "MAX_RETRIES", "11", "between 1 and 10"},
		{"signature type", "SIGNATURE_TYPE", "3", "SIGNATURE_TYPE"},
		{"ttl", "BALANCE_CACHE_TTL", "0s", "positive"},
		{"retention", "DEDUP_RETENTION", "soon", "duration"},
		{"execution flag", "TRADE_EXECUTION_ENABLED", "maybe", "true or false"},
		{"usdc", "USDC_CONTRACT_ADDRESS", "usdc", "USDC_CONTRACT_ADDRESS"},
		{"log level", "LOG_LEVEL", "loud", "LOG_LEVEL"},
		{"clob scheme", "CLOB_URL", "ws://clob", "CLOB_URL"},
		{"rtds scheme", "RTDS_URL", "https://rtds", "RTDS_URL"},
		{"data api scheme", "DATA_API_URL", "wss://data", "DATA_API_URL"},
		{"fetch interval too fast", "FETCH_INTERVAL", "0.05", "between 0.1 and 60"},
		{"fetch interval too slow", "FETCH_INTERVAL", "2m", "between 0.1 and 60"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := baseEnv()
			env[tc.key] = tc.val
			_, err := Parse(nil, lookupFrom(env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestParse_RTDSAllowsHTTPRPC(t *testing.T) {
	env := baseEnv()
	env["RPC_URL"] = "https://polygon.example"
	env["SIGNAL_SOURCE"] = "RTDS"
	env["BALANCE_CACHE_TTL"] = "2.5"
	cfg, err := Parse(nil, lookupFrom(env))
	require.NoError(t, err)
	assert.Equal(t, SignalSourceRTDS, cfg.SignalSource)
	assert.Equal(t, 2500*time.Millisecond, cfg.BalanceCacheTTL)
}

func TestParse_PollSource(t *testing.T) {
	env := baseEnv()
	env["RPC_URL"] = "https://polygon.example"
	env["FETCH_INTERVAL"] = "0.5"
	cfg, err := Parse([]string{"-signal-source", "poll"}, lookupFrom(env))
	require.NoError(t, err)
	assert.Equal(t, SignalSourcePoll, cfg.SignalSource)
	assert.Equal(t, 500*time.Millisecond, cfg.FetchInterval)
}

func TestParse_ReportsAllErrors(t *testing.T) {
	_, err := Parse(nil, lookupFrom(map[string]string{}))
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{"TARGET_ADDRESSES", "PRIVATE_KEY", "RPC_URL"} {
		assert.True(t, strings.Contains(msg, want), "missing %s in %q", want, msg)
	}
}

func TestParse_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  retries: 3\n"), 0o644))
	_, err := Parse([]string{"-config", path}, lookupFrom(baseEnv()))
	require.ErrorContains(t, err, "nested mappings")

	_, err = Parse([]string{"-config", filepath.Join(t.TempDir(), "missing.yaml")}, lookupFrom(baseEnv()))
	require.ErrorContains(t, err, "open config")
}
