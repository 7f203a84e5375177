package eventlog

const (
	EventStart       = "start"
	EventExecution   = "execution"
	EventMonitorOnly = "monitor_only"
	EventShutdown    = "shutdown"
)

type Event struct {
	TsMs  int64  `json:"ts_ms"`
	Event string `json:"event"`

	Mode    string   `json:"mode,omitempty"` // live | monitor
	Source  string   `json:"source,omitempty"`
	Targets []string `json:"targets,omitempty"`

	// Observed trade.
	Trader    string `json:"trader,omitempty"`
	TxHash    string `json:"tx_hash,omitempty"`
	MarketID  string `json:"market_id,omitempty"`
	TokenID   string `json:"token_id,omitempty"`
	Outcome   string `json:"outcome,omitempty"`
	Side      string `json:"side,omitempty"`
	TargetUSD string `json:"target_usd,omitempty"`
	TargetGas string `json:"target_gas_wei,omitempty"`

	// Execution result.
	FrontrunUSD  string `json:"frontrun_usd,omitempty"`
	FilledUSD    string `json:"filled_usd,omitempty"`
	RemainingUSD string `json:"remaining_usd,omitempty"`
	PriorityGas  string `json:"priority_gas_wei,omitempty"`
	Orders       int    `json:"orders,omitempty"`
	Attempts     int    `json:"attempts,omitempty"`
	Result       string `json:"result,omitempty"`
	Ok           bool   `json:"ok,omitempty"`
	Err          string `json:"err,omitempty"`

	DetectLagMs int64 `json:"detect_lag_ms,omitempty"`
	DurationMs  int64 `json:"duration_ms,omitempty"`
	UptimeMs    int64 `json:"uptime_ms,omitempty"`
}

func Mode(executionEnabled bool) string {
	if executionEnabled {
		return "live"
	}
	return "monitor"
}
