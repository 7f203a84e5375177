// Package metrics exposes prometheus collectors for the frontrun engine.
package metrics

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "frontrun_signals_total", Help: "Trade signals seen by the dispatcher, by result"},
		[]string{"result"},
	)
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "frontrun_executions_total", Help: "Finished execution pipelines, by outcome"},
		[]string{"outcome"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "frontrun_orders_total", Help: "Fill-or-kill orders submitted"},
		[]string{"side", "result"},
	)
	BalanceRefreshesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "frontrun_balance_refreshes_total", Help: "Balance cache refreshes from the chain"},
		[]string{"asset"},
	)
	PipelinesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "frontrun_pipelines_in_flight", Help: "Execution pipelines currently running"},
	)
	BlockedKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "frontrun_dedup_blocked_keys", Help: "Active-execution keys currently blocked"},
	)
	PipelineSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "frontrun_pipeline_seconds",
			Help:    "Wall time of one execution pipeline",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsTotal,
		ExecutionsTotal,
		OrdersTotal,
		BalanceRefreshesTotal,
		PipelinesInFlight,
		BlockedKeys,
		PipelineSeconds,
	)
}

func OrderResult(accepted bool) string {
	if accepted {
		return "accepted"
	}
	return "rejected"
}

// Serve binds addr and serves /metrics in the background. Bind failures are
// returned; a later serve failure other than a shutdown is sent on the
// returned channel, which is closed when serving stops.
func Serve(addr string) (*http.Server, <-chan error, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ln.Addr().String(), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()
	return srv, errs, nil
}
