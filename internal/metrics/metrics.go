// Package metrics exposes prometheus instrumentation for the trading loop.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "ticks_total", Help: "Count of market ticks ingested"},
		[]string{"symbol"},
	)
	SignalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_total", Help: "Signals emitted by strategies"},
		[]string{"strategy", "action"},
	)
	SignalsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_rejected_total", Help: "Signals dropped by risk or safeguard checks"},
		[]string{"reason"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted to the execution gateway"},
		[]string{"symbol", "side", "status"},
	)
	PositionClosesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "position_closes_total", Help: "Positions closed by trigger reason"},
		[]string{"reason"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "open_positions", Help: "Number of currently open positions"},
	)
	DailyPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "daily_pnl", Help: "Realized profit and loss for the current day"},
	)
	RiskScore = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "risk_score", Help: "Composite risk utilization score (0-100)"},
	)
)

func init() {
	prometheus.MustRegister(
		TicksTotal,
		SignalsTotal,
		SignalsRejectedTotal,
		OrdersTotal,
		PositionClosesTotal,
		OpenPositions,
		DailyPnL,
		RiskScore,
	)
}

// Serve starts the metrics endpoint on addr and returns the server handle.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
