// Package metrics exposes engine activity as prometheus/client_golang
// collectors, grounded on the teacher's promhttp.Handler() wiring in
// internal/config/gin.go — generalized into a dedicated registry owned
// by this process rather than the teacher's global default registry, so
// tests can construct an isolated set of collectors.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every collector the engine and its surrounding
// services update.
type Registry struct {
	OrdersProcessed  *prometheus.CounterVec
	TradesExecuted   prometheus.Counter
	ExecutionsSent   *prometheus.CounterVec
	ActiveSessions   prometheus.Gauge
	BookDepth        *prometheus.GaugeVec
	SubmitLatency    prometheus.Histogram
	RejectedOrders   *prometheus.CounterVec
	TradePriceSMA    *prometheus.GaugeVec
	TradePriceStdDev *prometheus.GaugeVec
}

// NewRegistry constructs and registers every collector against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		OrdersProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchcore",
			Name:      "orders_processed_total",
			Help:      "New orders submitted, by symbol and side.",
		}, []string{"symbol", "side"}),
		TradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "matchcore",
			Name:      "trades_executed_total",
			Help:      "Trades matched across all symbols.",
		}),
		ExecutionsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchcore",
			Name:      "executions_sent_total",
			Help:      "Execution reports generated, by status.",
		}, []string{"status"}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "matchcore",
			Name:      "active_sessions",
			Help:      "Currently connected sessions.",
		}),
		BookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "matchcore",
			Name:      "book_depth_levels",
			Help:      "Number of resting price levels, by symbol and side.",
		}, []string{"symbol", "side"}),
		SubmitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "matchcore",
			Name:      "submit_latency_seconds",
			Help:      "Time spent inside Engine.Submit, including the match loop.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 12),
		}),
		RejectedOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "matchcore",
			Name:      "rejected_orders_total",
			Help:      "Rejected execution reports (failed order validation or unknown cancel), by symbol.",
		}, []string{"symbol"}),
		TradePriceSMA: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "matchcore",
			Name:      "trade_price_sma",
			Help:      "Rolling simple moving average of trade prices, by symbol.",
		}, []string{"symbol"}),
		TradePriceStdDev: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "matchcore",
			Name:      "trade_price_stddev",
			Help:      "Rolling standard deviation of trade prices, by symbol.",
		}, []string{"symbol"}),
	}

	reg.MustRegister(
		r.OrdersProcessed,
		r.TradesExecuted,
		r.ExecutionsSent,
		r.ActiveSessions,
		r.BookDepth,
		r.SubmitLatency,
		r.RejectedOrders,
		r.TradePriceSMA,
		r.TradePriceStdDev,
	)
	return r
}
