// Package metrics defines the Prometheus metrics exposed by the HTTP
// control surface and populated by the HTTP server, the broker, and the
// results store.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ReplayMetrics holds every Prometheus metric this service registers.
type ReplayMetrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	FillsTotal        *prometheus.CounterVec
	FillVolume        *prometheus.CounterVec
	ResolutionsTotal  *prometheus.CounterVec
	OrdersPlacedTotal *prometheus.CounterVec

	DBQueryDuration *prometheus.HistogramVec
	DBQueryTotal    *prometheus.CounterVec
	DBErrors        *prometheus.CounterVec

	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec

	PortfolioEquity     prometheus.Gauge
	PortfolioCash       prometheus.Gauge
	PortfolioUnrealized prometheus.Gauge
	ActivePositions     prometheus.Gauge
}

// New creates and registers every metric under namespace. An empty
// namespace defaults to "pmbacktest".
func New(namespace string) *ReplayMetrics {
	if namespace == "" {
		namespace = "pmbacktest"
	}

	return &ReplayMetrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests to the control surface",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		FillsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fills_total",
				Help:      "Total number of fills emitted by the broker",
			},
			[]string{"market_id", "action", "side"},
		),
		FillVolume: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fill_volume_contracts",
				Help:      "Total contract volume filled",
			},
			[]string{"market_id"},
		),
		ResolutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolutions_total",
				Help:      "Total number of market resolutions applied",
			},
			[]string{"result"},
		),
		OrdersPlacedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_placed_total",
				Help:      "Total number of orders placed with the broker",
			},
			[]string{"market_id", "action", "side"},
		),

		DBQueryDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "db_query_duration_seconds",
				Help:      "Results-store query duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation", "table"},
		),
		DBQueryTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_queries_total",
				Help:      "Total number of results-store queries",
			},
			[]string{"operation", "table"},
		),
		DBErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "db_errors_total",
				Help:      "Total number of results-store errors",
			},
			[]string{"operation", "table"},
		),

		CircuitBreakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
			[]string{"breaker"},
		),
		CircuitBreakerTrips: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_trips_total",
				Help:      "Total number of circuit breaker trips",
			},
			[]string{"breaker"},
		),

		PortfolioEquity: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "portfolio_equity_usd",
				Help:      "Total portfolio equity (cash + unrealized P&L)",
			},
		),
		PortfolioCash: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "portfolio_cash_usd",
				Help:      "Available cash",
			},
		),
		PortfolioUnrealized: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "portfolio_unrealized_pnl_usd",
				Help:      "Unrealized profit and loss across open positions",
			},
		),
		ActivePositions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_positions",
				Help:      "Number of markets with a nonzero open position",
			},
		),
	}
}

// ObserveSnapshot updates the portfolio gauges from a snapshot's fields.
func (m *ReplayMetrics) ObserveSnapshot(cash, equity, unrealized float64, numPositions int) {
	m.PortfolioCash.Set(cash)
	m.PortfolioEquity.Set(equity)
	m.PortfolioUnrealized.Set(unrealized)
	m.ActivePositions.Set(float64(numPositions))
}
