// Package metrics exposes Prometheus collectors for the backtest service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the collectors of one registry
type Recorder struct {
	registry *prometheus.Registry

	backtestsCreated  *prometheus.CounterVec
	backtestsFinished *prometheus.CounterVec
	stepDuration      prometheus.Histogram
	daysSimulated     prometheus.Counter
	tradesExecuted    *prometheus.CounterVec
	activeSessions    prometheus.Gauge
	hibernated        prometheus.Counter
	dataLoadFailures  *prometheus.CounterVec
}

// NewRecorder registers the backtest collectors on a fresh registry that
// also carries the Go runtime and process collectors
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		backtestsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "etf_backtests_created_total",
			Help: "Backtests started, by data source",
		}, []string{"source"}),
		backtestsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "etf_backtests_finished_total",
			Help: "Backtests that reached a terminal status",
		}, []string{"status"}),
		stepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "etf_backtest_step_duration_seconds",
			Help:    "Wall time of one step batch including persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}),
		daysSimulated: factory.NewCounter(prometheus.CounterOpts{
			Name: "etf_backtest_days_simulated_total",
			Help: "Calendar days advanced across all backtests",
		}),
		tradesExecuted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "etf_backtest_trades_total",
			Help: "Simulated trades executed, by action",
		}, []string{"action"}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "etf_backtest_active_sessions",
			Help: "Backtests currently held in memory",
		}),
		hibernated: factory.NewCounter(prometheus.CounterOpts{
			Name: "etf_backtest_hibernated_total",
			Help: "Idle sessions evicted from memory",
		}),
		dataLoadFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "etf_backtest_data_load_failures_total",
			Help: "Historical data loads that failed, by source",
		}, []string{"source"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// BacktestCreated counts a started backtest
func (r *Recorder) BacktestCreated(source string) {
	r.backtestsCreated.WithLabelValues(source).Inc()
}

// BacktestFinished counts a backtest reaching a terminal status
func (r *Recorder) BacktestFinished(status string) {
	r.backtestsFinished.WithLabelValues(status).Inc()
}

// StepObserved records one step batch
func (r *Recorder) StepObserved(elapsed time.Duration, days int) {
	r.stepDuration.Observe(elapsed.Seconds())
	r.daysSimulated.Add(float64(days))
}

// TradeExecuted counts a simulated trade
func (r *Recorder) TradeExecuted(action string) {
	r.tradesExecuted.WithLabelValues(action).Inc()
}

// SetActiveSessions reports the number of in-memory sessions
func (r *Recorder) SetActiveSessions(n int) {
	r.activeSessions.Set(float64(n))
}

// SessionHibernated counts an evicted session
func (r *Recorder) SessionHibernated() {
	r.hibernated.Inc()
}

// DataLoadFailed counts a failed historical data load
func (r *Recorder) DataLoadFailed(source string) {
	r.dataLoadFailures.WithLabelValues(source).Inc()
}
