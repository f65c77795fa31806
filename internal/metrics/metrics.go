package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the batch-job metrics for pipeline and trading runs.
type Recorder struct {
	splits      *prometheus.CounterVec
	positives   *prometheus.CounterVec
	successRate *prometheus.GaugeVec
	processors  prometheus.Gauge
	equity      prometheus.Gauge
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New registers the metrics with reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Recorder{
		splits: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trader",
				Subsystem: "pipeline",
				Name:      "splits_total",
				Help:      "Splits processed, by symbol and how the model was obtained",
			},
			[]string{"symbol", "state"},
		),
		positives: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trader",
				Subsystem: "pipeline",
				Name:      "long_predictions_total",
				Help:      "Long predictions on test data, by outcome",
			},
			[]string{"symbol", "outcome"},
		),
		successRate: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "trader",
				Subsystem: "pipeline",
				Name:      "success_rate",
				Help:      "tp / (tp + fp) of the last pipeline run",
			},
			[]string{"symbol"},
		),
		processors: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "trader",
			Subsystem: "trading",
			Name:      "processors",
			Help:      "Processors built by the last trading run",
		}),
		equity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "trader",
			Subsystem: "trading",
			Name:      "account_equity",
			Help:      "Account equity at the last refresh",
		}),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "trader",
				Name:      "errors_total",
				Help:      "Errors by operation",
			},
			[]string{"operation"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "trader",
				Name:      "operation_duration_seconds",
				Help:      "Duration of operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordSplit counts a split; state is trained or loaded.
func (r *Recorder) RecordSplit(symbol, state string) {
	r.splits.WithLabelValues(symbol, state).Inc()
}

func (r *Recorder) RecordPositives(symbol string, tp, fp int) {
	r.positives.WithLabelValues(symbol, "true").Add(float64(tp))
	r.positives.WithLabelValues(symbol, "false").Add(float64(fp))
}

func (r *Recorder) RecordSuccessRate(symbol string, rate float64) {
	r.successRate.WithLabelValues(symbol).Set(rate)
}

func (r *Recorder) RecordProcessors(n int) {
	r.processors.Set(float64(n))
}

func (r *Recorder) RecordEquity(equity float64) {
	r.equity.Set(equity)
}

func (r *Recorder) RecordError(op string) {
	r.errorsTotal.WithLabelValues(op).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// WriteTextfile dumps everything gathered by g in the node-exporter textfile format.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
