package scoring

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "credscore"

// Prediction modes.
const (
	ModeSingle = "single"
	ModeBatch  = "batch"
)

// Failure reasons.
const (
	ReasonValidation     = "validation"
	ReasonMissingColumns = "missing_columns"
	ReasonModel          = "model"
)

// Metrics holds the prediction counters and distributions.
type Metrics struct {
	predictions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	probability prometheus.Histogram
	duration    *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "predictions_total",
			Help:      "Scored rows by mode and risk tier.",
		}, []string{"mode", "tier"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_failures_total",
			Help:      "Rejected or failed prediction requests by mode and reason.",
		}, []string{"mode", "reason"}),
		probability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probability",
			Help:      "Predicted probability of default.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "model_duration_seconds",
			Help:      "Time spent in the model per request.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
	}

	reg.MustRegister(m.predictions, m.failures, m.probability, m.duration)
	return m
}

func (m *Metrics) observe(mode string, probs []float64, seconds float64) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(mode).Observe(seconds)
	for _, p := range probs {
		m.probability.Observe(p)
		m.predictions.WithLabelValues(mode, tierOf(p)).Inc()
	}
}

func (m *Metrics) fail(mode, reason string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(mode, reason).Inc()
}
