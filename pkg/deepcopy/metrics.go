package deepcopy

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts copies and the record writes they commit. A nil *Metrics
// records nothing.
type Metrics struct {
	// CopiesTotal counts Copy calls by result ("ok" or "error").
	CopiesTotal *prometheus.CounterVec
	// WritesTotal counts committed record writes by operation and model.
	WritesTotal *prometheus.CounterVec
	// CopyDuration observes Copy latency in seconds.
	CopyDuration prometheus.Histogram
}

// NewMetrics creates the copy metrics and registers them with reg.
// A nil reg creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CopiesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recopy",
				Subsystem: "deepcopy",
				Name:      "copies_total",
				Help:      "Total number of deep copies by result",
			},
			[]string{"result"},
		),
		WritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "recopy",
				Subsystem: "deepcopy",
				Name:      "writes_total",
				Help:      "Total number of committed record writes by operation and model",
			},
			[]string{"op", "model"},
		),
		CopyDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "recopy",
				Subsystem: "deepcopy",
				Name:      "copy_duration_seconds",
				Help:      "Duration of deep copies in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),
	}
}

func (m *Metrics) observeCopy(result string, seconds float64) {
	if m == nil {
		return
	}
	m.CopiesTotal.WithLabelValues(result).Inc()
	m.CopyDuration.Observe(seconds)
}

func (m *Metrics) observeWrites(ws []write) {
	if m == nil {
		return
	}
	for _, w := range ws {
		m.WritesTotal.WithLabelValues(w.op, w.model).Inc()
	}
}
