// Package metrics exposes Prometheus instrumentation for hunts.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Member outcomes
const (
	OutcomeScanned = "scanned"
	OutcomeSkipped = "skipped"
	OutcomeMatched = "matched"
	OutcomeFailed  = "failed"
)

// Hunt groups the collectors updated by the hunt machine. A nil *Hunt is
// valid and records nothing.
type Hunt struct {
	Members         *prometheus.CounterVec
	ScanDuration    *prometheus.HistogramVec
	AnalyzeDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge
}

// NewHunt creates the collectors and registers them with reg
func NewHunt(reg prometheus.Registerer) *Hunt {
	h := &Hunt{
		Members: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hunter",
				Subsystem: "hunt",
				Name:      "members_total",
				Help:      "Pool members processed, by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		ScanDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hunter",
				Subsystem: "hunt",
				Name:      "scan_duration_seconds",
				Help:      "Wall time of whole scans",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"strategy"},
		),
		AnalyzeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "hunter",
				Subsystem: "hunt",
				Name:      "analyze_duration_seconds",
				Help:      "Time spent in one analyzer call",
				Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
			},
			[]string{"strategy"},
		),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hunter",
			Subsystem: "hunt",
			Name:      "in_flight",
			Help:      "Pipelines currently fetching or analyzing",
		}),
	}
	reg.MustRegister(h.Members, h.ScanDuration, h.AnalyzeDuration, h.InFlight)
	return h
}

// Count records one member outcome
func (h *Hunt) Count(strategy, outcome string) {
	if h == nil {
		return
	}
	h.Members.WithLabelValues(strategy, outcome).Inc()
}

// ObserveScan records the duration of a finished scan
func (h *Hunt) ObserveScan(strategy string, d time.Duration) {
	if h == nil {
		return
	}
	h.ScanDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// ObserveAnalyze records the duration of one analyzer call
func (h *Hunt) ObserveAnalyze(strategy string, d time.Duration) {
	if h == nil {
		return
	}
	h.AnalyzeDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

// Track increments the in-flight gauge and returns the matching decrement
func (h *Hunt) Track() func() {
	if h == nil {
		return func() {}
	}
	h.InFlight.Inc()
	return h.InFlight.Dec
}

// Handler serves the metrics of the given gatherer
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
