package legacy

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Forward results recorded in bridge_legacy_forwards_total.
const (
	resultOK          = "ok"
	resultUnavailable = "unavailable"
	resultCancelled   = "cancelled"
)

type legacyMetrics struct {
	forwardsTotal   *prometheus.CounterVec
	forwardDuration *prometheus.HistogramVec
	capturedBytes   prometheus.Histogram
	breakerState    *prometheus.GaugeVec
}

var (
	legacyMetricsInstance *legacyMetrics
	legacyMetricsOnce     sync.Once
)

// InitMetrics initializes the legacy dispatch metrics with the given
// registry. If registry is nil the default registerer is used. Only the
// first call has an effect.
func InitMetrics(registry *prometheus.Registry) {
	legacyMetricsOnce.Do(func() {
		var registerer prometheus.Registerer = prometheus.DefaultRegisterer
		if registry != nil {
			registerer = registry
		}
		factory := promauto.With(registerer)
		legacyMetricsInstance = &legacyMetrics{
			forwardsTotal: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "bridge",
					Subsystem: "legacy",
					Name:      "forwards_total",
					Help:      "Total number of requests forwarded to the legacy dispatcher",
				},
				[]string{"mode", "result"},
			),
			forwardDuration: factory.NewHistogramVec(
				prometheus.HistogramOpts{
					Namespace: "bridge",
					Subsystem: "legacy",
					Name:      "forward_duration_seconds",
					Help:      "Duration of legacy dispatches",
					Buckets: []float64{
						.001, .005, .01, .025,
						.05, .1, .25, .5,
						1, 2.5, 5, 10,
					},
				},
				[]string{"mode"},
			),
			capturedBytes: factory.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: "bridge",
					Subsystem: "legacy",
					Name:      "captured_bytes",
					Help:      "Size of legacy responses captured in memory",
					Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
				},
			),
			breakerState: factory.NewGaugeVec(
				prometheus.GaugeOpts{
					Namespace: "bridge",
					Subsystem: "legacy",
					Name:      "circuit_breaker_state",
					Help:      "Legacy circuit breaker state (0=closed, 1=half-open, 2=open)",
				},
				[]string{"name"},
			),
		}

		for _, mode := range []Mode{ModeStreaming, ModeCapturing} {
			for _, result := range []string{resultOK, resultUnavailable, resultCancelled} {
				legacyMetricsInstance.forwardsTotal.WithLabelValues(mode.String(), result)
			}
			legacyMetricsInstance.forwardDuration.WithLabelValues(mode.String())
		}
	})
}

func getMetrics() *legacyMetrics {
	InitMetrics(nil)
	return legacyMetricsInstance
}
