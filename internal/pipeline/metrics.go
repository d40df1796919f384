package pipeline

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type chainMetrics struct {
	outcomes *prometheus.CounterVec
}

var (
	chainMetricsInstance *chainMetrics
	chainMetricsOnce     sync.Once
)

// InitMetrics registers the chain metrics with registry. A nil registry
// uses the default registerer. Only the first call has an effect.
func InitMetrics(registry *prometheus.Registry) {
	chainMetricsOnce.Do(func() {
		var registerer prometheus.Registerer = prometheus.DefaultRegisterer
		if registry != nil {
			registerer = registry
		}
		factory := promauto.With(registerer)
		chainMetricsInstance = &chainMetrics{
			outcomes: factory.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "bridge",
					Subsystem: "chain",
					Name:      "outcomes_total",
					Help:      "Total number of chain outcomes by kind",
				},
				[]string{"outcome"},
			),
		}
		for _, k := range []Kind{KindHandled, KindNotFound, KindFailed} {
			chainMetricsInstance.outcomes.WithLabelValues(k.String())
		}
	})
}

func getMetrics() *chainMetrics {
	InitMetrics(nil)
	return chainMetricsInstance
}
