package transform

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains Prometheus metrics for body transforms.
type Metrics struct {
	operationsTotal *prometheus.CounterVec
	bytesTotal      *prometheus.CounterVec
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// GetMetrics returns the singleton transform metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			operationsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "bridge",
					Subsystem: "transform",
					Name:      "operations_total",
					Help:      "Total number of body transforms by direction and result",
				},
				[]string{"direction", "result"},
			),
			bytesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: "bridge",
					Subsystem: "transform",
					Name:      "output_bytes_total",
					Help:      "Total number of bytes produced by body transforms",
				},
				[]string{"direction"},
			),
		}
	})
	return metricsInstance
}

// MustRegister registers the collectors with registry. promauto puts them
// on the default registry, the bridge serves its own.
func (m *Metrics) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(m.operationsTotal, m.bytesTotal)
}

// Init pre-populates the label combinations.
func (m *Metrics) Init() {
	for _, dir := range []string{DirectionRequest, DirectionResponse} {
		for _, result := range []string{ResultSuccess, ResultPassthrough, ResultInvalid} {
			m.operationsTotal.WithLabelValues(dir, result)
		}
		m.bytesTotal.WithLabelValues(dir)
	}
}

// Directions and results recorded by RecordOperation.
const (
	DirectionRequest  = "request"
	DirectionResponse = "response"

	ResultSuccess     = "success"
	ResultPassthrough = "passthrough"
	ResultInvalid     = "invalid_json"
	ResultError       = "error"
)

// RecordOperation records one transform.
func (m *Metrics) RecordOperation(direction, result string, outputBytes int) {
	m.operationsTotal.WithLabelValues(direction, result).Inc()
	if outputBytes > 0 {
		m.bytesTotal.WithLabelValues(direction).Add(float64(outputBytes))
	}
}

// Observe applies fn to body like Apply and records the result under
// direction.
func Observe(direction, contentType string, body []byte, fn Func) ([]byte, error) {
	m := GetMetrics()
	if fn == nil || !IsJSON(contentType) {
		m.RecordOperation(direction, ResultPassthrough, 0)
		return body, nil
	}

	out, err := Apply(contentType, body, fn)
	switch {
	case err == nil:
		m.RecordOperation(direction, ResultSuccess, len(out))
	case errors.Is(err, ErrInvalidJSON):
		m.RecordOperation(direction, ResultInvalid, 0)
	default:
		m.RecordOperation(direction, ResultError, 0)
	}
	return out, err
}
