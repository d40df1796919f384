package transform

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetMetrics_Singleton(t *testing.T) {
	m1 := GetMetrics()
	m2 := GetMetrics()

	require.NotNil(t, m1)
	assert.Same(t, m1, m2)
}

func TestMetrics_MustRegister(t *testing.T) {
	m := GetMetrics()
	m.Init()

	registry := prometheus.NewRegistry()
	assert.NotPanics(t, func() { m.MustRegister(registry) })

	families, err := registry.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestObserve_RecordsResult(t *testing.T) {
	m := GetMetrics()

	before := testutil.ToFloat64(m.operationsTotal.WithLabelValues(DirectionResponse, ResultInvalid))
	_, err := Observe(DirectionResponse, "application/json", []byte("{bad"), func(v interface{}) interface{} { return v })
	require.Error(t, err)
	after := testutil.ToFloat64(m.operationsTotal.WithLabelValues(DirectionResponse, ResultInvalid))
	assert.Equal(t, before+1, after)

	before = testutil.ToFloat64(m.operationsTotal.WithLabelValues(DirectionRequest, ResultPassthrough))
	out, err := Observe(DirectionRequest, "text/plain", []byte("raw"), nil)
	require.NoError(t, err)
	assert.Equal(t, "raw", string(out))
	after = testutil.ToFloat64(m.operationsTotal.WithLabelValues(DirectionRequest, ResultPassthrough))
	assert.Equal(t, before+1, after)
}
