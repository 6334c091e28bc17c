package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimer(t *testing.T) {
	timer := NewTimer()
	require.NotNil(t, timer)
	assert.False(t, timer.start.IsZero())
	assert.Less(t, time.Since(timer.start), time.Second)
}

func TestTimerDurationIncreases(t *testing.T) {
	timer := NewTimer()

	time.Sleep(10 * time.Millisecond)
	first := timer.Duration()
	time.Sleep(10 * time.Millisecond)
	second := timer.Duration()

	assert.GreaterOrEqual(t, first, 10*time.Millisecond)
	assert.Greater(t, second, first)
}

func TestTimerObserveDuration(t *testing.T) {
	histogram := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_duration_seconds",
		Help: "Test duration histogram",
	})

	NewTimer().ObserveDuration(histogram)

	assert.Equal(t, 1, collectCount(histogram))
}

func TestTimerObserveDurationVec(t *testing.T) {
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "test_duration_vec_seconds",
		Help: "Test duration histogram vec",
	}, []string{"check_type"})

	timer := NewTimer()
	timer.ObserveDurationVec(vec, "availability")
	timer.ObserveDurationVec(vec, "service_health")

	assert.Equal(t, 2, collectCount(vec))
}

func collectCount(c prometheus.Collector) int {
	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)
	return len(ch)
}
