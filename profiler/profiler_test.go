package profiler

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap/zaptest"
)

type countingCollector struct{ calls atomic.Int64 }

func (c *countingCollector) CollectMetrics() map[string]float64 {
	n := c.calls.Inc()
	return map[string]float64{"frames": float64(n)}
}

func TestRecordMetric_Window(t *testing.T) {
	rp := NewRuntimeProfiler(ProfilingOptions{MaxSamples: 2})
	for _, v := range []float64{1, 2, 3} {
		rp.RecordMetric("objects", v)
	}

	m := rp.Report().Metrics["objects"]
	assert.Equal(t, 2, m.Samples)
	assert.InDelta(t, 2.5, m.Avg, 1e-9)
	assert.Equal(t, 1.0, m.Min)
	assert.Equal(t, 3.0, m.Max)
}

func TestStartOperation(t *testing.T) {
	mock := clock.NewMock()
	rp := NewRuntimeProfiler(ProfilingOptions{Clock: mock})

	for _, d := range []time.Duration{4 * time.Millisecond, 8 * time.Millisecond} {
		done := rp.StartOperation("predict")
		mock.Add(d)
		done()
	}

	op := rp.Report().Operations["predict"]
	assert.Equal(t, int64(2), op.Count)
	assert.Equal(t, 6*time.Millisecond, op.Avg)
	assert.Equal(t, 4*time.Millisecond, op.Min)
	assert.Equal(t, 8*time.Millisecond, op.Max)
}

func TestStart_SamplesCollectors(t *testing.T) {
	mock := clock.NewMock()
	rp := NewRuntimeProfiler(ProfilingOptions{
		Clock:          mock,
		SampleInterval: 100 * time.Millisecond,
		ReportInterval: time.Second,
		Logger:         zaptest.NewLogger(t),
	})
	c := &countingCollector{}
	rp.AddMetricsCollector(c)

	rp.Start(context.Background())
	rp.Start(context.Background())
	defer rp.Stop()

	mock.Add(100 * time.Millisecond)
	require.Eventually(t, func() bool { return c.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, ok := rp.Report().Metrics["frames"]
		return ok
	}, time.Second, 5*time.Millisecond)

	mock.Add(900 * time.Millisecond)
	r := rp.Report()
	assert.Equal(t, time.Second, r.Uptime)
	assert.Positive(t, r.Goroutines)

	rp.Stop()
	rp.Stop()
}
