// Package profiler - Periodic runtime and application metrics reports.
package profiler

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// MetricsCollector defines the interface for collecting custom metrics.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// MetricTracker tracks statistics for a custom metric over a sliding window.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

func (t *MetricTracker) add(value float64, limit int) {
	if t.count == 0 || value < t.min {
		t.min = value
	}
	if t.count == 0 || value > t.max {
		t.max = value
	}
	t.values = append(t.values, value)
	t.sum += value
	if len(t.values) > limit {
		t.sum -= t.values[0]
		t.values = t.values[1:]
	}
	t.count++
}

// TimeTracker tracks operation timing statistics over a sliding window.
type TimeTracker struct {
	durations []time.Duration
	total     time.Duration
	min       time.Duration
	max       time.Duration
	count     int64
}

func (t *TimeTracker) add(d time.Duration, limit int) {
	if t.count == 0 || d < t.min {
		t.min = d
	}
	if t.count == 0 || d > t.max {
		t.max = d
	}
	t.durations = append(t.durations, d)
	t.total += d
	if len(t.durations) > limit {
		t.total -= t.durations[0]
		t.durations = t.durations[1:]
	}
	t.count++
}

// MetricSummary is the window summary of one metric.
type MetricSummary struct {
	Avg     float64 `json:"avg"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
}

// OperationSummary is the window summary of one timed operation.
type OperationSummary struct {
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Count int64         `json:"count"`
}

// Report is a snapshot of the profiler state.
type Report struct {
	Uptime      time.Duration               `json:"uptime"`
	Goroutines  int                         `json:"goroutines"`
	CgoCalls    int64                       `json:"cgoCalls"`
	HeapAlloc   uint64                      `json:"heapAlloc"`
	HeapObjects uint64                      `json:"heapObjects"`
	Sys         uint64                      `json:"sys"`
	NumGC       uint32                      `json:"numGC"`
	GCFraction  float64                     `json:"gcFraction"`
	Metrics     map[string]MetricSummary    `json:"metrics"`
	Operations  map[string]OperationSummary `json:"operations"`
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to log a report (default: 2s)
	ReportInterval time.Duration
	// SampleInterval specifies how often to collect samples (default: 100ms)
	SampleInterval time.Duration
	// MaxSamples bounds the window of every metric (default: 600)
	MaxSamples int
	// Clock drives the tickers, the wall clock when nil.
	Clock clock.Clock
	// Logger receives the reports.
	Logger *zap.Logger
}

// RuntimeProfiler samples memory, goroutines and registered collectors and
// logs a summary every report interval. It is safe for concurrent use.
type RuntimeProfiler struct {
	opts ProfilingOptions

	mu         sync.RWMutex
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	startTime  time.Time
	memStats   runtime.MemStats
	metrics    map[string]*MetricTracker
	operations map[string]*TimeTracker
	collectors []MetricsCollector
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
//   - opts: Configuration options for the profiler
//
// Returns:
//   - *RuntimeProfiler: A stopped profiler.
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval == 0 {
		opts.ReportInterval = 2 * time.Second
	}
	if opts.SampleInterval == 0 {
		opts.SampleInterval = 100 * time.Millisecond
	}
	if opts.MaxSamples == 0 {
		opts.MaxSamples = 600
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &RuntimeProfiler{
		opts:       opts,
		startTime:  opts.Clock.Now(),
		metrics:    make(map[string]*MetricTracker),
		operations: make(map[string]*TimeTracker),
	}
}

// Start begins sampling and reporting until ctx is done or Stop is called.
// Starting a running profiler does nothing.
func (rp *RuntimeProfiler) Start(ctx context.Context) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	if rp.cancel != nil {
		return
	}
	ctx, rp.cancel = context.WithCancel(ctx)
	rp.startTime = rp.opts.Clock.Now()

	sample := rp.opts.Clock.Ticker(rp.opts.SampleInterval)
	report := rp.opts.Clock.Ticker(rp.opts.ReportInterval)
	rp.wg.Add(1)
	go func() {
		defer rp.wg.Done()
		defer sample.Stop()
		defer report.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-sample.C:
				rp.sample()
			case <-report.C:
				rp.log(rp.Report())
			}
		}
	}()
}

// Stop ends the background loop and waits for it.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	cancel := rp.cancel
	rp.cancel = nil
	rp.mu.Unlock()

	if cancel != nil {
		cancel()
		rp.wg.Wait()
	}
}

// AddMetricsCollector registers a collector sampled every sample interval.
func (rp *RuntimeProfiler) AddMetricsCollector(collector MetricsCollector) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.collectors = append(rp.collectors, collector)
}

// RecordMetric records a custom metric value.
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.record(name, value)
}

func (rp *RuntimeProfiler) record(name string, value float64) {
	t, ok := rp.metrics[name]
	if !ok {
		t = &MetricTracker{}
		rp.metrics[name] = t
	}
	t.add(value, rp.opts.MaxSamples)
}

// StartOperation begins timing an operation and returns the function that ends it.
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := rp.opts.Clock.Now()
	return func() {
		d := rp.opts.Clock.Since(start)
		rp.mu.Lock()
		defer rp.mu.Unlock()
		t, ok := rp.operations[name]
		if !ok {
			t = &TimeTracker{}
			rp.operations[name] = t
		}
		t.add(d, rp.opts.MaxSamples)
	}
}

// sample reads the memory statistics and polls the collectors.
func (rp *RuntimeProfiler) sample() {
	rp.mu.RLock()
	collectors := append([]MetricsCollector(nil), rp.collectors...)
	rp.mu.RUnlock()

	var values []map[string]float64
	for _, c := range collectors {
		values = append(values, c.CollectMetrics())
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()
	runtime.ReadMemStats(&rp.memStats)
	for _, m := range values {
		for name, v := range m {
			rp.record(name, v)
		}
	}
}

// Report returns the current statistics.
func (rp *RuntimeProfiler) Report() Report {
	rp.mu.RLock()
	defer rp.mu.RUnlock()

	r := Report{
		Uptime:      rp.opts.Clock.Since(rp.startTime),
		Goroutines:  runtime.NumGoroutine(),
		CgoCalls:    runtime.NumCgoCall(),
		HeapAlloc:   rp.memStats.HeapAlloc,
		HeapObjects: rp.memStats.HeapObjects,
		Sys:         rp.memStats.Sys,
		NumGC:       rp.memStats.NumGC,
		GCFraction:  rp.memStats.GCCPUFraction,
		Metrics:     make(map[string]MetricSummary, len(rp.metrics)),
		Operations:  make(map[string]OperationSummary, len(rp.operations)),
	}
	for name, t := range rp.metrics {
		if len(t.values) == 0 {
			continue
		}
		r.Metrics[name] = MetricSummary{
			Avg:     t.sum / float64(len(t.values)),
			Min:     t.min,
			Max:     t.max,
			Samples: len(t.values),
		}
	}
	for name, t := range rp.operations {
		if len(t.durations) == 0 {
			continue
		}
		r.Operations[name] = OperationSummary{
			Avg:   t.total / time.Duration(len(t.durations)),
			Min:   t.min,
			Max:   t.max,
			Count: t.count,
		}
	}
	return r
}

func (rp *RuntimeProfiler) log(r Report) {
	fields := []zap.Field{
		zap.Duration("uptime", r.Uptime.Truncate(time.Millisecond)),
		zap.Int("goroutines", r.Goroutines),
		zap.Int64("cgoCalls", r.CgoCalls),
		zap.Uint64("heapAlloc", r.HeapAlloc),
		zap.Uint64("sys", r.Sys),
		zap.Uint32("numGC", r.NumGC),
	}
	for name, m := range r.Metrics {
		fields = append(fields, zap.Float64(name, m.Avg))
	}
	for name, o := range r.Operations {
		fields = append(fields, zap.Duration(name, o.Avg))
	}
	rp.opts.Logger.Info("runtime", fields...)
}
