package pipeline

import (
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Snapshot is a point-in-time copy of the pipeline counters.
type Snapshot struct {
	// Captured is the number of frames read from the source.
	Captured int64 `json:"captured"`
	// Inferences is the number of completed inferences.
	Inferences int64 `json:"inferences"`
	// Emitted is the number of frames handed to the sink.
	Emitted int64 `json:"emitted"`
	// FPS is the emission rate over the last full period.
	FPS float64 `json:"fps"`
	// MeanInference is the mean inference latency.
	MeanInference time.Duration `json:"meanInference"`
}

// Stats counts pipeline progress. Counters may be read from any goroutine.
type Stats struct {
	captured   atomic.Int64
	inferences atomic.Int64
	emitted    atomic.Int64
	inferTime  atomic.Duration
	fps        atomic.Float64

	clock    clock.Clock
	interval time.Duration
	logger   *zap.Logger

	// Period accounting, main goroutine only.
	periodStart  time.Time
	periodFrames int64
}

func newStats(clk clock.Clock, interval time.Duration, logger *zap.Logger) *Stats {
	return &Stats{clock: clk, interval: interval, logger: logger}
}

func (s *Stats) start() {
	s.periodStart = s.clock.Now()
	s.periodFrames = 0
}

func (s *Stats) capture() { s.captured.Inc() }

func (s *Stats) inference(elapsed time.Duration) {
	s.inferences.Inc()
	s.inferTime.Add(elapsed)
}

// emit counts an emitted frame and closes the FPS period once interval has passed.
func (s *Stats) emit(detections int) {
	s.emitted.Inc()
	s.periodFrames++

	elapsed := s.clock.Since(s.periodStart)
	if elapsed < s.interval {
		return
	}
	fps := float64(s.periodFrames) / elapsed.Seconds()
	s.fps.Store(fps)
	s.logger.Info("pipeline",
		zap.Float64("fps", fps),
		zap.Int("objects", detections),
		zap.Int64("captured", s.captured.Load()),
		zap.Duration("meanInference", s.Snapshot().MeanInference),
	)
	s.start()
}

// Snapshot returns the current counters.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{
		Captured:   s.captured.Load(),
		Inferences: s.inferences.Load(),
		Emitted:    s.emitted.Load(),
		FPS:        s.fps.Load(),
	}
	if snap.Inferences > 0 {
		snap.MeanInference = s.inferTime.Load() / time.Duration(snap.Inferences)
	}
	return snap
}

// CollectMetrics reports the counters as named values for a runtime profiler.
func (s *Stats) CollectMetrics() map[string]float64 {
	snap := s.Snapshot()
	return map[string]float64{
		"pipeline.captured":     float64(snap.Captured),
		"pipeline.inferences":   float64(snap.Inferences),
		"pipeline.emitted":      float64(snap.Emitted),
		"pipeline.fps":          snap.FPS,
		"pipeline.inference_ms": float64(snap.MeanInference) / float64(time.Millisecond),
	}
}
