package inference

import (
	"sync"
	"time"
)

// Metrics summarises the inference calls made through a ProfiledPredictor.
type Metrics struct {
	// InferenceCount is the number of Predict calls.
	InferenceCount int64 `json:"inferenceCount"`
	// TotalTime is the summed duration of all Predict calls.
	TotalTime time.Duration `json:"totalTime"`
	// LastTime is the duration of the latest Predict call.
	LastTime time.Duration `json:"lastTime"`
}

// Average returns the mean Predict duration, or 0 before the first call.
func (m Metrics) Average() time.Duration {
	if m.InferenceCount == 0 {
		return 0
	}
	return m.TotalTime / time.Duration(m.InferenceCount)
}

// Throughput returns the inferences per second the predictor sustains on its own.
func (m Metrics) Throughput() float64 {
	avg := m.Average()
	if avg == 0 {
		return 0
	}
	return float64(time.Second) / float64(avg)
}

// ProfiledPredictor wraps a Predictor and tracks how long inference takes.
// Metrics may be read from any goroutine while inference runs elsewhere.
type ProfiledPredictor struct {
	Predictor

	mu      sync.RWMutex
	metrics Metrics
	now     func() time.Time
}

// NewProfiledPredictor wraps p.
func NewProfiledPredictor(p Predictor) *ProfiledPredictor {
	return &ProfiledPredictor{Predictor: p, now: time.Now}
}

// Predict runs the wrapped predictor and records its duration.
func (pp *ProfiledPredictor) Predict(blob []float32) error {
	start := pp.now()
	err := pp.Predictor.Predict(blob)
	elapsed := pp.now().Sub(start)

	pp.mu.Lock()
	pp.metrics.InferenceCount++
	pp.metrics.TotalTime += elapsed
	pp.metrics.LastTime = elapsed
	pp.mu.Unlock()

	return err
}

// Metrics returns a snapshot of the counters.
func (pp *ProfiledPredictor) Metrics() Metrics {
	pp.mu.RLock()
	defer pp.mu.RUnlock()
	return pp.metrics
}

// ResetMetrics clears all counters.
func (pp *ProfiledPredictor) ResetMetrics() {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	pp.metrics = Metrics{}
}
