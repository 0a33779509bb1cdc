package test

import (
	"image"
	"image/color"
	"sync"
	"time"

	"go.uber.org/atomic"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-darknet/inference"
	"github.com/nvr-ai/go-darknet/postprocess"
)

// MockFrameGenerator creates deterministic BGR test frames.
//
// @example
// gen := NewMockFrameGenerator(640, 480)
// frame := gen.GenerateStaticFrame()
// defer frame.Close()
type MockFrameGenerator struct {
	width  int
	height int
}

// NewMockFrameGenerator creates a new frame generator with specified dimensions.
//
// Arguments:
// - width: Frame width in pixels.
// - height: Frame height in pixels.
//
// Returns:
// - A configured MockFrameGenerator instance.
func NewMockFrameGenerator(width, height int) *MockFrameGenerator {
	return &MockFrameGenerator{width: width, height: height}
}

// GenerateStaticFrame creates a mid-grey frame.
func (g *MockFrameGenerator) GenerateStaticFrame() gocv.Mat {
	return g.GenerateColorFrame(128, 128, 128)
}

// GenerateColorFrame creates a frame filled with one BGR colour.
func (g *MockFrameGenerator) GenerateColorFrame(b, gr, r uint8) gocv.Mat {
	frame := gocv.NewMatWithSize(g.height, g.width, gocv.MatTypeCV8UC3)
	frame.SetTo(gocv.NewScalar(float64(b), float64(gr), float64(r), 0))
	return frame
}

// GenerateObjectFrame creates a static frame with a white square at (x, y).
//
// Arguments:
// - x: X coordinate of the square.
// - y: Y coordinate of the square.
// - size: Side of the square in pixels.
//
// Returns:
// - A BGR Mat the caller must close.
func (g *MockFrameGenerator) GenerateObjectFrame(x, y, size int) gocv.Mat {
	frame := g.GenerateStaticFrame()
	gocv.Rectangle(&frame, image.Rect(x, y, x+size, y+size), color.RGBA{255, 255, 255, 0}, -1)
	return frame
}

// MockPredictor is an inference.Predictor with scripted output and latency.
//
// With no Transform the output is a copy of the input blob, which lets tests
// trace which frame a result was computed from.
type MockPredictor struct {
	inference.Dims

	// Network is the geometry reported after Setup.
	Network inference.Dims
	// OutputLayout is reported through Layout.
	OutputLayout postprocess.Layout
	// Delay is how long each Predict blocks.
	Delay time.Duration
	// Transform computes the output from the input blob.
	Transform func(blob []float32) []float32
	// Err is returned by the FailAt-th Predict call and every call after it.
	Err    error
	FailAt int64

	mu      sync.Mutex
	setup   bool
	output  []float32
	calls   atomic.Int64
	active  atomic.Int32
	overlap atomic.Bool
}

// NewMockPredictor returns a predictor that reports the given geometry after Setup.
func NewMockPredictor(width, height, channels, batch int) *MockPredictor {
	return &MockPredictor{Network: inference.Dims{W: width, H: height, C: channels, B: batch}}
}

// Setup marks the predictor ready. The paths are not read.
func (m *MockPredictor) Setup(_, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setup {
		return inference.ErrAlreadySetup
	}
	m.setup = true
	m.Dims = m.Network
	return nil
}

// Predict sleeps for Delay and then produces the scripted output.
func (m *MockPredictor) Predict(blob []float32) error {
	if m.active.Inc() > 1 {
		m.overlap.Store(true)
	}
	defer m.active.Dec()

	m.mu.Lock()
	ready := m.setup
	m.mu.Unlock()
	if !ready {
		return inference.ErrNotSetup
	}
	if err := m.CheckInput(blob); err != nil {
		return err
	}

	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	n := m.calls.Inc()
	if m.Err != nil && n >= m.FailAt {
		return m.Err
	}

	if m.Transform != nil {
		m.output = m.Transform(blob)
	} else {
		m.output = append(m.output[:0], blob...)
	}
	return nil
}

// Output returns the output of the last successful Predict.
func (m *MockPredictor) Output() []float32 { return m.output }

// Layout returns OutputLayout.
func (m *MockPredictor) Layout() postprocess.Layout { return m.OutputLayout }

// Calls returns the number of Predict calls that got past validation.
func (m *MockPredictor) Calls() int64 { return m.calls.Load() }

// Overlapped reports whether two Predict calls ever ran at the same time.
func (m *MockPredictor) Overlapped() bool { return m.overlap.Load() }

// Close resets the predictor.
func (m *MockPredictor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setup = false
	m.Dims = inference.Dims{}
	return nil
}
