// Package postprocess - Turns raw network output into thresholded, non-overlapping detections.
package postprocess

import (
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-darknet/images"
)

var (
	// ErrLabelOutOfRange is returned when a detection's class index has no entry in the label
	// list. It means the weights and the label file do not belong together.
	ErrLabelOutOfRange = errors.New("class index outside of the label list")
	// ErrOutputSize is returned when the raw output is shorter than the layout requires.
	ErrOutputSize = errors.New("raw output does not match the layout")
	// ErrBatchIndex is returned for a batch index outside [0, batch).
	ErrBatchIndex = errors.New("batch index out of range")
	// ErrBufferTooSmall is returned by the fixed-capacity copy functions when the caller's
	// buffer cannot hold the result. Retrying with a larger buffer succeeds.
	ErrBufferTooSmall = errors.New("destination buffer too small")
	// ErrInvalidLayout is returned for layouts that cannot be decoded.
	ErrInvalidLayout = errors.New("invalid output layout")
)

// Detection is one recognized object in one frame.
type Detection struct {
	// X is the horizontal center of the box.
	X float32 `json:"x" yaml:"x"`
	// Y is the vertical center of the box.
	Y float32 `json:"y" yaml:"y"`
	// Width is the horizontal extent of the box.
	Width float32 `json:"width" yaml:"width"`
	// Height is the vertical extent of the box.
	Height float32 `json:"height" yaml:"height"`
	// Probability is the winning class score, in [0, 1].
	Probability float32 `json:"probability" yaml:"probability"`
	// LabelIndex is the 0-based class id.
	LabelIndex int `json:"labelIndex" yaml:"labelIndex"`
}

// Box returns the detection geometry as a center-form box.
func (d Detection) Box() images.Box {
	return images.Box{X: d.X, Y: d.Y, W: d.Width, H: d.Height}
}

// Rect returns the detection as pixel corners. Only meaningful for absolute coordinates.
func (d Detection) Rect() images.Rect {
	return d.Box().Rect()
}

// Label returns the name for the detection's class, or "" when labels does not cover it.
func (d Detection) Label(labels []string) string {
	if d.LabelIndex < 0 || d.LabelIndex >= len(labels) {
		return ""
	}
	return labels[d.LabelIndex]
}

// candidates is the decoded, not yet thresholded, form of one inference pass:
// one box per anchor location and a flat classes-wide probability row per box.
type candidates struct {
	classes int
	boxes   []images.Box
	probs   []float32
	best    []float32
	order   []int
}

// reset sizes the scratch buffers for n candidates, reusing capacity.
func (c *candidates) reset(n, classes int) {
	c.classes = classes
	c.boxes = grow(c.boxes, n)
	c.best = grow(c.best, n)
	c.probs = grow(c.probs, n*classes)
	clear(c.probs)
	clear(c.best)
}

func (c *candidates) len() int { return len(c.boxes) }

// prob returns the probability row of candidate i.
func (c *candidates) prob(i int) []float32 {
	return c.probs[i*c.classes : (i+1)*c.classes]
}

func grow[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	return s[:n]
}

// argmax returns the first index holding the largest value.
func argmax(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
