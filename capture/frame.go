// Package capture - Frame sources and sinks built on OpenCV.
package capture

import (
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ErrCapture is returned when a device or file stops delivering frames unexpectedly.
var ErrCapture = errors.New("capture failed")

// Frame is one captured BGR image. The frame owns its Mat.
type Frame struct {
	// Mat is the BGR image.
	Mat gocv.Mat
	// Index is the position of the frame in its source: 0-based for video,
	// the number parsed from the file name for directories.
	Index int
	// Time is when the frame was read.
	Time time.Time
}

// Close releases the image.
func (f Frame) Close() error {
	return f.Mat.Close()
}

// Width returns the image width.
func (f Frame) Width() int { return f.Mat.Cols() }

// Height returns the image height.
func (f Frame) Height() int { return f.Mat.Rows() }
