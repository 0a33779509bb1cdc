// Package inference - The predictor capability and the detector built on top of it.
package inference

import (
	"os"

	"github.com/pkg/errors"

	"github.com/nvr-ai/go-darknet/postprocess"
)

var (
	// ErrFileNotFound is returned by Setup when the network config or weights are missing.
	ErrFileNotFound = errors.New("file not found")
	// ErrAlreadySetup is returned by Setup on a predictor that is already set up.
	ErrAlreadySetup = errors.New("predictor already set up")
	// ErrNotSetup is returned by Predict before Setup succeeded.
	ErrNotSetup = errors.New("predictor not set up")
	// ErrInputSize is returned by Predict when the blob length is not width*height*channels*batch.
	ErrInputSize = errors.New("input size does not match the network")
	// ErrInvalidNetwork is returned by Setup when the network config cannot be used.
	ErrInvalidNetwork = errors.New("invalid network config")
)

// Predictor owns a network and runs blocking inference on preprocessed blobs.
//
// Implementations are not safe for concurrent use: callers must not call
// Predict while another Predict is running or read Output during a Predict.
type Predictor interface {
	// Setup loads the network description and its weights. It fails with
	// ErrFileNotFound for missing files and ErrAlreadySetup when called twice.
	Setup(networkConfigPath, weightsPath string) error
	// Predict runs the network on blob, which must hold exactly
	// Width*Height*Channels*Batch values.
	Predict(blob []float32) error
	// Output returns the raw output of the last Predict for the whole batch.
	// The slice is owned by the predictor and overwritten by the next Predict.
	Output() []float32
	// Width, Height, Channels and Batch describe the network input; all are 0 before Setup.
	Width() int
	Height() int
	Channels() int
	Batch() int
	// Close releases the network.
	Close() error
}

// LayoutProvider is implemented by predictors that know how their raw output
// is laid out for detection.
type LayoutProvider interface {
	Layout() postprocess.Layout
}

// Dims holds the input geometry of a network. Predictors embed it to provide
// the dimension accessors; the zero value reports 0 everywhere, as required
// before Setup.
type Dims struct {
	W, H, C, B int
}

// Width returns the network input width.
func (d Dims) Width() int { return d.W }

// Height returns the network input height.
func (d Dims) Height() int { return d.H }

// Channels returns the network input channel count.
func (d Dims) Channels() int { return d.C }

// Batch returns the network batch size.
func (d Dims) Batch() int { return d.B }

// InputSize returns the number of floats Predict expects.
func (d Dims) InputSize() int { return d.W * d.H * d.C * d.B }

// CheckInput returns ErrInputSize when blob does not fit d.
func (d Dims) CheckInput(blob []float32) error {
	if len(blob) != d.InputSize() {
		return errors.Wrapf(ErrInputSize, "expected %d values, got %d", d.InputSize(), len(blob))
	}
	return nil
}

// CheckFiles returns ErrFileNotFound for the first path that does not exist.
func CheckFiles(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				return errors.Wrapf(ErrFileNotFound, "%s", p)
			}
			return errors.Wrapf(err, "checking %s", p)
		}
	}
	return nil
}
