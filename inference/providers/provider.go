// Package providers - ONNX Runtime execution providers and sessions.
package providers

import (
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

// ProviderBackend represents different ONNX Runtime execution providers
type ProviderBackend string

const (
	// CPUProviderBackend runs on the default CPU provider.
	CPUProviderBackend ProviderBackend = "cpu"
)

// ErrUnsupportedBackend is returned for backends the runtime cannot be configured with.
var ErrUnsupportedBackend = errors.New("unsupported execution provider backend")

// Config selects and tunes the execution provider of a session.
type Config struct {
	// Backend specifies the backend to use. Empty means CPU.
	Backend ProviderBackend `json:"backend" yaml:"backend"`

	// CUDA, CoreML and OpenVINO hold the options of their backend.
	CUDA     CUDAOptions     `json:"cuda"     yaml:"cuda"`
	CoreML   CoreMLOptions   `json:"coreml"   yaml:"coreml"`
	OpenVINO OpenVINOOptions `json:"openvino" yaml:"openvino"`

	// Optimization controls graph optimization and threading.
	Optimization OptimizationConfig `json:"optimization" yaml:"optimization"`

	// LibraryPath overrides the location of the ONNX Runtime shared library.
	LibraryPath string `json:"libraryPath" yaml:"libraryPath"`
}

// Validate checks that the backend is known and the options are usable.
func (c Config) Validate() error {
	switch c.Backend {
	case "", CPUProviderBackend, CUDAProviderBackend, CoreMLProviderBackend, OpenVINOProviderBackend:
	default:
		return errors.Wrapf(ErrUnsupportedBackend, "%q", c.Backend)
	}
	return c.Optimization.Validate()
}

// SessionOptions creates ONNX Runtime session options for the config. The
// caller destroys the returned options once the session is created.
//
// Arguments:
//   - c: The provider configuration.
//
// Returns:
//   - *ort.SessionOptions: Configured session options.
//   - error: Configuration error if any.
func SessionOptions(c Config) (*ort.SessionOptions, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "creating session options")
	}
	if err := c.Optimization.apply(options); err != nil {
		options.Destroy()
		return nil, err
	}

	switch c.Backend {
	case CUDAProviderBackend:
		err = c.CUDA.apply(options)
	case CoreMLProviderBackend:
		err = c.CoreML.apply(options)
	case OpenVINOProviderBackend:
		err = c.OpenVINO.apply(options)
	}
	if err != nil {
		options.Destroy()
		return nil, errors.Wrapf(err, "enabling %s", c.Backend)
	}
	return options, nil
}
