package providers

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	ort "github.com/yalue/onnxruntime_go"
)

// TensorSpec names a model input or output and fixes its shape.
type TensorSpec struct {
	Name  string  `json:"name"  yaml:"name"`
	Shape []int64 `json:"shape" yaml:"shape"`
}

// Size returns the number of elements of the tensor.
func (s TensorSpec) Size() int64 {
	if len(s.Shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range s.Shape {
		n *= d
	}
	return n
}

// Session represents a model session from the onnxruntime with preallocated
// float32 tensors bound to one input and one output.
type Session struct {
	Session *ort.AdvancedSession
	Input   *ort.Tensor[float32]
	Output  *ort.Tensor[float32]
}

// NewSessionArgs represents the arguments for creating a new session.
type NewSessionArgs struct {
	// The path to the ONNX model file.
	ModelPath string
	// The input of the model.
	Input TensorSpec
	// The output of the model.
	Output TensorSpec
	// The execution provider configuration.
	Provider Config
}

// NewSession creates a new ONNX Runtime session.
//
// Order of operations:
//  1. Environment setup: loads the native library once per process.
//  2. Tensor allocation: fixed-shape buffers for input and output data.
//  3. Session options: threading, optimization level and execution provider.
//  4. Session creation: loads the model and binds the tensors.
//
// Arguments:
//   - args: The arguments for the session.
//
// Returns:
//   - *Session: The session with its bound tensors. The caller closes it.
//   - error: An error if the session creation fails.
func NewSession(args NewSessionArgs) (*Session, error) {
	if args.Input.Size() <= 0 || args.Output.Size() <= 0 {
		return nil, errors.New("input and output shapes must be positive")
	}
	if err := Initialize(args.Provider.LibraryPath); err != nil {
		return nil, err
	}

	s := &Session{}
	var err error
	s.Input, err = ort.NewEmptyTensor[float32](ort.NewShape(args.Input.Shape...))
	if err != nil {
		return nil, errors.Wrap(err, "creating input tensor")
	}
	s.Output, err = ort.NewEmptyTensor[float32](ort.NewShape(args.Output.Shape...))
	if err != nil {
		s.Close()
		return nil, errors.Wrap(err, "creating output tensor")
	}

	options, err := SessionOptions(args.Provider)
	if err != nil {
		s.Close()
		return nil, err
	}
	defer options.Destroy()

	s.Session, err = ort.NewAdvancedSession(
		args.ModelPath,
		[]string{args.Input.Name},
		[]string{args.Output.Name},
		[]ort.Value{s.Input},
		[]ort.Value{s.Output},
		options,
	)
	if err != nil {
		s.Close()
		return nil, errors.Wrapf(err, "creating session for %s", args.ModelPath)
	}
	return s, nil
}

// Run executes the model on the current input tensor contents.
func (s *Session) Run() error {
	return s.Session.Run()
}

// Close releases the resources associated with the Session.
func (s *Session) Close() error {
	var err error
	if s.Session != nil {
		err = multierr.Append(err, s.Session.Destroy())
		s.Session = nil
	}
	if s.Input != nil {
		err = multierr.Append(err, s.Input.Destroy())
		s.Input = nil
	}
	if s.Output != nil {
		err = multierr.Append(err, s.Output.Destroy())
		s.Output = nil
	}
	return err
}

// ModelOutputs lists the outputs of a model file and their shapes.
func ModelOutputs(libPath, modelPath string) ([]TensorSpec, error) {
	if err := Initialize(libPath); err != nil {
		return nil, err
	}
	_, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, errors.Wrapf(err, "reading outputs of %s", modelPath)
	}
	specs := make([]TensorSpec, len(outputs))
	for i, o := range outputs {
		specs[i] = TensorSpec{Name: o.Name, Shape: append([]int64(nil), o.Dimensions...)}
	}
	return specs, nil
}
