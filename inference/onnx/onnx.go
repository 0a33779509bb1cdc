package onnx

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-darknet/inference"
	"github.com/nvr-ai/go-darknet/inference/providers"
	"github.com/nvr-ai/go-darknet/postprocess"
)

// Predictor runs an ONNX model through ONNX Runtime.
type Predictor struct {
	inference.Dims

	mu      sync.Mutex
	config  *NetworkConfig
	session *providers.Session
	logger  *zap.Logger
}

var (
	_ inference.Predictor      = (*Predictor)(nil)
	_ inference.LayoutProvider = (*Predictor)(nil)
)

// NewPredictor returns a predictor that still needs Setup.
func NewPredictor(logger *zap.Logger) *Predictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Predictor{logger: logger}
}

// Setup loads the YAML network description and the .onnx weights.
//
// Arguments:
//   - networkConfigPath: The YAML network description.
//   - weightsPath: The .onnx model.
//
// Returns:
//   - error: ErrAlreadySetup, ErrFileNotFound, ErrInvalidNetwork or a runtime error.
func (p *Predictor) Setup(networkConfigPath, weightsPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session != nil {
		return inference.ErrAlreadySetup
	}
	if err := inference.CheckFiles(networkConfigPath, weightsPath); err != nil {
		return err
	}
	cfg, err := LoadNetworkConfig(networkConfigPath)
	if err != nil {
		return err
	}

	if len(cfg.Output.Shape) == 0 {
		outputs, err := providers.ModelOutputs(cfg.Runtime.LibraryPath, weightsPath)
		if err != nil {
			return err
		}
		if len(outputs) == 0 {
			return errors.Wrap(inference.ErrInvalidNetwork, "model has no outputs")
		}
		for _, o := range outputs {
			if cfg.Output.Name == "" || o.Name == cfg.Output.Name {
				cfg.Output = o
				break
			}
		}
		if cfg.Output.Size() <= 0 {
			return errors.Wrapf(inference.ErrInvalidNetwork, "output %q has no static shape", cfg.Output.Name)
		}
	}

	session, err := providers.NewSession(providers.NewSessionArgs{
		ModelPath: weightsPath,
		Input:     cfg.Input.Spec(),
		Output:    cfg.Output,
		Provider:  cfg.Runtime,
	})
	if err != nil {
		return err
	}

	p.session = session
	p.config = cfg
	p.Dims = inference.Dims{W: cfg.Input.Width, H: cfg.Input.Height, C: cfg.Input.Channels, B: cfg.Input.Batch}

	p.logger.Info("onnx network loaded",
		zap.String("model", weightsPath),
		zap.String("backend", string(cfg.Runtime.Backend)),
		zap.Int64s("output", cfg.Output.Shape),
	)
	return nil
}

// Predict copies blob into the input tensor and runs the model.
func (p *Predictor) Predict(blob []float32) error {
	if p.session == nil {
		return inference.ErrNotSetup
	}
	if err := p.CheckInput(blob); err != nil {
		return err
	}
	copy(p.session.Input.GetData(), blob)
	if err := p.session.Run(); err != nil {
		return errors.Wrap(err, "running onnx session")
	}
	return nil
}

// Output returns the output tensor data, overwritten by the next Predict.
func (p *Predictor) Output() []float32 {
	if p.session == nil {
		return nil
	}
	return p.session.Output.GetData()
}

// Layout returns the output layout from the network description.
func (p *Predictor) Layout() postprocess.Layout {
	if p.config == nil {
		return postprocess.Layout{}
	}
	return p.config.Layout
}

// Close releases the session. The predictor can be set up again afterwards.
func (p *Predictor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.session == nil {
		return nil
	}
	err := p.session.Close()
	p.session = nil
	p.config = nil
	p.Dims = inference.Dims{}
	return err
}
