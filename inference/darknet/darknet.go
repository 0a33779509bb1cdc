package darknet

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-darknet/inference"
	"github.com/nvr-ai/go-darknet/postprocess"
)

// Options selects the OpenCV DNN backend and target.
type Options struct {
	Backend gocv.NetBackendType
	Target  gocv.NetTargetType
}

// Predictor runs darknet networks with the OpenCV DNN module. The network
// always runs with batch size 1, whatever the training batch in the .cfg is.
//
// OpenCV's region and yolo layers emit one row per candidate with the box,
// objectness and class scores already scaled by objectness, so the layout
// reported is postprocess.FormatRows.
type Predictor struct {
	inference.Dims

	mu      sync.Mutex
	opts    Options
	cfg     *Config
	net     *gocv.Net
	blob    gocv.Mat
	outputs []string
	output  []float32
	logger  *zap.Logger
}

var (
	_ inference.Predictor      = (*Predictor)(nil)
	_ inference.LayoutProvider = (*Predictor)(nil)
)

// NewPredictor returns a predictor that still needs Setup.
func NewPredictor(opts Options, logger *zap.Logger) *Predictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Predictor{opts: opts, logger: logger}
}

// Setup reads the .cfg geometry and loads the network with its weights.
//
// Arguments:
//   - networkConfigPath: The darknet .cfg.
//   - weightsPath: The darknet .weights.
//
// Returns:
//   - error: ErrAlreadySetup, ErrFileNotFound, ErrInvalidNetwork or a load error.
func (p *Predictor) Setup(networkConfigPath, weightsPath string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.net != nil {
		return inference.ErrAlreadySetup
	}
	if err := inference.CheckFiles(networkConfigPath, weightsPath); err != nil {
		return err
	}
	cfg, err := LoadConfig(networkConfigPath)
	if err != nil {
		return err
	}

	net := gocv.ReadNetFromDarknet(networkConfigPath, weightsPath)
	if net.Empty() {
		net.Close()
		return errors.Wrapf(inference.ErrInvalidNetwork, "opencv could not load %s", networkConfigPath)
	}
	net.SetPreferableBackend(p.opts.Backend)
	net.SetPreferableTarget(p.opts.Target)

	names := net.GetLayerNames()
	var outputs []string
	for _, id := range net.GetUnconnectedOutLayers() {
		if id-1 >= 0 && id-1 < len(names) {
			outputs = append(outputs, names[id-1])
		}
	}
	if len(outputs) == 0 {
		net.Close()
		return errors.Wrap(inference.ErrInvalidNetwork, "network has no output layers")
	}

	p.net = &net
	p.cfg = cfg
	p.outputs = outputs
	p.Dims = inference.Dims{W: cfg.Width, H: cfg.Height, C: cfg.Channels, B: 1}
	p.blob = gocv.NewMatWithSizes([]int{1, cfg.Channels, cfg.Height, cfg.Width}, gocv.MatTypeCV32F)

	p.logger.Info("darknet network loaded",
		zap.String("cfg", networkConfigPath),
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height),
		zap.Int("classes", cfg.Classes),
		zap.Strings("outputs", outputs),
	)
	return nil
}

// Predict copies blob into the network input and runs a forward pass over all output layers.
func (p *Predictor) Predict(blob []float32) error {
	if p.net == nil {
		return inference.ErrNotSetup
	}
	if err := p.CheckInput(blob); err != nil {
		return err
	}

	input, err := p.blob.DataPtrFloat32()
	if err != nil {
		return errors.Wrap(err, "accessing input blob")
	}
	copy(input, blob)
	p.net.SetInput(p.blob, "")

	outs := p.net.ForwardLayers(p.outputs)
	defer func() {
		for i := range outs {
			outs[i].Close()
		}
	}()

	p.output = p.output[:0]
	for _, m := range outs {
		data, err := m.DataPtrFloat32()
		if err != nil {
			return errors.Wrap(err, "reading network output")
		}
		p.output = append(p.output, data...)
	}
	return nil
}

// Output returns the concatenated rows of all output layers.
func (p *Predictor) Output() []float32 { return p.output }

// Layout returns the row layout OpenCV produces for the network.
func (p *Predictor) Layout() postprocess.Layout {
	if p.cfg == nil {
		return postprocess.Layout{}
	}
	return postprocess.Layout{
		Format:    postprocess.FormatRows,
		Classes:   p.cfg.Classes,
		NetWidth:  p.cfg.Width,
		NetHeight: p.cfg.Height,
	}
}

// Close releases the network.
func (p *Predictor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.net == nil {
		return nil
	}
	err := p.net.Close()
	p.blob.Close()
	p.net = nil
	p.cfg = nil
	p.output = nil
	p.Dims = inference.Dims{}
	return err
}
