package inference

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-darknet/postprocess"
	"github.com/nvr-ai/go-darknet/preprocess"
)

// Detector runs preprocessing, inference and post-processing in sequence on
// the calling goroutine. It is the synchronous counterpart of the pipeline and
// also supplies the pipeline's preprocess and post-process steps.
type Detector struct {
	predictor Predictor
	pre       *preprocess.Preprocessor
	post      *postprocess.PostProcessor
	params    postprocess.Params
	labels    []string
	logger    *zap.Logger
}

// Predictor returns the wrapped predictor.
func (d *Detector) Predictor() Predictor { return d.predictor }

// Labels returns the class names the detector checks against.
func (d *Detector) Labels() []string { return d.labels }

// Params returns the post-processing parameters. Output size is filled per frame.
func (d *Detector) Params() postprocess.Params { return d.params }

// SetParams replaces the post-processing parameters.
func (d *Detector) SetParams(p postprocess.Params) { d.params = p }

// Layout returns the output layout used for decoding.
func (d *Detector) Layout() postprocess.Layout { return d.post.Layout() }

// Preprocess converts a frame into the network blob. The returned slice is
// owned by the detector and overwritten by the next call.
func (d *Detector) Preprocess(frame gocv.Mat) ([]float32, error) {
	return d.pre.Run(frame)
}

// Decode post-processes the predictor's current output for a frame of the
// given size. Passing 0x0 keeps coordinates relative.
//
// Arguments:
//   - width: The width of the frame the detections are reported against.
//   - height: The height of the frame the detections are reported against.
//
// Returns:
//   - []postprocess.Detection: A fresh slice of detections.
//   - error: Any post-processing error.
func (d *Detector) Decode(width, height int) ([]postprocess.Detection, error) {
	params := d.params
	params.OutputWidth = width
	params.OutputHeight = height

	if err := d.post.Process(d.predictor.Output(), params); err != nil {
		return nil, err
	}
	out := make([]postprocess.Detection, d.post.NumDetections())
	if _, err := d.post.CopyDetections(out); err != nil {
		return nil, err
	}
	return out, nil
}

// Detect runs the whole chain on one frame and reports detections in frame pixels.
func (d *Detector) Detect(frame gocv.Mat) ([]postprocess.Detection, error) {
	blob, err := d.Preprocess(frame)
	if err != nil {
		return nil, errors.Wrap(err, "preprocess")
	}
	if err := d.predictor.Predict(blob); err != nil {
		return nil, errors.Wrap(err, "predict")
	}
	dets, err := d.Decode(frame.Cols(), frame.Rows())
	if err != nil {
		return nil, errors.Wrap(err, "postprocess")
	}
	d.logger.Debug("detected", zap.Int("count", len(dets)))
	return dets, nil
}

// Close releases the preprocessor. The predictor is closed by its owner.
func (d *Detector) Close() error {
	return d.pre.Close()
}

// DetectorBuilder assembles a Detector with a fluent API. The first error is
// kept and returned by Build.
type DetectorBuilder struct {
	predictor  Predictor
	layout     *postprocess.Layout
	params     postprocess.Params
	labels     []string
	channelMap []int
	logger     *zap.Logger
	err        error
}

// NewDetectorBuilder creates a new detector builder with the darknet demo thresholds.
//
// Returns:
//   - *DetectorBuilder: The detector builder.
func NewDetectorBuilder() *DetectorBuilder {
	return &DetectorBuilder{
		params: postprocess.Params{
			Confidence:    0.24,
			NMS:           0.4,
			HierThreshold: 0.5,
		},
		logger: zap.NewNop(),
	}
}

// WithPredictor sets the predictor.
//
// Arguments:
//   - p: The predictor, set up already or set up later through WithNetwork.
//
// Returns:
//   - *DetectorBuilder: The detector builder.
func (b *DetectorBuilder) WithPredictor(p Predictor) *DetectorBuilder {
	if b.HasError() {
		return b
	}
	b.predictor = p
	return b
}

// WithNetwork sets up the predictor from a network config and weights.
//
// Arguments:
//   - cfgPath: The network description.
//   - weightsPath: The trained weights.
//
// Returns:
//   - *DetectorBuilder: The detector builder.
func (b *DetectorBuilder) WithNetwork(cfgPath, weightsPath string) *DetectorBuilder {
	if b.HasError() {
		return b
	}
	if b.predictor == nil {
		b.err = errors.New("predictor not configured")
		return b
	}
	if err := b.predictor.Setup(cfgPath, weightsPath); err != nil {
		b.err = errors.Wrap(err, "setting up predictor")
	}
	return b
}

// WithLabels sets the class names.
func (b *DetectorBuilder) WithLabels(labels []string) *DetectorBuilder {
	if b.HasError() {
		return b
	}
	b.labels = labels
	return b
}

// WithLabelsFile loads the class names from a label file.
func (b *DetectorBuilder) WithLabelsFile(path string) *DetectorBuilder {
	if b.HasError() {
		return b
	}
	labels, err := LoadLabels(path)
	if err != nil {
		b.err = err
		return b
	}
	b.labels = labels
	return b
}

// WithLayout overrides the output layout reported by the predictor.
func (b *DetectorBuilder) WithLayout(l postprocess.Layout) *DetectorBuilder {
	if b.HasError() {
		return b
	}
	b.layout = &l
	return b
}

// WithParams sets the post-processing parameters.
func (b *DetectorBuilder) WithParams(p postprocess.Params) *DetectorBuilder {
	if b.HasError() {
		return b
	}
	b.params = p
	return b
}

// WithChannelMap sets the channel order of the blob.
func (b *DetectorBuilder) WithChannelMap(m []int) *DetectorBuilder {
	if b.HasError() {
		return b
	}
	b.channelMap = m
	return b
}

// WithLogger sets the logger.
func (b *DetectorBuilder) WithLogger(l *zap.Logger) *DetectorBuilder {
	if b.HasError() {
		return b
	}
	if l != nil {
		b.logger = l
	}
	return b
}

// HasError checks if the detector builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *DetectorBuilder) HasError() bool {
	return b.err != nil
}

// MustBuild builds the detector and panics if there is an error.
func (b *DetectorBuilder) MustBuild() *Detector {
	d, err := b.Build()
	if err != nil {
		panic(err)
	}
	return d
}

// Build builds the detector.
//
// Returns:
//   - *Detector: The detector.
//   - error: The first error recorded by the builder, ErrNotSetup, or a configuration error.
func (b *DetectorBuilder) Build() (*Detector, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.predictor == nil {
		return nil, errors.New("predictor not configured")
	}
	if b.predictor.Width() == 0 {
		return nil, ErrNotSetup
	}

	var layout postprocess.Layout
	switch {
	case b.layout != nil:
		layout = *b.layout
	case isLayoutProvider(b.predictor):
		layout = b.predictor.(LayoutProvider).Layout()
	default:
		return nil, errors.Wrap(postprocess.ErrInvalidLayout, "predictor does not report a layout")
	}
	if layout.NetWidth == 0 && layout.NetHeight == 0 {
		layout.NetWidth = b.predictor.Width()
		layout.NetHeight = b.predictor.Height()
	}

	channelMap := b.channelMap
	if channelMap == nil && b.predictor.Channels() != 3 {
		channelMap = make([]int, b.predictor.Channels())
		for i := range channelMap {
			channelMap[i] = i
		}
	}

	pre, err := preprocess.New(preprocess.Config{
		Width:      b.predictor.Width(),
		Height:     b.predictor.Height(),
		Batch:      b.predictor.Batch(),
		ChannelMap: channelMap,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating preprocessor")
	}
	if pre.Config().Channels() != b.predictor.Channels() {
		pre.Close()
		return nil, errors.Wrapf(preprocess.ErrChannelMismatch, "network expects %d channels", b.predictor.Channels())
	}

	post, err := postprocess.NewPostProcessor(layout, b.labels)
	if err != nil {
		pre.Close()
		return nil, err
	}

	b.logger.Info("detector ready",
		zap.Int("width", b.predictor.Width()),
		zap.Int("height", b.predictor.Height()),
		zap.Int("channels", b.predictor.Channels()),
		zap.Int("batch", b.predictor.Batch()),
		zap.String("format", string(layout.Format)),
		zap.Int("classes", layout.Classes),
		zap.Int("labels", len(b.labels)),
	)

	return &Detector{
		predictor: b.predictor,
		pre:       pre,
		post:      post,
		params:    b.params,
		labels:    b.labels,
		logger:    b.logger,
	}, nil
}

func isLayoutProvider(p Predictor) bool {
	_, ok := p.(LayoutProvider)
	return ok
}
