package postprocess

import (
	"github.com/pkg/errors"
)

// Params are the per-call tunables of post-processing.
type Params struct {
	// OutputWidth and OutputHeight are the size of the frame the detections are
	// reported against. When both are zero coordinates stay relative, in [0, 1].
	OutputWidth  int `json:"outputWidth"  yaml:"outputWidth"`
	OutputHeight int `json:"outputHeight" yaml:"outputHeight"`
	// Confidence is the strict lower bound on the reported probability.
	Confidence float32 `json:"confidence" yaml:"confidence"`
	// NMS is the IoU above which overlapping boxes are suppressed. Zero disables suppression.
	NMS float32 `json:"nms" yaml:"nms"`
	// HierThreshold is handed to the decoder untouched. Flat label spaces ignore it.
	HierThreshold float32 `json:"hierThreshold" yaml:"hierThreshold"`
	// NMSMode groups candidates for suppression, NMSPerClass when empty.
	NMSMode NMSMode `json:"nmsMode" yaml:"nmsMode"`
	// BatchIndex selects the batch entry to decode.
	BatchIndex int `json:"batchIndex" yaml:"batchIndex"`
}

// Relative reports whether the detections stay in network-relative coordinates.
func (p Params) Relative() bool {
	return p.OutputWidth == 0 && p.OutputHeight == 0
}

func (p Params) nmsMode() NMSMode {
	if p.NMSMode == "" {
		return NMSPerClass
	}
	return p.NMSMode
}

// Detect decodes one batch entry of raw network output into detections.
//
// Every anchor location yields a candidate with a class probability vector.
// With params.NMS > 0 overlapping candidates are suppressed by zeroing their
// probabilities. Each candidate then reports its best class if that class's
// probability is strictly above params.Confidence. The result keeps decode
// order.
//
// Arguments:
//   - raw: The predictor output for the whole batch.
//   - layout: How raw is laid out.
//   - params: Thresholds, output size and batch index.
//   - labels: Known class names. A reported class without a name fails the call; nil disables the check.
//
// Returns:
//   - []Detection: The detections, never aliasing a previous result.
//   - error: ErrLabelOutOfRange, ErrOutputSize, ErrBatchIndex or ErrInvalidLayout.
func Detect(raw []float32, layout Layout, params Params, labels []string) ([]Detection, error) {
	var c candidates
	return detect(&c, raw, layout, params, labels)
}

func detect(c *candidates, raw []float32, layout Layout, params Params, labels []string) ([]Detection, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if err := decode(c, raw, layout, params); err != nil {
		return nil, err
	}

	if params.NMS > 0 {
		suppress(c, params.NMS, params.nmsMode())
	}

	var detections []Detection
	for i := 0; i < c.len(); i++ {
		probs := c.prob(i)
		class := argmax(probs)
		prob := probs[class]
		if prob <= params.Confidence {
			continue
		}
		if labels != nil && class >= len(labels) {
			return nil, errors.Wrapf(ErrLabelOutOfRange, "class %d with %d labels", class, len(labels))
		}

		b := c.boxes[i]
		detections = append(detections, Detection{
			X:           b.X,
			Y:           b.Y,
			Width:       b.W,
			Height:      b.H,
			Probability: prob,
			LabelIndex:  class,
		})
	}
	return detections, nil
}

// PostProcessor keeps the detections of the last processed inference and the
// decode scratch buffers between calls.
//
// A PostProcessor is not safe for concurrent use.
type PostProcessor struct {
	layout     Layout
	labels     []string
	scratch    candidates
	detections []Detection
}

// NewPostProcessor validates layout and returns a post-processor for it.
func NewPostProcessor(layout Layout, labels []string) (*PostProcessor, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	return &PostProcessor{layout: layout, labels: labels}, nil
}

// Layout returns the layout the post-processor decodes.
func (p *PostProcessor) Layout() Layout { return p.layout }

// SetLayout replaces the layout, for predictors whose row count is only known
// after the first inference.
func (p *PostProcessor) SetLayout(layout Layout) error {
	if err := layout.Validate(); err != nil {
		return err
	}
	p.layout = layout
	return nil
}

// Process decodes raw into a new detection list that replaces the previous one.
// On failure the previous list is cleared, so a failed cycle never exposes
// stale detections.
func (p *PostProcessor) Process(raw []float32, params Params) error {
	detections, err := detect(&p.scratch, raw, p.layout, params, p.labels)
	p.detections = detections
	return err
}

// Detections returns the list computed by the last Process call.
func (p *PostProcessor) Detections() []Detection { return p.detections }

// NumDetections returns the length of the last list.
func (p *PostProcessor) NumDetections() int { return len(p.detections) }

// CopyDetections copies the last list into dst.
//
// Returns:
//   - int: The number of detections copied.
//   - error: ErrBufferTooSmall when len(dst) < NumDetections; nothing is copied then.
func (p *PostProcessor) CopyDetections(dst []Detection) (int, error) {
	if len(dst) < len(p.detections) {
		return 0, errors.Wrapf(ErrBufferTooSmall, "need %d, have %d", len(p.detections), len(dst))
	}
	return copy(dst, p.detections), nil
}
