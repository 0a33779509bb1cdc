package postprocess

import (
	"github.com/pkg/errors"
)

// Format identifies how a network lays out its raw predictions.
type Format string

const (
	// FormatRegion is the dense YOLOv2 region grid: for every anchor, Coords+1+Classes
	// planes of GridWidth*GridHeight values (box, objectness, class probabilities).
	FormatRegion Format = "region"
	// FormatRows is one row of Coords+1+Classes values per candidate with the box
	// already decoded relative to the network input, as produced by OpenCV DNN.
	FormatRows Format = "rows"
)

// defaultCoords is the number of box values per prediction.
const defaultCoords = 4

// Layout describes the raw output tensor of a detection network for one batch entry.
type Layout struct {
	// Format selects the decoder.
	Format Format `json:"format" yaml:"format"`
	// GridWidth and GridHeight are the region grid size.
	GridWidth  int `json:"gridWidth"  yaml:"gridWidth"`
	GridHeight int `json:"gridHeight" yaml:"gridHeight"`
	// Anchors is the number of boxes predicted per grid cell.
	Anchors int `json:"anchors" yaml:"anchors"`
	// Rows is the number of candidates per batch entry in FormatRows. Zero means
	// the whole output belongs to a single batch entry.
	Rows int `json:"rows" yaml:"rows"`
	// Classes is the number of classes the network predicts.
	Classes int `json:"classes" yaml:"classes"`
	// Coords is the number of box values, 4 when zero.
	Coords int `json:"coords" yaml:"coords"`
	// Biases holds the anchor width/height pairs in grid cells.
	Biases []float32 `json:"biases" yaml:"biases"`
	// Background disables objectness scaling of class probabilities.
	Background bool `json:"background" yaml:"background"`
	// Activate applies the logistic and softmax activations while decoding, for
	// exported networks that leave them out of the graph.
	Activate bool `json:"activate" yaml:"activate"`
	// ConditionalScores marks FormatRows class scores as conditional on
	// objectness, so they are multiplied by it while decoding.
	ConditionalScores bool `json:"conditionalScores" yaml:"conditionalScores"`
	// NetWidth and NetHeight are the network input size, used to undo the letterbox.
	NetWidth  int `json:"netWidth"  yaml:"netWidth"`
	NetHeight int `json:"netHeight" yaml:"netHeight"`
}

func (l Layout) coords() int {
	if l.Coords == 0 {
		return defaultCoords
	}
	return l.Coords
}

// Stride returns the number of values describing one candidate.
func (l Layout) Stride() int {
	return l.coords() + 1 + l.Classes
}

// Candidates returns the number of candidate boxes per batch entry, given the
// length of the full raw output.
func (l Layout) Candidates(rawLen int) int {
	switch l.Format {
	case FormatRegion:
		return l.GridWidth * l.GridHeight * l.Anchors
	case FormatRows:
		if l.Rows > 0 {
			return l.Rows
		}
		return rawLen / l.Stride()
	}
	return 0
}

// OutputSize returns the number of raw values per batch entry.
func (l Layout) OutputSize(rawLen int) int {
	return l.Candidates(rawLen) * l.Stride()
}

// Validate checks that the layout can be decoded.
func (l Layout) Validate() error {
	if l.Classes <= 0 {
		return errors.Wrapf(ErrInvalidLayout, "classes must be positive, got %d", l.Classes)
	}
	switch l.Format {
	case FormatRegion:
		if l.GridWidth <= 0 || l.GridHeight <= 0 || l.Anchors <= 0 {
			return errors.Wrapf(ErrInvalidLayout, "region grid %dx%dx%d", l.GridWidth, l.GridHeight, l.Anchors)
		}
		if len(l.Biases) < 2*l.Anchors {
			return errors.Wrapf(ErrInvalidLayout, "%d anchors need %d biases, got %d", l.Anchors, 2*l.Anchors, len(l.Biases))
		}
	case FormatRows:
		if l.Rows < 0 {
			return errors.Wrapf(ErrInvalidLayout, "rows must not be negative, got %d", l.Rows)
		}
	default:
		return errors.Wrapf(ErrInvalidLayout, "unknown format %q", l.Format)
	}
	return nil
}
