package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"strconv"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-darknet/postprocess"
)

var palette = [6][3]float32{{1, 0, 1}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}, {1, 1, 0}, {1, 0, 0}}

// paletteChannel interpolates channel c of the darknet colour ramp at x of limit.
func paletteChannel(c, x, limit int) float32 {
	ratio := float32(x) / float32(limit) * 5
	i := int(math32.Floor(ratio))
	j := int(math32.Ceil(ratio))
	ratio -= float32(i)
	return (1-ratio)*palette[i][c] + ratio*palette[j][c]
}

// ClassColor returns a stable colour for a class, spread over the darknet colour ramp.
func ClassColor(class, classes int) color.RGBA {
	if classes <= 0 {
		classes = 1
	}
	offset := class * 123457 % classes
	return color.RGBA{
		R: uint8(255 * paletteChannel(2, offset, classes)),
		G: uint8(255 * paletteChannel(1, offset, classes)),
		B: uint8(255 * paletteChannel(0, offset, classes)),
		A: 0,
	}
}

// DrawDetections draws a box and a caption for every detection. Detections
// are expected in img pixel coordinates.
//
// Arguments:
//   - img: The BGR image to draw on.
//   - detections: Boxes to draw.
//   - labels: Class names for the captions; the class index is shown when nil.
//   - classes: The number of classes, used to pick colours.
func DrawDetections(img *gocv.Mat, detections []postprocess.Detection, labels []string, classes int) {
	thickness := max(1, img.Rows()/300)
	for _, d := range detections {
		r := d.Rect().Image().Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
		if r.Empty() {
			continue
		}
		c := ClassColor(d.LabelIndex, classes)
		gocv.Rectangle(img, r, c, thickness)

		name := d.Label(labels)
		if name == "" {
			name = strconv.Itoa(d.LabelIndex)
		}
		caption := fmt.Sprintf("%s %.0f%%", name, d.Probability*100)
		size := gocv.GetTextSize(caption, gocv.FontHersheySimplex, 0.5, 1)
		top := max(r.Min.Y, size.Y+4)
		gocv.Rectangle(img, image.Rect(r.Min.X, top-size.Y-4, r.Min.X+size.X+4, top), c, -1)
		gocv.PutText(img, caption, image.Pt(r.Min.X+2, top-2), gocv.FontHersheySimplex, 0.5, color.RGBA{A: 0}, 1)
	}
}

// Overlay is a pipeline sink that filters detections, draws them on the
// frame and shows or records the result.
type Overlay struct {
	// Labels name the classes in captions.
	Labels []string
	// Classes picks colours; len(Labels) when zero.
	Classes int
	// Filter reduces the detections before drawing. Nil keeps all.
	Filter postprocess.Filter
	// Window shows the frames when set.
	Window *gocv.Window
	// Writer records the frames when set.
	Writer *gocv.VideoWriter
	// OnKey is called with the key pressed in the window, if any.
	OnKey func(key int) error
	// Logger receives per-frame detection counts at debug level.
	Logger *zap.Logger
}

// Emit draws the detections on the frame and hands it to the window and writer.
func (o *Overlay) Emit(_ context.Context, f Frame, detections []postprocess.Detection) error {
	if o.Filter != nil {
		detections = o.Filter(detections)
	}
	classes := o.Classes
	if classes == 0 {
		classes = len(o.Labels)
	}
	DrawDetections(&f.Mat, detections, o.Labels, classes)

	if o.Logger != nil {
		o.Logger.Debug("frame", zap.Int("index", f.Index), zap.Int("objects", len(detections)))
	}

	if o.Writer != nil {
		if err := o.Writer.Write(f.Mat); err != nil {
			return errors.Wrap(err, "writing frame")
		}
	}
	if o.Window != nil {
		o.Window.IMShow(f.Mat)
		key := o.Window.WaitKey(1)
		if key >= 0 && o.OnKey != nil {
			return o.OnKey(key)
		}
	}
	return nil
}

// Close releases the window and the writer.
func (o *Overlay) Close() error {
	var err error
	if o.Writer != nil {
		err = multierr.Append(err, o.Writer.Close())
	}
	if o.Window != nil {
		err = multierr.Append(err, o.Window.Close())
	}
	return err
}
