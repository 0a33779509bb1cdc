// Package images - Geometry shared by preprocessing and post-processing.
package images

import (
	"image"

	"github.com/chewxy/math32"
)

// Rect is a lightweight pixel rectangle.
type Rect struct {
	// X2,Y2 are exclusive (like image.Rectangle).
	X1, Y1, X2, Y2 int
}

// NewRect builds a Rect from an origin and a size, the way OpenCV describes regions.
func NewRect(x, y, width, height int) Rect {
	return Rect{X1: x, Y1: y, X2: x + width, Y2: y + height}
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() int { return r.X2 - r.X1 }

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() int { return r.Y2 - r.Y1 }

// Area returns the number of pixels covered by the rectangle.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width() * r.Height()
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool { return r.X2 <= r.X1 || r.Y2 <= r.Y1 }

// Image converts the rectangle to an image.Rectangle for gocv and image/draw.
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// Intersect returns the overlap of two rectangles, or the zero Rect if they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	i := Rect{
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
		X2: min(r.X2, o.X2),
		Y2: min(r.Y2, o.Y2),
	}
	if i.Empty() {
		return Rect{}
	}
	return i
}

// CalculateIoU returns the Intersection over Union of two pixel rectangles.
//
// Arguments:
//   - r: The first rectangle.
//   - o: The other rectangle to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
func CalculateIoU(r, o Rect) float32 {
	inter := r.Intersect(o).Area()
	if inter == 0 {
		return 0.0
	}
	union := r.Area() + o.Area() - inter
	return float32(inter) / float32(union)
}

// Box is a floating point box described by its center and extents. Detections
// are decoded into this form, either relative to the network input or in
// absolute output pixels.
type Box struct {
	X, Y, W, H float32
}

// overlap returns the length of the intersection of two 1-D segments given by
// their centers and widths.
func overlap(x1, w1, x2, w2 float32) float32 {
	left := math32.Max(x1-w1/2, x2-w2/2)
	right := math32.Min(x1+w1/2, x2+w2/2)
	return right - left
}

// Intersection returns the area shared by two boxes.
func (b Box) Intersection(o Box) float32 {
	w := overlap(b.X, b.W, o.X, o.W)
	h := overlap(b.Y, b.H, o.Y, o.H)
	if w < 0 || h < 0 {
		return 0
	}
	return w * h
}

// Union returns the area covered by either box.
func (b Box) Union(o Box) float32 {
	return b.W*b.H + o.W*o.H - b.Intersection(o)
}

// IoU returns the Intersection over Union of two center-form boxes.
//
// Degenerate boxes with no area never overlap anything.
func (b Box) IoU(o Box) float32 {
	u := b.Union(o)
	if u <= 0 {
		return 0
	}
	return b.Intersection(o) / u
}

// Rect rounds the box to a pixel rectangle.
func (b Box) Rect() Rect {
	return Rect{
		X1: int(math32.Round(b.X - b.W/2)),
		Y1: int(math32.Round(b.Y - b.H/2)),
		X2: int(math32.Round(b.X + b.W/2)),
		Y2: int(math32.Round(b.Y + b.H/2)),
	}
}
